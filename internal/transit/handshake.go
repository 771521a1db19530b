package transit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"

	"wormhole/internal/crypto"
	"wormhole/internal/domain"
)

const (
	purposeSender      = "transit_sender"
	purposeReceiver    = "transit_receiver"
	purposeRelayToken  = "transit_relay_token"
	purposeRecordSend  = "transit_record_sender_key"
	purposeRecordRecv  = "transit_record_receiver_key"
	goLine             = "go\n"
	nevermindLine      = "nevermind\n"
	relayOK            = "ok\n"
	handshakeKeyLength = crypto.KeyBytes
)

var errHandshake = errors.New("transit handshake mismatch")

// keys holds everything derived from the transit key.
type keys struct {
	senderLine   []byte
	receiverLine []byte
	relayToken   string
	recordSend   []byte // sender to receiver
	recordRecv   []byte // receiver to sender
}

func deriveKeys(transitKey []byte) keys {
	d := func(p string) []byte { return crypto.DeriveKey(transitKey, []byte(p), handshakeKeyLength) }
	return keys{
		senderLine:   []byte("transit sender " + hex.EncodeToString(d(purposeSender)) + " ready\n\n"),
		receiverLine: []byte("transit receiver " + hex.EncodeToString(d(purposeReceiver)) + " ready\n\n"),
		relayToken:   hex.EncodeToString(d(purposeRelayToken)),
		recordSend:   d(purposeRecordSend),
		recordRecv:   d(purposeRecordRecv),
	}
}

// RelayLine is what a client sends a transit relay before anything else.
func RelayLine(token, side string) string {
	return fmt.Sprintf("please relay %s for side %s\n", token, side)
}

// relayHandshake asks the relay to pair us with the peer holding the same
// token and waits for its ok.
func relayHandshake(c net.Conn, token, side string) error {
	if _, err := io.WriteString(c, RelayLine(token, side)); err != nil {
		return err
	}
	return expect(c, []byte(relayOK))
}

// exchangeLines writes our line and checks the peer's.
func exchangeLines(c net.Conn, ours, theirs []byte) error {
	errc := make(chan error, 1)
	go func() {
		_, err := c.Write(ours)
		errc <- err
	}()
	if err := expect(c, theirs); err != nil {
		return err
	}
	return <-errc
}

func expect(c net.Conn, want []byte) error {
	got := make([]byte, len(want))
	if _, err := io.ReadFull(c, got); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return errHandshake
	}
	return nil
}

// awaitGo waits for the sender's verdict on a ready candidate.
func awaitGo(c net.Conn) error {
	got := make([]byte, len(goLine))
	if _, err := io.ReadFull(c, got); err != nil {
		return err
	}
	if string(got) != goLine {
		return fmt.Errorf("%w: candidate not chosen", errHandshake)
	}
	return nil
}

func lines(role domain.Role, k keys) (ours, theirs []byte) {
	if role == domain.RoleSender {
		return k.senderLine, k.receiverLine
	}
	return k.receiverLine, k.senderLine
}
