package rendezvous

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"wormhole/internal/crypto"
	"wormhole/internal/domain"
)

// Wormhole is a confirmed mailbox channel. Send and Receive may be used
// from different goroutines, but each from one goroutine at a time.
type Wormhole struct {
	c        *conn
	code     domain.Code
	peerSide string

	keyMu sync.RWMutex
	key   []byte

	sendMu    sync.Mutex
	sendPhase int

	recvMu    sync.Mutex
	recvPhase int
	pending   map[string][]byte
}

var _ domain.SecureChannel = (*Wormhole)(nil)

func newWormhole(c *conn, wc domain.Code, key []byte, peerSide string) *Wormhole {
	return &Wormhole{
		c:        c,
		code:     wc,
		peerSide: peerSide,
		key:      key,
		pending:  make(map[string][]byte),
	}
}

// Code returns the code this wormhole was opened with.
func (w *Wormhole) Code() domain.Code { return w.code }

// Side returns our side identifier.
func (w *Wormhole) Side() string { return w.c.side }

// Session reports the mailbox state.
func (w *Wormhole) Session() domain.RendezvousSession {
	return domain.RendezvousSession{
		Mailbox: domain.MailboxID(w.c.mailbox),
		Side:    domain.Side(w.c.side),
		State:   w.c.getState(),
	}
}

// DeriveKey derives a purpose-bound key from the shared key. It returns nil
// after Close.
func (w *Wormhole) DeriveKey(purpose string, length int) []byte {
	w.keyMu.RLock()
	defer w.keyMu.RUnlock()
	if w.key == nil {
		return nil
	}
	return crypto.DeriveKey(w.key, []byte(purpose), length)
}

// Verifier is a short digest of the shared key both users can compare.
func (w *Wormhole) Verifier() string {
	w.keyMu.RLock()
	defer w.keyMu.RUnlock()
	if w.key == nil {
		return ""
	}
	return crypto.Verifier(w.key)
}

func (w *Wormhole) phaseKey(side, phase string) ([]byte, error) {
	k := w.DeriveKey(string(crypto.PhasePurpose(side, phase)), crypto.KeyBytes)
	if k == nil {
		return nil, fmt.Errorf("%w: wormhole closed", domain.ErrBrokerProtocol)
	}
	return k, nil
}

// Send encrypts body as our next numbered phase.
func (w *Wormhole) Send(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	phase := strconv.Itoa(w.sendPhase)
	key, err := w.phaseKey(w.c.side, phase)
	if err != nil {
		return err
	}
	defer crypto.Wipe(key)
	sealed, err := crypto.Seal(key, body)
	if err != nil {
		return err
	}
	if err := w.c.add(phase, sealed); err != nil {
		return err
	}
	w.sendPhase++
	return nil
}

// Receive returns the peer's next numbered phase, in order.
func (w *Wormhole) Receive(ctx context.Context) ([]byte, error) {
	w.recvMu.Lock()
	defer w.recvMu.Unlock()

	want := strconv.Itoa(w.recvPhase)
	for {
		if sealed, ok := w.pending[want]; ok {
			delete(w.pending, want)
			out, err := w.open(want, sealed)
			if err != nil {
				return nil, err
			}
			w.recvPhase++
			return out, nil
		}
		m, err := w.c.nextPeer(ctx)
		if err != nil {
			return nil, err
		}
		if m.Side != w.peerSide {
			return nil, fmt.Errorf("%w: message from unknown side %q", domain.ErrBrokerProtocol, m.Side)
		}
		n, err := strconv.Atoi(m.Phase)
		if err != nil || n < w.recvPhase {
			// pake, confirm or a replayed phase.
			continue
		}
		body, err := hex.DecodeString(m.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: phase %s body is not hex", domain.ErrBrokerProtocol, m.Phase)
		}
		w.pending[m.Phase] = body
	}
}

func (w *Wormhole) open(phase string, sealed []byte) ([]byte, error) {
	key, err := w.phaseKey(w.peerSide, phase)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	out, err := crypto.Open(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: phase %s: %v", domain.ErrAuthenticationFailed, phase, err)
	}
	return out, nil
}

// Close closes the mailbox with mood and wipes the shared key. It must not
// run concurrently with Receive.
func (w *Wormhole) Close(ctx context.Context, mood string) error {
	w.keyMu.Lock()
	if w.key != nil {
		crypto.Wipe(w.key)
		w.key = nil
	}
	w.keyMu.Unlock()
	return w.c.shutdown(ctx, mood)
}
