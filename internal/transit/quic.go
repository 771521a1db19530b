package transit

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"wormhole/internal/crypto"
)

const (
	alpnTransit   = "wormhole-transit"
	quicLinger    = time.Second
	quicIdle      = time.Minute
	quicKeepAlive = 15 * time.Second
)

// newTLSConfig returns a throwaway self-signed identity. TLS only provides
// the QUIC channel; the transit handshake authenticates the peer.
func newTLSConfig() (*tls.Config, error) {
	cert, err := crypto.SelfSignedCert(24 * time.Hour)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpnTransit},
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	}, nil
}

func newQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  quicIdle,
		KeepAlivePeriod: quicKeepAlive,
	}
}

// quicConn presents one bidirectional QUIC stream as a net.Conn.
type quicConn struct {
	quic.Stream
	conn quic.Connection
	// inbound streams arrived on our listener's transport.
	inbound bool
	// transport is set when this conn outlives the negotiator and must
	// release the listener's UDP socket itself.
	transport *quicTransport
}

var _ net.Conn = (*quicConn)(nil)

func (c *quicConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close finishes the stream and gives the peer a moment to read what is
// still in flight before tearing the connection down.
func (c *quicConn) Close() error {
	err := c.Stream.Close()
	select {
	case <-c.conn.Context().Done():
	case <-time.After(quicLinger):
	}
	_ = c.conn.CloseWithError(0, "")
	if c.transport != nil {
		c.transport.close()
	}
	return err
}

// quicTransport is the listener side's UDP socket. Accepted connections
// live only as long as it does.
type quicTransport struct {
	pc net.PacketConn
	tr *quic.Transport
	ln *quic.Listener
}

func listenQUIC(addr string, tlsConf *tls.Config) (*quicTransport, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	tr := &quic.Transport{Conn: pc}
	ln, err := tr.Listen(tlsConf, newQUICConfig())
	if err != nil {
		_ = tr.Close()
		_ = pc.Close()
		return nil, err
	}
	return &quicTransport{pc: pc, tr: tr, ln: ln}, nil
}

// stopAccepting closes the listener. Accepted connections keep running.
func (t *quicTransport) stopAccepting() { _ = t.ln.Close() }

func (t *quicTransport) close() {
	_ = t.ln.Close()
	_ = t.tr.Close()
	_ = t.pc.Close()
}

func dialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (net.Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, newQUICConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

func acceptQUIC(ctx context.Context, conn quic.Connection) (net.Conn, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn, inbound: true}, nil
}
