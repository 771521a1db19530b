package transit

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
	"wormhole/internal/protocol/record"
)

// Negotiator runs one transit negotiation. It is not reusable.
type Negotiator struct {
	cfg  Config
	role domain.Role
	side string
	keys keys
	log  logrus.FieldLogger

	tcpLn   net.Listener
	quicTr  *quicTransport
	tlsConf *tls.Config

	mu       sync.Mutex
	closed   bool
	handedTo *quicConn
}

// candidate is a connection that finished the transit handshake.
type candidate struct {
	kind domain.TransportKind
	hint domain.TransitHint
	conn net.Conn
}

type outcome struct {
	cand *candidate
	err  error
	// outbound direct dials gate the choice of a relay.
	outboundDirect bool
}

// NewNegotiator prepares a negotiation for role. side is our mailbox side
// and transitKey the key derived for transit from the shared key.
func NewNegotiator(cfg Config, role domain.Role, side string, transitKey []byte) (*Negotiator, error) {
	if len(transitKey) == 0 {
		return nil, fmt.Errorf("%w: empty transit key", domain.ErrInvalidInput)
	}
	cfg = cfg.withDefaults()
	return &Negotiator{
		cfg:  cfg,
		role: role,
		side: side,
		keys: deriveKeys(transitKey),
		log:  cfg.Logger.WithField("role", role.String()),
	}, nil
}

// Listen opens the listeners our abilities need and returns the offer to
// send the peer.
func (n *Negotiator) Listen() (domain.TransitOffer, error) {
	var offer domain.TransitOffer
	for _, a := range n.cfg.Abilities {
		offer.Abilities = append(offer.Abilities, domain.Ability{Type: a})
	}
	hosts := n.cfg.advertiseHosts()

	if n.cfg.has(domain.TransportDirectTCP) {
		ln, err := net.Listen("tcp", net.JoinHostPort(n.cfg.ListenHost, "0"))
		if err != nil {
			return offer, fmt.Errorf("transit: listen tcp: %w", err)
		}
		n.tcpLn = ln
		port := ln.Addr().(*net.TCPAddr).Port
		for _, h := range hosts {
			offer.Hints = append(offer.Hints, domain.TransitHint{Kind: domain.TransportDirectTCP, Hostname: h, Port: port})
		}
	}
	if n.cfg.has(domain.TransportDirectQUIC) {
		tlsConf, err := newTLSConfig()
		if err != nil {
			n.Close()
			return offer, fmt.Errorf("transit: tls: %w", err)
		}
		qt, err := listenQUIC(net.JoinHostPort(n.cfg.ListenHost, "0"), tlsConf)
		if err != nil {
			n.Close()
			return offer, fmt.Errorf("transit: listen quic: %w", err)
		}
		n.tlsConf, n.quicTr = tlsConf, qt
		port := qt.ln.Addr().(*net.UDPAddr).Port
		for _, h := range hosts {
			offer.Hints = append(offer.Hints, domain.TransitHint{Kind: domain.TransportDirectQUIC, Hostname: h, Port: port, Priority: 0.5})
		}
	}
	if n.cfg.has(domain.TransportRelay) {
		relays, err := n.cfg.relayHints()
		if err != nil {
			n.Close()
			return offer, err
		}
		offer.Hints = append(offer.Hints, relays...)
	}
	return offer, nil
}

// Close shuts the listeners. Connect does it on return. When the chosen
// connection arrived over our QUIC listener, its UDP socket stays open
// until that connection is closed.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	if n.tcpLn != nil {
		_ = n.tcpLn.Close()
	}
	if n.quicTr != nil {
		if n.handedTo != nil {
			n.quicTr.stopAccepting()
			n.handedTo.transport = n.quicTr
		} else {
			n.quicTr.close()
		}
	}
}

// Connect races every candidate allowed by both offers and returns the
// chosen, confirmed connection.
func (n *Negotiator) Connect(ctx context.Context, peer domain.TransitOffer) (*Connection, error) {
	defer n.Close()

	common := n.common(peer)
	if len(common) == 0 {
		return nil, domain.ErrNoCommonTransport
	}
	n.log.WithField("transports", common).Debug("transit: negotiating")

	ctx, cancel := context.WithTimeoutCause(ctx, n.cfg.Timeout, domain.ErrNegotiationTimeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	results := make(chan outcome)

	pendingDirect := 0
	for _, h := range n.directHints(peer, common) {
		pendingDirect++
		go n.dial(ctx, done, results, h)
	}
	if common[domain.TransportRelay] {
		for _, h := range n.relayHints(peer) {
			go n.relay(ctx, done, results, h)
		}
	}
	if common[domain.TransportDirectTCP] && n.tcpLn != nil {
		go n.acceptTCP(ctx, done, results)
	}
	if common[domain.TransportDirectQUIC] && n.quicTr != nil {
		go n.acceptQUIC(ctx, done, results)
	}

	var held *candidate
	for {
		select {
		case r := <-results:
			if r.outboundDirect {
				pendingDirect--
			}
			switch {
			case r.err != nil:
				n.log.WithError(r.err).Debug("transit: attempt failed")
			case n.role == domain.RoleReceiver || r.cand.kind.IsDirect():
				if c, err := n.choose(r.cand, held); err == nil {
					return c, nil
				}
			case held == nil:
				held = r.cand
			default:
				n.reject(r.cand)
			}
			if held != nil && pendingDirect == 0 {
				if c, err := n.choose(held, nil); err == nil {
					return c, nil
				}
				held = nil
			}
		case <-ctx.Done():
			if held != nil && errors.Is(context.Cause(ctx), domain.ErrNegotiationTimeout) {
				if c, err := n.choose(held, nil); err == nil {
					return c, nil
				}
			}
			return nil, context.Cause(ctx)
		}
	}
}

// choose confirms winner and wraps it. other, if set, is told nevermind.
func (n *Negotiator) choose(winner, other *candidate) (*Connection, error) {
	if n.role == domain.RoleSender {
		if _, err := io.WriteString(winner.conn, goLine); err != nil {
			_ = winner.conn.Close()
			return nil, err
		}
	}
	if other != nil && other != winner {
		n.reject(other)
	}
	send, recv := n.keys.recordSend, n.keys.recordRecv
	if n.role == domain.RoleReceiver {
		send, recv = recv, send
	}
	rec, err := record.New(winner.conn, send, recv)
	if err != nil {
		_ = winner.conn.Close()
		return nil, err
	}
	rec.SetIdleTimeout(n.cfg.IdleTimeout)
	if qc, ok := winner.conn.(*quicConn); ok && qc.inbound {
		n.mu.Lock()
		n.handedTo = qc
		n.mu.Unlock()
	}
	n.log.WithFields(logrus.Fields{
		"transport": winner.kind,
		"peer":      winner.conn.RemoteAddr().String(),
	}).Info("transit: connected")
	return &Connection{Kind: winner.kind, Hint: winner.hint, Conn: rec}, nil
}

// reject turns down a ready candidate.
func (n *Negotiator) reject(c *candidate) {
	go func() {
		if n.role == domain.RoleSender {
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = io.WriteString(c.conn, nevermindLine)
		}
		_ = c.conn.Close()
	}()
}

func (n *Negotiator) common(peer domain.TransitOffer) map[domain.TransportKind]bool {
	out := make(map[domain.TransportKind]bool)
	for _, a := range peer.Abilities {
		if n.cfg.has(a.Type) {
			out[a.Type] = true
		}
	}
	return out
}

func (n *Negotiator) directHints(peer domain.TransitOffer, common map[domain.TransportKind]bool) []domain.TransitHint {
	var out []domain.TransitHint
	for _, h := range peer.Hints {
		if h.Kind.IsDirect() && common[h.Kind] {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// relayHints merges our relays with the peer's, dropping duplicates.
func (n *Negotiator) relayHints(peer domain.TransitOffer) []domain.TransitHint {
	ours, _ := n.cfg.relayHints()
	seen := make(map[string]bool)
	var out []domain.TransitHint
	for _, h := range append(ours, peer.Hints...) {
		if h.Kind != domain.TransportRelay || seen[h.Address()] {
			continue
		}
		seen[h.Address()] = true
		out = append(out, h)
	}
	return out
}

// deliver hands r to Connect, or closes its connection once Connect has
// returned.
func (n *Negotiator) deliver(done <-chan struct{}, results chan<- outcome, r outcome) {
	select {
	case results <- r:
	case <-done:
		if r.cand != nil {
			n.reject(r.cand)
		}
	}
}

// handshake runs the transit handshake on c while ctx lives. relayed
// connections first ask the relay to pair them.
func (n *Negotiator) handshake(ctx context.Context, c net.Conn, relayed bool) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(n.cfg.AttemptTimeout))

	err := func() error {
		if relayed {
			if err := relayHandshake(c, n.keys.relayToken, n.side); err != nil {
				return fmt.Errorf("relay: %w", err)
			}
		}
		ours, theirs := lines(n.role, n.keys)
		if err := exchangeLines(c, ours, theirs); err != nil {
			return err
		}
		if n.role == domain.RoleReceiver {
			// The sender may hold a candidate until negotiation ends.
			_ = c.SetDeadline(time.Time{})
			return awaitGo(c)
		}
		return nil
	}()
	if !stop() {
		err = errors.Join(err, context.Cause(ctx))
	}
	if err != nil {
		_ = c.Close()
		return err
	}
	_ = c.SetDeadline(time.Time{})
	return nil
}

func (n *Negotiator) dial(ctx context.Context, done <-chan struct{}, results chan<- outcome, h domain.TransitHint) {
	r := outcome{outboundDirect: true}
	dctx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
	defer cancel()

	var c net.Conn
	var err error
	switch h.Kind {
	case domain.TransportDirectQUIC:
		c, err = dialQUIC(dctx, h.Address(), n.clientTLS())
	default:
		var d net.Dialer
		c, err = d.DialContext(dctx, "tcp", h.Address())
	}
	if err == nil {
		err = n.handshake(ctx, c, false)
	}
	if err != nil {
		r.err = fmt.Errorf("%s %s: %w", h.Kind, h.Address(), err)
	} else {
		r.cand = &candidate{kind: h.Kind, hint: h, conn: c}
	}
	n.deliver(done, results, r)
}

func (n *Negotiator) relay(ctx context.Context, done <-chan struct{}, results chan<- outcome, h domain.TransitHint) {
	if n.cfg.RelayDelay > 0 {
		t := time.NewTimer(n.cfg.RelayDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
	var r outcome
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
	defer cancel()
	c, err := d.DialContext(dctx, "tcp", h.Address())
	if err == nil {
		err = n.handshake(ctx, c, true)
	}
	if err != nil {
		r.err = fmt.Errorf("relay %s: %w", h.Address(), err)
	} else {
		r.cand = &candidate{kind: domain.TransportRelay, hint: h, conn: c}
	}
	n.deliver(done, results, r)
}

func (n *Negotiator) acceptTCP(ctx context.Context, done <-chan struct{}, results chan<- outcome) {
	for {
		c, err := n.tcpLn.Accept()
		if err != nil {
			return
		}
		go n.inbound(ctx, done, results, domain.TransportDirectTCP, c)
	}
}

func (n *Negotiator) acceptQUIC(ctx context.Context, done <-chan struct{}, results chan<- outcome) {
	for {
		qc, err := n.quicTr.ln.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			actx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
			defer cancel()
			c, err := acceptQUIC(actx, qc)
			if err != nil {
				n.log.WithError(err).Debug("transit: quic stream")
				return
			}
			n.inbound(ctx, done, results, domain.TransportDirectQUIC, c)
		}()
	}
}

func (n *Negotiator) inbound(ctx context.Context, done <-chan struct{}, results chan<- outcome, kind domain.TransportKind, c net.Conn) {
	if err := n.handshake(ctx, c, false); err != nil {
		n.log.WithError(err).WithField("peer", c.RemoteAddr().String()).Debug("transit: inbound rejected")
		return
	}
	n.deliver(done, results, outcome{cand: &candidate{kind: kind, hint: hintFor(kind, c.RemoteAddr()), conn: c}})
}

func (n *Negotiator) clientTLS() *tls.Config {
	if n.tlsConf != nil {
		return n.tlsConf
	}
	return &tls.Config{NextProtos: []string{alpnTransit}, InsecureSkipVerify: true, MinVersion: tls.VersionTLS13}
}

func hintFor(kind domain.TransportKind, addr net.Addr) domain.TransitHint {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return domain.TransitHint{Kind: kind}
	}
	p, _ := strconv.Atoi(port)
	return domain.TransitHint{Kind: kind, Hostname: host, Port: p}
}
