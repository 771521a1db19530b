package rendezvous

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

const (
	sideBytes    = 5
	writeTimeout = 10 * time.Second
	inboxSize    = 64
	closeTimeout = 2 * time.Second
)

// conn is one WebSocket connection to the mailbox server. A single reader
// goroutine feeds inbox; writes are serialised by wmu.
type conn struct {
	ws  *websocket.Conn
	log logrus.FieldLogger

	side      string
	nameplate string
	mailbox   string

	wmu sync.Mutex

	inbox   chan domain.MailboxMessage
	done    chan struct{}
	readErr error
	queued  []domain.MailboxMessage

	stateMu sync.Mutex
	state   domain.RendezvousState

	closeOnce sync.Once
}

// dial connects to url, retrying once after backoff.
func dial(ctx context.Context, url string, backoff time.Duration, log logrus.FieldLogger) (*conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.WithError(err).Debug("rendezvous: dial failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
		ws, _, err = websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrBrokerUnreachable, url, err)
		}
	}
	side, err := randomSide()
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	c := &conn{
		ws:    ws,
		log:   log.WithField("side", side),
		side:  side,
		inbox: make(chan domain.MailboxMessage, inboxSize),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func randomSide() (string, error) {
	var b [sideBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("rendezvous: side: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

func (c *conn) readLoop() {
	defer close(c.inbox)
	for {
		var m domain.MailboxMessage
		if err := c.ws.ReadJSON(&m); err != nil {
			c.readErr = err
			return
		}
		switch m.Type {
		case domain.MsgAck, domain.MsgPong:
			continue
		}
		select {
		case c.inbox <- m:
		case <-c.done:
			return
		}
	}
}

func (c *conn) setState(s domain.RendezvousState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *conn) getState() domain.RendezvousState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// send writes m with a fresh message id.
func (c *conn) send(m domain.MailboxMessage) error {
	var id [2]byte
	_, _ = rand.Read(id[:])
	m.ID = hex.EncodeToString(id[:])

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(m); err != nil {
		return fmt.Errorf("%w: send %s: %v", domain.ErrBrokerUnreachable, m.Type, err)
	}
	return nil
}

// next returns the next server message other than ack and pong.
func (c *conn) next(ctx context.Context) (domain.MailboxMessage, error) {
	select {
	case m, ok := <-c.inbox:
		if !ok {
			return m, fmt.Errorf("%w: connection closed: %v", domain.ErrBrokerUnreachable, c.readErr)
		}
		return m, nil
	case <-ctx.Done():
		return domain.MailboxMessage{}, context.Cause(ctx)
	}
}

// await reads until a message of type want arrives. Peer messages that
// show up meanwhile are queued for nextPeer.
func (c *conn) await(ctx context.Context, want string) (domain.MailboxMessage, error) {
	for {
		m, err := c.next(ctx)
		if err != nil {
			return m, err
		}
		switch m.Type {
		case want:
			return m, nil
		case domain.MsgError:
			return m, serverError(m)
		case domain.MsgMessage:
			c.queued = append(c.queued, m)
		}
	}
}

// nextPeer returns the next mailbox message written by the other side.
func (c *conn) nextPeer(ctx context.Context) (domain.MailboxMessage, error) {
	for {
		var m domain.MailboxMessage
		if len(c.queued) > 0 {
			m, c.queued = c.queued[0], c.queued[1:]
		} else {
			var err error
			if m, err = c.next(ctx); err != nil {
				return m, err
			}
		}
		switch m.Type {
		case domain.MsgError:
			return m, serverError(m)
		case domain.MsgMessage:
			if m.Side != c.side {
				return m, nil
			}
		}
	}
}

// serverError maps an error message onto the broker error taxonomy.
func serverError(m domain.MailboxMessage) error {
	orig := ""
	if m.Orig != nil {
		orig = m.Orig.Type
	}
	switch orig {
	case domain.MsgAllocate, domain.MsgClaim, domain.MsgOpen:
		return fmt.Errorf("%w: %s: %s", domain.ErrNameplateUnavailable, orig, m.Error)
	}
	return fmt.Errorf("%w: %s", domain.ErrBrokerProtocol, m.Error)
}

// bind consumes the server greeting and binds as our side.
func (c *conn) bind(ctx context.Context, appID string) error {
	m, err := c.await(ctx, domain.MsgWelcome)
	if err != nil {
		return err
	}
	if msg, ok := m.Welcome["error"].(string); ok {
		return fmt.Errorf("%w: server refused: %s", domain.ErrBrokerProtocol, msg)
	}
	if motd, ok := m.Welcome["motd"].(string); ok {
		c.log.WithField("motd", motd).Info("rendezvous: server message")
	}
	if err := c.send(domain.MailboxMessage{Type: domain.MsgBind, AppID: appID, Side: c.side}); err != nil {
		return err
	}
	c.setState(domain.StateBound)
	return nil
}

func (c *conn) allocate(ctx context.Context) (string, error) {
	if err := c.send(domain.MailboxMessage{Type: domain.MsgAllocate}); err != nil {
		return "", err
	}
	m, err := c.await(ctx, domain.MsgAllocated)
	if err != nil {
		return "", err
	}
	if m.Nameplate == "" {
		return "", fmt.Errorf("%w: allocated without nameplate", domain.ErrBrokerProtocol)
	}
	return m.Nameplate, nil
}

// claimAndOpen claims nameplate and opens the mailbox it points at.
func (c *conn) claimAndOpen(ctx context.Context, nameplate string) error {
	if err := c.send(domain.MailboxMessage{Type: domain.MsgClaim, Nameplate: nameplate}); err != nil {
		return err
	}
	m, err := c.await(ctx, domain.MsgClaimed)
	if err != nil {
		return err
	}
	if m.Mailbox == "" {
		return fmt.Errorf("%w: claimed without mailbox", domain.ErrBrokerProtocol)
	}
	c.nameplate, c.mailbox = nameplate, m.Mailbox
	c.setState(domain.StateClaimed)

	if err := c.send(domain.MailboxMessage{Type: domain.MsgOpen, Mailbox: c.mailbox}); err != nil {
		return err
	}
	c.setState(domain.StateOpened)
	return nil
}

func (c *conn) release() error {
	if c.nameplate == "" {
		return nil
	}
	err := c.send(domain.MailboxMessage{Type: domain.MsgRelease, Nameplate: c.nameplate})
	c.nameplate = ""
	return err
}

func (c *conn) add(phase string, body []byte) error {
	return c.send(domain.MailboxMessage{Type: domain.MsgAdd, Phase: phase, Body: hex.EncodeToString(body)})
}

// shutdown releases the nameplate, closes the mailbox with mood and drops
// the connection. It waits briefly for the server to confirm even when ctx
// is already cancelled. Later calls do nothing.
func (c *conn) shutdown(ctx context.Context, mood string) error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()

		if rerr := c.release(); rerr != nil {
			c.log.WithError(rerr).Debug("rendezvous: release failed")
		}
		if c.mailbox != "" {
			if serr := c.send(domain.MailboxMessage{Type: domain.MsgClose, Mailbox: c.mailbox, Mood: mood}); serr == nil {
				if _, werr := c.await(ctx, domain.MsgClosed); werr != nil {
					c.log.WithError(werr).Debug("rendezvous: no close confirmation")
				}
			}
		}
		c.setState(domain.StateClosed)
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
