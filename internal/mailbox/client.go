package mailbox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

// client is one connected WebSocket peer.
type client struct {
	srv  *Server
	conn *websocket.Conn
	log  logrus.FieldLogger

	wmu sync.Mutex

	appID     string
	side      string
	nameplate string
	mailbox   *mailbox
}

func (c *client) serve() {
	defer func() {
		if c.mailbox != nil {
			c.srv.unsubscribe(c.mailbox, c)
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)

	welcome := map[string]any{}
	if c.srv.motd != "" {
		welcome["motd"] = c.srv.motd
	}
	if err := c.write(domain.MailboxMessage{Type: domain.MsgWelcome, Welcome: welcome}); err != nil {
		return
	}

	for {
		var m domain.MailboxMessage
		if err := c.conn.ReadJSON(&m); err != nil {
			c.log.WithError(err).Debug("mailbox: client gone")
			return
		}
		if err := c.write(domain.MailboxMessage{Type: domain.MsgAck, ID: m.ID}); err != nil {
			return
		}
		if err := c.handle(m); err != nil {
			orig := m
			if werr := c.write(domain.MailboxMessage{Type: domain.MsgError, Error: err.Error(), Orig: &orig}); werr != nil {
				return
			}
		}
	}
}

func (c *client) handle(m domain.MailboxMessage) error {
	if m.Type == domain.MsgPing {
		return c.write(domain.MailboxMessage{Type: domain.MsgPong, Pong: m.Ping})
	}
	if m.Type == domain.MsgBind {
		if c.appID != "" {
			return errors.New(errRebound)
		}
		if m.AppID == "" || m.Side == "" {
			return errors.New(errBadMessage)
		}
		c.appID, c.side = m.AppID, m.Side
		c.log = c.log.WithFields(logrus.Fields{"app": c.appID, "side": c.side})
		return nil
	}
	if c.appID == "" {
		return errors.New(errNotBound)
	}

	switch m.Type {
	case domain.MsgAllocate:
		name := c.srv.allocate(c.appID, c.side)
		c.nameplate = name
		c.log.WithField("nameplate", name).Debug("mailbox: allocated")
		return c.write(domain.MailboxMessage{Type: domain.MsgAllocated, Nameplate: name})

	case domain.MsgClaim:
		if m.Nameplate == "" {
			return errors.New(errBadMessage)
		}
		id, err := c.srv.claim(c.appID, m.Nameplate, c.side)
		if err != nil {
			return err
		}
		c.nameplate = m.Nameplate
		return c.write(domain.MailboxMessage{Type: domain.MsgClaimed, Mailbox: id})

	case domain.MsgRelease:
		name := m.Nameplate
		if name == "" {
			name = c.nameplate
		}
		c.srv.release(c.appID, name, c.side)
		return c.write(domain.MailboxMessage{Type: domain.MsgReleased})

	case domain.MsgOpen:
		if c.mailbox != nil {
			return errors.New(errReopened)
		}
		if m.Mailbox == "" {
			return errors.New(errBadMessage)
		}
		mb, history, err := c.srv.open(c.appID, m.Mailbox, c.side, c)
		if err != nil {
			return err
		}
		c.mailbox = mb
		for _, h := range history {
			if err := c.write(h); err != nil {
				return err
			}
		}
		return nil

	case domain.MsgAdd:
		if c.mailbox == nil {
			return errors.New(errNotOpen)
		}
		if m.Phase == "" {
			return errors.New(errBadMessage)
		}
		out := domain.MailboxMessage{
			Type:     domain.MsgMessage,
			ID:       m.ID,
			Side:     c.side,
			Phase:    m.Phase,
			Body:     m.Body,
			ServerTX: float64(time.Now().UnixNano()) / 1e9,
		}
		for _, l := range c.srv.add(c.mailbox, out) {
			if err := l.write(out); err != nil {
				l.log.WithError(err).Debug("mailbox: broadcast failed")
			}
		}
		return nil

	case domain.MsgClose:
		if c.mailbox == nil {
			return errors.New(errNotOpen)
		}
		c.srv.close(c.appID, c.mailbox, c.side, c)
		c.log.WithField("mood", m.Mood).Debug("mailbox: closed")
		c.mailbox = nil
		return c.write(domain.MailboxMessage{Type: domain.MsgClosed})
	}
	return fmt.Errorf("%w: unknown type %q", errProtocol, m.Type)
}

// write is safe for concurrent use; broadcasts from other clients go
// through it too.
func (c *client) write(m domain.MailboxMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(m)
}
