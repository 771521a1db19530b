package mailbox_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"wormhole/internal/domain"
	"wormhole/internal/mailbox"
)

const appID = "example.com/test"

func newServer(t *testing.T) (*mailbox.Server, string) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	srv := mailbox.New(log, "hello from tests")
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

type peer struct {
	t  *testing.T
	ws *websocket.Conn
}

func connect(t *testing.T, url, side string) *peer {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	p := &peer{t: t, ws: ws}
	w := p.expect(domain.MsgWelcome)
	require.Equal(t, "hello from tests", w.Welcome["motd"])
	p.send(domain.MailboxMessage{Type: domain.MsgBind, AppID: appID, Side: side})
	return p
}

func (p *peer) send(m domain.MailboxMessage) {
	p.t.Helper()
	require.NoError(p.t, p.ws.WriteJSON(m))
}

// expect skips acks and returns the next message, which must be of type want.
func (p *peer) expect(want string) domain.MailboxMessage {
	p.t.Helper()
	_ = p.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var m domain.MailboxMessage
		require.NoError(p.t, p.ws.ReadJSON(&m))
		if m.Type == domain.MsgAck {
			continue
		}
		require.Equal(p.t, want, m.Type, "got %+v", m)
		return m
	}
}

func (p *peer) claim(nameplate string) domain.MailboxMessage {
	p.send(domain.MailboxMessage{Type: domain.MsgClaim, Nameplate: nameplate})
	return p.expect(domain.MsgClaimed)
}

func TestServer_AllocatesSmallestFreeNameplate(t *testing.T) {
	_, url := newServer(t)
	a := connect(t, url, "aaaa")
	a.send(domain.MailboxMessage{Type: domain.MsgAllocate})
	require.Equal(t, "1", a.expect(domain.MsgAllocated).Nameplate)

	b := connect(t, url, "bbbb")
	b.send(domain.MailboxMessage{Type: domain.MsgAllocate})
	require.Equal(t, "2", b.expect(domain.MsgAllocated).Nameplate)
}

func TestServer_ClaimAdmitsTwoSides(t *testing.T) {
	_, url := newServer(t)
	a := connect(t, url, "aaaa")
	b := connect(t, url, "bbbb")
	c := connect(t, url, "cccc")

	ma := a.claim("7")
	mb := b.claim("7")
	require.Equal(t, ma.Mailbox, mb.Mailbox)
	require.NotEmpty(t, ma.Mailbox)

	// Claiming again from the same side is idempotent.
	require.Equal(t, ma.Mailbox, a.claim("7").Mailbox)

	c.send(domain.MailboxMessage{Type: domain.MsgClaim, Nameplate: "7"})
	e := c.expect(domain.MsgError)
	require.Equal(t, "crowded", e.Error)
	require.NotNil(t, e.Orig)
	require.Equal(t, domain.MsgClaim, e.Orig.Type)
}

func TestServer_ReleasedSideCannotReclaim(t *testing.T) {
	_, url := newServer(t)
	a := connect(t, url, "aaaa")
	b := connect(t, url, "bbbb")
	a.claim("3")
	b.claim("3")

	a.send(domain.MailboxMessage{Type: domain.MsgRelease, Nameplate: "3"})
	a.expect(domain.MsgReleased)
	a.send(domain.MailboxMessage{Type: domain.MsgClaim, Nameplate: "3"})
	require.Equal(t, "reclaimed", a.expect(domain.MsgError).Error)
}

func TestServer_MailboxBroadcastAndReplay(t *testing.T) {
	_, url := newServer(t)
	a := connect(t, url, "aaaa")
	b := connect(t, url, "bbbb")
	mbox := a.claim("5").Mailbox
	b.claim("5")

	a.send(domain.MailboxMessage{Type: domain.MsgOpen, Mailbox: mbox})
	a.send(domain.MailboxMessage{Type: domain.MsgAdd, Phase: "pake", Body: "aa"})
	echo := a.expect(domain.MsgMessage)
	require.Equal(t, "aaaa", echo.Side)

	// b opens late and still sees a's message.
	b.send(domain.MailboxMessage{Type: domain.MsgOpen, Mailbox: mbox})
	got := b.expect(domain.MsgMessage)
	require.Equal(t, "aaaa", got.Side)
	require.Equal(t, "pake", got.Phase)
	require.Equal(t, "aa", got.Body)

	b.send(domain.MailboxMessage{Type: domain.MsgAdd, Phase: "pake", Body: "bb"})
	require.Equal(t, "bb", a.expect(domain.MsgMessage).Body)
	require.Equal(t, "bb", b.expect(domain.MsgMessage).Body)
}

func TestServer_CloseDropsState(t *testing.T) {
	srv, url := newServer(t)
	a := connect(t, url, "aaaa")
	b := connect(t, url, "bbbb")
	mbox := a.claim("9").Mailbox
	b.claim("9")
	for _, p := range []*peer{a, b} {
		p.send(domain.MailboxMessage{Type: domain.MsgOpen, Mailbox: mbox})
		p.send(domain.MailboxMessage{Type: domain.MsgRelease})
		p.expect(domain.MsgReleased)
	}
	a.send(domain.MailboxMessage{Type: domain.MsgClose, Mailbox: mbox, Mood: domain.MoodHappy})
	a.expect(domain.MsgClosed)
	b.send(domain.MailboxMessage{Type: domain.MsgClose, Mailbox: mbox, Mood: domain.MoodHappy})
	b.expect(domain.MsgClosed)

	nameplates, mailboxes := srv.Stats()
	require.Zero(t, nameplates)
	require.Zero(t, mailboxes)
}

func TestServer_PingAndErrors(t *testing.T) {
	_, url := newServer(t)
	a := connect(t, url, "aaaa")
	a.send(domain.MailboxMessage{Type: domain.MsgPing, Ping: 42})
	require.Equal(t, 42, a.expect(domain.MsgPong).Pong)

	a.send(domain.MailboxMessage{Type: domain.MsgAdd, Phase: "0", Body: "00"})
	require.Equal(t, "must open mailbox first", a.expect(domain.MsgError).Error)

	a.send(domain.MailboxMessage{Type: domain.MsgBind, AppID: appID, Side: "zzzz"})
	require.Equal(t, "already bound", a.expect(domain.MsgError).Error)
}
