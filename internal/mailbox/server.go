package mailbox

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

const (
	maxSides     = 2
	writeTimeout = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Error strings sent to clients.
const (
	errCrowded    = "crowded"
	errReclaimed  = "reclaimed"
	errNotBound   = "must bind first"
	errNotOpen    = "must open mailbox first"
	errReopened   = "only one open per connection"
	errRebound    = "already bound"
	errBadMessage = "missing or unknown field"
)

var errProtocol = errors.New("mailbox protocol error")

// Server serves the mailbox protocol. The zero value is not usable; call New.
type Server struct {
	log      logrus.FieldLogger
	motd     string
	upgrader websocket.Upgrader

	mu   sync.Mutex
	apps map[string]*application
}

type application struct {
	nameplates map[string]*nameplate
	mailboxes  map[string]*mailbox
}

type nameplate struct {
	mailbox  string
	claimed  map[string]bool
	released map[string]bool
}

type mailbox struct {
	id        string
	opened    map[string]bool
	closed    map[string]bool
	history   []domain.MailboxMessage
	listeners map[*client]struct{}
}

// New returns an empty server. motd is sent in every welcome when non-empty.
func New(log logrus.FieldLogger, motd string) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		log:  log,
		motd: motd,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		apps: make(map[string]*application),
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("mailbox: upgrade failed")
		return
	}
	c := &client{srv: s, conn: conn, log: s.log.WithField("remote", r.RemoteAddr)}
	c.serve()
}

// Stats reports the number of live nameplates and mailboxes across all
// applications.
func (s *Server) Stats() (nameplates, mailboxes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		nameplates += len(a.nameplates)
		mailboxes += len(a.mailboxes)
	}
	return nameplates, mailboxes
}

func (s *Server) app(id string) *application {
	a, ok := s.apps[id]
	if !ok {
		a = &application{
			nameplates: make(map[string]*nameplate),
			mailboxes:  make(map[string]*mailbox),
		}
		s.apps[id] = a
	}
	return a
}

// allocate picks the smallest unused nameplate and claims it for side.
func (s *Server) allocate(appID, side string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.app(appID)
	for n := 1; ; n++ {
		name := strconv.Itoa(n)
		if _, taken := a.nameplates[name]; taken {
			continue
		}
		np := a.newNameplate(name)
		np.claimed[side] = true
		return name
	}
}

func (a *application) newNameplate(name string) *nameplate {
	mb := &mailbox{
		id:        uuid.NewString(),
		opened:    make(map[string]bool),
		closed:    make(map[string]bool),
		listeners: make(map[*client]struct{}),
	}
	a.mailboxes[mb.id] = mb
	np := &nameplate{
		mailbox:  mb.id,
		claimed:  make(map[string]bool),
		released: make(map[string]bool),
	}
	a.nameplates[name] = np
	return np
}

func (s *Server) claim(appID, name, side string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.app(appID)
	np, ok := a.nameplates[name]
	if !ok {
		np = a.newNameplate(name)
	}
	switch {
	case np.released[side]:
		return "", errors.New(errReclaimed)
	case np.claimed[side]:
		return np.mailbox, nil
	case len(np.claimed)+len(np.released) >= maxSides:
		return "", errors.New(errCrowded)
	}
	np.claimed[side] = true
	return np.mailbox, nil
}

func (s *Server) release(appID, name, side string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.app(appID)
	np, ok := a.nameplates[name]
	if !ok || !np.claimed[side] {
		return
	}
	delete(np.claimed, side)
	np.released[side] = true
	if len(np.claimed) == 0 {
		delete(a.nameplates, name)
	}
}

// open subscribes c to the mailbox and returns its history for replay.
func (s *Server) open(appID, id, side string, c *client) (*mailbox, []domain.MailboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.app(appID)
	mb, ok := a.mailboxes[id]
	if !ok {
		mb = &mailbox{
			id:        id,
			opened:    make(map[string]bool),
			closed:    make(map[string]bool),
			listeners: make(map[*client]struct{}),
		}
		a.mailboxes[id] = mb
	}
	if !mb.opened[side] && len(mb.opened) >= maxSides {
		return nil, nil, errors.New(errCrowded)
	}
	mb.opened[side] = true
	mb.listeners[c] = struct{}{}
	return mb, append([]domain.MailboxMessage(nil), mb.history...), nil
}

// add records m and returns the listeners to broadcast it to.
func (s *Server) add(mb *mailbox, m domain.MailboxMessage) []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb.history = append(mb.history, m)
	out := make([]*client, 0, len(mb.listeners))
	for l := range mb.listeners {
		out = append(out, l)
	}
	return out
}

func (s *Server) close(appID string, mb *mailbox, side string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(mb.listeners, c)
	mb.closed[side] = true
	if len(mb.closed) < len(mb.opened) {
		return
	}
	a := s.app(appID)
	delete(a.mailboxes, mb.id)
	for name, np := range a.nameplates {
		if np.mailbox == mb.id {
			delete(a.nameplates, name)
		}
	}
	if len(a.mailboxes) == 0 && len(a.nameplates) == 0 {
		delete(s.apps, appID)
	}
}

func (s *Server) unsubscribe(mb *mailbox, c *client) {
	s.mu.Lock()
	delete(mb.listeners, c)
	s.mu.Unlock()
}
