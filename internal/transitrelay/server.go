package transitrelay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxLine = 256

var errBadRequest = errors.New("bad relay request")

// Server is a transit relay.
type Server struct {
	log     logrus.FieldLogger
	timeout time.Duration

	mu      sync.Mutex
	waiting map[string][]*waiter
	active  int
}

type waiter struct {
	side   string
	conn   net.Conn
	paired chan net.Conn
}

// New returns a relay that drops clients left unpaired for longer than
// timeout.
func New(log logrus.FieldLogger, timeout time.Duration) *Server {
	if log == nil {
		log = logrus.New()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Server{log: log, timeout: timeout, waiting: make(map[string][]*waiter)}
}

// Serve accepts connections on l until it is closed.
func (s *Server) Serve(l net.Listener) error {
	for {
		c, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(c)
	}
}

// Active reports how many pairs are currently spliced.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Server) handle(c net.Conn) {
	log := s.log.WithField("remote", c.RemoteAddr().String())
	_ = c.SetDeadline(time.Now().Add(s.timeout))
	token, side, err := readRequest(c)
	if err != nil {
		log.WithError(err).Debug("transitrelay: rejected")
		_, _ = io.WriteString(c, "bad handshake\n")
		_ = c.Close()
		return
	}

	w := &waiter{side: side, conn: c, paired: make(chan net.Conn, 1)}
	if peer := s.match(token, w); peer != nil {
		s.splice(log, peer.conn, c)
		return
	}

	select {
	case <-w.paired:
		// The matching client runs the splice.
	case <-time.After(s.timeout):
		if s.withdraw(token, w) {
			log.Debug("transitrelay: no partner")
			_ = c.Close()
		}
	}
}

// match pairs w with a waiting client holding token, or queues w.
func (s *Server) match(token string, w *waiter) *waiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.waiting[token]
	for i, other := range queue {
		if other.side != w.side || w.side == "" {
			s.waiting[token] = append(queue[:i:i], queue[i+1:]...)
			if len(s.waiting[token]) == 0 {
				delete(s.waiting, token)
			}
			other.paired <- w.conn
			return other
		}
	}
	s.waiting[token] = append(queue, w)
	return nil
}

// withdraw removes w from the queue. It reports false if w was paired in
// the meantime.
func (s *Server) withdraw(token string, w *waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.waiting[token]
	for i, other := range queue {
		if other == w {
			s.waiting[token] = append(queue[:i:i], queue[i+1:]...)
			if len(s.waiting[token]) == 0 {
				delete(s.waiting, token)
			}
			return true
		}
	}
	return false
}

func (s *Server) splice(log logrus.FieldLogger, a, b net.Conn) {
	for _, c := range []net.Conn{a, b} {
		_ = c.SetDeadline(time.Time{})
		if _, err := io.WriteString(c, "ok\n"); err != nil {
			_ = a.Close()
			_ = b.Close()
			return
		}
	}
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	log.Debug("transitrelay: paired")

	var wg sync.WaitGroup
	wg.Add(2)
	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		_, _ = io.Copy(dst, src)
		_ = dst.Close()
		_ = src.Close()
	}
	go pipe(a, b)
	go pipe(b, a)
	wg.Wait()

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// readRequest reads the relay line one byte at a time so nothing after it
// is consumed.
func readRequest(r io.Reader) (token, side string, err error) {
	var line []byte
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", "", err
		}
		if b[0] == '\n' {
			break
		}
		line = append(line, b[0])
		if len(line) > maxLine {
			return "", "", fmt.Errorf("%w: line too long", errBadRequest)
		}
	}
	fields := strings.Fields(string(line))
	switch {
	case len(fields) == 3 && fields[0] == "please" && fields[1] == "relay":
		return fields[2], "", nil
	case len(fields) == 6 && fields[0] == "please" && fields[1] == "relay" &&
		fields[3] == "for" && fields[4] == "side":
		return fields[2], fields[5], nil
	}
	return "", "", fmt.Errorf("%w: %q", errBadRequest, line)
}
