package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

const eventBuffer = 32

// ErrNoPendingOffer is returned by Respond when no manifest awaits an answer.
var ErrNoPendingOffer = errors.New("no offer awaiting an answer")

// Session is one running send or receive.
type Session struct {
	id   uuid.UUID
	role domain.Role
	log  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelCauseFunc

	events   chan domain.Event
	terminal sync.Once
	done     chan struct{}

	// queue holds events not yet handed to events; pump drains it so the
	// session never waits on the reader.
	qmu   sync.Mutex
	queue []domain.Event
	wake  chan struct{}

	mu       sync.Mutex
	code     domain.Code
	offered  bool
	answered bool
	answer   chan bool

	onDone func()
}

var _ domain.TransferSession = (*Session)(nil)

func newSession(parent context.Context, role domain.Role, log logrus.FieldLogger) *Session {
	ctx, cancel := context.WithCancelCause(parent)
	id := uuid.New()
	s := &Session{
		id:     id,
		role:   role,
		log:    log.WithFields(logrus.Fields{"session": id.String(), "role": role.String()}),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan domain.Event, eventBuffer),
		done:   make(chan struct{}),
		answer: make(chan bool, 1),
		wake:   make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

// ID identifies the session in the service registry.
func (s *Session) ID() uuid.UUID { return s.id }

// Role reports whether this session sends or receives.
func (s *Session) Role() domain.Role { return s.role }

// Events delivers the session's events. The channel is closed after the
// terminal event. While the reader lags, queued progress events collapse
// into the latest one.
func (s *Session) Events() <-chan domain.Event { return s.events }

// Done is closed once the session has ended and its terminal event is
// queued.
func (s *Session) Done() <-chan struct{} { return s.done }

// Code returns the wormhole code once known.
func (s *Session) Code() domain.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Respond accepts or declines the offered file. Only a receiver with a
// pending offer can respond, and only once.
func (s *Session) Respond(accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != domain.RoleReceiver || !s.offered || s.answered {
		return ErrNoPendingOffer
	}
	s.answered = true
	s.answer <- accept
	return nil
}

// Cancel aborts the session. It is safe to call at any time, more than
// once, and after the session ended.
func (s *Session) Cancel() {
	s.cancel(domain.ErrAborted)
}

// decide waits for the shell's answer to m.
func (s *Session) decide(ctx context.Context, m domain.FileManifest, auto bool) (bool, error) {
	s.mu.Lock()
	s.offered = true
	if auto {
		s.answered = true
	}
	s.mu.Unlock()

	s.emit(domain.Event{Kind: domain.EventManifestOffered, Manifest: m})
	if auto {
		return true, nil
	}
	select {
	case ok := <-s.answer:
		return ok, nil
	case <-ctx.Done():
		return false, context.Cause(ctx)
	}
}

func (s *Session) setCode(c domain.Code) {
	s.mu.Lock()
	s.code = c
	s.mu.Unlock()
}

// emit queues ev without blocking. A progress event replaces a progress
// event still waiting at the tail of the queue.
func (s *Session) emit(ev domain.Event) {
	s.qmu.Lock()
	n := len(s.queue)
	if ev.Kind == domain.EventProgress && n > 0 && s.queue[n-1].Kind == domain.EventProgress {
		s.queue[n-1] = ev
	} else {
		s.queue = append(s.queue, ev)
	}
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) progress(p domain.Progress) {
	s.emit(domain.Event{Kind: domain.EventProgress, Progress: p})
}

// pump hands queued events to the reader and closes the stream after the
// terminal one.
func (s *Session) pump() {
	defer close(s.events)
	for {
		s.qmu.Lock()
		if len(s.queue) == 0 {
			s.qmu.Unlock()
			<-s.wake
			continue
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		s.events <- ev
		if ev.Kind.Terminal() {
			return
		}
	}
}

// finish emits the single terminal event for err and closes the stream.
func (s *Session) finish(err error, data []byte, m domain.FileManifest) {
	s.terminal.Do(func() {
		var ev domain.Event
		switch {
		case err == nil:
			ev = domain.Event{Kind: domain.EventCompleted, Manifest: m, Data: data}
			s.log.Info("session: completed")
		case domain.Classify(err) == domain.ClassAborted:
			ev = domain.Event{Kind: domain.EventAborted, Manifest: m}
			s.log.Info("session: aborted")
		default:
			ev = domain.Event{Kind: domain.EventFailed, Manifest: m, Err: err}
			s.log.WithError(err).WithField("class", domain.Classify(err).String()).Warn("session: failed")
		}
		s.emit(ev)
		s.cancel(nil)
		if s.onDone != nil {
			s.onDone()
		}
		close(s.done)
	})
}

func (s *Session) String() string {
	return fmt.Sprintf("%s session %s", s.role, s.id)
}
