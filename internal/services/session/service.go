package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wormhole/internal/code"
	"wormhole/internal/crypto"
	"wormhole/internal/domain"
	"wormhole/internal/rendezvous"
	"wormhole/internal/transfer"
	"wormhole/internal/transit"
)

// transitPurpose derives the transit key from the shared key.
const transitPurpose = "transit_key"

// ErrSessionNotFound is returned for IDs not in the registry.
var ErrSessionNotFound = errors.New("session not found")

// Config carries everything a session needs. It is shared read-only by all
// sessions.
type Config struct {
	Rendezvous rendezvous.Config
	Transit    transit.Config
	Words      int
	ChunkSize  int
	Compress   bool
	Logger     logrus.FieldLogger
}

// Service starts sessions and keeps the registry of running ones.
type Service struct {
	cfg Config
	log logrus.FieldLogger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	wg       sync.WaitGroup
}

var _ domain.SessionService = (*Service)(nil)

// New returns a service with an empty registry.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Rendezvous.Logger == nil {
		cfg.Rendezvous.Logger = cfg.Logger
	}
	if cfg.Transit.Logger == nil {
		cfg.Transit.Logger = cfg.Logger
	}
	return &Service{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Send offers data, declared as size bytes named name. Input errors are
// returned before anything touches the network.
func (s *Service) Send(
	ctx context.Context,
	data []byte,
	size int64,
	name string,
	opts domain.SendOptions,
) (domain.TransferSession, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyFile
	}
	if size != int64(len(data)) {
		return nil, fmt.Errorf("%w: declared size %d, have %d bytes", domain.ErrInvalidInput, size, len(data))
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", domain.ErrInvalidInput)
	}
	var wc domain.Code
	if opts.Code != "" {
		var err error
		if wc, err = code.Parse(opts.Code); err != nil {
			return nil, err
		}
	}

	sess := s.register(ctx, domain.RoleSender)
	sess.log.WithFields(logrus.Fields{"name": name, "size": size}).Debug("session: send")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.runSend(sess, wc, domain.FileManifest{Name: name, Size: size}, data, opts)
		sess.finish(err, nil, domain.FileManifest{Name: name, Size: size})
	}()
	return sess, nil
}

// Receive redeems text as a wormhole code and waits for the sender's offer.
func (s *Service) Receive(ctx context.Context, text string, opts domain.ReceiveOptions) (domain.TransferSession, error) {
	wc, err := code.Parse(text)
	if err != nil {
		return nil, err
	}
	sess := s.register(ctx, domain.RoleReceiver)
	sess.setCode(wc)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		m, data, err := s.runReceive(sess, wc, opts)
		sess.finish(err, data, m)
	}()
	return sess, nil
}

// RespondToManifest answers the offer pending on session id.
func (s *Service) RespondToManifest(id uuid.UUID, accept bool) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	return sess.Respond(accept)
}

// Cancel aborts session id.
func (s *Service) Cancel(id uuid.UUID) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Cancel()
	return nil
}

// Sessions lists the IDs of sessions that have not ended.
func (s *Service) Sessions() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every session started so far has ended.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) register(ctx context.Context, role domain.Role) *Session {
	sess := newSession(ctx, role, s.log)
	sess.onDone = func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *Service) lookup(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Service) runSend(sess *Session, wc domain.Code, m domain.FileManifest, data []byte, opts domain.SendOptions) (err error) {
	ctx := sess.ctx
	wc, pending, err := rendezvous.ConnectAsSender(ctx, s.cfg.Rendezvous, rendezvous.SenderOptions{Code: wc, Words: s.cfg.Words})
	if err != nil {
		return err
	}
	sess.setCode(wc)
	sess.log = sess.log.WithField("nameplate", wc.Nameplate)
	sess.emit(domain.Event{Kind: domain.EventCodeReady, Code: wc})

	wh, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close(ctx, mood(err)) }()
	sess.log.WithField("verifier", wh.Verifier()).Debug("session: key confirmed")

	conn, err := s.negotiate(ctx, sess, wh)
	if err != nil {
		return err
	}
	sess.emit(domain.Event{Kind: domain.EventConnected, Code: wc, Transport: conn.Kind})

	engine := transfer.NewEngine(conn, transfer.Options{
		ChunkSize:     s.cfg.ChunkSize,
		Compress:      s.cfg.Compress || opts.Compress,
		OnProgress:    sess.progress,
		AnswerTimeout: s.cfg.Rendezvous.Timeout,
		Logger:        sess.log,
	})
	return engine.Send(ctx, m, bytes.NewReader(data))
}

func (s *Service) runReceive(sess *Session, wc domain.Code, opts domain.ReceiveOptions) (m domain.FileManifest, data []byte, err error) {
	ctx := sess.ctx
	sess.log = sess.log.WithField("nameplate", wc.Nameplate)
	pending, err := rendezvous.ConnectAsReceiver(ctx, s.cfg.Rendezvous, wc)
	if err != nil {
		return m, nil, err
	}
	wh, err := pending.Wait(ctx)
	if err != nil {
		return m, nil, err
	}
	defer func() { _ = wh.Close(ctx, mood(err)) }()
	sess.log.WithField("verifier", wh.Verifier()).Debug("session: key confirmed")

	conn, err := s.negotiate(ctx, sess, wh)
	if err != nil {
		return m, nil, err
	}
	sess.emit(domain.Event{Kind: domain.EventConnected, Code: wc, Transport: conn.Kind})

	engine := transfer.NewEngine(conn, transfer.Options{
		ChunkSize:  s.cfg.ChunkSize,
		OnProgress: sess.progress,
		Logger:     sess.log,
	})
	var buf bytes.Buffer
	decide := func(ctx context.Context, offer domain.FileManifest) (bool, error) {
		return sess.decide(ctx, offer, opts.AutoAccept)
	}
	m, err = engine.Receive(ctx, decide, &buf)
	if err != nil {
		return m, nil, err
	}
	return m, buf.Bytes(), nil
}

// negotiate exchanges transit offers over the confirmed mailbox and races
// the candidates.
func (s *Service) negotiate(ctx context.Context, sess *Session, wh *rendezvous.Wormhole) (*transit.Connection, error) {
	key := wh.DeriveKey(transitPurpose, crypto.KeyBytes)
	n, err := transit.NewNegotiator(s.cfg.Transit, sess.role, wh.Side(), key)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	offer, err := n.Listen()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(domain.TransitMessage{Transit: &offer})
	if err != nil {
		return nil, err
	}
	if err := wh.Send(ctx, body); err != nil {
		return nil, err
	}
	wait := s.cfg.Transit.Timeout
	if wait <= 0 {
		wait = transit.DefaultTimeout
	}
	octx, cancel := context.WithTimeoutCause(ctx, wait, domain.ErrNegotiationTimeout)
	defer cancel()
	raw, err := wh.Receive(octx)
	if err != nil {
		return nil, err
	}
	var peer domain.TransitMessage
	if err := json.Unmarshal(raw, &peer); err != nil {
		return nil, fmt.Errorf("%w: transit offer: %v", domain.ErrBrokerProtocol, err)
	}
	if peer.Error != "" || peer.Transit == nil {
		return nil, fmt.Errorf("%w: peer: %s", domain.ErrNoCommonTransport, peer.Error)
	}
	return n.Connect(ctx, *peer.Transit)
}

func mood(err error) string {
	switch {
	case err == nil:
		return domain.MoodHappy
	case errors.Is(err, domain.ErrAuthenticationFailed), errors.Is(err, domain.ErrIntegrityViolation):
		return domain.MoodScary
	case errors.Is(err, domain.ErrRendezvousTimeout):
		return domain.MoodLonely
	}
	return domain.MoodErrory
}
