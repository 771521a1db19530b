package rendezvous

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/code"
	"wormhole/internal/domain"
	"wormhole/internal/protocol/spake2"
)

const (
	phasePAKE    = "pake"
	phaseConfirm = "confirm"
)

// Config selects the server and bounds the waits.
type Config struct {
	URL   string
	AppID string
	// Timeout bounds the whole rendezvous, from dial until the key is
	// confirmed.
	Timeout time.Duration
	// RetryBackoff is the pause before the single dial retry.
	RetryBackoff time.Duration
	Logger       logrus.FieldLogger
}

func (cfg Config) logger() logrus.FieldLogger {
	if cfg.Logger == nil {
		return logrus.New()
	}
	return cfg.Logger
}

// SenderOptions controls how the sender obtains its code.
type SenderOptions struct {
	// Code, when set, is claimed as is instead of allocating a nameplate.
	Code domain.Code
	// Words is the number of words in a generated code.
	Words int
}

type pakeMessage struct {
	PAKE string `json:"pake_v1"`
}

type confirmMessage struct {
	Confirm string `json:"confirm_v1"`
}

// Pending is a rendezvous whose key exchange is still running.
type Pending struct {
	done   chan struct{}
	cancel context.CancelCauseFunc
	wh     *Wormhole
	err    error
}

// Wait blocks until the key is confirmed or the rendezvous fails. If ctx
// ends first the handshake is abandoned and the mailbox closed.
func (p *Pending) Wait(ctx context.Context) (*Wormhole, error) {
	select {
	case <-p.done:
		return p.wh, p.err
	case <-ctx.Done():
		p.cancel(context.Cause(ctx))
		<-p.done
		if p.err == nil {
			// Handshake finished concurrently; honour the cancellation.
			_ = p.wh.Close(ctx, domain.MoodLonely)
			return nil, context.Cause(ctx)
		}
		return nil, p.err
	}
}

// ConnectAsSender allocates a nameplate (or claims opts.Code's), opens the
// mailbox and starts the key exchange. The code is returned as soon as it
// is known so it can be shown to the user while waiting for the peer. ctx
// governs the whole rendezvous, including the background exchange.
func ConnectAsSender(ctx context.Context, cfg Config, opts SenderOptions) (domain.Code, *Pending, error) {
	log := cfg.logger().WithField("role", domain.RoleSender.String())
	ctx, cancel := bounded(ctx, cfg)
	c, err := dial(ctx, cfg.URL, cfg.RetryBackoff, log)
	if err != nil {
		cancel(nil)
		return domain.Code{}, nil, err
	}
	wc := opts.Code
	if err := func() error {
		if err := c.bind(ctx, cfg.AppID); err != nil {
			return err
		}
		if wc.IsZero() {
			nameplate, err := c.allocate(ctx)
			if err != nil {
				return err
			}
			words := opts.Words
			if words == 0 {
				words = code.DefaultWords
			}
			if wc, err = code.Generate(domain.Nameplate(nameplate), words); err != nil {
				return err
			}
		}
		return c.claimAndOpen(ctx, wc.Nameplate.String())
	}(); err != nil {
		_ = c.shutdown(ctx, domain.MoodErrory)
		cancel(nil)
		return domain.Code{}, nil, err
	}
	c.log.WithField("nameplate", wc.Nameplate).Debug("rendezvous: mailbox open")
	return wc, start(ctx, cancel, cfg, c, wc), nil
}

// ConnectAsReceiver claims the code's nameplate, opens the mailbox and
// starts the key exchange.
func ConnectAsReceiver(ctx context.Context, cfg Config, wc domain.Code) (*Pending, error) {
	if wc.IsZero() {
		return nil, fmt.Errorf("%w: empty code", domain.ErrMalformedCode)
	}
	log := cfg.logger().WithField("role", domain.RoleReceiver.String())
	ctx, cancel := bounded(ctx, cfg)
	c, err := dial(ctx, cfg.URL, cfg.RetryBackoff, log)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	if err := c.bind(ctx, cfg.AppID); err != nil {
		_ = c.shutdown(ctx, domain.MoodErrory)
		cancel(nil)
		return nil, err
	}
	if err := c.claimAndOpen(ctx, wc.Nameplate.String()); err != nil {
		_ = c.shutdown(ctx, domain.MoodErrory)
		cancel(nil)
		return nil, err
	}
	c.log.WithField("nameplate", wc.Nameplate).Debug("rendezvous: mailbox open")
	return start(ctx, cancel, cfg, c, wc), nil
}

// bounded derives the context for one rendezvous: cancellable with a
// cause, and ending with ErrRendezvousTimeout once cfg.Timeout elapses.
func bounded(ctx context.Context, cfg Config) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	if cfg.Timeout <= 0 {
		return ctx, cancel
	}
	ctx, stop := context.WithTimeoutCause(ctx, cfg.Timeout, domain.ErrRendezvousTimeout)
	return ctx, func(cause error) { cancel(cause); stop() }
}

// start runs the key exchange in the background under hctx, which cancel
// ends.
func start(hctx context.Context, cancel context.CancelCauseFunc, cfg Config, c *conn, wc domain.Code) *Pending {
	p := &Pending{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(p.done)
		defer cancel(nil)
		p.wh, p.err = handshake(hctx, cfg, c, wc)
		if p.err != nil {
			mood := domain.MoodErrory
			switch {
			case errors.Is(p.err, domain.ErrAuthenticationFailed):
				mood = domain.MoodScary
			case errors.Is(p.err, domain.ErrRendezvousTimeout):
				mood = domain.MoodLonely
			}
			_ = c.shutdown(hctx, mood)
		}
	}()
	return p
}

// handshake runs SPAKE2 and key confirmation over the open mailbox.
func handshake(ctx context.Context, cfg Config, c *conn, wc domain.Code) (*Wormhole, error) {
	ex, err := spake2.New(wc.Password(), []byte(cfg.AppID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCode, err)
	}
	body, err := json.Marshal(pakeMessage{PAKE: hex.EncodeToString(ex.Message())})
	if err != nil {
		return nil, err
	}
	if err := c.add(phasePAKE, body); err != nil {
		return nil, err
	}

	peerPAKE, peerSide, err := readPhase(ctx, c, phasePAKE)
	if err != nil {
		return nil, err
	}
	var pm pakeMessage
	if err := json.Unmarshal(peerPAKE, &pm); err != nil {
		return nil, fmt.Errorf("%w: pake body: %v", domain.ErrBrokerProtocol, err)
	}
	peerMsg, err := hex.DecodeString(pm.PAKE)
	if err != nil {
		return nil, fmt.Errorf("%w: pake body: %v", domain.ErrBrokerProtocol, err)
	}
	key, err := ex.Finish(peerMsg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	c.setState(domain.StateKeyed)

	// The code is spent once the key exists.
	if err := c.release(); err != nil {
		c.log.WithError(err).Debug("rendezvous: release failed")
	}

	transcript := spake2.Transcript(ex.Message(), peerMsg)
	mac := spake2.ConfirmationMAC(key, c.side, transcript)
	body, err = json.Marshal(confirmMessage{Confirm: hex.EncodeToString(mac)})
	if err != nil {
		return nil, err
	}
	if err := c.add(phaseConfirm, body); err != nil {
		return nil, err
	}

	peerConfirm, confirmSide, err := readPhase(ctx, c, phaseConfirm)
	if err != nil {
		return nil, err
	}
	var cm confirmMessage
	if err := json.Unmarshal(peerConfirm, &cm); err != nil {
		return nil, fmt.Errorf("%w: confirm body: %v", domain.ErrAuthenticationFailed, err)
	}
	peerMAC, err := hex.DecodeString(cm.Confirm)
	if err != nil || confirmSide != peerSide ||
		!spake2.VerifyConfirmation(key, peerSide, transcript, peerMAC) {
		return nil, domain.ErrAuthenticationFailed
	}
	c.setState(domain.StateConfirmed)
	c.log.Info("rendezvous: key confirmed")

	return newWormhole(c, wc, key, peerSide), nil
}

// readPhase returns the body and side of the peer's next message in phase.
// Messages in other phases are kept for later.
func readPhase(ctx context.Context, c *conn, phase string) ([]byte, string, error) {
	var skipped []domain.MailboxMessage
	defer func() { c.queued = append(skipped, c.queued...) }()
	for {
		m, err := c.nextPeer(ctx)
		if err != nil {
			return nil, "", err
		}
		if m.Phase != phase {
			skipped = append(skipped, m)
			continue
		}
		body, err := hex.DecodeString(m.Body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s body is not hex", domain.ErrBrokerProtocol, phase)
		}
		return body, m.Side, nil
	}
}
