package session_test

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"wormhole/internal/code"
	"wormhole/internal/domain"
	"wormhole/internal/mailbox"
	"wormhole/internal/rendezvous"
	"wormhole/internal/services/session"
	"wormhole/internal/transit"
	"wormhole/internal/transitrelay"
)

const testCode = "7-crossword-clockwork"

func newService(t *testing.T, abilities ...domain.TransportKind) *session.Service {
	t.Helper()
	return startService(t, testConfig(t, abilities...))
}

func startService(t *testing.T, cfg session.Config) *session.Service {
	t.Helper()
	svc := session.New(cfg)
	t.Cleanup(svc.Wait)
	return svc
}

// testConfig points a service at a fresh mailbox server and relay.
func testConfig(t *testing.T, abilities ...domain.TransportKind) session.Config {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	hs := httptest.NewServer(mailbox.New(log, ""))
	t.Cleanup(hs.Close)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	relay := transitrelay.New(log, 10*time.Second)
	go func() { _ = relay.Serve(l) }()
	t.Cleanup(func() { _ = l.Close() })

	if len(abilities) == 0 {
		abilities = []domain.TransportKind{domain.TransportDirectTCP, domain.TransportRelay}
	}
	return session.Config{
		Rendezvous: rendezvous.Config{
			URL:          "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1",
			AppID:        "lothar.com/wormhole/text-or-file-xfer",
			Timeout:      10 * time.Second,
			RetryBackoff: 10 * time.Millisecond,
		},
		Transit: transit.Config{
			Abilities:      abilities,
			Relays:         []string{"tcp:" + l.Addr().String()},
			ListenHost:     "127.0.0.1",
			Timeout:        10 * time.Second,
			AttemptTimeout: 5 * time.Second,
			IdleTimeout:    10 * time.Second,
		},
		ChunkSize: 4,
		Logger:    log,
	}
}

// drain reads sess until its stream closes, calling on for each event.
func drain(sess domain.TransferSession, on func(domain.Event)) ([]domain.Event, error) {
	var out []domain.Event
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return out, nil
			}
			out = append(out, ev)
			if on != nil {
				on(ev)
			}
		case <-timeout:
			return out, fmt.Errorf("%s: no terminal event", sess.Role())
		}
	}
}

func collect(t *testing.T, sess domain.TransferSession, on func(domain.Event)) []domain.Event {
	t.Helper()
	events, err := drain(sess, on)
	require.NoError(t, err)
	return events
}

type drained struct {
	events []domain.Event
	err    error
}

func drainAsync(sess domain.TransferSession) <-chan drained {
	ch := make(chan drained, 1)
	go func() {
		events, err := drain(sess, nil)
		ch <- drained{events, err}
	}()
	return ch
}

func last(events []domain.Event) domain.Event { return events[len(events)-1] }

func kinds(events []domain.Event) []domain.EventKind {
	out := make([]domain.EventKind, 0, len(events))
	for _, ev := range events {
		if ev.Kind != domain.EventProgress {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type run struct {
	sender, receiver []domain.Event
}

func transferWith(t *testing.T, svc *session.Service, sendCode, recvCode string, data string,
	onSend, onRecv func(domain.TransferSession, domain.Event)) run {
	t.Helper()
	ctx := context.Background()
	s, err := svc.Send(ctx, []byte(data), int64(len(data)), "greeting.txt", domain.SendOptions{Code: sendCode})
	require.NoError(t, err)
	r, err := svc.Receive(ctx, recvCode, domain.ReceiveOptions{})
	require.NoError(t, err)

	ch := make(chan drained, 1)
	go func() {
		events, err := drain(s, func(ev domain.Event) {
			if onSend != nil {
				onSend(s, ev)
			}
		})
		ch <- drained{events, err}
	}()
	recv := collect(t, r, func(ev domain.Event) {
		if onRecv != nil {
			onRecv(r, ev)
		}
	})
	sent := <-ch
	require.NoError(t, sent.err)
	return run{sender: sent.events, receiver: recv}
}

func acceptOffer(sess domain.TransferSession, ev domain.Event) {
	if ev.Kind == domain.EventManifestOffered {
		_ = sess.Respond(true)
	}
}

func TestSession_HelloWorld(t *testing.T) {
	svc := newService(t)
	var offered domain.FileManifest
	res := transferWith(t, svc, testCode, testCode, "hello world", nil, func(s domain.TransferSession, ev domain.Event) {
		if ev.Kind == domain.EventManifestOffered {
			offered = ev.Manifest
		}
		acceptOffer(s, ev)
	})

	require.Equal(t, domain.EventCompleted, last(res.receiver).Kind, "%+v", last(res.receiver))
	require.Equal(t, domain.EventCompleted, last(res.sender).Kind, "%+v", last(res.sender))
	require.Equal(t, "hello world", string(last(res.receiver).Data))
	require.Equal(t, domain.FileManifest{Name: "greeting.txt", Size: 11}, offered)

	require.Equal(t, []domain.EventKind{domain.EventCodeReady, domain.EventConnected, domain.EventCompleted}, kinds(res.sender))
	require.Equal(t, testCode, res.sender[0].Code.String())
	require.Equal(t, []domain.EventKind{domain.EventConnected, domain.EventManifestOffered, domain.EventCompleted}, kinds(res.receiver))

	for _, events := range [][]domain.Event{res.sender, res.receiver} {
		before := events[len(events)-2]
		require.Equal(t, domain.EventProgress, before.Kind)
		require.Equal(t, domain.Progress{Done: 11, Total: 11}, before.Progress)
		var prev int64
		for _, ev := range events {
			if ev.Kind == domain.EventProgress {
				require.GreaterOrEqual(t, ev.Progress.Done, prev)
				prev = ev.Progress.Done
			}
		}
	}
	require.Empty(t, svc.Sessions())
}

func TestSession_GeneratedCode(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	s, err := svc.Send(ctx, []byte("data"), 4, "d.bin", domain.SendOptions{})
	require.NoError(t, err)

	var ready domain.Event
	select {
	case ready = <-s.Events():
	case <-time.After(10 * time.Second):
		t.Fatal("no CodeReady")
	}
	require.Equal(t, domain.EventCodeReady, ready.Kind)
	require.Len(t, ready.Code.Words, 2)

	r, err := svc.Receive(ctx, strings.ToUpper(ready.Code.String()), domain.ReceiveOptions{AutoAccept: true})
	require.NoError(t, err)
	sent := drainAsync(s)
	events := collect(t, r, nil)
	require.Equal(t, domain.EventCompleted, last(events).Kind, "%+v", last(events))
	require.Equal(t, "data", string(last(events).Data))
	require.NoError(t, (<-sent).err)
}

func TestSession_WrongPassphrase(t *testing.T) {
	svc := newService(t)
	res := transferWith(t, svc, testCode, "7-crossword-clockworm", "hello world", nil, acceptOffer)

	for _, events := range [][]domain.Event{res.sender, res.receiver} {
		ev := last(events)
		require.Equal(t, domain.EventFailed, ev.Kind)
		require.ErrorIs(t, ev.Err, domain.ErrAuthenticationFailed)
		for _, e := range events {
			require.NotEqual(t, domain.EventConnected, e.Kind)
			require.Nil(t, e.Data)
		}
	}
}

func TestSession_CancelAfterConnected(t *testing.T) {
	svc := newService(t)
	res := transferWith(t, svc, testCode, testCode, "hello world", nil, func(s domain.TransferSession, ev domain.Event) {
		if ev.Kind == domain.EventConnected {
			s.Cancel()
		}
	})

	ev := last(res.receiver)
	require.Equal(t, domain.EventAborted, ev.Kind)
	require.Nil(t, ev.Data)
	for _, e := range res.receiver {
		require.NotEqual(t, domain.EventCompleted, e.Kind)
	}
	require.NotEqual(t, domain.EventCompleted, last(res.sender).Kind)
}

func TestSession_ReceiverDeclines(t *testing.T) {
	svc := newService(t)
	res := transferWith(t, svc, testCode, testCode, "hello world", nil, func(s domain.TransferSession, ev domain.Event) {
		if ev.Kind == domain.EventManifestOffered {
			require.NoError(t, svc.RespondToManifest(s.ID(), false))
		}
	})

	require.Equal(t, domain.EventAborted, last(res.receiver).Kind)
	ev := last(res.sender)
	require.Equal(t, domain.EventFailed, ev.Kind)
	require.ErrorIs(t, ev.Err, domain.ErrRejected)
}

func TestSession_RelayOnly(t *testing.T) {
	svc := newService(t, domain.TransportRelay)
	res := transferWith(t, svc, testCode, testCode, "via the relay", nil, acceptOffer)

	require.Equal(t, domain.EventCompleted, last(res.receiver).Kind, "%+v", last(res.receiver))
	require.Equal(t, "via the relay", string(last(res.receiver).Data))
	for _, ev := range res.receiver {
		if ev.Kind == domain.EventConnected {
			require.Equal(t, domain.TransportRelay, ev.Transport)
		}
	}
}

func TestSession_InputErrorsAreSynchronous(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, nil, 0, "empty.txt", domain.SendOptions{})
	require.ErrorIs(t, err, domain.ErrEmptyFile)

	_, err = svc.Send(ctx, []byte("abc"), 4, "x.txt", domain.SendOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Send(ctx, []byte("abc"), 3, "x.txt", domain.SendOptions{Code: "not-a-code"})
	require.ErrorIs(t, err, domain.ErrMalformedCode)

	_, err = svc.Receive(ctx, "crossword-clockwork", domain.ReceiveOptions{})
	require.ErrorIs(t, err, domain.ErrMalformedCode)
	require.Equal(t, domain.ClassInput, domain.Classify(err))

	require.Empty(t, svc.Sessions())
}

func TestSession_UnknownID(t *testing.T) {
	svc := newService(t)
	require.ErrorIs(t, svc.RespondToManifest(uuid.New(), true), session.ErrSessionNotFound)
	require.ErrorIs(t, svc.Cancel(uuid.New()), session.ErrSessionNotFound)
}

func TestSession_RespondWithoutOffer(t *testing.T) {
	svc := newService(t)
	s, err := svc.Send(context.Background(), []byte("x"), 1, "x", domain.SendOptions{})
	require.NoError(t, err)
	require.ErrorIs(t, s.Respond(true), session.ErrNoPendingOffer)
	s.Cancel()
	require.Equal(t, domain.EventAborted, last(collect(t, s, nil)).Kind)
}

func TestSession_UnreadEventsDoNotStallTransfer(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte("abcd"), 1000)

	// Nobody reads the sender's events until the transfer is over.
	s, err := svc.Send(ctx, data, int64(len(data)), "big.bin", domain.SendOptions{Code: testCode})
	require.NoError(t, err)
	r, err := svc.Receive(ctx, testCode, domain.ReceiveOptions{AutoAccept: true})
	require.NoError(t, err)

	events := collect(t, r, nil)
	require.Equal(t, domain.EventCompleted, last(events).Kind, "%+v", last(events))
	require.Equal(t, data, last(events).Data)

	select {
	case <-s.(*session.Session).Done():
	case <-time.After(10 * time.Second):
		t.Fatal("sender did not finish while its events went unread")
	}
	require.Empty(t, svc.Sessions())

	sent := collect(t, s, nil)
	require.Equal(t, domain.EventCompleted, last(sent).Kind, "%+v", last(sent))
	before := sent[len(sent)-2]
	require.Equal(t, domain.EventProgress, before.Kind)
	require.Equal(t, domain.Progress{Done: int64(len(data)), Total: int64(len(data))}, before.Progress)
}

func TestSession_CancelWithUnreadEvents(t *testing.T) {
	svc := newService(t)
	s, err := svc.Send(context.Background(), []byte("x"), 1, "x", domain.SendOptions{})
	require.NoError(t, err)

	s.Cancel()
	select {
	case <-s.(*session.Session).Done():
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled session did not end")
	}
	require.Empty(t, svc.Sessions())
	require.Equal(t, domain.EventAborted, last(collect(t, s, nil)).Kind)
}

func TestSession_SilentPeerEndsNegotiation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transit.Timeout = 300 * time.Millisecond
	svc := startService(t, cfg)
	ctx := context.Background()

	s, err := svc.Send(ctx, []byte("hello"), 5, "h.txt", domain.SendOptions{Code: testCode})
	require.NoError(t, err)

	// The peer confirms the key and then never offers a transit.
	wc, err := code.Parse(testCode)
	require.NoError(t, err)
	pending, err := rendezvous.ConnectAsReceiver(ctx, cfg.Rendezvous, wc)
	require.NoError(t, err)
	wh, err := pending.Wait(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close(ctx, domain.MoodLonely) })

	start := time.Now()
	ev := last(collect(t, s, nil))
	require.Equal(t, domain.EventFailed, ev.Kind)
	require.ErrorIs(t, ev.Err, domain.ErrNegotiationTimeout)
	require.Less(t, time.Since(start), 5*time.Second)
}
