package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

const (
	// DefaultChunkSize is the plaintext carried by one chunk frame.
	DefaultChunkSize = 64 << 10
	// MaxChunkSize bounds chunks in both directions.
	MaxChunkSize = 1 << 20

	// DefaultAnswerTimeout bounds how long a sender waits for the
	// receiver to accept or decline.
	DefaultAnswerTimeout = 5 * time.Minute

	abortGrace = 500 * time.Millisecond
)

var errBadTransition = errors.New("transfer: invalid state transition")

// Conn is the record stream a transfer runs on. transit.Connection
// satisfies it.
type Conn interface {
	WriteRecord(plaintext []byte) error
	ReadRecord() ([]byte, error)
	Close() error
}

// patientConn can wait for one record longer than its idle timeout.
// *record.Conn implements it.
type patientConn interface {
	ReadRecordWithin(d time.Duration) ([]byte, error)
}

// Options tune an engine. The zero value is usable.
type Options struct {
	ChunkSize int
	// Compress asks the sender to zstd-compress every chunk.
	Compress bool
	// OnProgress is called after every chunk with the plaintext bytes so far.
	OnProgress func(domain.Progress)
	// AnswerTimeout bounds the sender's wait for the receiver's decision,
	// which a person may take longer than the idle timeout to make.
	AnswerTimeout time.Duration
	Logger        logrus.FieldLogger
}

// Engine runs one transfer over conn and owns it: the connection is closed
// when Send or Receive returns.
type Engine struct {
	conn Conn
	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex
	state domain.TransferState

	abortOnce sync.Once
}

// NewEngine returns an idle engine.
func NewEngine(conn Conn, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize > MaxChunkSize {
		opts.ChunkSize = MaxChunkSize
	}
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = DefaultAnswerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Engine{conn: conn, opts: opts, log: opts.Logger, state: domain.TransferIdle}
}

// State returns the current state.
func (e *Engine) State() domain.TransferState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

var transitions = map[domain.TransferState][]domain.TransferState{
	domain.TransferIdle:              {domain.TransferManifestExchanged, domain.TransferAborted, domain.TransferFailed},
	domain.TransferManifestExchanged: {domain.TransferTransferring, domain.TransferAborted, domain.TransferFailed},
	domain.TransferTransferring:      {domain.TransferCompleted, domain.TransferAborted, domain.TransferFailed},
}

func (e *Engine) transition(to domain.TransferState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ok := range transitions[e.state] {
		if ok == to {
			e.log.WithFields(logrus.Fields{"from": e.state, "to": to}).Debug("transfer: state")
			e.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", errBadTransition, e.state, to)
}

// Send offers manifest and, once accepted, streams manifest.Size bytes
// from src.
func (e *Engine) Send(ctx context.Context, manifest domain.FileManifest, src io.Reader) error {
	if e.opts.Compress {
		manifest.Compression = domain.CompressionZstd
	}
	stop := e.watch(ctx)
	err := e.send(ctx, manifest, src)
	return e.finish(ctx, stop, err)
}

func (e *Engine) send(ctx context.Context, manifest domain.FileManifest, src io.Reader) error {
	if manifest.Size < 0 || manifest.Name == "" {
		return fmt.Errorf("%w: bad manifest", domain.ErrInvalidInput)
	}
	cd, err := newCodec(manifest.Compression)
	if err != nil {
		return err
	}
	defer cd.close()

	m := manifest
	if err := e.write(frame{Kind: kindManifest, Manifest: &m}); err != nil {
		return err
	}
	answer, err := e.awaitAnswer()
	if err != nil {
		return err
	}
	if !answer.Accept {
		return domain.ErrRejected
	}
	if err := e.transition(domain.TransferManifestExchanged); err != nil {
		return err
	}
	if err := e.transition(domain.TransferTransferring); err != nil {
		return err
	}

	sum := sha256.New()
	buf := make([]byte, e.opts.ChunkSize)
	var done int64
	for done < manifest.Size {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		want := min(int64(len(buf)), manifest.Size-done)
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: source ended after %d of %d bytes", domain.ErrSizeMismatch, done+int64(n), manifest.Size)
			}
			return fmt.Errorf("transfer: read source: %w", err)
		}
		sum.Write(buf[:n])
		if err := e.write(frame{Kind: kindChunk, Data: cd.compress(buf[:n])}); err != nil {
			return err
		}
		done += int64(n)
		e.progress(done, manifest.Size)
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	digest := sum.Sum(nil)
	if err := e.write(frame{Kind: kindDone, Size: done, Digest: digest}); err != nil {
		return err
	}
	ack, err := e.read(kindAck)
	if err != nil {
		return err
	}
	if !bytes.Equal(ack.Digest, digest) {
		return fmt.Errorf("%w: receiver digest differs", domain.ErrIntegrityViolation)
	}
	return nil
}

// Decide is asked whether to accept an offered file. It should return
// promptly once ctx is done.
type Decide func(ctx context.Context, m domain.FileManifest) (bool, error)

// Receive reads the sender's manifest, asks decide, and on accept writes
// the file to dst. It returns the manifest even when the transfer fails
// after the offer.
func (e *Engine) Receive(ctx context.Context, decide Decide, dst io.Writer) (domain.FileManifest, error) {
	stop := e.watch(ctx)
	m, err := e.receive(ctx, decide, dst)
	return m, e.finish(ctx, stop, err)
}

func (e *Engine) receive(ctx context.Context, decide Decide, dst io.Writer) (domain.FileManifest, error) {
	f, err := e.read(kindManifest)
	if err != nil {
		return domain.FileManifest{}, err
	}
	if f.Manifest == nil || f.Manifest.Name == "" || f.Manifest.Size < 0 {
		return domain.FileManifest{}, fmt.Errorf("%w: bad manifest", domain.ErrIntegrityViolation)
	}
	manifest := *f.Manifest
	cd, err := newCodec(manifest.Compression)
	if err != nil {
		return manifest, err
	}
	defer cd.close()
	if err := e.transition(domain.TransferManifestExchanged); err != nil {
		return manifest, err
	}

	accept, err := decide(ctx, manifest)
	if err != nil {
		return manifest, err
	}
	if err := e.write(frame{Kind: kindAnswer, Accept: accept}); err != nil {
		return manifest, err
	}
	if !accept {
		return manifest, fmt.Errorf("%w: offer declined", domain.ErrAborted)
	}
	if err := e.transition(domain.TransferTransferring); err != nil {
		return manifest, err
	}

	sum := sha256.New()
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return manifest, context.Cause(ctx)
		}
		f, err := e.read(kindChunk, kindDone)
		if err != nil {
			return manifest, err
		}
		if f.Kind == kindDone {
			return manifest, e.verify(f, manifest, done, sum)
		}
		data, err := cd.decompress(f.Data)
		if err != nil {
			return manifest, err
		}
		if len(data) > MaxChunkSize {
			return manifest, fmt.Errorf("%w: chunk of %d bytes", domain.ErrIntegrityViolation, len(data))
		}
		if done+int64(len(data)) > manifest.Size {
			return manifest, fmt.Errorf("%w: more than %d bytes sent", domain.ErrSizeMismatch, manifest.Size)
		}
		if _, err := dst.Write(data); err != nil {
			return manifest, fmt.Errorf("transfer: write output: %w", err)
		}
		sum.Write(data)
		done += int64(len(data))
		e.progress(done, manifest.Size)
	}
}

// verify checks the done frame and acknowledges with our digest.
func (e *Engine) verify(f frame, manifest domain.FileManifest, done int64, sum hash.Hash) error {
	if f.Size != done || done != manifest.Size {
		return fmt.Errorf("%w: got %d bytes, sender says %d, manifest %d", domain.ErrSizeMismatch, done, f.Size, manifest.Size)
	}
	digest := sum.Sum(nil)
	if !bytes.Equal(f.Digest, digest) {
		return fmt.Errorf("%w: file digest differs", domain.ErrIntegrityViolation)
	}
	return e.write(frame{Kind: kindAck, Digest: digest})
}

func (e *Engine) progress(done, total int64) {
	e.log.WithFields(logrus.Fields{"done": done, "total": total}).Trace("transfer: progress")
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(domain.Progress{Done: done, Total: total})
	}
}

func (e *Engine) write(f frame) error {
	b, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return e.conn.WriteRecord(b)
}

// awaitAnswer reads the receiver's decision under AnswerTimeout rather
// than the idle timeout.
func (e *Engine) awaitAnswer() (frame, error) {
	pc, ok := e.conn.(patientConn)
	if !ok {
		return e.read(kindAnswer)
	}
	b, err := pc.ReadRecordWithin(e.opts.AnswerTimeout)
	if err != nil {
		return frame{}, err
	}
	return e.parse(b, kindAnswer)
}

// read returns the next frame, which must be one of kinds. A peer abort
// ends the transfer.
func (e *Engine) read(kinds ...frameKind) (frame, error) {
	b, err := e.conn.ReadRecord()
	if err != nil {
		return frame{}, err
	}
	return e.parse(b, kinds...)
}

func (e *Engine) parse(b []byte, kinds ...frameKind) (frame, error) {
	f, err := decodeFrame(b)
	if err != nil {
		return f, err
	}
	if f.Kind == kindAbort {
		return f, fmt.Errorf("%w: %s", domain.ErrPeerAborted, f.Reason)
	}
	for _, k := range kinds {
		if f.Kind == k {
			return f, nil
		}
	}
	return f, fmt.Errorf("%w: unexpected %s frame", domain.ErrIntegrityViolation, f.Kind)
}

// watch aborts the transfer as soon as ctx ends, unblocking any pending
// read by closing the connection.
func (e *Engine) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		e.abort(context.Cause(ctx))
		_ = e.conn.Close()
	})
}

// abort tells the peer, best effort, that we are giving up. It waits at
// most abortGrace for the frame to go out.
func (e *Engine) abort(cause error) {
	e.abortOnce.Do(func() {
		reason := "aborted"
		if cause != nil {
			reason = cause.Error()
		}
		sent := make(chan struct{})
		go func() {
			defer close(sent)
			_ = e.write(frame{Kind: kindAbort, Reason: reason})
		}()
		t := time.NewTimer(abortGrace)
		defer t.Stop()
		select {
		case <-sent:
		case <-t.C:
		}
	})
}

// finish settles the final state and closes the connection.
func (e *Engine) finish(ctx context.Context, stop func() bool, err error) error {
	stop()
	defer e.conn.Close()

	switch {
	case err == nil:
		if terr := e.transition(domain.TransferCompleted); terr != nil {
			return terr
		}
		e.log.Debug("transfer: completed")
		return nil
	case ctx.Err() != nil:
		e.abort(context.Cause(ctx))
		_ = e.transition(domain.TransferAborted)
		return context.Cause(ctx)
	case errors.Is(err, domain.ErrAborted):
		_ = e.transition(domain.TransferAborted)
		return err
	}
	// Failures the peer caused need no notice; everything else does.
	if !errors.Is(err, domain.ErrPeerAborted) && !errors.Is(err, domain.ErrConnectionLost) &&
		!errors.Is(err, domain.ErrRejected) {
		e.abort(err)
	}
	_ = e.transition(domain.TransferFailed)
	e.log.WithError(err).Debug("transfer: failed")
	return err
}
