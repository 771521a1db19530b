package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"wormhole/internal/crypto"
	"wormhole/internal/domain"
)

const (
	keySize     = 32
	nonceSize   = 24
	lengthBytes = 4

	// MaxRecordSize bounds nonce plus box of a single record.
	MaxRecordSize = 4 << 20
)

var errNonceOverflow = errors.New("record counter overflow")

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn reads and writes encrypted records over rw. Reads and writes may run
// concurrently with each other but not with themselves.
type Conn struct {
	rw io.ReadWriter

	wmu     sync.Mutex
	sendKey [keySize]byte
	sendSeq uint64

	rmu     sync.Mutex
	recvKey [keySize]byte
	recvSeq uint64

	idle time.Duration
}

// New wraps rw. sendKey protects what we write, recvKey what the peer writes.
func New(rw io.ReadWriter, sendKey, recvKey []byte) (*Conn, error) {
	if len(sendKey) != keySize || len(recvKey) != keySize {
		return nil, errors.New("record: invalid key size")
	}
	c := &Conn{rw: rw}
	copy(c.sendKey[:], sendKey)
	copy(c.recvKey[:], recvKey)
	return c, nil
}

// SetIdleTimeout bounds every single read and write when the underlying
// stream supports deadlines. Zero disables it.
func (c *Conn) SetIdleTimeout(d time.Duration) { c.idle = d }

// WriteRecord seals plaintext as the next record.
func (c *Conn) WriteRecord(plaintext []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if len(plaintext)+nonceSize+secretbox.Overhead > MaxRecordSize {
		return fmt.Errorf("record: plaintext of %d bytes too large", len(plaintext))
	}
	nonce, err := counterNonce(&c.sendSeq)
	if err != nil {
		return err
	}

	frame := make([]byte, lengthBytes+nonceSize, lengthBytes+nonceSize+len(plaintext)+secretbox.Overhead)
	copy(frame[lengthBytes:], nonce[:])
	frame = secretbox.Seal(frame, plaintext, &nonce, &c.sendKey)
	binary.BigEndian.PutUint32(frame[:lengthBytes], uint32(len(frame)-lengthBytes))

	if d, ok := c.rw.(deadliner); ok && c.idle > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.idle))
	}
	if _, err := c.rw.Write(frame); err != nil {
		return fmt.Errorf("%w: write record: %v", domain.ErrConnectionLost, err)
	}
	return nil
}

// ReadRecord returns the next record's plaintext.
func (c *Conn) ReadRecord() ([]byte, error) {
	return c.readRecord(c.idle, c.idle > 0)
}

// ReadRecordWithin is ReadRecord bounded by d instead of the idle timeout.
// Zero waits indefinitely.
func (c *Conn) ReadRecordWithin(d time.Duration) ([]byte, error) {
	return c.readRecord(d, true)
}

func (c *Conn) readRecord(limit time.Duration, setDeadline bool) ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if d, ok := c.rw.(deadliner); ok && setDeadline {
		var deadline time.Time
		if limit > 0 {
			deadline = time.Now().Add(limit)
		}
		_ = d.SetReadDeadline(deadline)
	}
	var lb [lengthBytes]byte
	if _, err := io.ReadFull(c.rw, lb[:]); err != nil {
		return nil, fmt.Errorf("%w: read record length: %v", domain.ErrConnectionLost, err)
	}
	n := binary.BigEndian.Uint32(lb[:])
	if n < nonceSize+secretbox.Overhead || n > MaxRecordSize {
		return nil, fmt.Errorf("%w: record length %d", domain.ErrIntegrityViolation, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, fmt.Errorf("%w: read record body: %v", domain.ErrConnectionLost, err)
	}

	want, err := counterNonce(&c.recvSeq)
	if err != nil {
		return nil, err
	}
	var got [nonceSize]byte
	copy(got[:], body[:nonceSize])
	if got != want {
		return nil, fmt.Errorf("%w: out-of-order record (want #%d)", domain.ErrIntegrityViolation, c.recvSeq-1)
	}
	plaintext, ok := secretbox.Open(nil, body[nonceSize:], &got, &c.recvKey)
	if !ok {
		return nil, fmt.Errorf("%w: record #%d failed authentication", domain.ErrIntegrityViolation, c.recvSeq-1)
	}
	return plaintext, nil
}

// Close closes the underlying stream, if it can be closed, and wipes the
// keys once no read or write is in flight.
func (c *Conn) Close() error {
	var err error
	if cl, ok := c.rw.(io.Closer); ok {
		err = cl.Close()
	}

	c.wmu.Lock()
	crypto.Wipe(c.sendKey[:])
	c.wmu.Unlock()

	c.rmu.Lock()
	crypto.Wipe(c.recvKey[:])
	c.rmu.Unlock()
	return err
}

// counterNonce returns the nonce for *seq and advances it.
func counterNonce(seq *uint64) ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	binary.BigEndian.PutUint64(nonce[nonceSize-8:], *seq)
	*seq++
	if *seq == 0 {
		return nonce, errNonceOverflow
	}
	return nonce, nil
}
