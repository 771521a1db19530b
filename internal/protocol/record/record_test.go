package record_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"wormhole/internal/domain"
	"wormhole/internal/protocol/record"
)

var (
	keyAB = bytes.Repeat([]byte{0x11}, 32)
	keyBA = bytes.Repeat([]byte{0x22}, 32)
)

// pair returns a writer and a reader sharing one in-memory stream.
func pair(t *testing.T) (*record.Conn, *record.Conn, *bytes.Buffer) {
	t.Helper()
	var wire bytes.Buffer
	w, err := record.New(&wire, keyAB, keyBA)
	require.NoError(t, err)
	r, err := record.New(&wire, keyBA, keyAB)
	require.NoError(t, err)
	return w, r, &wire
}

func TestConn_RoundTrip(t *testing.T) {
	w, r, _ := pair(t)
	msgs := [][]byte{[]byte("hello world"), {}, bytes.Repeat([]byte{7}, 64<<10)}
	for _, m := range msgs {
		require.NoError(t, w.WriteRecord(m))
	}
	for _, m := range msgs {
		got, err := r.ReadRecord()
		require.NoError(t, err)
		require.Equal(t, len(m), len(got))
		require.True(t, bytes.Equal(m, got))
	}
}

func TestConn_OverNetPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca, err := record.New(a, keyAB, keyBA)
	require.NoError(t, err)
	cb, err := record.New(b, keyBA, keyAB)
	require.NoError(t, err)

	go func() {
		_ = ca.WriteRecord([]byte("ping"))
	}()
	got, err := cb.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, "ping", string(got))

	go func() {
		_ = cb.WriteRecord([]byte("pong"))
	}()
	got, err = ca.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, "pong", string(got))
}

func TestConn_BitFlipIsIntegrityViolation(t *testing.T) {
	w, r, wire := pair(t)
	require.NoError(t, w.WriteRecord([]byte("sensitive payload")))

	raw := wire.Bytes()
	raw[len(raw)-1] ^= 0x01

	_, err := r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrIntegrityViolation)
}

func TestConn_ReplayIsIntegrityViolation(t *testing.T) {
	w, r, wire := pair(t)
	require.NoError(t, w.WriteRecord([]byte("first")))
	frame := append([]byte(nil), wire.Bytes()...)

	_, err := r.ReadRecord()
	require.NoError(t, err)

	wire.Write(frame)
	_, err = r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrIntegrityViolation)
}

func TestConn_ReorderIsIntegrityViolation(t *testing.T) {
	w, r, wire := pair(t)
	require.NoError(t, w.WriteRecord([]byte("one")))
	first := append([]byte(nil), wire.Bytes()...)
	wire.Reset()
	require.NoError(t, w.WriteRecord([]byte("two")))
	second := append([]byte(nil), wire.Bytes()...)
	wire.Reset()

	wire.Write(second)
	wire.Write(first)
	_, err := r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrIntegrityViolation)
}

func TestConn_WrongKeyIsIntegrityViolation(t *testing.T) {
	var wire bytes.Buffer
	w, err := record.New(&wire, keyAB, keyBA)
	require.NoError(t, err)
	r, err := record.New(&wire, keyBA, keyBA)
	require.NoError(t, err)

	require.NoError(t, w.WriteRecord([]byte("x")))
	_, err = r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrIntegrityViolation)
}

func TestConn_OversizeLengthRejected(t *testing.T) {
	_, r, wire := pair(t)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], record.MaxRecordSize+1)
	wire.Write(lb[:])

	_, err := r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrIntegrityViolation)
}

func TestConn_TruncatedStreamIsConnectionLost(t *testing.T) {
	w, r, wire := pair(t)
	require.NoError(t, w.WriteRecord([]byte("partial")))
	wire.Truncate(wire.Len() - 3)

	_, err := r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrConnectionLost)
	require.False(t, errors.Is(err, domain.ErrIntegrityViolation))
}

func TestConn_EOFIsConnectionLost(t *testing.T) {
	_, r, _ := pair(t)
	_, err := r.ReadRecord()
	require.ErrorIs(t, err, domain.ErrConnectionLost)
}

func TestNew_RejectsBadKeys(t *testing.T) {
	_, err := record.New(&bytes.Buffer{}, []byte("short"), keyBA)
	require.Error(t, err)
}
