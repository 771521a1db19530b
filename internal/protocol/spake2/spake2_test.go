package spake2_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wormhole/internal/protocol/spake2"
)

var appID = []byte("lothar.com/wormhole/text-or-file-xfer")

func run(t *testing.T, pwA, pwB string) ([]byte, []byte, []byte) {
	t.Helper()
	a, err := spake2.New([]byte(pwA), appID)
	require.NoError(t, err)
	b, err := spake2.New([]byte(pwB), appID)
	require.NoError(t, err)

	keyA, err := a.Finish(b.Message())
	require.NoError(t, err)
	keyB, err := b.Finish(a.Message())
	require.NoError(t, err)
	return keyA, keyB, spake2.Transcript(a.Message(), b.Message())
}

func TestExchange_SamePasswordSameKey(t *testing.T) {
	keyA, keyB, _ := run(t, "7-crossword-clockwork", "7-crossword-clockwork")
	require.Len(t, keyA, spake2.KeySize)
	require.Equal(t, keyA, keyB)
}

func TestExchange_DifferentPasswordDifferentKey(t *testing.T) {
	keyA, keyB, _ := run(t, "7-crossword-clockwork", "7-crossword-clockworm")
	require.NotEqual(t, keyA, keyB)
}

func TestExchange_FreshKeysPerRun(t *testing.T) {
	k1, _, _ := run(t, "3-apple-amulet", "3-apple-amulet")
	k2, _, _ := run(t, "3-apple-amulet", "3-apple-amulet")
	require.NotEqual(t, k1, k2)
}

func TestExchange_AppIDSeparatesNamespaces(t *testing.T) {
	a, err := spake2.New([]byte("3-apple-amulet"), []byte("app-one"))
	require.NoError(t, err)
	b, err := spake2.New([]byte("3-apple-amulet"), []byte("app-two"))
	require.NoError(t, err)

	keyA, err := a.Finish(b.Message())
	require.NoError(t, err)
	keyB, err := b.Finish(a.Message())
	require.NoError(t, err)
	require.NotEqual(t, keyA, keyB)
}

func TestFinish_RejectsBadMessages(t *testing.T) {
	newEx := func() *spake2.Exchange {
		e, err := spake2.New([]byte("1-acme-adviser"), appID)
		require.NoError(t, err)
		return e
	}

	e := newEx()
	_, err := e.Finish(e.Message())
	require.ErrorIs(t, err, spake2.ErrInvalidMessage, "reflection")

	_, err = newEx().Finish([]byte("short"))
	require.ErrorIs(t, err, spake2.ErrInvalidMessage)

	_, err = newEx().Finish(make([]byte, 32))
	require.ErrorIs(t, err, spake2.ErrInvalidMessage, "identity element")

	e = newEx()
	peer := newEx()
	_, err = e.Finish(peer.Message())
	require.NoError(t, err)
	_, err = e.Finish(peer.Message())
	require.ErrorIs(t, err, spake2.ErrAlreadyFinished)
}

func TestNew_EmptyPassword(t *testing.T) {
	_, err := spake2.New(nil, appID)
	require.ErrorIs(t, err, spake2.ErrEmptyPassword)
}

func TestConfirmation(t *testing.T) {
	keyA, keyB, transcript := run(t, "9-zulu-yucatan", "9-zulu-yucatan")

	macA := spake2.ConfirmationMAC(keyA, "aaaa", transcript)
	require.True(t, spake2.VerifyConfirmation(keyB, "aaaa", transcript, macA))
	require.False(t, spake2.VerifyConfirmation(keyB, "bbbb", transcript, macA), "bound to side")

	badA, badB, badTranscript := run(t, "9-zulu-yucatan", "9-zulu-wyoming")
	mac := spake2.ConfirmationMAC(badA, "aaaa", badTranscript)
	require.False(t, spake2.VerifyConfirmation(badB, "aaaa", badTranscript, mac))
}

func TestTranscript_OrderIndependent(t *testing.T) {
	require.Equal(t, spake2.Transcript([]byte("a"), []byte("b")), spake2.Transcript([]byte("b"), []byte("a")))
}
