package crypto_test

import (
	"bytes"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wormhole/internal/crypto"
)

func TestDeriveKey_DeterministicAndPurposeBound(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	a := crypto.DeriveKey(key, []byte("transit_key"), 32)
	b := crypto.DeriveKey(key, []byte("transit_key"), 32)
	c := crypto.DeriveKey(key, []byte("wormhole:verifier"), 32)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, crypto.DeriveKey(key, []byte("x"), 64), 64)
}

func TestPhasePurpose_DependsOnSideAndPhase(t *testing.T) {
	require.NotEqual(t, crypto.PhasePurpose("aaaa", "0"), crypto.PhasePurpose("bbbb", "0"))
	require.NotEqual(t, crypto.PhasePurpose("aaaa", "0"), crypto.PhasePurpose("aaaa", "1"))
}

func TestSealOpen_RoundTripAndTamper(t *testing.T) {
	key := bytes.Repeat([]byte{7}, crypto.KeyBytes)

	sealed, err := crypto.Seal(key, []byte("transit offer"))
	require.NoError(t, err)

	got, err := crypto.Open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, "transit offer", string(got))

	sealed[len(sealed)-1] ^= 0x01
	_, err = crypto.Open(key, sealed)
	require.ErrorIs(t, err, crypto.ErrDecrypt)

	_, err = crypto.Open(key, []byte("short"))
	require.ErrorIs(t, err, crypto.ErrDecrypt)
}

func TestVerifier_EqualKeysEqualVerifiers(t *testing.T) {
	k1 := bytes.Repeat([]byte{1}, 32)
	k2 := bytes.Repeat([]byte{2}, 32)

	require.Equal(t, crypto.Verifier(k1), crypto.Verifier(k1))
	require.NotEqual(t, crypto.Verifier(k1), crypto.Verifier(k2))
	require.Len(t, crypto.Verifier(k1), 20)
}

func TestWipe_ZeroesAll(t *testing.T) {
	a, b := []byte{1, 2, 3}, []byte{4}
	crypto.Wipe(a, nil, b)
	require.Equal(t, []byte{0, 0, 0}, a)
	require.Equal(t, []byte{0}, b)
}

func TestSelfSignedCert(t *testing.T) {
	cert, err := crypto.SelfSignedCert(time.Hour)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	require.Equal(t, x509.Ed25519, leaf.PublicKeyAlgorithm)
	require.WithinDuration(t, time.Now().Add(time.Hour), leaf.NotAfter, time.Minute)
}
