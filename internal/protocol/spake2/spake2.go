package spake2

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"

	"github.com/cloudflare/circl/group"

	"wormhole/internal/crypto"
)

const (
	// KeySize is the length of the derived shared key.
	KeySize = sha256.Size

	dstPassword  = "wormhole-spake2-ristretto255-v1:password"
	dstSymmetric = "wormhole-spake2-ristretto255-v1:S"
)

var (
	ErrInvalidMessage  = errors.New("spake2: invalid peer message")
	ErrAlreadyFinished = errors.New("spake2: exchange already finished")
	ErrEmptyPassword   = errors.New("spake2: empty password")
)

var (
	suite    = group.Ristretto255
	elementS = suite.HashToElement([]byte("symmetric"), []byte(dstSymmetric))
)

// Exchange is one side of a SPAKE2 run. It is single use.
type Exchange struct {
	passwordHash []byte
	appIDHash    []byte
	w            group.Scalar
	x            group.Scalar
	msg          []byte
	finished     bool
}

// New starts an exchange for password within the application namespace
// appID.
func New(password, appID []byte) (*Exchange, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	w := suite.HashToScalar(password, []byte(dstPassword))
	x := suite.RandomNonZeroScalar(rand.Reader)

	X := suite.NewElement().MulGen(x)
	blind := suite.NewElement().Mul(elementS, w)
	X.Add(X, blind)

	msg, err := X.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Exchange{
		passwordHash: crypto.Digest(password),
		appIDHash:    crypto.Digest(appID),
		w:            w,
		x:            x,
		msg:          msg,
	}, nil
}

// Message returns the element to send to the peer.
func (e *Exchange) Message() []byte {
	return append([]byte(nil), e.msg...)
}

// Finish consumes the peer's message and returns the shared key.
func (e *Exchange) Finish(peerMsg []byte) ([]byte, error) {
	if e.finished {
		return nil, ErrAlreadyFinished
	}
	e.finished = true
	defer e.forget()

	if bytes.Equal(peerMsg, e.msg) {
		// a reflected message would let an attacker skip the password
		return nil, ErrInvalidMessage
	}
	Y := suite.NewElement()
	if err := Y.UnmarshalBinary(peerMsg); err != nil {
		return nil, ErrInvalidMessage
	}
	if Y.IsIdentity() {
		return nil, ErrInvalidMessage
	}

	unblind := suite.NewElement().Mul(elementS, e.w)
	unblind.Neg(unblind)
	K := suite.NewElement().Add(Y, unblind)
	K.Mul(K, e.x)
	if K.IsIdentity() {
		return nil, ErrInvalidMessage
	}
	kBytes, err := K.MarshalBinary()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(kBytes)

	h := sha256.New()
	writeField(h, e.passwordHash)
	writeField(h, e.appIDHash)
	for _, m := range orderedPair(e.msg, peerMsg) {
		writeField(h, m)
	}
	writeField(h, kBytes)
	return h.Sum(nil), nil
}

// Transcript is the order-independent concatenation of both PAKE messages,
// used as the key confirmation input.
func Transcript(a, b []byte) []byte {
	pair := orderedPair(a, b)
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, pair[0]...)
	return append(out, pair[1]...)
}

// ConfirmationMAC proves possession of key to the peer. side binds the proof
// to its sender so it cannot be reflected back.
func ConfirmationMAC(key []byte, side string, transcript []byte) []byte {
	mk := crypto.DeriveKey(key, []byte("wormhole:confirm"), crypto.KeyBytes)
	defer crypto.Wipe(mk)

	m := hmac.New(sha256.New, mk)
	writeField(m, []byte(side))
	writeField(m, transcript)
	return m.Sum(nil)
}

// VerifyConfirmation checks the peer's confirmation MAC.
func VerifyConfirmation(key []byte, peerSide string, transcript, mac []byte) bool {
	want := ConfirmationMAC(key, peerSide, transcript)
	return hmac.Equal(want, mac)
}

func (e *Exchange) forget() {
	e.x = nil
	e.w = nil
}

func orderedPair(a, b []byte) [2][]byte {
	if bytes.Compare(a, b) <= 0 {
		return [2][]byte{a, b}
	}
	return [2][]byte{b, a}
}

func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}
