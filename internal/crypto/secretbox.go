package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceBytes is the secretbox nonce size.
	NonceBytes = 24
	// Overhead is what secretbox adds to each plaintext.
	Overhead = secretbox.Overhead
)

// ErrDecrypt is returned when a box fails authentication.
var ErrDecrypt = errors.New("decryption failed")

// Seal encrypts plaintext under key with a random nonce and returns
// nonce || box.
func Seal(key []byte, plaintext []byte) ([]byte, error) {
	if len(key) != KeyBytes {
		return nil, errors.New("invalid key size")
	}
	var nonce [NonceBytes]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	var k [KeyBytes]byte
	copy(k[:], key)
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k), nil
}

// Open reverses Seal.
func Open(key []byte, sealed []byte) ([]byte, error) {
	if len(key) != KeyBytes {
		return nil, errors.New("invalid key size")
	}
	if len(sealed) < NonceBytes+Overhead {
		return nil, ErrDecrypt
	}
	var nonce [NonceBytes]byte
	copy(nonce[:], sealed[:NonceBytes])
	var k [KeyBytes]byte
	copy(k[:], key)
	out, ok := secretbox.Open(nil, sealed[NonceBytes:], &nonce, &k)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
