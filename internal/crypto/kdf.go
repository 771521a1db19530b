package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeyBytes is the size of every symmetric key in the protocol.
	KeyBytes = 32
)

// DeriveKey expands key into length bytes bound to purpose (HKDF-SHA256,
// empty salt).
func DeriveKey(key []byte, purpose []byte, length int) []byte {
	out := make([]byte, length)
	r := hkdf.New(sha256.New, key, nil, purpose)
	// hkdf only fails past 255*32 bytes of output
	if _, err := io.ReadFull(r, out); err != nil {
		panic("crypto: hkdf expand: " + err.Error())
	}
	return out
}

// Digest returns SHA-256 of b.
func Digest(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// PhasePurpose builds the HKDF purpose for a mailbox phase key.
func PhasePurpose(side, phase string) []byte {
	purpose := make([]byte, 0, len("wormhole:phase:")+2*sha256.Size)
	purpose = append(purpose, "wormhole:phase:"...)
	purpose = append(purpose, Digest([]byte(side))...)
	purpose = append(purpose, Digest([]byte(phase))...)
	return purpose
}
