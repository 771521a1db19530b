package crypto

import "encoding/hex"

// Verifier returns a short hex string both peers can compare out of band to
// detect a man-in-the-middle. Equal keys give equal verifiers.
//
// It derives a dedicated subkey and truncates to 10 bytes (20 hex chars).
func Verifier(key []byte) string {
	v := DeriveKey(key, []byte("wormhole:verifier"), KeyBytes)
	return hex.EncodeToString(v[:10])
}
