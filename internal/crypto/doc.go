// Package crypto exposes the minimal primitives used by wormhole.
//
// Contents
//
//   - Purpose-bound key derivation from the shared session key (DeriveKey,
//     PhasePurpose)
//   - NaCl secretbox sealing with a random nonce prefix for mailbox messages
//     (Seal, Open)
//   - Short human-comparable verifiers (Verifier)
//   - Throwaway Ed25519 certificates for QUIC transit (SelfSignedCert)
//
// # Notes
//
// The shared key never leaves volatile memory. Callers wipe it with
// Wipe when the session ends.
package crypto
