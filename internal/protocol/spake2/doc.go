// Package spake2 implements the symmetric SPAKE2 exchange that turns a short
// wormhole code into a strong shared key.
//
// # Overview
//
// Both peers run the same role. Each holds the code as a low-entropy
// password and contributes one group element blinded by it. An eavesdropper
// learns nothing about the password; an active attacker gets one guess per
// run, which the rendezvous server's one-claim-per-nameplate rule limits to a
// single guess per code.
//
// # Flow
//
//  1. w = HashToScalar(password), S = HashToElement("symmetric").
//  2. Pick random x, send X = x·G + w·S.
//  3. On receiving Y, compute K = x·(Y − w·S).
//  4. key = SHA-256 over the length-prefixed transcript
//     H(password) ‖ H(appID) ‖ min(X, Y) ‖ max(X, Y) ‖ K.
//
// Ordering the two messages makes the transcript independent of who sent
// first. The group is ristretto255 from github.com/cloudflare/circl.
//
// # Key confirmation
//
// The key is not trusted until each side has proven it holds the same value.
// ConfirmationMAC produces the proof; VerifyConfirmation checks the peer's in
// constant time. A mismatch means the codes differ or the exchange was
// tampered with.
//
// This package performs no I/O.
package spake2
