// Package record frames and encrypts the transit byte stream.
//
// Each record on the wire is
//
//	length (4 bytes, big-endian) ‖ nonce (24 bytes) ‖ secretbox(plaintext)
//
// where length covers nonce and box. The nonce is a per-direction counter,
// big-endian, starting at zero. The reader requires exactly the next counter
// value, so dropped, replayed or reordered records fail the same way a
// forged one does. Sender and receiver use different keys, both derived from
// the transit key.
package record
