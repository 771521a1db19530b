// Package transfer moves one file across a confirmed transit connection.
//
// The sender offers a manifest (name, size, compression) and waits for the
// receiver's answer. Only after an explicit accept does it stream the file
// in chunks, then a done frame carrying the byte count and SHA-256 of the
// plaintext. The receiver checks both and answers with an ack carrying the
// digest it computed, which the sender compares before reporting success.
// Frames are CBOR and each one travels in its own encrypted record.
//
// Either side can abort: cancellation is observed at every chunk boundary
// and unblocks any pending read by closing the connection.
package transfer
