// Package mailbox is an in-memory rendezvous server speaking the wormhole
// mailbox protocol over WebSocket.
//
// It keeps everything in memory: applications, their nameplates and the
// mailboxes nameplates point at. A nameplate admits at most two sides, a
// mailbox replays its full history to every side that opens it, and state is
// dropped once every participant has released or closed. It is meant for
// development and tests, not for public deployment.
package mailbox
