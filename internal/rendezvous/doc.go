// Package rendezvous implements the client side of the wormhole mailbox
// protocol.
//
// A connection binds to the server with a random side, claims a nameplate
// and opens its mailbox. Both peers then run SPAKE2 through the mailbox
// (phase "pake"), release the nameplate, and confirm the key (phase
// "confirm"). Once confirmed the mailbox becomes an encrypted, ordered
// message channel: application messages use phases "0", "1", ... and are
// sealed with a per-side, per-phase key derived from the shared key.
package rendezvous
