// Package session runs wormhole transfers end to end and reports on them.
//
// A send or receive runs in its own goroutine: rendezvous and key
// confirmation, transit negotiation over the confirmed mailbox, then the
// transfer itself. The caller follows along on the session's event channel,
// which carries exactly one terminal event (Completed, Failed or Aborted)
// and is closed right after it. The service keeps a registry of running
// sessions so the shell can answer an offer or cancel by ID.
package session
