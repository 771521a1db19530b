// Package code generates and parses wormhole codes.
//
// A code looks like "7-crossover-clockwork": a numeric nameplate that locates
// the mailbox on the rendezvous server, followed by words drawn alternately
// from the even and odd PGP word lists. The whole code is the PAKE password,
// so the words only have to survive online guessing: the server lets each
// nameplate be claimed once, and each claim allows a single guess.
package code
