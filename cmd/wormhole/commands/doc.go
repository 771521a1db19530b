// Package commands defines the wormhole CLI and wires dependencies for subcommands.
//
// Commands
//
//   - send      Offer a file and print the code to read to the peer
//   - receive   Redeem a code and save the offered file
//
// # Implementation
//
// The root command turns persistent flags into an app.Config before any
// subcommand runs. Each subcommand builds its own Wire so receive-only
// options such as the output directory stay local to it. Interrupts cancel
// the running session, which then reports Aborted.
package commands
