// Package app wires application dependencies for the CLI.
//
// It validates Config, builds the session service and the output sink from
// it, and exposes them via Wire and App for commands to use.
package app
