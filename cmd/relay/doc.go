// Package main runs the two servers a wormhole transfer may need: the
// websocket mailbox server that peers rendezvous on, and the TCP transit
// relay used when no direct connection can be made.
//
// Endpoints
//
//	GET /v1      (websocket)  mailbox protocol
//	GET /stats               nameplate, mailbox and relayed-pair counts as JSON
//	tcp :4001                transit relay ("please relay <token> for side <side>")
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - The servers never see plaintext: mailbox bodies are sealed by the
//     peers and relayed transit bytes are encrypted records.
//   - SIGINT or SIGTERM shuts the HTTP server down gracefully.
package main
