// Package transit finds a direct or relayed byte stream between the two
// peers of a wormhole and authenticates it.
//
// Each side listens, advertises hints over the mailbox, and then races
// every candidate it can: inbound accepts, outbound dials to the peer's
// direct hints, and connections through a transit relay. Every candidate
// runs the same handshake, keyed by the transit key, so only the real peer
// can complete it. The sender picks the winner and tells it "go"; direct
// connections are preferred over relayed ones. The winner is wrapped in the
// record layer and returned.
package transit
