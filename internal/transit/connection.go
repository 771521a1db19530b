package transit

import (
	"wormhole/internal/domain"
	"wormhole/internal/protocol/record"
)

// Connection is the confirmed transit connection. Records written on it are
// encrypted with the key for our direction.
type Connection struct {
	Kind domain.TransportKind
	// Hint is the peer endpoint, or the relay for relayed connections.
	Hint domain.TransitHint
	*record.Conn
}
