package interfaces

import (
	"context"

	"github.com/google/uuid"

	domaintypes "wormhole/internal/domain/types"
)

// TransferSession is one running send or receive.
type TransferSession interface {
	ID() uuid.UUID
	Role() domaintypes.Role
	Events() <-chan domaintypes.Event
	Respond(accept bool) error
	Cancel()
}

// SessionService starts transfers and tracks the ones in flight.
type SessionService interface {
	Send(
		ctx context.Context,
		data []byte,
		size int64,
		name string,
		opts domaintypes.SendOptions,
	) (TransferSession, error)
	Receive(ctx context.Context, code string, opts domaintypes.ReceiveOptions) (TransferSession, error)
	RespondToManifest(id uuid.UUID, accept bool) error
	Cancel(id uuid.UUID) error
}
