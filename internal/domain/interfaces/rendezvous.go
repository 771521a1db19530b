package interfaces

import "context"

// SecureChannel is the authenticated, encrypted mailbox channel left behind
// by a completed rendezvous. Transit offers travel over it.
type SecureChannel interface {
	Send(ctx context.Context, body []byte) error
	Receive(ctx context.Context) ([]byte, error)
	DeriveKey(purpose string, length int) []byte
	Side() string
	Close(ctx context.Context, mood string) error
}
