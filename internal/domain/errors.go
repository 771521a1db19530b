package domain

import (
	"context"
	"errors"
)

// Input errors are reported before any network activity.
var (
	ErrMalformedCode = errors.New("malformed wormhole code")
	ErrEmptyFile     = errors.New("file is empty")
	ErrInvalidInput  = errors.New("invalid input")
)

// Broker errors.
var (
	ErrBrokerUnreachable    = errors.New("rendezvous server unreachable")
	ErrNameplateUnavailable = errors.New("nameplate expired or already claimed")
	ErrRendezvousTimeout    = errors.New("timed out waiting for peer")
	ErrBrokerProtocol       = errors.New("unexpected message from rendezvous server")
)

// ErrAuthenticationFailed means key confirmation did not match: either the
// codes differ or someone tampered with the exchange.
var ErrAuthenticationFailed = errors.New("key confirmation failed (wrong code or tampering)")

// Negotiation errors.
var (
	ErrNoCommonTransport  = errors.New("no common transit transport")
	ErrNegotiationTimeout = errors.New("transit negotiation timed out")
)

// Transfer errors.
var (
	ErrIntegrityViolation = errors.New("record failed integrity check")
	ErrSizeMismatch       = errors.New("received size does not match manifest")
	ErrConnectionLost     = errors.New("transit connection lost")
	ErrRejected           = errors.New("receiver rejected the file")
	ErrPeerAborted        = errors.New("peer aborted the transfer")
)

// ErrAborted is the cancellation cause. It is not reported as a failure.
var ErrAborted = errors.New("transfer aborted")

// ErrorClass groups errors the way the shell reports them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassInput
	ClassBroker
	ClassAuthentication
	ClassNegotiation
	ClassTransfer
	ClassAborted
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassInput:
		return "InputError"
	case ClassBroker:
		return "BrokerError"
	case ClassAuthentication:
		return "AuthenticationFailed"
	case ClassNegotiation:
		return "NegotiationError"
	case ClassTransfer:
		return "TransferError"
	case ClassAborted:
		return "Aborted"
	default:
		return "Error"
	}
}

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return ClassAborted
	case errors.Is(err, ErrMalformedCode), errors.Is(err, ErrEmptyFile), errors.Is(err, ErrInvalidInput):
		return ClassInput
	case errors.Is(err, ErrBrokerUnreachable), errors.Is(err, ErrNameplateUnavailable),
		errors.Is(err, ErrRendezvousTimeout), errors.Is(err, ErrBrokerProtocol):
		return ClassBroker
	case errors.Is(err, ErrAuthenticationFailed):
		return ClassAuthentication
	case errors.Is(err, ErrNoCommonTransport), errors.Is(err, ErrNegotiationTimeout):
		return ClassNegotiation
	case errors.Is(err, ErrIntegrityViolation), errors.Is(err, ErrSizeMismatch),
		errors.Is(err, ErrConnectionLost), errors.Is(err, ErrRejected), errors.Is(err, ErrPeerAborted):
		return ClassTransfer
	default:
		return ClassUnknown
	}
}
