package domain

import (
	interfaces "wormhole/internal/domain/interfaces"
	types "wormhole/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Nameplate         = types.Nameplate
	Side              = types.Side
	MailboxID         = types.MailboxID
	Code              = types.Code
	Role              = types.Role
	MailboxMessage    = types.MailboxMessage
	RendezvousState   = types.RendezvousState
	RendezvousSession = types.RendezvousSession
	TransportKind     = types.TransportKind
	Ability           = types.Ability
	TransitHint       = types.TransitHint
	TransitOffer      = types.TransitOffer
	TransitMessage    = types.TransitMessage
	Compression       = types.Compression
	FileManifest      = types.FileManifest
	Progress          = types.Progress
	SendOptions       = types.SendOptions
	ReceiveOptions    = types.ReceiveOptions
	TransferState     = types.TransferState
	EventKind         = types.EventKind
	Event             = types.Event
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SecureChannel   = interfaces.SecureChannel
	TransferSession = interfaces.TransferSession
	SessionService  = interfaces.SessionService
	FileSink        = interfaces.FileSink
)

// Re-exported constants.
const (
	RoleSender   = types.RoleSender
	RoleReceiver = types.RoleReceiver

	TransportDirectTCP  = types.TransportDirectTCP
	TransportDirectQUIC = types.TransportDirectQUIC
	TransportRelay      = types.TransportRelay

	CompressionNone = types.CompressionNone
	CompressionZstd = types.CompressionZstd

	TransferIdle              = types.TransferIdle
	TransferManifestExchanged = types.TransferManifestExchanged
	TransferTransferring      = types.TransferTransferring
	TransferCompleted         = types.TransferCompleted
	TransferAborted           = types.TransferAborted
	TransferFailed            = types.TransferFailed

	EventCodeReady       = types.EventCodeReady
	EventConnected       = types.EventConnected
	EventManifestOffered = types.EventManifestOffered
	EventProgress        = types.EventProgress
	EventCompleted       = types.EventCompleted
	EventFailed          = types.EventFailed
	EventAborted         = types.EventAborted

	StateDisconnected = types.StateDisconnected
	StateBound        = types.StateBound
	StateClaimed      = types.StateClaimed
	StateOpened       = types.StateOpened
	StateKeyed        = types.StateKeyed
	StateConfirmed    = types.StateConfirmed
	StateClosed       = types.StateClosed
)

// Mailbox protocol message types and close moods.
const (
	MsgWelcome   = types.MsgWelcome
	MsgAck       = types.MsgAck
	MsgBind      = types.MsgBind
	MsgAllocate  = types.MsgAllocate
	MsgAllocated = types.MsgAllocated
	MsgClaim     = types.MsgClaim
	MsgClaimed   = types.MsgClaimed
	MsgRelease   = types.MsgRelease
	MsgReleased  = types.MsgReleased
	MsgOpen      = types.MsgOpen
	MsgAdd       = types.MsgAdd
	MsgMessage   = types.MsgMessage
	MsgClose     = types.MsgClose
	MsgClosed    = types.MsgClosed
	MsgPing      = types.MsgPing
	MsgPong      = types.MsgPong
	MsgError     = types.MsgError

	MoodHappy  = types.MoodHappy
	MoodLonely = types.MoodLonely
	MoodErrory = types.MoodErrory
	MoodScary  = types.MoodScary
)
