package types

// Compression applied to chunks before encryption.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
)

// FileManifest is declared by the sender and accepted or rejected by the
// receiver before any content is streamed.
type FileManifest struct {
	Name        string      `cbor:"1,keyasint" json:"name"`
	Size        int64       `cbor:"2,keyasint" json:"size"`
	Compression Compression `cbor:"3,keyasint,omitempty" json:"compression,omitempty"`
}

// Progress counts plaintext bytes moved so far.
type Progress struct {
	Done  int64
	Total int64
}

// TransferState is the transfer engine's state machine.
type TransferState int

const (
	TransferIdle TransferState = iota
	TransferManifestExchanged
	TransferTransferring
	TransferCompleted
	TransferAborted
	TransferFailed
)

// String returns a short name for the state.
func (s TransferState) String() string {
	switch s {
	case TransferIdle:
		return "idle"
	case TransferManifestExchanged:
		return "manifest-exchanged"
	case TransferTransferring:
		return "transferring"
	case TransferCompleted:
		return "completed"
	case TransferAborted:
		return "aborted"
	case TransferFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s TransferState) Terminal() bool {
	return s == TransferCompleted || s == TransferAborted || s == TransferFailed
}

// SendOptions tune one send.
type SendOptions struct {
	// Code, when non-empty, is used instead of allocating a fresh one.
	Code string
	// Compress enables per-chunk zstd compression.
	Compress bool
}

// ReceiveOptions tune one receive.
type ReceiveOptions struct {
	// AutoAccept accepts the offered file without waiting for Respond.
	AutoAccept bool
}
