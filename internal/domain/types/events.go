package types

// EventKind enumerates the session events delivered to the shell.
type EventKind int

const (
	EventCodeReady EventKind = iota
	EventConnected
	EventManifestOffered
	EventProgress
	EventCompleted
	EventFailed
	EventAborted
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventCodeReady:
		return "CodeReady"
	case EventConnected:
		return "Connected"
	case EventManifestOffered:
		return "ManifestOffered"
	case EventProgress:
		return "Progress"
	case EventCompleted:
		return "Completed"
	case EventFailed:
		return "Failed"
	case EventAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the event ends a session.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventFailed || k == EventAborted
}

// Event is one item of a session's event stream. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	Code      Code
	Transport TransportKind
	Manifest  FileManifest
	Progress  Progress
	Data      []byte // receiver's Completed only
	Err       error  // Failed only
}
