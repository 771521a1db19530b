package types

// MailboxMessage is the JSON envelope exchanged with the rendezvous server.
// One struct serves every message type; unused fields are omitted.
type MailboxMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	AppID     string          `json:"appid,omitempty"`
	Side      string          `json:"side,omitempty"`
	Nameplate string          `json:"nameplate,omitempty"`
	Mailbox   string          `json:"mailbox,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Body      string          `json:"body,omitempty"`
	Mood      string          `json:"mood,omitempty"`
	Error     string          `json:"error,omitempty"`
	Ping      int             `json:"ping,omitempty"`
	Pong      int             `json:"pong,omitempty"`
	Welcome   map[string]any  `json:"welcome,omitempty"`
	Orig      *MailboxMessage `json:"orig,omitempty"`
	ServerTX  float64         `json:"server_tx,omitempty"`
}

// Mailbox protocol message types.
const (
	MsgWelcome   = "welcome"
	MsgAck       = "ack"
	MsgBind      = "bind"
	MsgAllocate  = "allocate"
	MsgAllocated = "allocated"
	MsgClaim     = "claim"
	MsgClaimed   = "claimed"
	MsgRelease   = "release"
	MsgReleased  = "released"
	MsgOpen      = "open"
	MsgAdd       = "add"
	MsgMessage   = "message"
	MsgClose     = "close"
	MsgClosed    = "closed"
	MsgPing      = "ping"
	MsgPong      = "pong"
	MsgError     = "error"
)

// Close moods reported to the rendezvous server.
const (
	MoodHappy  = "happy"
	MoodLonely = "lonely"
	MoodErrory = "errory"
	MoodScary  = "scary"
)

// RendezvousState tracks how far a client got with the mailbox server.
type RendezvousState int

const (
	StateDisconnected RendezvousState = iota
	StateBound
	StateClaimed
	StateOpened
	StateKeyed
	StateConfirmed
	StateClosed
)

// RendezvousSession is the client's view of its mailbox.
type RendezvousSession struct {
	Mailbox MailboxID
	Side    Side
	State   RendezvousState
}
