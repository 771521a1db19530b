package types

import "strings"

// Nameplate locates a mailbox on the rendezvous server.
type Nameplate string

// String returns the string form of the nameplate.
func (n Nameplate) String() string { return string(n) }

// Side identifies one peer inside a mailbox.
type Side string

// String returns the string form of the side.
func (s Side) String() string { return string(s) }

// MailboxID identifies a mailbox opened on the rendezvous server.
type MailboxID string

// String returns the string form of the mailbox identifier.
func (id MailboxID) String() string { return string(id) }

// Code is the short human-transcribable wormhole code.
type Code struct {
	Nameplate Nameplate
	Words     []string
}

// String renders the code as "<nameplate>-<word>-<word>".
func (c Code) String() string {
	if len(c.Words) == 0 {
		return string(c.Nameplate)
	}
	return string(c.Nameplate) + "-" + strings.Join(c.Words, "-")
}

// Passphrase returns the word part of the code.
func (c Code) Passphrase() string { return strings.Join(c.Words, "-") }

// Password is the PAKE password. It covers the nameplate as well as the words.
func (c Code) Password() []byte { return []byte(strings.ToLower(c.String())) }

// IsZero reports whether the code is unset.
func (c Code) IsZero() bool { return c.Nameplate == "" && len(c.Words) == 0 }

// Role is the part a peer plays in a transfer.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// String returns "sender" or "receiver".
func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}
