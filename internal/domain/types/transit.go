package types

import (
	"net"
	"strconv"
)

// TransportKind names a transit transport. The same names are used for
// abilities and hints.
type TransportKind string

const (
	TransportDirectTCP  TransportKind = "direct-tcp-v1"
	TransportDirectQUIC TransportKind = "direct-quic-v1"
	TransportRelay      TransportKind = "relay-v1"
)

// IsDirect reports whether the transport reaches the peer without a relay.
func (k TransportKind) IsDirect() bool {
	return k == TransportDirectTCP || k == TransportDirectQUIC
}

// Ability advertises one transport a peer can use.
type Ability struct {
	Type TransportKind `json:"type"`
}

// TransitHint is a connection candidate offered to the peer.
type TransitHint struct {
	Kind     TransportKind `json:"type"`
	Hostname string        `json:"hostname"`
	Port     int           `json:"port"`
	Priority float64       `json:"priority,omitempty"`
}

// Address returns the hint as host:port.
func (h TransitHint) Address() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}

// TransitOffer is what each side sends the other before negotiating.
type TransitOffer struct {
	Abilities []Ability     `json:"abilities-v1"`
	Hints     []TransitHint `json:"hints-v1"`
}

// TransitMessage wraps the offer the way it travels over the mailbox.
type TransitMessage struct {
	Transit *TransitOffer `json:"transit,omitempty"`
	Error   string        `json:"error,omitempty"`
}
