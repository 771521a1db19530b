package app

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/code"
	"wormhole/internal/domain"
	"wormhole/internal/transfer"
	"wormhole/internal/transit"
)

// Defaults for the public magic-wormhole infrastructure.
const (
	DefaultRendezvousURL = "ws://relay.magic-wormhole.io:4000/v1"
	DefaultAppID         = "lothar.com/wormhole/text-or-file-xfer"
)

// Config holds runtime wiring options for building the app. It is shared
// read-only by every session.
type Config struct {
	RendezvousURL  string // mailbox server, e.g. ws://127.0.0.1:4000/v1
	AppID          string // namespace on the mailbox server
	RelayURLs      []string
	Abilities      []domain.TransportKind
	ListenHost     string
	AdvertiseAddrs []string

	WordCount int
	ChunkSize int
	Compress  bool

	RendezvousTimeout time.Duration
	RetryBackoff      time.Duration
	TransitTimeout    time.Duration
	AttemptTimeout    time.Duration
	RelayDelay        time.Duration
	IdleTimeout       time.Duration

	Logger logrus.FieldLogger // optional; defaults to a warn-level logrus logger
}

// DefaultConfig returns a Config pointing at the public servers.
func DefaultConfig() Config {
	return Config{
		RendezvousURL:     DefaultRendezvousURL,
		AppID:             DefaultAppID,
		RelayURLs:         []string{transit.DefaultRelay},
		Abilities:         transit.DefaultAbilities(),
		WordCount:         code.DefaultWords,
		ChunkSize:         transfer.DefaultChunkSize,
		RendezvousTimeout: 5 * time.Minute,
		RetryBackoff:      time.Second,
		TransitTimeout:    30 * time.Second,
		AttemptTimeout:    10 * time.Second,
		RelayDelay:        2 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

// Validate reports the first problem with cfg.
func (cfg Config) Validate() error {
	switch {
	case cfg.RendezvousURL == "":
		return fmt.Errorf("%w: rendezvous URL is empty", domain.ErrInvalidInput)
	case cfg.AppID == "":
		return fmt.Errorf("%w: app ID is empty", domain.ErrInvalidInput)
	case cfg.WordCount < code.MinWords || cfg.WordCount > code.MaxWords:
		return fmt.Errorf("%w: word count %d outside %d..%d", domain.ErrInvalidInput, cfg.WordCount, code.MinWords, code.MaxWords)
	case cfg.ChunkSize <= 0 || cfg.ChunkSize > transfer.MaxChunkSize:
		return fmt.Errorf("%w: chunk size %d", domain.ErrInvalidInput, cfg.ChunkSize)
	case len(cfg.Abilities) == 0:
		return fmt.Errorf("%w: no transit abilities", domain.ErrInvalidInput)
	}
	for _, a := range cfg.Abilities {
		switch a {
		case domain.TransportDirectTCP, domain.TransportDirectQUIC, domain.TransportRelay:
		default:
			return fmt.Errorf("%w: unknown ability %q", domain.ErrInvalidInput, a)
		}
	}
	for _, u := range cfg.RelayURLs {
		if _, err := transit.ParseRelay(u); err != nil {
			return err
		}
	}
	return nil
}

// EnableQUIC adds direct QUIC to the abilities if missing.
func (cfg *Config) EnableQUIC() {
	for _, a := range cfg.Abilities {
		if a == domain.TransportDirectQUIC {
			return
		}
	}
	cfg.Abilities = append([]domain.TransportKind{domain.TransportDirectQUIC}, cfg.Abilities...)
}
