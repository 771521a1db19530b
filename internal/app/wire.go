package app

import (
	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
	"wormhole/internal/rendezvous"
	sessionsvc "wormhole/internal/services/session"
	"wormhole/internal/store"
	"wormhole/internal/transit"
)

// Wire bundles the services and sinks for the CLI.
type Wire struct {
	Sessions *sessionsvc.Service
	Output   *store.FileSink
	Logger   logrus.FieldLogger
}

var _ domain.SessionService = (*sessionsvc.Service)(nil)

// NewWire validates cfg and constructs the dependency graph from it.
// outputDir is where received files are written.
func NewWire(cfg Config, outputDir string, overwrite bool) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	sessions := sessionsvc.New(sessionsvc.Config{
		Rendezvous: rendezvous.Config{
			URL:          cfg.RendezvousURL,
			AppID:        cfg.AppID,
			Timeout:      cfg.RendezvousTimeout,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       log,
		},
		Transit: transit.Config{
			Abilities:      cfg.Abilities,
			Relays:         cfg.RelayURLs,
			ListenHost:     cfg.ListenHost,
			AdvertiseAddrs: cfg.AdvertiseAddrs,
			Timeout:        cfg.TransitTimeout,
			AttemptTimeout: cfg.AttemptTimeout,
			RelayDelay:     cfg.RelayDelay,
			IdleTimeout:    cfg.IdleTimeout,
			Logger:         log,
		},
		Words:     cfg.WordCount,
		ChunkSize: cfg.ChunkSize,
		Compress:  cfg.Compress,
		Logger:    log,
	})

	return &Wire{
		Sessions: sessions,
		Output:   store.NewFileSink(outputDir, overwrite),
		Logger:   log,
	}, nil
}
