package app

import (
	"errors"
	"testing"

	"wormhole/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty url":       func(c *Config) { c.RendezvousURL = "" },
		"empty appid":     func(c *Config) { c.AppID = "" },
		"one word":        func(c *Config) { c.WordCount = 1 },
		"zero chunk":      func(c *Config) { c.ChunkSize = 0 },
		"no abilities":    func(c *Config) { c.Abilities = nil },
		"unknown ability": func(c *Config) { c.Abilities = []domain.TransportKind{"carrier-pigeon"} },
		"bad relay":       func(c *Config) { c.RelayURLs = []string{"udp:relay.example:4001"} },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%s: got %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestEnableQUICOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableQUIC()
	cfg.EnableQUIC()
	n := 0
	for _, a := range cfg.Abilities {
		if a == domain.TransportDirectQUIC {
			n++
		}
	}
	if n != 1 || cfg.Abilities[0] != domain.TransportDirectQUIC {
		t.Fatalf("abilities %v", cfg.Abilities)
	}
}

func TestNewWireValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AppID = ""
	if _, err := NewWire(cfg, t.TempDir(), false); err == nil {
		t.Fatal("expected error")
	}
	w, err := NewWire(DefaultConfig(), t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	if New(w).Sessions == nil {
		t.Fatal("no session service")
	}
}
