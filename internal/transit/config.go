package transit

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wormhole/internal/domain"
)

// DefaultRelay is used when relaying is enabled and no relay is configured.
const DefaultRelay = "tcp:transit.magic-wormhole.io:4001"

// Config controls negotiation. Zero durations fall back to defaults.
type Config struct {
	Abilities []domain.TransportKind
	// Relays are relay URLs of the form tcp:host:port.
	Relays []string
	// ListenHost is the address listeners bind to; empty means all
	// interfaces.
	ListenHost string
	// AdvertiseAddrs overrides the host addresses put into direct hints.
	AdvertiseAddrs []string

	Timeout        time.Duration
	AttemptTimeout time.Duration
	RelayDelay     time.Duration
	IdleTimeout    time.Duration

	Logger logrus.FieldLogger
}

// DefaultTimeout bounds a negotiation when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// DefaultAbilities are offered unless configured otherwise.
func DefaultAbilities() []domain.TransportKind {
	return []domain.TransportKind{domain.TransportDirectTCP, domain.TransportRelay}
}

func (c Config) withDefaults() Config {
	if len(c.Abilities) == 0 {
		c.Abilities = DefaultAbilities()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.RelayDelay < 0 {
		c.RelayDelay = 0
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return c
}

func (c Config) has(k domain.TransportKind) bool {
	for _, a := range c.Abilities {
		if a == k {
			return true
		}
	}
	return false
}

// ParseRelay parses tcp:host:port into a relay hint.
func ParseRelay(url string) (domain.TransitHint, error) {
	rest, ok := strings.CutPrefix(url, "tcp:")
	if !ok {
		return domain.TransitHint{}, fmt.Errorf("%w: relay %q: want tcp:host:port", domain.ErrInvalidInput, url)
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return domain.TransitHint{}, fmt.Errorf("%w: relay %q: %v", domain.ErrInvalidInput, url, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 || host == "" {
		return domain.TransitHint{}, fmt.Errorf("%w: relay %q: bad host or port", domain.ErrInvalidInput, url)
	}
	return domain.TransitHint{Kind: domain.TransportRelay, Hostname: host, Port: p}, nil
}

// relayHints returns the configured relays, or the default one.
func (c Config) relayHints() ([]domain.TransitHint, error) {
	urls := c.Relays
	if len(urls) == 0 {
		urls = []string{DefaultRelay}
	}
	out := make([]domain.TransitHint, 0, len(urls))
	for _, u := range urls {
		h, err := ParseRelay(u)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// advertiseHosts lists the addresses put into direct hints.
func (c Config) advertiseHosts() []string {
	if len(c.AdvertiseAddrs) > 0 {
		return c.AdvertiseAddrs
	}
	if c.ListenHost != "" {
		if ip := net.ParseIP(c.ListenHost); ip != nil && !ip.IsUnspecified() {
			return []string{c.ListenHost}
		}
	}
	var hosts []string
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok || ipn.IP.IsLoopback() || ipn.IP.IsLinkLocalUnicast() {
				continue
			}
			hosts = append(hosts, ipn.IP.String())
		}
	}
	if len(hosts) == 0 {
		hosts = []string{"127.0.0.1"}
	}
	return hosts
}
