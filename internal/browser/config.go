package browser

import (
	"net/url"
	"strings"
	"time"
)

// DefaultAppURL is the messaging web client driven by chatsweep.
const DefaultAppURL = "https://web.whatsapp.com/"

// Config holds connection manager configuration
type Config struct {
	DiscoveryURL     string `toml:"discoveryURL"`     // Chrome /json/version endpoint
	ControlURL       string `toml:"controlURL"`       // Fixed ws:// address; skips discovery when set
	AppURL           string `toml:"appURL"`           // Tabs already on this origin are reused
	MaxAttempts      int    `toml:"maxAttempts"`      // Connection attempts before giving up
	ConnectGrace     string `toml:"connectGrace"`     // Wait before each attempt (e.g., "1s")
	ListDelay        string `toml:"listDelay"`        // Wait between connect and listing tabs
	RetryBackoff     string `toml:"retryBackoff"`     // Wait after a failed attempt
	DiscoveryTimeout string `toml:"discoveryTimeout"` // HTTP timeout for the discovery request
	Stealth          bool   `toml:"stealth"`          // Open new tabs with stealth evasions
	AllowRemote      bool   `toml:"allowRemote"`      // Permit a debugging endpoint off loopback
}

// DefaultConfig returns the default connection manager configuration
func DefaultConfig() Config {
	return Config{
		DiscoveryURL:     "http://127.0.0.1:9222/json/version",
		AppURL:           DefaultAppURL,
		MaxAttempts:      5,
		ConnectGrace:     "1s",
		ListDelay:        "1s",
		RetryBackoff:     "2s",
		DiscoveryTimeout: "10s",
	}
}

// ResolveMaxAttempts returns the attempt budget, defaulting to 5
func (c *Config) ResolveMaxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 5
	}
	return c.MaxAttempts
}

// ResolveConnectGrace returns the pre-attempt grace period
func (c *Config) ResolveConnectGrace() time.Duration {
	return resolveDuration(c.ConnectGrace, time.Second)
}

// ResolveListDelay returns the delay between connecting and listing tabs
func (c *Config) ResolveListDelay() time.Duration {
	return resolveDuration(c.ListDelay, time.Second)
}

// ResolveRetryBackoff returns the delay after a failed attempt
func (c *Config) ResolveRetryBackoff() time.Duration {
	return resolveDuration(c.RetryBackoff, 2*time.Second)
}

// ResolveDiscoveryTimeout returns the discovery request timeout
func (c *Config) ResolveDiscoveryTimeout() time.Duration {
	return resolveDuration(c.DiscoveryTimeout, 10*time.Second)
}

// AppOrigin returns scheme://host of AppURL with a trailing slash,
// e.g. "https://web.whatsapp.com/".
func (c *Config) AppOrigin() string {
	raw := c.AppURL
	if raw == "" {
		raw = DefaultAppURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/") + "/"
	}
	return u.Scheme + "://" + u.Host + "/"
}

func resolveDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
