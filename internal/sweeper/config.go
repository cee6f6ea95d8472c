package sweeper

import "time"

// Selectors used by the app-level flows.
type Selectors struct {
	ChatList    string   `toml:"chatList"`    // present once the app has loaded
	LoggedIn    []string `toml:"loggedIn"`    // any match means a logged-in session
	SearchBox   string   `toml:"searchBox"`   // chat search input
	MessageText string   `toml:"messageText"` // message bubbles of the open chat
	QRCode      string   `toml:"qrCode"`      // login code container, payload in data-ref
}

// Config holds flow configuration
type Config struct {
	ReadyTimeout      string    `toml:"readyTimeout"`      // Wait for the chat list after opening the app
	SearchTimeout     string    `toml:"searchTimeout"`     // Wait for the search box and the contact
	MaxSummaryTokens  int       `toml:"maxSummaryTokens"`  // Conversation text sent for a summary
	NoSummaryFallback string    `toml:"noSummaryFallback"` // Returned when the model answers with nothing
	Selectors         Selectors `toml:"selectors"`
}

// DefaultSelectors returns the selectors for WhatsApp Web.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatList:    `div[aria-label='Chat list']`,
		LoggedIn:    []string{`div[aria-label='Chat list']`, `#pane-side`},
		SearchBox:   `div[aria-label="Search input textbox"]`,
		MessageText: `.copyable-text`,
		QRCode:      `div[data-ref]`,
	}
}

// DefaultConfig returns the default flow configuration
func DefaultConfig() Config {
	return Config{
		ReadyTimeout:      "60s",
		SearchTimeout:     "30s",
		MaxSummaryTokens:  6000,
		NoSummaryFallback: "No summary available.",
		Selectors:         DefaultSelectors(),
	}
}

// ResolveReadyTimeout returns the app load timeout
func (c *Config) ResolveReadyTimeout() time.Duration {
	return resolveDuration(c.ReadyTimeout, 60*time.Second)
}

// ResolveSearchTimeout returns the contact search timeout
func (c *Config) ResolveSearchTimeout() time.Duration {
	return resolveDuration(c.SearchTimeout, 30*time.Second)
}

// ResolveNoSummaryFallback returns the empty-summary text
func (c *Config) ResolveNoSummaryFallback() string {
	if c.NoSummaryFallback == "" {
		return "No summary available."
	}
	return c.NoSummaryFallback
}

func resolveDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
