package scraper

import "time"

// Selectors locate the chat list inside the page.
type Selectors struct {
	ChatItem string `toml:"chatItem"` // one row of the rendered list
	Name     string `toml:"name"`     // row title, relative to ChatItem
	Preview  string `toml:"preview"`  // last message snippet, relative to ChatItem
	Time     string `toml:"time"`     // last message time, relative to ChatItem
	Scroller string `toml:"scroller"` // scrollable list container
}

// Config holds scraper configuration
type Config struct {
	StepRatio   float64   `toml:"stepRatio"`   // Fraction of the viewport advanced per pass
	SettleDelay string    `toml:"settleDelay"` // Wait after each scroll for rows to mount
	MaxSteps    int       `toml:"maxSteps"`    // Upper bound on scroll passes
	Selectors   Selectors `toml:"selectors"`
}

// DefaultSelectors returns the selectors for the WhatsApp Web chat list.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatItem: `[aria-label="Chat list"] > div`,
		Name:     `._ak8q`,
		Preview:  `._ak8j`,
		Time:     `._ak8i`,
		Scroller: `#pane-side`,
	}
}

// DefaultConfig returns the default scraper configuration
func DefaultConfig() Config {
	return Config{
		StepRatio:   0.75,
		SettleDelay: "1500ms",
		MaxSteps:    500,
		Selectors:   DefaultSelectors(),
	}
}

// ResolveStepRatio returns the scroll step ratio, defaulting to 0.75
func (c *Config) ResolveStepRatio() float64 {
	if c.StepRatio <= 0 || c.StepRatio > 1 {
		return 0.75
	}
	return c.StepRatio
}

// ResolveSettleDelay returns the post-scroll settle delay
func (c *Config) ResolveSettleDelay() time.Duration {
	return resolveDuration(c.SettleDelay, 1500*time.Millisecond)
}

// ResolveMaxSteps returns the scroll pass limit
func (c *Config) ResolveMaxSteps() int {
	if c.MaxSteps <= 0 {
		return 500
	}
	return c.MaxSteps
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
