package actions

import "time"

// Selectors locate the controls of the delete flow.
type Selectors struct {
	ChatTitle     string `toml:"chatTitle"`     // chat row title, matched by its text
	MenuTrigger   string `toml:"menuTrigger"`   // "more actions" button; the last match belongs to the open chat
	DeleteItem    string `toml:"deleteItem"`    // "Delete chat" entry of the menu
	ConfirmDialog string `toml:"confirmDialog"` // confirmation dialog
	ConfirmButton string `toml:"confirmButton"` // buttons searched for ConfirmText
	ConfirmText   string `toml:"confirmText"`   // label of the destructive button
}

// Config holds batch delete configuration
type Config struct {
	FindTimeout   string    `toml:"findTimeout"`   // Wait for the chat row after reload
	MenuTimeout   string    `toml:"menuTimeout"`   // Wait for the menu trigger
	DialogTimeout string    `toml:"dialogTimeout"` // Wait for the menu item and confirm dialog
	Selectors     Selectors `toml:"selectors"`
}

// DefaultSelectors returns the selectors for WhatsApp Web.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatTitle:     `span[title]`,
		MenuTrigger:   `.x1n2onr6 .x17adc0v`,
		DeleteItem:    `div[aria-label="Delete chat"]`,
		ConfirmDialog: `div[aria-label="Delete this chat?"]`,
		ConfirmButton: `button`,
		ConfirmText:   "Delete chat",
	}
}

// DefaultConfig returns the default batch delete configuration
func DefaultConfig() Config {
	return Config{
		FindTimeout:   "50s",
		MenuTimeout:   "50s",
		DialogTimeout: "30s",
		Selectors:     DefaultSelectors(),
	}
}

// ResolveFindTimeout returns the chat lookup timeout
func (c *Config) ResolveFindTimeout() time.Duration {
	return resolveDuration(c.FindTimeout, 50*time.Second)
}

// ResolveMenuTimeout returns the menu trigger timeout
func (c *Config) ResolveMenuTimeout() time.Duration {
	return resolveDuration(c.MenuTimeout, 50*time.Second)
}

// ResolveDialogTimeout returns the menu item and dialog timeout
func (c *Config) ResolveDialogTimeout() time.Duration {
	return resolveDuration(c.DialogTimeout, 30*time.Second)
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
