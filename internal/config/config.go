// Package config loads the chatsweep TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	"github.com/roelfdiedericks/chatsweep/internal/cron"
	"github.com/roelfdiedericks/chatsweep/internal/llm"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/paths"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

// Environment variables that fill an empty llm.apiKey.
const (
	EnvAPIKey        = "CHATSWEEP_LLM_API_KEY"
	EnvMistralAPIKey = "MISTRAL_API_KEY"
)

// ErrConfigExists is returned by WriteStarter when the target exists and
// force is not set.
var ErrConfigExists = errors.New("config file already exists")

// Config is the merged chatsweep configuration
type Config struct {
	Browser  browser.Config  `toml:"browser"`
	Scraper  scraper.Config  `toml:"scraper"`
	Classify classify.Config `toml:"classify"`
	Actions  actions.Config  `toml:"actions"`
	Sweeper  sweeper.Config  `toml:"sweeper"`
	Schedule cron.Config     `toml:"schedule"`
	LLM      llm.Config      `toml:"llm"`
	HTTP     HTTPConfig      `toml:"http"`
	Log      LogConfig       `toml:"log"`
}

// HTTPConfig is the [http] section.
type HTTPConfig struct {
	Listen  string `toml:"listen"`  // Address to listen on (e.g., "127.0.0.1:3000")
	DevMode bool   `toml:"devMode"` // Reload the dashboard template from disk
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Caller bool   `toml:"caller"` // Report caller file:line
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Browser:  browser.DefaultConfig(),
		Scraper:  scraper.DefaultConfig(),
		Classify: classify.DefaultConfig(),
		Actions:  actions.DefaultConfig(),
		Sweeper:  sweeper.DefaultConfig(),
		LLM:      llm.DefaultConfig(),
		HTTP:     HTTPConfig{Listen: "127.0.0.1:3000"},
		Log:      LogConfig{Level: "info"},
	}
}

// LoadResult carries the loaded config and where it came from.
type LoadResult struct {
	Config     *Config
	SourcePath string // "" when only defaults were used
}

// Load reads the config file found by paths.ConfigPath(explicit) and merges
// it over Default. A missing file is not an error.
func Load(explicit string) (*LoadResult, error) {
	path, err := paths.ConfigPath(explicit)
	if err != nil {
		return nil, err
	}
	return loadPath(path)
}

// loadPath merges the file at path (if any) over Default.
func loadPath(path string) (*LoadResult, error) {
	cfg := Default()
	if path == "" {
		L_debug("config: no config file found, using defaults")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := mergeTOML(cfg, data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		L_info("config: loaded", "path", path)
	}

	applyEnv(cfg)
	return &LoadResult{Config: cfg, SourcePath: path}, nil
}

// mergeTOML decodes data and overrides dst with every non-zero value.
func mergeTOML(dst *Config, data []byte) error {
	var file Config
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	for _, key := range md.Undecoded() {
		L_warn("config: unknown key ignored", "key", key.String())
	}
	if err := mergo.Merge(dst, file, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if cfg.LLM.APIKey != "" {
		return
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		cfg.LLM.APIKey = key
		L_debug("config: llm api key from environment", "var", EnvAPIKey)
		return
	}
	if cfg.LLM.ResolveDriver() == llm.DriverMistral {
		if key := strings.TrimSpace(os.Getenv(EnvMistralAPIKey)); key != "" {
			cfg.LLM.APIKey = key
			L_debug("config: llm api key from environment", "var", EnvMistralAPIKey)
		}
	}
}

// LogLevel returns the configured level, with debug forcing at least debug.
func (c *Config) LogLevel(debug bool) int {
	level := ParseLevel(c.Log.Level)
	if debug && level < LevelDebug {
		return LevelDebug
	}
	return level
}

// Starter renders the default configuration as TOML.
func Starter() ([]byte, error) {
	return Encode(Default())
}

// Encode renders cfg as TOML with a header comment.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# chatsweep configuration\n# Values left out fall back to the built-in defaults.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteStarter writes the default configuration to path. An existing file
// is kept unless force is set, in which case it is rotated to .bak first.
func WriteStarter(path string, force bool) error {
	return Write(path, Default(), force)
}

// Write saves cfg to path with the same overwrite rules as WriteStarter.
func Write(path string, cfg *Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
	}
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	return BackupAndWrite(path, data, DefaultBackupCount)
}
