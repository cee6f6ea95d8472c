// Package setup runs the interactive first-time configuration.
package setup

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/roelfdiedericks/chatsweep/internal/config"
	"github.com/roelfdiedericks/chatsweep/internal/cron"
	"github.com/roelfdiedericks/chatsweep/internal/llm"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// ErrAborted is returned when the user leaves the wizard with Escape or Ctrl+C.
var ErrAborted = errors.New("setup aborted")

// defaultModels is what an empty model answer falls back to per driver.
var defaultModels = map[string]string{
	llm.DriverMistral:   "open-mistral-7b",
	llm.DriverOpenAI:    "gpt-4o-mini",
	llm.DriverAnthropic: "claude-3-5-haiku-latest",
	llm.DriverOllama:    "llama3.1",
}

// Answers are the wizard's questions. Empty strings keep the current value.
type Answers struct {
	Driver   string
	Model    string
	APIKey   string
	Endpoint string // base URL, or server URL for ollama
	Listen   string
	Schedule string
	Stealth  bool
}

// AnswersFrom pre-fills the wizard from cfg.
func AnswersFrom(cfg *config.Config) Answers {
	a := Answers{
		Driver:   cfg.LLM.ResolveDriver(),
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Endpoint: cfg.LLM.BaseURL,
		Listen:   cfg.HTTP.Listen,
		Schedule: cfg.Schedule.Scan,
		Stealth:  cfg.Browser.Stealth,
	}
	if a.Driver == llm.DriverOllama {
		a.Endpoint = cfg.LLM.URL
	}
	return a
}

// Apply writes a into cfg.
func (a Answers) Apply(cfg *config.Config) {
	driver := strings.ToLower(strings.TrimSpace(a.Driver))
	if driver != "" && driver != cfg.LLM.ResolveDriver() {
		cfg.LLM.Driver = driver
		cfg.LLM.Model = ""
	}

	model := strings.TrimSpace(a.Model)
	switch {
	case model != "":
		cfg.LLM.Model = model
	case cfg.LLM.Model == "":
		cfg.LLM.Model = defaultModels[cfg.LLM.ResolveDriver()]
	}

	cfg.LLM.APIKey = strings.TrimSpace(a.APIKey)

	// The Mistral endpoint is only a default for the mistral driver.
	mistral := cfg.LLM.ResolveDriver() == llm.DriverMistral
	ep := strings.TrimSpace(a.Endpoint)
	if !mistral && ep == llm.DefaultMistralBaseURL {
		ep = ""
	}
	if ep != "" {
		if cfg.LLM.ResolveDriver() == llm.DriverOllama {
			cfg.LLM.URL = ep
		} else {
			cfg.LLM.BaseURL = ep
		}
	}
	if !mistral && cfg.LLM.BaseURL == llm.DefaultMistralBaseURL {
		cfg.LLM.BaseURL = ""
	}

	if l := strings.TrimSpace(a.Listen); l != "" {
		cfg.HTTP.Listen = l
	}
	cfg.Schedule.Scan = strings.TrimSpace(a.Schedule)
	cfg.Browser.Stealth = a.Stealth
}

func validateListen(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("expected host:port, e.g. 127.0.0.1:3000")
	}
	return nil
}

func validateEndpoint(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("expected an http(s) URL")
	}
	return nil
}

func validateSchedule(s string) error {
	return cron.Config{Scan: s}.Validate()
}

func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithShowHelp(true).WithTheme(huh.ThemeCharm())
}

func isAbort(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}

// Run asks the questions in the terminal and applies the answers to cfg.
func Run(cfg *config.Config) error {
	a := AnswersFrom(cfg)

	driverOptions := []huh.Option[string]{
		huh.NewOption("Mistral (hosted)", llm.DriverMistral),
		huh.NewOption("OpenAI or compatible", llm.DriverOpenAI),
		huh.NewOption("Anthropic", llm.DriverAnthropic),
		huh.NewOption("Ollama (local)", llm.DriverOllama),
	}

	form := newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which model provider classifies your chats?").
				Options(driverOptions...).
				Value(&a.Driver),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				DescriptionFunc(func() string {
					return "Leave empty for " + defaultModels[a.Driver]
				}, &a.Driver).
				Value(&a.Model),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to read " + config.EnvAPIKey + " at startup").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
			huh.NewInput().
				Title("Endpoint").
				Description("Base URL, or the Ollama server. Empty keeps the default.").
				Validate(validateEndpoint).
				Value(&a.Endpoint),
		).Title("Model"),
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard address").
				Validate(validateListen).
				Value(&a.Listen),
			huh.NewInput().
				Title("Scan schedule").
				Description(`Cron expression or "@every 6h". Empty disables scheduled scans.`).
				Validate(validateSchedule).
				Value(&a.Schedule),
			huh.NewConfirm().
				Title("Open new tabs in stealth mode?").
				Value(&a.Stealth),
		).Title("Server"),
	)

	if err := form.Run(); err != nil {
		if isAbort(err) {
			return ErrAborted
		}
		return err
	}

	a.Apply(cfg)
	L_debug("setup: answers applied", "driver", cfg.LLM.ResolveDriver(), "model", cfg.LLM.Model)
	return nil
}
