package main

import (
	"fmt"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/bus"
	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	"github.com/roelfdiedericks/chatsweep/internal/config"
	"github.com/roelfdiedericks/chatsweep/internal/llm"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/metrics"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/session"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

// app holds the wired components for one process.
type app struct {
	bus     *bus.Bus
	manager *browser.Manager
	sweeper *sweeper.Service
	metrics *metrics.Manager
}

// newApp wires the browser session, the model and the flows from cfg.
func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Browser.Validate(); err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	L_info("llm: provider ready", "driver", provider.Name(), "model", provider.Model())

	discoverer := cdp.NewDiscoverer(cfg.Browser.DiscoveryURL, cfg.Browser.ResolveDiscoveryTimeout())
	manager := browser.NewManager(cfg.Browser, session.NewStore(), cdp.RodDialer{Stealth: cfg.Browser.Stealth}, discoverer)

	b := bus.New()
	m := metrics.New()
	m.Attach(b)

	svc := sweeper.New(cfg.Sweeper, sweeper.Deps{
		Sessions:   manager,
		Scraper:    scraper.New(cfg.Scraper),
		Classifier: classify.New(provider, cfg.Classify),
		Deleter:    actions.NewDeleteExecutor(cfg.Actions),
		Generator:  provider,
		Bus:        b,
	})

	return &app{bus: b, manager: manager, sweeper: svc, metrics: m}, nil
}

// close drops the browser connection. The browser itself keeps running.
func (a *app) close() {
	a.manager.Teardown()
}
