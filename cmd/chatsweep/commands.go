package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"

	"github.com/roelfdiedericks/chatsweep/internal/bus"
	"github.com/roelfdiedericks/chatsweep/internal/config"
	"github.com/roelfdiedericks/chatsweep/internal/cron"
	chttp "github.com/roelfdiedericks/chatsweep/internal/http"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/paths"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/setup"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Listen string `help:"Override [http] listen address."`
}

func (c *ServeCmd) Run(g *Globals) error {
	res, err := g.load()
	if err != nil {
		return err
	}
	cfg := res.Config
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	listen := cfg.HTTP.Listen
	if c.Listen != "" {
		listen = c.Listen
	}
	srv, err := chttp.NewServer(&chttp.ServerConfig{Listen: listen, DevMode: cfg.HTTP.DevMode}, a.sweeper, a.bus)
	if err != nil {
		return err
	}
	srv.SetMetrics(a.metrics)

	ctx, stop := signalContext()
	defer stop()

	sched := cron.New("scan", func(ctx context.Context) error {
		_, err := a.sweeper.Scan(ctx)
		return err
	})
	if err := sched.SetSchedule(cfg.Schedule); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()
	srv.SetScheduler(sched)

	if res.SourcePath != "" {
		w, err := config.NewWatcher(res.SourcePath, func(next *config.Config) {
			SetLevel(next.LogLevel(g.Debug))
			if err := sched.SetSchedule(next.Schedule); err != nil {
				L_warn("config: schedule not changed", "error", err)
			}
		})
		if err != nil {
			L_warn("config: hot reload unavailable", "error", err)
		} else if err := w.Start(ctx); err != nil {
			L_warn("config: hot reload unavailable", "error", err)
			w.Stop()
		} else {
			defer w.Stop()
		}
	}

	if err := srv.Start(); err != nil {
		return err
	}
	L_info("chatsweep: ready", "addr", srv.Addr(), "version", version)

	<-ctx.Done()

	L_info("chatsweep: shutting down")
	return srv.Stop()
}

// ScanCmd reads and classifies the chat list.
type ScanCmd struct {
	JSON bool   `help:"Print the full report as JSON." name:"json"`
	JQ   string `help:"Filter the report with a jq expression, e.g. '.classifications[] | select(.category==\"promotional\") | .name'." name:"jq" placeholder:"EXPR"`
	Raw  bool   `help:"With --jq, print strings without quotes." short:"r"`
}

func (c *ScanCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.bus.Subscribe(bus.TopicScanProgress, func(e bus.Event) {
		if p, ok := e.Data.(scraper.Progress); ok {
			L_info("scan: pass", "pass", p.Pass, "visible", p.Visible, "total", p.Total)
		}
	})

	ctx, stop := signalContext()
	defer stop()

	report, err := a.sweeper.Scan(ctx)
	if err != nil {
		return err
	}
	if c.JQ != "" {
		out, err := runQuery(c.JQ, report, c.Raw)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Println(out)
		}
		return nil
	}
	if c.JSON {
		return printJSON(report)
	}

	width := previewWidth()
	rows := make([][]string, 0, len(report.Classifications))
	for _, r := range report.Classifications {
		rows = append(rows, []string{r.Identity, r.Category, truncate(r.Preview, width), r.Timestamp})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "CATEGORY", "LAST MESSAGE", "TIME").
		Rows(rows...)
	fmt.Println(t.Render())

	counts := make([]string, 0, len(report.Counts))
	for cat, n := range report.Counts {
		counts = append(counts, fmt.Sprintf("%s=%d", cat, n))
	}
	fmt.Printf("%d chats read, %d classified (%s)\n", len(report.Entries), len(report.Classifications), strings.Join(counts, ", "))
	return nil
}

// DeleteCmd deletes chats by name.
type DeleteCmd struct {
	Names []string `arg:"" name:"name" help:"Chat names exactly as shown in the list."`
	JSON  bool     `help:"Print the report as JSON." name:"json"`
}

func (c *DeleteCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	report, err := a.sweeper.Delete(ctx, c.Names)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(report)
	}
	for _, o := range report.Results {
		fmt.Printf("%-7s %s: %s\n", o.Status, o.Identity, o.Message)
	}
	fmt.Printf("%s: %d deleted, %d failed\n", report.Message, report.Succeeded, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", report.Failed, len(report.Results))
	}
	return nil
}

// SummarizeCmd summarises one conversation.
type SummarizeCmd struct {
	Name string `arg:"" help:"Contact name exactly as shown in the list."`
	JSON bool   `help:"Print the result as JSON." name:"json"`
}

func (c *SummarizeCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	summary, err := a.sweeper.Summarize(ctx, c.Name)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(summary)
	}
	fmt.Printf("%s (%d messages)\n\n%s\n", summary.Contact, summary.MessageCount, summary.Summary)
	return nil
}

// CheckLoginCmd reports the login state and shows the pairing code when
// logged out.
type CheckLoginCmd struct {
	NoQR bool `help:"Do not print the pairing QR code." name:"no-qr"`
}

func (c *CheckLoginCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	status, err := a.sweeper.CheckLogin(ctx)
	if err != nil {
		return err
	}
	if !status.LoggedIn {
		if status.QRCode == "" || c.NoQR {
			fmt.Println("not logged in: scan the QR code in the browser first")
			return sweeper.ErrAppNotReady
		}
		fmt.Println("not logged in. On your phone open WhatsApp > Settings > Linked Devices > Link a Device")
		fmt.Println()
		qrterminal.GenerateHalfBlock(status.QRCode, qrterminal.L, os.Stdout)
		fmt.Println()
		fmt.Println("then run check-login again")
		return sweeper.ErrAppNotReady
	}
	fmt.Println("logged in")
	return nil
}

// ConfigCmd groups config file commands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a starter config file."`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration."`
}

// ConfigInitCmd writes the starter config.
type ConfigInitCmd struct {
	Path        string `arg:"" optional:"" type:"path" help:"Target file (default ~/.chatsweep/chatsweep.toml)."`
	Force       bool   `help:"Overwrite an existing file (the old one is kept as .bak)."`
	Interactive bool   `help:"Ask for the model provider and server settings." short:"i"`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	Init(&Options{Level: LevelInfo, ShowCaller: g.LogCaller})

	path := c.Path
	if path == "" {
		path = g.ConfigPath
	}
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg := config.Default()
	if c.Interactive {
		if err := setup.Run(cfg); err != nil {
			return err
		}
	}

	if err := config.Write(path, cfg, c.Force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return err
		}
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// ConfigShowCmd prints the merged configuration with secrets masked.
type ConfigShowCmd struct {
	Format string `help:"Output format." enum:"toml,json,yaml" default:"toml" short:"f"`
}

func (c *ConfigShowCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	out, err := config.Render(cfg.Redacted(), c.Format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("chatsweep %s\n", version)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// previewWidth sizes the message column to the terminal. Piped output gets
// a fixed width.
func previewWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 48
	}
	cols, _, err := term.GetSize(fd)
	if err != nil {
		return 48
	}
	return min(max(cols-60, 20), 100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
