// Command chatsweep reads, classifies and bulk-deletes chats in a running
// WhatsApp Web session through Chrome's remote debugging port.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/chatsweep/internal/config"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	ConfigPath string `name:"config" help:"Path to chatsweep.toml." type:"path" short:"c"`
	Debug      bool   `help:"Enable debug logging." short:"d"`
	LogCaller  bool   `help:"Report caller file:line in logs." name:"log-caller"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve      ServeCmd      `cmd:"" help:"Run the HTTP API and dashboard." default:"1"`
	Scan       ScanCmd       `cmd:"" help:"Read and classify the whole chat list."`
	Delete     DeleteCmd     `cmd:"" help:"Delete chats by name."`
	Summarize  SummarizeCmd  `cmd:"" help:"Summarise one conversation."`
	CheckLogin CheckLoginCmd `cmd:"" name:"check-login" help:"Report whether WhatsApp Web is logged in."`
	Config     ConfigCmd     `cmd:"" help:"Manage the config file."`
	Version    VersionCmd    `cmd:"" help:"Print the version."`
}

// load reads the config and initialises logging from it and the global
// flags.
func (g *Globals) load() (*config.LoadResult, error) {
	Init(&Options{Level: LevelInfo, ShowCaller: g.LogCaller})

	res, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	SetLevel(res.Config.LogLevel(g.Debug))
	SetReportCaller(g.LogCaller || res.Config.Log.Caller)
	if res.SourcePath == "" {
		L_debug("config: using built-in defaults")
	}
	return res, nil
}

// loadConfig is load for commands that do not care where the file was.
func (g *Globals) loadConfig() (*config.Config, error) {
	res, err := g.load()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chatsweep"),
		kong.Description("Sweep spam and promotional chats out of WhatsApp Web."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "chatsweep: %v\n", err)
		os.Exit(1)
	}
}
