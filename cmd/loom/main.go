// Command loom executes node based agent plans from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// Ensure API Key is loaded
	_ "github.com/joho/godotenv/autoload"

	"github.com/alecthomas/kong"
	"github.com/casualjim/loom/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("loom"),
		kong.Description("Execute node based agent plans over named message threads."),
		kong.UsageOnError(),
		kongVars(),
	)

	cfg, err := config.Load(cli.Config)
	kctx.FatalIfErrorf(err)
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	setupLogging(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(&app{cfg: cfg, out: os.Stdout, status: os.Stderr})
	kctx.FatalIfErrorf(err)
}
