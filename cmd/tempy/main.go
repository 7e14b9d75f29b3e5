package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/PremBamrung/tempy/internal/app"
	"github.com/PremBamrung/tempy/internal/config"
)

// main runs the CLI entrypoint and exits on unrecoverable errors.
func main() {
	if errRun := run(context.Background(), os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tempy", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port (overrides config file)")
	debug := fs.Bool("debug", false, "enable debug logging")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if *port < 0 || *port > 65535 {
		return fmt.Errorf("invalid port: %d", *port)
	}

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, appCfg, *port)
}
