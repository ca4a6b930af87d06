package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"dashboard/api/internal/bg"
	"dashboard/api/internal/config"
	"dashboard/api/internal/dashboard"
	"dashboard/api/internal/logging"
	"dashboard/api/internal/remote"
	"dashboard/api/internal/session"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.LoadClient()
	logger := logging.NewConsole(cfg.LogLevel, os.Stderr)

	c := &cli{
		out: os.Stdout,
		open: func() (*dashboard.Engine, error) {
			return openEngine(cfg, logger)
		},
	}
	registry := NewCommandRegistry(os.Stdout)
	registerCommands(registry, c)

	if err := registry.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openEngine wires the session identity, the HTTP remote and the catalog into
// a loaded engine. Saves run synchronously so a one-shot command has flushed
// them by the time it exits.
func openEngine(cfg config.ClientConfig, logger zerolog.Logger) (*dashboard.Engine, error) {
	catalog, err := dashboard.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	sessionFile := cfg.SessionFile
	if strings.TrimSpace(sessionFile) == "" {
		sessionFile = session.DefaultPath()
	}
	resolver := session.NewResolver(sessionFile, logger)
	sessionID := resolver.Resolve()

	engine := dashboard.NewEngine(dashboard.Options{
		SessionID:   sessionID,
		Remote:      remote.New(cfg.APIURL, logger, remote.WithTimeout(cfg.SaveTimeout)),
		Catalog:     catalog,
		Runner:      bg.Sync{},
		Logger:      logger,
		SaveTimeout: cfg.SaveTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SaveTimeout)
	defer cancel()
	engine.Load(ctx)
	return engine, nil
}

type cli struct {
	out    io.Writer
	open   func() (*dashboard.Engine, error)
	engine *dashboard.Engine
}

func (c *cli) load() (*dashboard.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	engine, err := c.open()
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return engine, nil
}
