package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/surfacectl/internal/config"
	"github.com/danmuck/surfacectl/internal/logging"
	"github.com/danmuck/surfacectl/internal/protocol/session"
	"github.com/danmuck/surfacectl/internal/provider"
)

func main() {
	configPath := flag.String("config", "", "path to a surfacesim TOML config (defaults apply when empty)")
	listen := flag.String("listen", "", "override listen_addr")
	seed := flag.Int64("seed", 0, "override the scan seed")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.DefaultSim()
	if strings.TrimSpace(*configPath) != "" {
		loaded, err := config.LoadSim(*configPath)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.ListenAddr = strings.TrimSpace(*listen)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	scan := provider.RoomScan(provider.RoomScanOptions{
		Seed:        cfg.Seed,
		Interval:    cfg.Interval,
		Refinements: cfg.Refinements,
		Tables:      cfg.Tables,
		Clutter:     cfg.Clutter,
	})
	log.Info().
		Str("component", "surfacesim").
		Int64("seed", cfg.Seed).
		Int("steps", scan.Len()).
		Msg("scan ready")

	ep := provider.NewEndpoint(scan, session.Config{HandshakeTimeout: cfg.HandshakeTimeout})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := ep.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		fail(err)
	}
	log.Info().Str("component", "surfacesim").Uint64("sessions", ep.Sessions()).Msg("stopped")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "surfacesim: %v\n", err)
	os.Exit(1)
}
