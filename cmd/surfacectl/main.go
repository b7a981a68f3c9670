package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/surfacectl/internal/config"
	"github.com/danmuck/surfacectl/internal/journal"
	"github.com/danmuck/surfacectl/internal/logging"
	"github.com/danmuck/surfacectl/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to a surfacectl TOML config (defaults apply when empty)")
	source := flag.String("source", "", "override session.source: feed|stream|replay")
	addr := flag.String("addr", "", "override session.addr for the stream source")
	replay := flag.String("replay", "", "replay the named journal session (implies -source replay)")
	listSessions := flag.Bool("sessions", false, "list sessions recorded in session.journal_path and exit")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fail(err)
	}
	if *source != "" {
		cfg.Session.Source = strings.TrimSpace(*source)
	}
	if *addr != "" {
		cfg.Session.Addr = strings.TrimSpace(*addr)
	}
	if *replay != "" {
		cfg.Session.Source = config.SourceReplay
		cfg.Session.ReplaySession = strings.TrimSpace(*replay)
	}

	if *listSessions {
		if err := printSessions(cfg.Session.JournalPath); err != nil {
			fail(err)
		}
		return
	}

	svc, err := service.New(cfg)
	if err != nil {
		fail(err)
	}
	if err := svc.Run(); err != nil {
		fail(err)
	}
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printSessions(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("session.journal_path is not set")
	}
	store, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Printf("%s\t%d events\t%s .. %s\n", s.Name, s.Events, s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "surfacectl: %v\n", err)
	os.Exit(1)
}
