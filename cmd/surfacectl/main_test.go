package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/surfacectl/internal/config"
	"github.com/danmuck/surfacectl/internal/journal"
	"github.com/danmuck/surfacectl/internal/surface"
)

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Session.Source != config.SourceFeed {
		t.Fatalf("unexpected default source: %q", cfg.Session.Source)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteTemplate(path, config.KindEngine, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := loadConfig(path); err != nil {
		t.Fatalf("load template: %v", err)
	}
	if err := os.WriteFile(path, []byte("[session]\nsource = \"camera\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected invalid source to fail")
	}
}

func TestPrintSessions(t *testing.T) {
	if err := printSessions(""); err == nil {
		t.Fatalf("expected error without journal path")
	}

	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Append(context.Background(), "s1", 1, surface.Removed(surface.NewIdentity()), time.Now()); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = store.Close()

	if err := printSessions(path); err != nil {
		t.Fatalf("print sessions: %v", err)
	}
}
