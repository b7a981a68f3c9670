package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/danmuck/surfacectl/internal/surface"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Session sources.
const (
	SourceFeed   = "feed"
	SourceStream = "stream"
	SourceReplay = "replay"
)

// Config is the surfacectl engine configuration.
type Config struct {
	Session   SessionConfig
	Reconcile ReconcileConfig
	Scene     SceneConfig
	Admin     AdminConfig
}

type SessionConfig struct {
	// Source selects the anchor provider: an in-process synthetic scan
	// (feed), a network endpoint (stream) or a journaled session (replay).
	Source           string
	Addr             string
	Name             string
	Alignments       []string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	// JournalPath enables recording (feed, stream) and is required for replay.
	JournalPath   string
	ReplaySession string
	ReplaySpeed   float64
	ScanSeed      int64
	ScanInterval  time.Duration
}

type ReconcileConfig struct {
	Parent        string
	Workers       int
	LaneDepth     int
	TeardownOnEnd bool
	MaxVertices   int
	MinArea       float64
}

type SceneConfig struct {
	// SnapshotPath enables periodic PNG snapshots when set.
	SnapshotPath     string
	SnapshotInterval time.Duration
	SnapshotSize     int
	SnapshotScale    float64
}

type AdminConfig struct {
	// ListenAddr enables the admin HTTP server when set.
	ListenAddr string
	// Token, when set, is required as a bearer token on every route but
	// /healthz.
	Token string
}

func Default() Config {
	return Config{
		Session: SessionConfig{
			Source:           SourceFeed,
			Addr:             "127.0.0.1:7400",
			Name:             "surfacectl",
			Alignments:       []string{"horizontal", "vertical"},
			DialTimeout:      5 * time.Second,
			HandshakeTimeout: 5 * time.Second,
			ScanSeed:         1,
			ScanInterval:     50 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			Parent:      "root",
			Workers:     1,
			LaneDepth:   16,
			MaxVertices: 4096,
			MinArea:     1e-4,
		},
		Scene: SceneConfig{
			SnapshotInterval: 2 * time.Second,
			SnapshotSize:     512,
			SnapshotScale:    48,
		},
		Admin: AdminConfig{
			ListenAddr: "127.0.0.1:7480",
		},
	}
}

func (c Config) Validate() error {
	s := c.Session
	switch s.Source {
	case SourceFeed:
	case SourceStream:
		if err := validateAddr(s.Addr); err != nil {
			return fmt.Errorf("%w: session.addr: %v", ErrInvalidConfig, err)
		}
	case SourceReplay:
		if strings.TrimSpace(s.JournalPath) == "" {
			return fmt.Errorf("%w: session.journal_path required for replay", ErrInvalidConfig)
		}
		if strings.TrimSpace(s.ReplaySession) == "" {
			return fmt.Errorf("%w: session.replay_session required for replay", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: session.source %q (want feed|stream|replay)", ErrInvalidConfig, s.Source)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: session.name missing", ErrInvalidConfig)
	}
	for i, a := range s.Alignments {
		if _, err := surface.ParseAlignment(a); err != nil {
			return fmt.Errorf("%w: session.alignments[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	if s.DialTimeout <= 0 || s.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: session timeouts must be positive", ErrInvalidConfig)
	}
	if s.ReadTimeout < 0 || s.ScanInterval < 0 || s.ReplaySpeed < 0 {
		return fmt.Errorf("%w: negative session duration or replay_speed", ErrInvalidConfig)
	}

	r := c.Reconcile
	if strings.TrimSpace(r.Parent) == "" {
		return fmt.Errorf("%w: reconcile.parent missing", ErrInvalidConfig)
	}
	if r.Workers < 1 || r.Workers > 64 {
		return fmt.Errorf("%w: reconcile.workers %d (want 1..64)", ErrInvalidConfig, r.Workers)
	}
	if r.LaneDepth < 1 {
		return fmt.Errorf("%w: reconcile.lane_depth must be positive", ErrInvalidConfig)
	}
	if r.MaxVertices < 3 {
		return fmt.Errorf("%w: reconcile.max_vertices must be at least 3", ErrInvalidConfig)
	}
	if r.MinArea < 0 {
		return fmt.Errorf("%w: reconcile.min_area must not be negative", ErrInvalidConfig)
	}

	sc := c.Scene
	if sc.SnapshotPath != "" {
		if sc.SnapshotInterval <= 0 {
			return fmt.Errorf("%w: scene.snapshot_interval must be positive", ErrInvalidConfig)
		}
		if sc.SnapshotSize < 16 || sc.SnapshotSize > 8192 {
			return fmt.Errorf("%w: scene.snapshot_size %d (want 16..8192)", ErrInvalidConfig, sc.SnapshotSize)
		}
		if sc.SnapshotScale <= 0 {
			return fmt.Errorf("%w: scene.snapshot_scale must be positive", ErrInvalidConfig)
		}
	}

	if c.Admin.ListenAddr != "" {
		if err := validateAddr(c.Admin.ListenAddr); err != nil {
			return fmt.Errorf("%w: admin.listen_addr: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// SimConfig configures the surfacesim endpoint.
type SimConfig struct {
	ListenAddr       string
	HandshakeTimeout time.Duration
	Seed             int64
	Interval         time.Duration
	Refinements      int
	Tables           int
	Clutter          bool
}

func DefaultSim() SimConfig {
	return SimConfig{
		ListenAddr:       "127.0.0.1:7400",
		HandshakeTimeout: 5 * time.Second,
		Seed:             1,
		Interval:         50 * time.Millisecond,
		Refinements:      3,
		Tables:           1,
		Clutter:          true,
	}
}

func (c SimConfig) Validate() error {
	if err := validateAddr(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr: %v", ErrInvalidConfig, err)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake_timeout must be positive", ErrInvalidConfig)
	}
	if c.Interval < 0 || c.Refinements < 0 || c.Tables < 0 {
		return fmt.Errorf("%w: negative interval or count", ErrInvalidConfig)
	}
	return nil
}

func validateAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("missing")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	return nil
}
