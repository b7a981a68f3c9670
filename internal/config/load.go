package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Session   fileSession   `toml:"session"`
	Reconcile fileReconcile `toml:"reconcile"`
	Scene     fileScene     `toml:"scene"`
	Admin     fileAdmin     `toml:"admin"`
}

type fileSession struct {
	Source           string   `toml:"source"`
	Addr             string   `toml:"addr"`
	Name             string   `toml:"name"`
	Alignments       []string `toml:"alignments"`
	DialTimeout      string   `toml:"dial_timeout"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	ReadTimeout      string   `toml:"read_timeout"`
	JournalPath      string   `toml:"journal_path"`
	ReplaySession    string   `toml:"replay_session"`
	ReplaySpeed      float64  `toml:"replay_speed"`
	ScanSeed         int64    `toml:"scan_seed"`
	ScanInterval     string   `toml:"scan_interval"`
}

type fileReconcile struct {
	Parent        string  `toml:"parent"`
	Workers       int     `toml:"workers"`
	LaneDepth     int     `toml:"lane_depth"`
	TeardownOnEnd bool    `toml:"teardown_on_end"`
	MaxVertices   int     `toml:"max_vertices"`
	MinArea       float64 `toml:"min_area"`
}

type fileScene struct {
	SnapshotPath     string  `toml:"snapshot_path"`
	SnapshotInterval string  `toml:"snapshot_interval"`
	SnapshotSize     int     `toml:"snapshot_size"`
	SnapshotScale    float64 `toml:"snapshot_scale"`
}

type fileAdmin struct {
	ListenAddr string `toml:"listen_addr"`
	Token      string `toml:"token"`
}

type fileSim struct {
	ListenAddr       string `toml:"listen_addr"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	Seed             int64  `toml:"seed"`
	Interval         string `toml:"interval"`
	Refinements      int    `toml:"refinements"`
	Tables           int    `toml:"tables"`
	Clutter          bool   `toml:"clutter"`
}

// Load reads a surfacectl TOML file. Keys absent from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load surfacectl config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
	}

	s := &cfg.Session
	if meta.IsDefined("session", "source") {
		s.Source = strings.ToLower(strings.TrimSpace(raw.Session.Source))
	}
	if meta.IsDefined("session", "addr") {
		s.Addr = strings.TrimSpace(raw.Session.Addr)
	}
	if meta.IsDefined("session", "name") {
		s.Name = strings.TrimSpace(raw.Session.Name)
	}
	if meta.IsDefined("session", "alignments") {
		s.Alignments = normalizeList(raw.Session.Alignments)
	}
	if err := overlayDuration(meta, &s.DialTimeout, raw.Session.DialTimeout, "session", "dial_timeout"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(meta, &s.HandshakeTimeout, raw.Session.HandshakeTimeout, "session", "handshake_timeout"); err != nil {
		return Config{}, err
	}
	if err := overlayDuration(meta, &s.ReadTimeout, raw.Session.ReadTimeout, "session", "read_timeout"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("session", "journal_path") {
		s.JournalPath = strings.TrimSpace(raw.Session.JournalPath)
	}
	if meta.IsDefined("session", "replay_session") {
		s.ReplaySession = strings.TrimSpace(raw.Session.ReplaySession)
	}
	if meta.IsDefined("session", "replay_speed") {
		s.ReplaySpeed = raw.Session.ReplaySpeed
	}
	if meta.IsDefined("session", "scan_seed") {
		s.ScanSeed = raw.Session.ScanSeed
	}
	if err := overlayDuration(meta, &s.ScanInterval, raw.Session.ScanInterval, "session", "scan_interval"); err != nil {
		return Config{}, err
	}

	r := &cfg.Reconcile
	if meta.IsDefined("reconcile", "parent") {
		r.Parent = strings.TrimSpace(raw.Reconcile.Parent)
	}
	if meta.IsDefined("reconcile", "workers") {
		r.Workers = raw.Reconcile.Workers
	}
	if meta.IsDefined("reconcile", "lane_depth") {
		r.LaneDepth = raw.Reconcile.LaneDepth
	}
	if meta.IsDefined("reconcile", "teardown_on_end") {
		r.TeardownOnEnd = raw.Reconcile.TeardownOnEnd
	}
	if meta.IsDefined("reconcile", "max_vertices") {
		r.MaxVertices = raw.Reconcile.MaxVertices
	}
	if meta.IsDefined("reconcile", "min_area") {
		r.MinArea = raw.Reconcile.MinArea
	}

	sc := &cfg.Scene
	if meta.IsDefined("scene", "snapshot_path") {
		sc.SnapshotPath = strings.TrimSpace(raw.Scene.SnapshotPath)
	}
	if err := overlayDuration(meta, &sc.SnapshotInterval, raw.Scene.SnapshotInterval, "scene", "snapshot_interval"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("scene", "snapshot_size") {
		sc.SnapshotSize = raw.Scene.SnapshotSize
	}
	if meta.IsDefined("scene", "snapshot_scale") {
		sc.SnapshotScale = raw.Scene.SnapshotScale
	}

	if meta.IsDefined("admin", "listen_addr") {
		cfg.Admin.ListenAddr = strings.TrimSpace(raw.Admin.ListenAddr)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadSim reads a surfacesim TOML file over DefaultSim.
func LoadSim(path string) (SimConfig, error) {
	cfg := DefaultSim()

	var raw fileSim
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return SimConfig{}, fmt.Errorf("load surfacesim config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return SimConfig{}, fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if err := overlayDuration(meta, &cfg.HandshakeTimeout, raw.HandshakeTimeout, "handshake_timeout"); err != nil {
		return SimConfig{}, err
	}
	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}
	if err := overlayDuration(meta, &cfg.Interval, raw.Interval, "interval"); err != nil {
		return SimConfig{}, err
	}
	if meta.IsDefined("refinements") {
		cfg.Refinements = raw.Refinements
	}
	if meta.IsDefined("tables") {
		cfg.Tables = raw.Tables
	}
	if meta.IsDefined("clutter") {
		cfg.Clutter = raw.Clutter
	}

	if err := cfg.Validate(); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func overlayDuration(meta toml.MetaData, dst *time.Duration, raw string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
