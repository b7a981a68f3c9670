package config

import (
	"fmt"
	"os"
	"strings"
)

// Config kinds understood by Template.
const (
	KindEngine    = "surfacectl"
	KindSimulator = "surfacesim"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindEngine:
		return engineTemplate, nil
	case KindSimulator:
		return simTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const engineTemplate = `[session]
# feed | stream | replay
source = "feed"
addr = "127.0.0.1:7400"
name = "surfacectl"
alignments = ["horizontal", "vertical"]
dial_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "0s"
# recording is enabled when set; required for replay
journal_path = ""
replay_session = ""
replay_speed = 0.0
scan_seed = 1
scan_interval = "50ms"

[reconcile]
parent = "root"
workers = 1
lane_depth = 16
teardown_on_end = false
max_vertices = 4096
min_area = 0.0001

[scene]
# snapshots are written when set
snapshot_path = ""
snapshot_interval = "2s"
snapshot_size = 512
snapshot_scale = 48.0

[admin]
listen_addr = "127.0.0.1:7480"
# bearer token required on every route but /healthz when set
token = ""
`

const simTemplate = `listen_addr = "127.0.0.1:7400"
handshake_timeout = "5s"
seed = 1
interval = "50ms"
refinements = 3
tables = 1
clutter = true
`
