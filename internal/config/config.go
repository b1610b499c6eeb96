// Package config carries runtime configuration for the replay driver and
// the collection server. Values come from defaults, an optional .env file,
// and environment variables, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SessionSpec describes one replay pass: how many slices a position delta
// is split into and how many seconds apart the slices are scheduled.
type SessionSpec struct {
	Slices      uint32
	IntervalSec uint32
}

func (s SessionSpec) String() string {
	return fmt.Sprintf("%d:%d", s.Slices, s.IntervalSec)
}

type Replay struct {
	// DataDir holds the order_log, alpha and prev_trade_info files.
	DataDir string
	// OutputDir receives twap_order/ and pnl_and_pos/ result files.
	OutputDir string
	// Dataset names the trading day being replayed, e.g. "20160202".
	Dataset string
	// Sessions to run, each producing one pair of output files.
	Sessions []SessionSpec
	// Shards > 1 runs the replay against the sharded market.
	Shards int
	// CollectorAddr, when set, ships each session's results over TCP.
	CollectorAddr string
}

type Collector struct {
	ListenAddr string
	OutputDir  string
}

type Config struct {
	Replay    Replay
	Collector Collector
}

func Default() Config {
	return Config{
		Replay: Replay{
			DataDir:   "data",
			OutputDir: "output",
			Dataset:   "20160202",
			Sessions: []SessionSpec{
				{Slices: 3, IntervalSec: 1},
				{Slices: 3, IntervalSec: 3},
				{Slices: 3, IntervalSec: 5},
				{Slices: 5, IntervalSec: 2},
				{Slices: 5, IntervalSec: 3},
			},
			Shards: 1,
		},
		Collector: Collector{
			ListenAddr: ":8081",
			OutputDir:  "collected",
		},
	}
}

// Load reads the optional .env file at envPath (or ./.env when empty) and
// applies environment overrides on top of the defaults.
func Load(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	setString(&cfg.Replay.DataDir, "KESTREL_DATA_DIR")
	setString(&cfg.Replay.OutputDir, "KESTREL_OUTPUT_DIR")
	setString(&cfg.Replay.Dataset, "KESTREL_DATASET")
	setString(&cfg.Replay.CollectorAddr, "KESTREL_COLLECTOR_ADDR")
	setInt(&cfg.Replay.Shards, "KESTREL_SHARDS")
	setString(&cfg.Collector.ListenAddr, "KESTREL_COLLECTOR_LISTEN")
	setString(&cfg.Collector.OutputDir, "KESTREL_COLLECTOR_OUTPUT_DIR")
	if v := os.Getenv("KESTREL_SESSIONS"); v != "" {
		if sessions, err := ParseSessions(v); err == nil {
			cfg.Replay.Sessions = sessions
		}
	}
	return cfg
}

// ParseSessions parses a "slices:interval,slices:interval" list.
func ParseSessions(v string) ([]SessionSpec, error) {
	var out []SessionSpec
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad session spec %q", part)
		}
		slices, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil || slices == 0 {
			return nil, fmt.Errorf("bad slice count in %q", part)
		}
		interval, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad interval in %q", part)
		}
		out = append(out, SessionSpec{Slices: uint32(slices), IntervalSec: uint32(interval)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sessions in %q", v)
	}
	return out, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
