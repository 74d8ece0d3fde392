// Package config loads the vigild configuration from YAML and fills in
// documented defaults. Rules, retention thresholds, dedup tolerance, and
// throttle windows are all configuration, not constants.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mizuno-sec/vigil/collector/process"
	"github.com/mizuno-sec/vigil/internal/normalize"
)

// Duration parses YAML scalars like "500ms" or "1m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Retention struct {
	MaxAge   Duration `yaml:"max_age,omitempty"`
	MaxCount int64    `yaml:"max_count,omitempty"`
}

type Config struct {
	// DataDir holds events.jsonl, alerts.jsonl, and index.sqlite.
	DataDir string `yaml:"data_dir,omitempty"`
	// Socket is the unix socket the query server listens on.
	Socket string `yaml:"socket,omitempty"`
	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// PollInterval trades capture latency against CPU: the process and
	// command collectors scan /proc once per interval. Clamped to the
	// collector minimum (100ms).
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	WatchPaths     []string `yaml:"watch_paths,omitempty"`
	IgnoreExts     []string `yaml:"ignore_exts,omitempty"`
	IgnoreKeywords []string `yaml:"ignore_keywords,omitempty"`
	CoalesceWindow Duration `yaml:"coalesce_window,omitempty"`

	// DedupWindow bounds how long the normalizer waits to match the process
	// and command views of one process start.
	DedupWindow Duration `yaml:"dedup_window,omitempty"`

	// RulesFile overrides the embedded default ruleset when set.
	RulesFile string `yaml:"rules_file,omitempty"`

	FeedBacklog int `yaml:"feed_backlog,omitempty"`

	RetentionEvents   Retention `yaml:"retention_events,omitempty"`
	RetentionAlerts   Retention `yaml:"retention_alerts,omitempty"`
	RetentionInterval Duration  `yaml:"retention_interval,omitempty"`
}

func Default() Config {
	dataDir := ".vigil"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".vigil")
	}
	return Config{
		DataDir:           dataDir,
		PollInterval:      Duration(process.DefaultInterval),
		DedupWindow:       Duration(normalize.DefaultDedupWindow),
		RetentionInterval: Duration(time.Minute),
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollInterval.Std() < process.MinInterval {
		c.PollInterval = Duration(process.MinInterval)
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = def.DedupWindow
	}
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = def.RetentionInterval
	}
}
