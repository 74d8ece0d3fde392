package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mizuno-sec/vigil/collector/process"
	"github.com/mizuno-sec/vigil/internal/normalize"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigild.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, process.DefaultInterval, cfg.PollInterval.Std())
	require.Equal(t, normalize.DefaultDedupWindow, cfg.DedupWindow.Std())
	require.Equal(t, time.Minute, cfg.RetentionInterval.Std())
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/vigil
socket: /tmp/vigil-test.sock
poll_interval: 250ms
dedup_window: 1s
watch_paths: [/home/alice, /etc]
ignore_exts: [".bak"]
coalesce_window: 5s
feed_backlog: 64
retention_events:
  max_age: 72h
  max_count: 100000
retention_interval: 5m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/vigil", cfg.DataDir)
	require.Equal(t, "/tmp/vigil-test.sock", cfg.Socket)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval.Std())
	require.Equal(t, time.Second, cfg.DedupWindow.Std())
	require.Equal(t, []string{"/home/alice", "/etc"}, cfg.WatchPaths)
	require.Equal(t, []string{".bak"}, cfg.IgnoreExts)
	require.Equal(t, 5*time.Second, cfg.CoalesceWindow.Std())
	require.Equal(t, 64, cfg.FeedBacklog)
	require.Equal(t, 72*time.Hour, cfg.RetentionEvents.MaxAge.Std())
	require.Equal(t, int64(100000), cfg.RetentionEvents.MaxCount)
	require.Equal(t, 5*time.Minute, cfg.RetentionInterval.Std())
}

func TestLoad_ClampsPollInterval(t *testing.T) {
	cfg, err := Load(writeConfig(t, "poll_interval: 10ms\n"))
	require.NoError(t, err)
	require.Equal(t, process.MinInterval, cfg.PollInterval.Std())
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "poll_interval: soon\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
