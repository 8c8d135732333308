package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mediaflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "sqlite", cfg.Broker.Kind)
	require.Equal(t, time.Minute, cfg.Broker.DecisionLockTimeout.Duration)
	require.Equal(t, 2*time.Minute, cfg.Broker.ActivityLockTimeout.Duration)
	require.Equal(t, 200*time.Millisecond, cfg.Worker.PollingInterval.Duration)
	require.Contains(t, cfg.Classifier.Image, "jpg")
	require.Equal(t, "broker", cfg.Storage.Catalog)
	require.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local/share/mediaflow/mediaflow.db"), cfg.Broker.SQLitePath)
	require.Equal(t, filepath.Join(home, "mediaflow/landing"), cfg.Storage.Landing)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
[broker]
kind = "Redis"
redis_addr = "localhost:6379"
activity_lock_timeout = "5m"

[storage]
catalog = "memory"

[logging]
level = "WARNING"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.Broker.Kind)
	require.Equal(t, "localhost:6379", cfg.Broker.RedisAddr)
	require.Equal(t, 5*time.Minute, cfg.Broker.ActivityLockTimeout.Duration)

	// Untouched values keep their defaults
	require.Equal(t, time.Minute, cfg.Broker.DecisionLockTimeout.Duration)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "UnknownKey",
			config:  "[broker]\nflavor = \"sqlite\"\n",
			wantErr: "flavor",
		},
		{
			name:    "BadDuration",
			config:  "[broker]\ndecision_lock_timeout = \"soon\"\n",
			wantErr: "parse config",
		},
		{
			name:    "UnknownBroker",
			config:  "[broker]\nkind = \"kafka\"\n",
			wantErr: `broker.kind must be one of [memory sqlite mysql redis], got "kafka"`,
		},
		{
			name:    "MissingDSN",
			config:  "[broker]\nkind = \"mysql\"\n[storage]\ncatalog = \"memory\"\n",
			wantErr: "broker.mysql_dsn is required",
		},
		{
			name:    "ZeroTimeout",
			config:  "[broker]\nactivity_lock_timeout = \"0s\"\n",
			wantErr: "broker.activity_lock_timeout must be greater than zero",
		},
		{
			name:    "BrokerCatalogNeedsSQLite",
			config:  "[broker]\nkind = \"memory\"\n",
			wantErr: `storage.catalog = "broker" requires broker.kind = "sqlite"`,
		},
		{
			name:    "OTLPNeedsEndpoint",
			config:  "[tracing]\nexporter = \"otlp\"\n",
			wantErr: "tracing.endpoint is required",
		},
		{
			name:    "HeartbeatTooSlow",
			config:  "[worker]\nheartbeat_interval = \"3m\"\n",
			wantErr: "worker.heartbeat_interval must be shorter",
		},
		{
			name:    "HeartbeatOutlivesDecisionLease",
			config:  "[broker]\ndecision_lock_timeout = \"10s\"\n",
			wantErr: "worker.heartbeat_interval must be shorter than broker.decision_lock_timeout",
		},
		{
			name:    "OverlappingClassifier",
			config:  "[classifier]\naudio = [\"mp4\"]\n",
			wantErr: "classifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)

	exists, err := Exists(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()

	cfg := Default()
	cfg.Broker.SQLitePath = filepath.Join(root, "db", "mediaflow.db")
	cfg.Storage.Landing = filepath.Join(root, "landing")
	cfg.Storage.Working = filepath.Join(root, "working")
	cfg.Storage.CDN = filepath.Join(root, "cdn")
	cfg.Storage.NearLine = filepath.Join(root, "near_line")
	cfg.Storage.Archive = filepath.Join(root, "archive")

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{"db", "landing", "working", "cdn", "near_line", "archive"} {
		require.DirExists(t, filepath.Join(root, dir))
	}
}
