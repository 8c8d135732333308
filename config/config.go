// Package config loads the configuration shared by all mediaflow commands.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cschleiden/go-mediaflow/classifier"
)

//go:embed default.toml
var defaultConfig []byte

type Config struct {
	Broker     Broker           `toml:"broker"`
	Worker     Worker           `toml:"worker"`
	Classifier classifier.Lists `toml:"classifier"`
	Storage    Storage          `toml:"storage"`
	Tools      Tools            `toml:"tools"`
	Logging    Logging          `toml:"logging"`
	Tracing    Tracing          `toml:"tracing"`
	Diag       Diag             `toml:"diag"`
}

type Broker struct {
	Kind          string `toml:"kind" validate:"oneof=memory sqlite mysql redis"`
	SQLitePath    string `toml:"sqlite_path" validate:"required_if=Kind sqlite"`
	MySQLDSN      string `toml:"mysql_dsn" validate:"required_if=Kind mysql"`
	RedisAddr     string `toml:"redis_addr" validate:"required_if=Kind redis"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db" validate:"gte=0"`
	KeyPrefix     string `toml:"key_prefix"`

	DecisionLockTimeout Duration `toml:"decision_lock_timeout" validate:"gt=0"`
	ActivityLockTimeout Duration `toml:"activity_lock_timeout" validate:"gt=0"`
	TokenRetention      Duration `toml:"token_retention" validate:"gt=0"`

	// Retention is how long finished executions are kept.
	Retention Duration `toml:"retention" validate:"gte=0"`
}

type Worker struct {
	Pollers           int      `toml:"pollers" validate:"gte=1"`
	PollingInterval   Duration `toml:"polling_interval" validate:"gt=0"`
	HeartbeatInterval Duration `toml:"heartbeat_interval" validate:"gt=0"`
	PollTimeout       Duration `toml:"poll_timeout" validate:"gt=0"`

	// Activities run by the worker command. Empty runs all of them.
	Activities []string `toml:"activities" validate:"dive,required"`
}

type Storage struct {
	Landing  string `toml:"landing" validate:"required"`
	Working  string `toml:"working" validate:"required"`
	CDN      string `toml:"cdn" validate:"required"`
	NearLine string `toml:"near_line" validate:"required"`
	Archive  string `toml:"archive" validate:"required"`

	// Catalog is where asset documents are kept: "broker" shares the sqlite broker database,
	// "sqlite" uses its own database at CatalogPath.
	Catalog     string `toml:"catalog" validate:"oneof=memory broker sqlite"`
	CatalogPath string `toml:"catalog_path" validate:"required_if=Catalog sqlite"`

	StoryboardBaseURL string `toml:"storyboard_base_url" validate:"omitempty,url"`
}

type Tools struct {
	Exiftool  string `toml:"exiftool" validate:"required"`
	Mediainfo string `toml:"mediainfo" validate:"required"`
	Ffmpeg    string `toml:"ffmpeg" validate:"required"`
}

type Logging struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type Tracing struct {
	Exporter    string `toml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name" validate:"required"`
}

type Diag struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
}

// Duration is a time.Duration written as a Go duration string, e.g. "1m30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := decode(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}

	return cfg
}

// Load reads the configuration file at path on top of the defaults. A missing file is not an error
// when path is empty; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			return fmt.Errorf("%s", sme.String())
		}

		return err
	}

	return nil
}

// Normalize trims and lower-cases enumerations and expands paths. It is applied by Load; call it
// again after overriding fields.
func (c *Config) Normalize() error {
	lower := func(s *string) {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}

	lower(&c.Broker.Kind)
	lower(&c.Storage.Catalog)
	lower(&c.Logging.Level)
	lower(&c.Logging.Format)
	lower(&c.Tracing.Exporter)

	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}

	paths := map[string]*string{
		"broker.sqlite_path":   &c.Broker.SQLitePath,
		"storage.landing":      &c.Storage.Landing,
		"storage.working":      &c.Storage.Working,
		"storage.cdn":          &c.Storage.CDN,
		"storage.near_line":    &c.Storage.NearLine,
		"storage.archive":      &c.Storage.Archive,
		"storage.catalog_path": &c.Storage.CatalogPath,
	}

	for name, p := range paths {
		expanded, err := expandPath(strings.TrimSpace(*p))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		*p = expanded
	}

	return nil
}

// EnsureDirectories creates the storage directories and the directory of the sqlite databases.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.Landing, c.Storage.Working, c.Storage.CDN, c.Storage.NearLine, c.Storage.Archive}
	if c.Broker.Kind == "sqlite" && c.Broker.SQLitePath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Broker.SQLitePath))
	}
	if c.Storage.Catalog == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Storage.CatalogPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Exists reports whether a configuration file exists at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("stat config: %w", err)
	}

	return !info.IsDir(), nil
}

// DefaultTOML returns the built-in configuration as TOML, for use as a template.
func DefaultTOML() []byte {
	return append([]byte(nil), defaultConfig...)
}

func expandPath(p string) (string, error) {
	if p == "" || !strings.HasPrefix(p, "~") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	if p == "~" {
		return home, nil
	}

	if p[1] == '/' || p[1] == '\\' {
		return filepath.Join(home, p[2:]), nil
	}

	return p, nil
}
