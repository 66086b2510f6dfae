package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"places_bot/src/archive"
	"places_bot/src/db"
)

// Config holds every setting of the service. Secrets are normally left out
// of the file and supplied through the environment.
type Config struct {
	Listen   string `toml:"listen" yaml:"listen"`
	Category string `toml:"category" yaml:"category"`
	// RefreshOnStart reloads the table from Geoapify before serving.
	RefreshOnStart bool `toml:"refresh_on_start" yaml:"refresh_on_start"`

	Log struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
	} `toml:"log" yaml:"log"`

	Store struct {
		Driver string `toml:"driver" yaml:"driver"`
		DSN    string `toml:"dsn" yaml:"dsn"`
		Index  string `toml:"index" yaml:"index"`
	} `toml:"store" yaml:"store"`

	Geoapify struct {
		BaseURL string   `toml:"base_url" yaml:"base_url"`
		APIKey  string   `toml:"api_key" yaml:"api_key"`
		Lat     float64  `toml:"lat" yaml:"lat"`
		Lon     float64  `toml:"lon" yaml:"lon"`
		Radius  int      `toml:"radius" yaml:"radius"`
		Limit   int      `toml:"limit" yaml:"limit"`
		Timeout Duration `toml:"timeout" yaml:"timeout"`
	} `toml:"geoapify" yaml:"geoapify"`

	Telegram struct {
		Token       string   `toml:"token" yaml:"token"`
		PollTimeout Duration `toml:"poll_timeout" yaml:"poll_timeout"`
		SessionTTL  Duration `toml:"session_ttl" yaml:"session_ttl"`
	} `toml:"telegram" yaml:"telegram"`

	RateLimit struct {
		RPS   float64 `toml:"rps" yaml:"rps"`
		Burst int     `toml:"burst" yaml:"burst"`
	} `toml:"rate_limit" yaml:"rate_limit"`

	Archive struct {
		Driver          string `toml:"driver" yaml:"driver"`
		Dir             string `toml:"dir" yaml:"dir"`
		Bucket          string `toml:"bucket" yaml:"bucket"`
		Prefix          string `toml:"prefix" yaml:"prefix"`
		Region          string `toml:"region" yaml:"region"`
		Endpoint        string `toml:"endpoint" yaml:"endpoint"`
		AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
		SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
		PathStyle       bool   `toml:"path_style" yaml:"path_style"`
	} `toml:"archive" yaml:"archive"`
}

// New returns a configuration with sensible defaults: central Kyiv, the
// tourism category and a local SQLite file.
func New() *Config {
	c := &Config{
		Listen:         ":5000",
		Category:       "tourism",
		RefreshOnStart: true,
	}
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Store.Driver = db.DriverSQLite
	c.Store.DSN = "places.db"
	c.Store.Index = "places"
	c.Geoapify.Lat = 50.4501
	c.Geoapify.Lon = 30.5234
	c.Geoapify.Radius = 1000
	c.Geoapify.Timeout = Duration{15 * time.Second}
	c.Telegram.PollTimeout = Duration{10 * time.Second}
	c.Telegram.SessionTTL = Duration{10 * time.Minute}
	c.RateLimit.RPS = 2
	c.RateLimit.Burst = 10
	return c
}

// LoadFile parses a TOML or YAML file, picked by extension. A missing file
// keeps the current values.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets and the store location from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.Token, "PLACES_TELEGRAM_TOKEN")
	set(&c.Geoapify.APIKey, "PLACES_GEOAPIFY_KEY")
	set(&c.Store.DSN, "PLACES_DB_DSN")
	set(&c.Archive.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&c.Archive.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(db.Drivers, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q must be one of %v", c.Store.Driver, db.Drivers))
	}
	switch c.Archive.Driver {
	case archive.DriverNone, archive.DriverFilesystem, archive.DriverS3:
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q must be empty, %q or %q", c.Archive.Driver, archive.DriverFilesystem, archive.DriverS3))
	}
	if c.Archive.Driver == archive.DriverS3 && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required for the s3 driver"))
	}
	if c.Geoapify.Radius <= 0 {
		errs = append(errs, errors.New("geoapify.radius must be positive"))
	}
	if strings.TrimSpace(c.Category) == "" {
		errs = append(errs, errors.New("category must not be empty"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) StoreOptions() db.Options {
	return db.Options{Driver: c.Store.Driver, DSN: c.Store.DSN, Index: c.Store.Index}
}

func (c *Config) ArchiveOptions() archive.Options {
	a := c.Archive
	return archive.Options{
		Driver: a.Driver,
		Dir:    a.Dir,
		S3: archive.S3Options{
			Bucket:          a.Bucket,
			Prefix:          a.Prefix,
			Region:          a.Region,
			Endpoint:        a.Endpoint,
			AccessKeyID:     a.AccessKeyID,
			SecretAccessKey: a.SecretAccessKey,
			PathStyle:       a.PathStyle,
		},
	}
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// Duration reads values like "15s" from TOML and YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
