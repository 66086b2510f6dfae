package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"places_bot/src/archive"
	"places_bot/src/db"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, ":5000", c.Listen)
	assert.Equal(t, "tourism", c.Category)
	assert.Equal(t, db.DriverSQLite, c.Store.Driver)
	assert.Equal(t, "places.db", c.Store.DSN)
	assert.InDelta(t, 50.4501, c.Geoapify.Lat, 1e-9)
	assert.InDelta(t, 30.5234, c.Geoapify.Lon, 1e-9)
	assert.Equal(t, 1000, c.Geoapify.Radius)
	assert.Equal(t, 10*time.Minute, c.Telegram.SessionTTL.Duration)
	assert.NoError(t, c.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "places.toml", `
listen = ":8080"
category = "catering"

[store]
driver = "postgres"
dsn = "postgres://localhost/places"

[geoapify]
radius = 2500
timeout = "3s"

[telegram]
session_ttl = "90s"

[archive]
driver = "fs"
dir = "/tmp/imports"
`)
	c := New()
	require.NoError(t, c.LoadFile(path))

	assert.Equal(t, ":8080", c.Listen)
	assert.Equal(t, "catering", c.Category)
	assert.Equal(t, db.DriverPostgres, c.Store.Driver)
	assert.Equal(t, "postgres://localhost/places", c.Store.DSN)
	assert.Equal(t, 2500, c.Geoapify.Radius)
	assert.Equal(t, 3*time.Second, c.Geoapify.Timeout.Duration)
	assert.Equal(t, 90*time.Second, c.Telegram.SessionTTL.Duration)
	// untouched keys keep their defaults
	assert.InDelta(t, 50.4501, c.Geoapify.Lat, 1e-9)

	opts := c.ArchiveOptions()
	assert.Equal(t, archive.DriverFilesystem, opts.Driver)
	assert.Equal(t, "/tmp/imports", opts.Dir)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "places.yaml", `
store:
  driver: elastic
  dsn: http://es:9200
  index: kyiv
log:
  level: debug
  format: json
geoapify:
  timeout: 5s
`)
	c := New()
	require.NoError(t, c.LoadFile(path))

	assert.Equal(t, db.Options{Driver: db.DriverElastic, DSN: "http://es:9200", Index: "kyiv"}, c.StoreOptions())
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, 5*time.Second, c.Geoapify.Timeout.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile(filepath.Join(t.TempDir(), "absent.toml")))
	assert.Equal(t, New(), c)
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeFile(t, "broken.toml", "listen = \n")
	err := New().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	path = writeFile(t, "bad.yaml", "geoapify:\n  timeout: soon\n")
	assert.Error(t, New().LoadFile(path))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLACES_TELEGRAM_TOKEN": "123:abc",
		"PLACES_GEOAPIFY_KEY":   "geo-key",
		"PLACES_DB_DSN":         "/var/lib/places.db",
	}
	c := New()
	c.Archive.AccessKeyID = "from-file"
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "123:abc", c.Telegram.Token)
	assert.Equal(t, "geo-key", c.Geoapify.APIKey)
	assert.Equal(t, "/var/lib/places.db", c.Store.DSN)
	assert.Equal(t, "from-file", c.Archive.AccessKeyID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, `store.driver "mysql"`},
		{"zero radius", func(c *Config) { c.Geoapify.Radius = 0 }, "geoapify.radius must be positive"},
		{"blank category", func(c *Config) { c.Category = "  " }, "category must not be empty"},
		{"unknown archive", func(c *Config) { c.Archive.Driver = "ftp" }, `archive.driver "ftp"`},
		{"s3 without bucket", func(c *Config) { c.Archive.Driver = archive.DriverS3 }, "archive.bucket is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	c := New()
	c.Log.Level = "warn"
	c.Log.Format = "json"
	log := c.NewLogger(&buf)

	log.Info("hidden")
	log.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
