package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_MissingFileKeepsDefaults(t *testing.T) {
	o := New()
	o.Config = filepath.Join(t.TempDir(), "absent.yaml")

	require.NoError(t, o.Resolve())
	assert.Equal(t, StoreFile, o.StoreKind)
	assert.Equal(t, 2, o.MaxRetries)
}

func TestResolve_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_url: https://api.example.com/
timeout: 3s
store: memory
refresh_interval: 1m
location:
  fallback_lat: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	o := New()
	o.Config = path
	require.NoError(t, o.Resolve())

	assert.Equal(t, "https://api.example.com/", o.APIURL)
	assert.Equal(t, 3*time.Second, o.Timeout)
	assert.Equal(t, StoreMemory, o.StoreKind)
	assert.Equal(t, time.Minute, o.RefreshInterval)
	assert.Equal(t, 1.5, o.Location.FallbackLat)
	// untouched nested fields keep their defaults
	assert.Equal(t, 24.0, o.Location.MaxLat)
}

func TestResolve_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_url":"http://json.example/","log_level":"debug"}`), 0o644))

	o := New()
	o.Config = path
	require.NoError(t, o.Resolve())

	assert.Equal(t, "http://json.example/", o.APIURL)
	assert.Equal(t, "debug", o.LogLevel)
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: http://file/\n"), 0o644))

	t.Setenv("CONFIG", path)
	t.Setenv("API_URL", "http://env/")
	t.Setenv("SERVER_ADDRESS", "127.0.0.1:9999")

	o := New()
	require.NoError(t, o.Resolve())
	assert.Equal(t, "http://env/", o.APIURL)
	assert.Equal(t, "127.0.0.1:9999", o.ListenAddr)
}

func TestResolve_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o644))

	o := New()
	o.Config = path
	assert.ErrorContains(t, o.Resolve(), "parse config file")
}

func TestBindFlags(t *testing.T) {
	o := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)

	require.NoError(t, fs.Parse([]string{"--url", "http://flag/", "--store", "memory", "--lat", "12.5"}))
	assert.Equal(t, "http://flag/", o.APIURL)
	assert.Equal(t, StoreMemory, o.StoreKind)
	assert.Equal(t, 12.5, o.Location.Lat)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
		errMsg string
	}{
		{name: "defaults ok", mutate: func(*Options) {}},
		{name: "unknown store", mutate: func(o *Options) { o.StoreKind = "redis" }, errMsg: "unknown store kind"},
		{name: "postgres without dsn", mutate: func(o *Options) { o.StoreKind = StorePostgres }, errMsg: "database dsn"},
		{name: "negative retries", mutate: func(o *Options) { o.MaxRetries = -1 }, errMsg: "retries"},
		{name: "inverted bounds", mutate: func(o *Options) { o.Location.MinLat = 30 }, errMsg: "inverted"},
		{name: "empty url", mutate: func(o *Options) { o.APIURL = "" }, errMsg: "api url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New()
			tt.mutate(o)
			err := o.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
