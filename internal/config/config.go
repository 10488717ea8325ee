// Package config provides functionality for managing configuration options
// for the client using command-line flags, a config file and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Store kinds accepted by Options.StoreKind.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Options holds the configuration values for the client.
type Options struct {
	// APIURL is the base URL of the remote order/bookmark service.
	APIURL string `yaml:"api_url"`

	// Timeout bounds a single remote HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries for transient remote failures.
	MaxRetries int `yaml:"max_retries"`

	// StoreKind selects the persisted local store: file, memory or postgres.
	StoreKind string `yaml:"store"`

	// StoreDir is the directory of the file store.
	StoreDir string `yaml:"store_dir"`

	// DatabaseDSN holds the connection string of the postgres store.
	DatabaseDSN string `yaml:"database_dsn"`

	// SnapshotRetention is how long an untouched postgres snapshot is kept.
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`

	// Passphrase enables at-rest encryption of snapshots when set.
	Passphrase string `yaml:"passphrase"`

	// ListenAddr is the ip:port of the local bridge API.
	ListenAddr string `yaml:"listen_addr"`

	// APIToken protects the local bridge API when set.
	APIToken string `yaml:"api_token"`

	// LogLevel is the zap level name.
	LogLevel string `yaml:"log_level"`

	// RefreshInterval is the period of remote cart/bookmark refreshes; zero
	// disables them.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Geocoder configures the geocoding provider.
	Geocoder GeocoderOptions `yaml:"geocoder"`

	// Location configures the device location source and service region.
	Location LocationOptions `yaml:"location"`

	// Config is the path to the config file.
	Config string `yaml:"-"`
}

// GeocoderOptions configures the Nominatim-compatible geocoder.
type GeocoderOptions struct {
	URL        string        `yaml:"url"`
	UserAgent  string        `yaml:"user_agent"`
	RatePerSec float64       `yaml:"rate_per_sec"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// LocationOptions configures the static locator and the service region.
type LocationOptions struct {
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
	Denied bool    `yaml:"denied"`

	MinLat      float64 `yaml:"min_lat"`
	MaxLat      float64 `yaml:"max_lat"`
	MinLng      float64 `yaml:"min_lng"`
	MaxLng      float64 `yaml:"max_lng"`
	FallbackLat float64 `yaml:"fallback_lat"`
	FallbackLng float64 `yaml:"fallback_lng"`
}

// New returns Options filled with defaults.
func New() *Options {
	return &Options{
		APIURL:            "http://localhost:8080/",
		Timeout:           15 * time.Second,
		MaxRetries:        2,
		StoreKind:         StoreFile,
		StoreDir:          ".gophfood",
		SnapshotRetention: 30 * 24 * time.Hour,
		ListenAddr:        "localhost:8090",
		LogLevel:          "info",
		Geocoder: GeocoderOptions{
			URL:        "https://nominatim.openstreetmap.org/",
			UserAgent:  "gophfood-client/1.0",
			RatePerSec: 1,
			CacheTTL:   10 * time.Minute,
		},
		Location: LocationOptions{
			Lat:         10.7769,
			Lng:         106.7009,
			MinLat:      8.0,
			MaxLat:      24.0,
			MinLng:      102.0,
			MaxLng:      110.0,
			FallbackLat: 10.7769,
			FallbackLng: 106.7009,
		},
		Config: "config.yaml",
	}
}

// BindFlags registers command-line flags writing into o.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file (YAML or JSON)")
	fs.StringVar(&o.APIURL, "url", o.APIURL, "remote service base URL")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "remote request timeout")
	fs.IntVar(&o.MaxRetries, "retries", o.MaxRetries, "retries for transient remote failures")
	fs.StringVar(&o.StoreKind, "store", o.StoreKind, "local store: file | memory | postgres")
	fs.StringVar(&o.StoreDir, "store-dir", o.StoreDir, "directory of the file store")
	fs.StringVarP(&o.DatabaseDSN, "dsn", "d", o.DatabaseDSN, "postgres DSN for the postgres store")
	fs.StringVarP(&o.ListenAddr, "addr", "a", o.ListenAddr, "local API ip:port")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&o.RefreshInterval, "refresh", o.RefreshInterval, "remote refresh interval, 0 disables")
	fs.Float64Var(&o.Location.Lat, "lat", o.Location.Lat, "device latitude reported by the static locator")
	fs.Float64Var(&o.Location.Lng, "lng", o.Location.Lng, "device longitude reported by the static locator")
	fs.BoolVar(&o.Location.Denied, "deny-location", o.Location.Denied, "simulate a denied location permission")
}

// Resolve applies the config file and then environment overrides on top of
// the flag values, and validates the result.
func (o *Options) Resolve() error {
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if err := o.loadFile(o.Config); err != nil {
			return err
		}
	}

	o.applyEnv()
	return o.Validate()
}

func (o *Options) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	// yaml.v3 accepts JSON documents as well.
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (o *Options) applyEnv() {
	if v := os.Getenv("API_URL"); v != "" {
		o.APIURL = v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		o.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		o.DatabaseDSN = v
	}
	if v := os.Getenv("STORE_PASSPHRASE"); v != "" {
		o.Passphrase = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		o.APIToken = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.MaxRetries = n
		}
	}
}

// Validate checks option consistency.
func (o *Options) Validate() error {
	if o.APIURL == "" {
		return errors.New("api url is required")
	}
	switch o.StoreKind {
	case StoreFile:
		if o.StoreDir == "" {
			return errors.New("store dir is required for the file store")
		}
	case StoreMemory:
	case StorePostgres:
		if o.DatabaseDSN == "" {
			return errors.New("database dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store kind %q", o.StoreKind)
	}
	if o.MaxRetries < 0 {
		return errors.New("retries must not be negative")
	}
	if o.Location.MinLat > o.Location.MaxLat || o.Location.MinLng > o.Location.MaxLng {
		return errors.New("location bounds are inverted")
	}
	return nil
}
