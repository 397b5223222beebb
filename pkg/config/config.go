// Package config loads and saves the hubsync settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

const (
	xdgAppName = "hubsync"
	configFile = "config.json"
)

// Task source kinds.
const (
	SourceSheets = "sheets"
	SourceCSV    = "csv"
)

// Duration is a time.Duration stored as a string such as "60s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	SpreadsheetID    string   `json:"spreadsheet_id"`
	Stations         []string `json:"stations"`
	Source           string   `json:"source"`
	CSVDir           string   `json:"csv_dir"`
	RefreshInterval  Duration `json:"refresh_interval"`
	AutoRefresh      bool     `json:"auto_refresh"`
	RetainStale      bool     `json:"retain_stale"`
	FetchConcurrency int      `json:"fetch_concurrency"`
	FetchTimeout     Duration `json:"fetch_timeout"`
	WriteTimeout     Duration `json:"write_timeout"`
	RosterFile       string   `json:"roster_file"`
	ProfileDB        string   `json:"profile_db"`
	InsightModel     string   `json:"insight_model"`
	GeminiAPIKey     string   `json:"gemini_api_key,omitempty"`
	ListenAddr       string   `json:"listen_addr"`
	JWTSecret        string   `json:"jwt_secret,omitempty"`
	LogLevel         string   `json:"log_level"`
}

// GetConfigDir returns ~/.config/hubsync.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the settings used when no file exists, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Source:           SourceSheets,
		CSVDir:           filepath.Join(dir, "stations"),
		RefreshInterval:  Duration(60 * time.Second),
		AutoRefresh:      true,
		RetainStale:      true,
		FetchConcurrency: 4,
		FetchTimeout:     Duration(20 * time.Second),
		WriteTimeout:     Duration(15 * time.Second),
		RosterFile:       filepath.Join(dir, "roster.yaml"),
		ProfileDB:        filepath.Join(dir, "profiles.db"),
		InsightModel:     "gemini-1.5-flash",
		ListenAddr:       ":8080",
		LogLevel:         "info",
	}
}

// Load reads the config file from the default location.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadStored reads the config at path without environment overrides,
// falling back to defaults when the file does not exist.
func LoadStored(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads the config at path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg, err := LoadStored(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("HUBSYNC_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSheets, SourceCSV:
	default:
		return fmt.Errorf("unknown source %q (want %s or %s)", c.Source, SourceSheets, SourceCSV)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1")
	}
	if c.RefreshInterval.Std() <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	return nil
}

// StationList returns the configured stations with blanks removed.
func (c *Config) StationList() []model.Station {
	out := make([]model.Station, 0, len(c.Stations))
	for _, s := range c.Stations {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, model.Station(s))
		}
	}
	return out
}

// Save writes cfg to the default location.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}
