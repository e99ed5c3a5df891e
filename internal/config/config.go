package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"floodwatch/internal/logging"
)

const (
	StalePolicyDiscard       = "discard"
	StalePolicyLastCompleted = "last_completed"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Remote    RemoteConfig  `json:"remote" yaml:"remote"`
	Refresh   RefreshConfig `json:"refresh" yaml:"refresh"`
	Display   DisplayConfig `json:"display" yaml:"display"`
	API       APIConfig     `json:"api" yaml:"api"`
	Relay     RelayConfig   `json:"relay" yaml:"relay"`
	Metrics   MetricsConfig `json:"metrics" yaml:"metrics"`
}

type RemoteConfig struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	LocationID     string        `json:"location_id" yaml:"location_id"`
	HistoryLimit   int           `json:"history_limit" yaml:"history_limit"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

type RefreshConfig struct {
	Interval    time.Duration `json:"interval" yaml:"interval"`
	StalePolicy string        `json:"stale_policy" yaml:"stale_policy"`
}

type DisplayConfig struct {
	Timezone    string `json:"timezone" yaml:"timezone"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type RelayConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	Topic        string        `json:"topic" yaml:"topic"`
	DedupeWindow time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
}

type MetricsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Remote: RemoteConfig{
			BaseURL:      "http://127.0.0.1:8000",
			LocationID:   "loc_1",
			HistoryLimit: 40,
		},
		Refresh: RefreshConfig{
			Interval:    3 * time.Second,
			StalePolicy: StalePolicyDiscard,
		},
		Display: DisplayConfig{Timezone: "Local", Placeholder: "—"},
		API:     APIConfig{Enabled: true, Addr: "127.0.0.1:8090"},
		Relay:   RelayConfig{Enabled: false, Topic: "floodwatch.frames", DedupeWindow: 30 * time.Second},
		Metrics: MetricsConfig{StoreLimit: 500},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads a .env file into the process environment if one exists.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// ApplyEnv overrides file settings with FLOODWATCH_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil || getenv == nil {
		return nil
	}
	if v := strings.TrimSpace(getenv("FLOODWATCH_BASE_URL")); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("FLOODWATCH_LOCATION_ID")); v != "" {
		cfg.Remote.LocationID = v
	}
	if v := strings.TrimSpace(getenv("FLOODWATCH_API_ADDR")); v != "" {
		cfg.API.Addr = v
	}
	if v := strings.TrimSpace(getenv("FLOODWATCH_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv("FLOODWATCH_REFRESH_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLOODWATCH_REFRESH_INTERVAL: %w", err)
		}
		cfg.Refresh.Interval = d
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	cfg.Remote.BaseURL = NormalizeBaseURL(cfg.Remote.BaseURL)
	cfg.Remote.LocationID = strings.TrimSpace(cfg.Remote.LocationID)
	if cfg.Remote.HistoryLimit <= 0 {
		cfg.Remote.HistoryLimit = 40
	}
	if cfg.Refresh.Interval <= 0 {
		cfg.Refresh.Interval = 3 * time.Second
	}
	if cfg.Refresh.StalePolicy == "" {
		cfg.Refresh.StalePolicy = StalePolicyDiscard
	}
	cfg.Refresh.StalePolicy = strings.ToLower(strings.TrimSpace(cfg.Refresh.StalePolicy))
	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = "Local"
	}
	if cfg.Display.Placeholder == "" {
		cfg.Display.Placeholder = "—"
	}
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = 500
	}
	if cfg.Relay.Topic == "" {
		cfg.Relay.Topic = "floodwatch.frames"
	}
}

func Validate(cfg *Config) error {
	if _, err := ValidateBaseURL(cfg.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if cfg.Remote.RequestTimeout < 0 {
		return errors.New("remote.request_timeout must be >= 0")
	}
	switch cfg.Refresh.StalePolicy {
	case StalePolicyDiscard, StalePolicyLastCompleted:
	default:
		return fmt.Errorf("refresh.stale_policy must be %q or %q, got %q", StalePolicyDiscard, StalePolicyLastCompleted, cfg.Refresh.StalePolicy)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Relay.DedupeWindow < 0 {
		return errors.New("relay.dedupe_window must be >= 0")
	}
	if cfg.Relay.Enabled && len(cfg.Relay.Brokers) == 0 {
		return errors.New("relay.brokers required when relay.enabled is true")
	}
	if _, err := cfg.Display.Location(); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	return nil
}

// Location resolves the display timezone. "Local" and "" mean the host zone.
func (d DisplayConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || strings.EqualFold(d.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// ValidateBaseURL checks a remote base address and returns its normalized form.
func ValidateBaseURL(raw string) (string, error) {
	trimmed := NormalizeBaseURL(raw)
	if trimmed == "" {
		return "", errors.New("base url cannot be empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("base url must use http or https")
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", errors.New("base url must include a host")
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}

// Overlay adjusts a freshly loaded config before it becomes active, e.g. with
// environment overrides. A non-nil error rejects the config.
type Overlay func(*Config) error

type Manager struct {
	path    string
	cfg     atomic.Pointer[Config]
	modTime atomic.Int64
	overlay Overlay
}

// NewManager loads path, falling back to defaults when path is empty or missing.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if path == "" {
		m.cfg.Store(DefaultConfig())
		return m, nil
	}
	m.stampModTime()
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		m.cfg.Store(DefaultConfig())
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	return m, nil
}

// SetOverlay installs fn and applies it to a copy of the active config. The
// same overlay runs on every later Reload.
func (m *Manager) SetOverlay(fn Overlay) error {
	m.overlay = fn
	if fn == nil {
		return nil
	}
	next := *m.Get()
	if err := fn(&next); err != nil {
		return err
	}
	m.cfg.Store(&next)
	return nil
}

// Get returns the active config. Callers must treat it as read-only and copy
// before changing anything.
func (m *Manager) Get() *Config {
	if cfg := m.cfg.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func (m *Manager) Path() string { return m.path }

// Set swaps the active config without touching the file.
func (m *Manager) Set(cfg *Config) {
	if cfg != nil {
		m.cfg.Store(cfg)
	}
}

// Reload reads the file again and runs the overlay on the result. On error the
// previous config stays active and the file is not retried until it changes.
func (m *Manager) Reload() (*Config, error) {
	m.stampModTime()
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	if m.overlay != nil {
		if err := m.overlay(cfg); err != nil {
			return nil, fmt.Errorf("overlay: %w", err)
		}
	}
	m.cfg.Store(cfg)
	return cfg, nil
}

// Update validates cfg, persists it when the manager has a path, and swaps it in.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		m.stampModTime()
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.ModTime().UnixNano() > m.modTime.Load(), nil
}

func (m *Manager) stampModTime() {
	if info, err := os.Stat(m.path); err == nil {
		m.modTime.Store(info.ModTime().UnixNano())
	}
}

// Watch polls the file until ctx is done and hands every config it reloads to
// onReload. Failures are logged at most once a minute per kind.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onReload func(*Config), logger *slog.Logger) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	throttle := logging.NewThrottle(time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		needs, err := m.NeedsReload()
		if err != nil {
			if throttle.Allow("stat") {
				logger.Warn("config watch error", "path", m.path, "err", err)
			}
			continue
		}
		if !needs {
			continue
		}
		cfg, err := m.Reload()
		if err != nil {
			if throttle.Allow("reload") {
				logger.Warn("config reload rejected", "path", m.path, "err", err)
			}
			continue
		}
		throttle.Clear()
		logger.Info("config reloaded", "path", m.path)
		if onReload != nil {
			onReload(cfg)
		}
	}
}

// ResolvePath makes path absolute. A leading "~/" expands to the home directory.
func ResolvePath(path string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rest)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
