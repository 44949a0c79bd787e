// Package config implements user-facing settings for the downloader,
// adapted from the teacher's Settings/RuntimeConfig split
// (the original internal/config/settings.go): a JSON-backed settings file
// with sensible defaults, atomically saved, and converted into the
// runtime options the Controller and its collaborators actually consume.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tsegment/hlsdl/internal/atomicfile"
	"github.com/tsegment/hlsdl/internal/crypto"
)

// Settings holds all user-configurable application settings organized by
// category, mirroring the teacher's General/Connections/Performance split.
type Settings struct {
	General     GeneralSettings     `json:"general"`
	Connections ConnectionSettings  `json:"connections"`
	Performance PerformanceSettings `json:"performance"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultOutputDir  string `json:"default_output_dir"`
	TempRoot          string `json:"temp_root"`
	LogRetentionCount int    `json:"log_retention_count"`
	Theme             int    `json:"theme"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	MaxConnectionsPerHost int    `json:"max_connections_per_host"`
	UserAgent             string `json:"user_agent"`
	ProxyURL              string `json:"proxy_url"`
	MaxBandwidthBPS       int64  `json:"max_bandwidth_bps"` // 0 disables throttling
}

// PerformanceSettings contains performance/retry tuning parameters.
type PerformanceSettings struct {
	DecryptionFallbackToCiphertext bool `json:"decryption_fallback_to_ciphertext"`
}

const (
	KB = 1024
	MB = 1024 * KB
)

// DefaultSettings returns a new Settings instance with sensible defaults,
// mirroring the spec's component defaults: an 8-handle connection pool
// ceiling and the documented decrypt-failure fallback policy.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		General: GeneralSettings{
			DefaultOutputDir:  filepath.Join(homeDir, "Downloads"),
			TempRoot:          os.TempDir(),
			LogRetentionCount: 5,
			Theme:             ThemeAdaptive,
		},
		Connections: ConnectionSettings{
			MaxConnectionsPerHost: 8,
			UserAgent:             "",
			MaxBandwidthBPS:       0,
		},
		Performance: PerformanceSettings{
			DecryptionFallbackToCiphertext: true,
		},
	}
}

// GetAppDir returns the directory settings and logs live under.
func GetAppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".hlsdl"
	}
	return filepath.Join(homeDir, ".hlsdl")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk, returning defaults if the file
// doesn't exist.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically via internal/atomicfile.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteBytes(path, data)
}

// RuntimeOptions is what the Controller and its collaborators actually
// consume, derived from user Settings.
type RuntimeOptions struct {
	MaxConnectionsPerHost int
	UserAgent             string
	ProxyURL              string
	MaxBandwidthBPS       int64
	FallbackPolicy        crypto.FallbackPolicy
	TempRoot              string
	DialTimeout           time.Duration
}

// ToRuntimeOptions converts Settings into RuntimeOptions.
func (s *Settings) ToRuntimeOptions() *RuntimeOptions {
	policy := crypto.FailHard
	if s.Performance.DecryptionFallbackToCiphertext {
		policy = crypto.FallbackToCiphertext
	}
	return &RuntimeOptions{
		MaxConnectionsPerHost: s.Connections.MaxConnectionsPerHost,
		UserAgent:             s.Connections.UserAgent,
		ProxyURL:              s.Connections.ProxyURL,
		MaxBandwidthBPS:       s.Connections.MaxBandwidthBPS,
		FallbackPolicy:        policy,
		TempRoot:              s.General.TempRoot,
		DialTimeout:           10 * time.Second,
	}
}
