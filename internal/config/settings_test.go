package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tsegment/hlsdl/internal/crypto"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()
	require.NotNil(t, settings)

	t.Run("GeneralSettings", func(t *testing.T) {
		require.NotEmpty(t, settings.General.DefaultOutputDir)
		require.True(t, strings.Contains(strings.ToLower(settings.General.DefaultOutputDir), "downloads"))
		require.NotEmpty(t, settings.General.TempRoot)
		require.Equal(t, ThemeAdaptive, settings.General.Theme)
	})

	t.Run("ConnectionSettings", func(t *testing.T) {
		require.Greater(t, settings.Connections.MaxConnectionsPerHost, 0)
		require.LessOrEqual(t, settings.Connections.MaxConnectionsPerHost, 64)
		require.Equal(t, int64(0), settings.Connections.MaxBandwidthBPS)
	})

	t.Run("PerformanceSettings", func(t *testing.T) {
		require.True(t, settings.Performance.DecryptionFallbackToCiphertext)
	})
}

func TestSaveAndLoadSettings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	settings := DefaultSettings()
	settings.Connections.ProxyURL = "socks5://127.0.0.1:1080"
	settings.Connections.MaxConnectionsPerHost = 4
	settings.Performance.DecryptionFallbackToCiphertext = false

	require.NoError(t, SaveSettings(settings))

	path := GetSettingsPath()
	require.FileExists(t, path)

	loaded, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, settings.Connections.ProxyURL, loaded.Connections.ProxyURL)
	require.Equal(t, settings.Connections.MaxConnectionsPerHost, loaded.Connections.MaxConnectionsPerHost)
	require.False(t, loaded.Performance.DecryptionFallbackToCiphertext)
}

func TestLoadSettings_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	loaded, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, DefaultSettings().Connections.MaxConnectionsPerHost, loaded.Connections.MaxConnectionsPerHost)
}

func TestSaveSettings_WritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	require.NoError(t, SaveSettings(DefaultSettings()))

	data, err := os.ReadFile(filepath.Join(dir, ".hlsdl", "settings.json"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "general")
	require.Contains(t, decoded, "connections")
	require.Contains(t, decoded, "performance")
}

func TestToRuntimeOptions_MapsFallbackPolicy(t *testing.T) {
	s := DefaultSettings()

	s.Performance.DecryptionFallbackToCiphertext = true
	opts := s.ToRuntimeOptions()
	require.Equal(t, crypto.FallbackToCiphertext, opts.FallbackPolicy)

	s.Performance.DecryptionFallbackToCiphertext = false
	opts = s.ToRuntimeOptions()
	require.Equal(t, crypto.FailHard, opts.FallbackPolicy)
}

func TestToRuntimeOptions_CarriesConnectionSettings(t *testing.T) {
	s := DefaultSettings()
	s.Connections.ProxyURL = "http://proxy.example.com:3128"
	s.Connections.MaxConnectionsPerHost = 2
	s.Connections.MaxBandwidthBPS = 1 << 20
	s.Connections.UserAgent = "hlsdl-custom/2.0"

	opts := s.ToRuntimeOptions()
	require.Equal(t, "http://proxy.example.com:3128", opts.ProxyURL)
	require.Equal(t, 2, opts.MaxConnectionsPerHost)
	require.Equal(t, int64(1<<20), opts.MaxBandwidthBPS)
	require.Equal(t, "hlsdl-custom/2.0", opts.UserAgent)
	require.Equal(t, 10*time.Second, opts.DialTimeout)
}

func TestGetAppDir_UnderHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	require.Equal(t, filepath.Join(dir, ".hlsdl"), GetAppDir())
}
