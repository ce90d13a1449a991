package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.DirectoryServerAddress = "directory.example.com:8080"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadConnectionType(t *testing.T) {
	cfg := Default()
	cfg.DirectoryServerAddress = "directory.example.com:8080"
	cfg.ConnectionType = "QUIC"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingDirectoryServer(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveFidelityValue(t *testing.T) {
	cfg := Default()
	cfg.DirectoryServerAddress = "directory.example.com:8080"
	cfg.FidelityValueSat = 0
	require.Error(t, cfg.Validate())
}

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, nil)
	require.Error(t, err) // directory_server_address still unset
	require.Nil(t, cfg)

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, statErr, "config.toml should be written even though validation failed")
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()

	// Seed a config.toml with a valid directory server address so Load
	// only needs the flag override to pick a different port.
	seeded := Default()
	seeded.DirectoryServerAddress = "directory.example.com:8080"
	require.NoError(t, save(filepath.Join(dir, "config.toml"), seeded))

	cfg, err := Load(dir, []string{"--port", "9999"})
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, "directory.example.com:8080", cfg.DirectoryServerAddress)
}

func TestLoadPreservesExistingFile(t *testing.T) {
	dir := t.TempDir()

	seeded := Default()
	seeded.DirectoryServerAddress = "directory.example.com:8080"
	seeded.WalletName = "custom-wallet"
	require.NoError(t, save(filepath.Join(dir, "config.toml"), seeded))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	require.Equal(t, "custom-wallet", cfg.WalletName)
	require.Equal(t, dir, cfg.DataDir)
}
