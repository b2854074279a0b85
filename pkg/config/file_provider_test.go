package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProviderInitialLoad(t *testing.T) {
	path := writeConfigFile(t, "server:\n  http_address: \":9318\"\n")

	provider, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ":9318", provider.Current().Server.HTTPAddress)
}

func TestFileProviderRejectsInvalidInitialConfig(t *testing.T) {
	path := writeConfigFile(t, "storage:\n  backend: postgres\n")

	_, err := NewFileProvider(path, nil)
	assert.Error(t, err)
}

func TestFileProviderReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")

	provider, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	defer provider.Close()

	sub := provider.Subscribe()
	first := <-sub
	assert.Equal(t, "info", first.Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	select {
	case cfg := <-sub:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("reload never delivered")
	}
	assert.Equal(t, "debug", provider.Current().Logging.Level)
}

func TestFileProviderKeepsSnapshotOnBadReload(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: info\n")

	provider, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: bogus\n"), 0o600))

	// give the debounce a chance to fire, then confirm nothing changed
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "info", provider.Current().Logging.Level)
}

func TestFileProviderIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	provider, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("logging:\n  level: error\n"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, "info", provider.Current().Logging.Level)
}
