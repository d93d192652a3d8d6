package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Portal.SessionKey = ""
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":4200", cfg.Portal.Addr)
	assert.Equal(t, 30*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, int64(32<<20), cfg.Fichiers.MaxUploadBytes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skillforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
portal:
  addr: ":9000"
  timeout: 5s
  files_urls:
    - http://files-1:8081
    - http://files-2:8081
fichiers:
  storage_dir: /var/lib/skillforge
  watch: false
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Portal.Addr)
	assert.Equal(t, 5*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, []string{"http://files-1:8081", "http://files-2:8081"}, cfg.Portal.FilesURLs)
	assert.Equal(t, "@every 30s", cfg.Portal.ProbeSchedule)
	assert.Equal(t, "/var/lib/skillforge", cfg.Fichiers.StorageDir)
	assert.False(t, cfg.Fichiers.Watch)
	assert.Equal(t, ":8081", cfg.Fichiers.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("portal: [\n"), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SKILLFORGE_SESSION_KEY": strings.Repeat("k", 32),
		"SKILLFORGE_FILES_URLS":  " http://a:8081 , ,http://b:8081",
		"SKILLFORGE_STORAGE_DIR": "/srv/files",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, strings.Repeat("k", 32), cfg.Portal.SessionKey)
	assert.Equal(t, []string{"http://a:8081", "http://b:8081"}, cfg.Portal.FilesURLs)
	assert.Equal(t, "/srv/files", cfg.Fichiers.StorageDir)
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Portal.FilesURLs = nil
	cfg.Portal.SessionKey = "short"
	cfg.Fichiers.StorageDir = ""
	cfg.Fichiers.MaxUploadBytes = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"log.level", "portal.files_urls", "portal.session_key", "fichiers.storage_dir", "fichiers.max_upload_bytes"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(Log{Level: "warn"}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))

	l, err = NewLogger(Log{Level: "warn", Development: true}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))

	_, err = NewLogger(Log{Level: "loud"}, false)
	assert.Error(t, err)
}
