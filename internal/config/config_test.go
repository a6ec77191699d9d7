package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge())
	assert.Equal(t, 720*time.Hour, cfg.DraftTTL())
	assert.Equal(t, time.Hour, cfg.DraftSweepInterval())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := writeFile(t, "valuator.yaml", `
server:
  port: 9090
drafts:
  ttl: 48h
log:
  level: debug
  format: console
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.DraftTTL())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "30m", cfg.Session.IdleTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "valuator.yaml", "server:\n  port: 9090\n")
	t.Setenv("VALUATOR_PORT", "7070")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("VALUATOR_DRAFT_TTL", "2h")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "", cfg.Database.DSN)
	assert.Equal(t, 2*time.Hour, cfg.DraftTTL())
}

func TestLoad_DotEnv(t *testing.T) {
	env := writeFile(t, ".env", "VALUATOR_LOG_LEVEL=warn\n")
	t.Setenv("VALUATOR_LOG_LEVEL", "")
	os.Unsetenv("VALUATOR_LOG_LEVEL")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv)
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "server: [")
	_, err = Load(bad, missingEnv)
	assert.Error(t, err)

	dur := writeFile(t, "dur.yaml", "drafts:\n  ttl: soon\n")
	_, err = Load(dur, missingEnv)
	assert.ErrorContains(t, err, "drafts.ttl")

	port := writeFile(t, "port.yaml", "server:\n  port: 70000\n")
	_, err = Load(port, missingEnv)
	assert.ErrorContains(t, err, "server.port")

	t.Setenv("VALUATOR_PORT", "")
	t.Setenv("PORT", "eighty")
	_, err = Load("", missingEnv)
	assert.ErrorContains(t, err, "PORT")
}

func TestLoad_ZeroDisablesDraftSweeping(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	off := writeFile(t, "off.yaml", "drafts:\n  ttl: 0s\n  sweep_interval: \"0\"\n")
	cfg, err := Load(off, missingEnv)
	require.NoError(t, err)
	assert.Zero(t, cfg.DraftTTL())
	assert.Zero(t, cfg.DraftSweepInterval())

	neg := writeFile(t, "neg.yaml", "drafts:\n  ttl: -1h\n")
	_, err = Load(neg, missingEnv)
	assert.ErrorContains(t, err, "drafts.ttl")

	zeroSession := writeFile(t, "session.yaml", "session:\n  max_age: 0s\n")
	_, err = Load(zeroSession, missingEnv)
	assert.ErrorContains(t, err, "session.max_age")
}
