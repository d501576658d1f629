package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// GIVEN: a YAML file and an environment override for one of its keys
	path := writeYAML(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: postgres
  dsn: postgres://ledger@localhost/ledger
cors:
  allowed_origins: ["https://office.example.com"]
metrics:
  enabled: false
billing:
  default_page_size: 50
  max_page_size: 500
audit:
  interval: 15m
`)
	t.Setenv("BUILDING_LEDGER_PORT", "7070")
	t.Setenv("BUILDING_LEDGER_AUDIT_ENABLED", "false")
	t.Setenv("BUILDING_LEDGER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	// WHEN
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: env wins, YAML fills the rest, defaults fill the gaps
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.Database.DSN)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 50, cfg.Billing.DefaultPageSize)
	assert.Equal(t, 500, cfg.Billing.MaxPageSize)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Audit.Interval)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeYAML(t, "server: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv("BUILDING_LEDGER_PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "BUILDING_LEDGER_PORT")
}

func TestValidate(t *testing.T) {
	bad := Default()
	bad.Database.Driver = "mysql"
	assert.ErrorContains(t, bad.Validate(), "mysql")

	bad = Default()
	bad.Billing.MaxPageSize = 5
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Audit.Interval = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Database.DSN = ""
	assert.Error(t, bad.Validate())

	assert.NoError(t, Default().Validate())
}
