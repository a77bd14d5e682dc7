package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
database:
  host: localhost
  port: 3306
  user: vindereg
  password: from-file
  name: vindereg
ftp:
  host: feeds.example.com
  username: feeduser
sugar:
  baseURL: https://crm.example.com
  username: integration
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 21, cfg.FTP.Port)
	assert.Equal(t, "*.csv", cfg.FTP.Pattern)
	assert.Equal(t, "password", cfg.Sugar.GrantType)
	assert.Equal(t, 3, cfg.Sugar.RetryMax)
	assert.Equal(t, []string{"HYUNDAI", "ISUZU", "RENAULT"}, cfg.Ingest.AllowedMakes)
	assert.Equal(t, 15*time.Minute, cfg.MinPendingAge())
	assert.Equal(t, 6*time.Hour, cfg.NotifyCooldown())
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("VINDEREG_DB_PASSWORD", "from-env")
	t.Setenv("VINDEREG_SUGAR_CLIENT_SECRET", "sugar-env")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "sugar-env", cfg.Sugar.ClientSecret)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
  retryMax: 2
`))
	require.NoError(t, err) // sanity: still valid yaml

	_, err = Load(writeConfig(t, `
database:
  driver: oracle
ftp:
  host: feeds.example.com
sugar:
  baseURL: https://crm.example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestLoad_RequiresCRMBaseURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
ftp:
  host: feeds.example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sugar.baseURL")
}

func TestMySQLDSN(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t,
		"vindereg:from-file@tcp(localhost:3306)/vindereg?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())
}
