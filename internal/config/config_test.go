package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBuildsMySQLDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("CONFIG_FILE", "")

	cfg := New()
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/amora?parseTime=true")
	assert.Equal(t, 35, cfg.Quota.FreeDailyLikes)
}

func TestPostgresDSNFromParts(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5432")

	cfg := New()
	assert.Contains(t, cfg.DB.DSN, "port=5432")
	assert.Contains(t, cfg.DB.DSN, "dbname=amora")
}

func TestYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
quota:
  free_daily_likes: 10
  free_daily_super_likes: 2
discovery:
  cache_ttl: 5s
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FREE_DAILY_LIKES", "12")
	t.Setenv("LOG_LEVEL", "")

	cfg := New()
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Quota.FreeDailyLikes)
	assert.Equal(t, 2, cfg.Quota.FreeDailySuperLikes)
	assert.Equal(t, 5*time.Second, cfg.Discovery.CacheTTL)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
