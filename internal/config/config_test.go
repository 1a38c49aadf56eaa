package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/custodian/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := filet.TmpDir(t, "")
	path := filepath.Join(dir, "custodian.yaml")
	filet.File(t, path, content)
	return path
}

func TestMustLoad_EmptyPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	assert.PanicsWithValue(t, "config path is empty", func() {
		config.MustLoad()
	})
}

func TestMustLoad_FileNotExist(t *testing.T) {
	t.Setenv("CONFIG_PATH", "./invalid/path")

	assert.PanicsWithValue(t, "config file does not exist: ./invalid/path", func() {
		config.MustLoad()
	})
}

func TestMustLoad_ReadError(t *testing.T) {
	defer filet.CleanUp(t)
	path := writeConfig(t, "env: [unclosed")
	t.Setenv("CONFIG_PATH", path)

	assert.Panics(t, func() {
		config.MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	defer filet.CleanUp(t)
	path := writeConfig(t, `
---
env: "local"
storage: postgres
telegram:
  enabled: true
  token: test-token
postgres:
  host: "localhost"
  user: "pgUser"
  password: "pgPassword"
  db_name: "pgDatabase"
  max_conns: 20
schedule:
  default_timezone: Europe/Moscow
reconcile:
  grace_period: 30m
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CUSTODIAN_RECONCILE_RETENTION_DAYS", "14")
	t.Setenv("CUSTODIAN_HTTP_PORT", "8181")

	cfg := config.MustLoad()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.Monitoring.Port)
	assert.Equal(t, config.StoragePostgres, cfg.Storage)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "pgUser", cfg.Database.User)
	assert.Equal(t, "pgPassword", cfg.Database.Password)
	assert.Equal(t, "pgDatabase", cfg.Database.Name)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, int32(3), cfg.Database.MinConns)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "test-token", cfg.Telegram.Token)
	assert.Equal(t, 10*time.Second, cfg.Telegram.Timeout)
	assert.Equal(t, "Europe/Moscow", cfg.Schedule.DefaultTimezone)
	assert.Equal(t, 62, cfg.Projection.MaxDays)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.GracePeriod)
	assert.Equal(t, 14, cfg.Reconcile.RetentionDays)
	assert.Equal(t, 1, cfg.Reconcile.VirtualLookbackDays)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, 256, cfg.Events.Buffer)
}

func TestLoad(t *testing.T) {
	defer filet.CleanUp(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "success - memory storage needs no database",
			content: "storage: memory\nseed_file: seed.yaml\n",
		},
		{
			name:    "error - unknown storage",
			content: "storage: redis\n",
			wantErr: "Storage",
		},
		{
			name:    "error - postgres without host",
			content: "storage: postgres\n",
			wantErr: "postgres.host",
		},
		{
			name:    "error - telegram enabled without token",
			content: "storage: memory\ntelegram:\n  enabled: true\n",
			wantErr: "Token",
		},
		{
			name:    "error - unknown timezone",
			content: "storage: memory\nschedule:\n  default_timezone: Mars/Olympus\n",
			wantErr: "default_timezone",
		},
		{
			name:    "error - bad duration",
			content: "storage: memory\nreconcile:\n  grace_period: soon\n",
			wantErr: "failed to decode config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.content))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, config.StorageMemory, cfg.Storage)
			assert.Equal(t, "seed.yaml", cfg.SeedFile)
		})
	}
}
