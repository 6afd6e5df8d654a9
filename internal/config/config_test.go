package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "5 0 * * *", cfg.Maintenance.Schedule)
	assert.True(t, cfg.Maintenance.Enabled)
	assert.False(t, cfg.Maintenance.CatchUp)
	assert.Equal(t, 10, cfg.Clan.MaxMembers)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "postgres://quest:@localhost:5432/quest?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
app:
  timezone: UTC
maintenance:
  secret: from-file
clan:
  max_members: 6
admin:
  ids: [42]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("MAINTENANCE_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Maintenance.Secret)
	assert.Equal(t, 6, cfg.Clan.MaxMembers)
	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(7))

	loc, err := cfg.App.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"bad timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus" }, true},
		{"bot without token", func(c *Config) { c.Bot.Enabled = true }, true},
		{"zero clan size", func(c *Config) { c.Clan.MaxMembers = 0 }, true},
		{"negative rps", func(c *Config) { c.HTTP.RateLimit.RPS = -1 }, true},
		{"bad schedule", func(c *Config) { c.Maintenance = MaintenanceConfig{Enabled: true, Schedule: "every night"} }, true},
		{"schedule ignored when disabled", func(c *Config) { c.Maintenance = MaintenanceConfig{Schedule: "every night"} }, false},
		{"custom schedule", func(c *Config) { c.Maintenance = MaintenanceConfig{Enabled: true, Schedule: "30 3 * * *"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				App:  AppConfig{Timezone: "UTC"},
				Clan: ClanConfig{MaxMembers: 10},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsChatAllowed(t *testing.T) {
	open := &Config{}
	assert.True(t, open.IsChatAllowed(-100))

	closed := &Config{Whitelist: WhitelistConfig{Chats: []int64{-100}}}
	assert.True(t, closed.IsChatAllowed(-100))
	assert.False(t, closed.IsChatAllowed(-200))
}

func TestDSN_URLOverride(t *testing.T) {
	d := DatabaseConfig{URL: "postgres://u:p@db:5432/x", Host: "ignored"}
	assert.Equal(t, "postgres://u:p@db:5432/x", d.DSN())
}
