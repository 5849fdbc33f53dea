package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"booking-bot/internal/models"
	"booking-bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, uint64(3), cfg.RetryAttempts)
	assert.Equal(t, "2006-01-02", cfg.DateLayout)
	assert.Equal(t, "0 19-23 * * *", cfg.ReminderSchedule)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "5432", cfg.Database.Port)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("STORAGE", "Postgres")
	t.Setenv("OWNER_ID", "42")
	t.Setenv("WORKERS", "8")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("REQUIRE_FUTURE_DATE", "true")
	t.Setenv("DB_HOST", "db")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, int64(42), cfg.OwnerID)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.RequireFutureDate)
	assert.Equal(t, "db", cfg.Database.Host)
}

func TestFromEnvCollectsErrors(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("STORAGE", "redis")
	t.Setenv("WORKERS", "many")

	_, err := FromEnv()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
	assert.Contains(t, err.Error(), "STORAGE")
	assert.Contains(t, err.Error(), "WORKERS")
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCatalogSeedsEmptyStore(t *testing.T) {
	path := writeCatalog(t, `
services:
  - name: Haircut
    description: Classic cut
    price: 20
  - name: Shave
    price: 12.5
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Services, 2)

	s := store.NewMemory()
	ctx := context.Background()

	n, err := c.Seed(ctx, s, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second run leaves the existing catalog alone.
	n, err = c.Seed(ctx, s, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, n)

	services, err := s.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "Shave", services[1].Name)
	assert.Equal(t, 12.5, services[1].Price)
}

func TestLoadCatalogRejectsBadEntries(t *testing.T) {
	_, err := LoadCatalog(writeCatalog(t, "services:\n  - name: Free\n    price: -1\n"))
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = LoadCatalog(writeCatalog(t, "services:\n  - price: 3\n"))
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = LoadCatalog(writeCatalog(t, "services: [\n"))
	assert.Error(t, err)
}

func TestEnsureOwner(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, EnsureOwner(ctx, s, 0))

	require.NoError(t, EnsureOwner(ctx, s, 7))
	u, err := s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, u.Role)

	_, err = s.AddUser(ctx, models.User{ID: 8, Role: models.RoleClient})
	require.NoError(t, err)
	require.NoError(t, EnsureOwner(ctx, s, 8))
	u, err = s.GetUser(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, u.Role)
}
