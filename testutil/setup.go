package testutil

import (
	"testing"

	"github.com/kasuganosora/friendhub/cache"
	"github.com/kasuganosora/friendhub/config"
	dbadapter "github.com/kasuganosora/friendhub/db"
	"github.com/kasuganosora/friendhub/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() { _ = dbadapter.Close(db) })
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	t.Cleanup(func() {
		_ = ps.Close()
		_ = c.Close()
	})
	return c, ps
}

// Logger returns a development logger for tests.
func Logger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l
}

// CreateAccount inserts an account with a placeholder hash and returns it.
func CreateAccount(t *testing.T, db *gorm.DB, email, first, last string, age int) *model.Account {
	t.Helper()
	acc := &model.Account{
		Email:        email,
		PasswordHash: "not-a-real-hash",
		FirstName:    first,
		LastName:     last,
		Age:          age,
	}
	require.NoError(t, db.Create(acc).Error, "CreateAccount")
	return acc
}
