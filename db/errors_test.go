package db_test

import (
	"errors"
	"fmt"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kasuganosora/friendhub/config"
	"github.com/kasuganosora/friendhub/db"
	"github.com/kasuganosora/friendhub/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueViolation_DriverErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm duplicated key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate", &gomysql.MySQLError{Number: 1062}, true},
		{"mysql other", &gomysql.MySQLError{Number: 1452}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: accounts.email"), true},
		{"unrelated", errors.New("connection refused"), false},
		{"record not found", gorm.ErrRecordNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, db.IsUniqueViolation(tt.err))
		})
	}
}

func TestIsUniqueViolation_SQLiteInsert(t *testing.T) {
	gdb, err := db.Open(config.DatabaseConfig{Mode: db.ModeMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, model.AutoMigrate(gdb))

	first := &model.Account{Email: "dup@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"}
	require.NoError(t, gdb.Create(first).Error)

	second := &model.Account{Email: "dup@example.com", PasswordHash: "y", FirstName: "C", LastName: "D"}
	err = gdb.Create(second).Error
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := db.Open(config.DatabaseConfig{Mode: "oracle"})
	assert.Error(t, err)
}

func TestOpen_MemoryIsolated(t *testing.T) {
	a, err := db.Open(config.DatabaseConfig{Mode: db.ModeMemory})
	require.NoError(t, err)
	b, err := db.Open(config.DatabaseConfig{Mode: db.ModeMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(a); _ = db.Close(b) })

	require.NoError(t, model.AutoMigrate(a))
	require.NoError(t, model.AutoMigrate(b))
	require.NoError(t, a.Create(&model.Account{Email: "only-a@example.com", PasswordHash: "x"}).Error)

	var count int64
	require.NoError(t, b.Model(&model.Account{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.False(t, db.IsMySQL(a))
}

func TestOpen_MalformedDSNFailsEarly(t *testing.T) {
	_, err := db.Open(config.DatabaseConfig{Mode: db.ModeMySQL, MySQLDSN: "not a dsn"})
	assert.ErrorContains(t, err, "mysql dsn")

	_, err = db.Open(config.DatabaseConfig{Mode: db.ModePostgres, PostgresDSN: "::not-a-dsn::"})
	assert.ErrorContains(t, err, "postgres dsn")
}
