package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	assert.Equal(t, 25, got.MaxOpenConns)
	assert.Equal(t, 25, got.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, got.PingTimeout)

	kept := PostgresPoolConfig{MaxOpenConns: 4, PingTimeout: time.Second}.withDefaults()
	assert.Equal(t, 4, kept.MaxOpenConns)
	assert.Equal(t, time.Second, kept.PingTimeout)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "transfer_attempts_consult_leg_uidx"}
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestHealthCheck_NilDB(t *testing.T) {
	require.Error(t, HealthCheck(context.Background(), nil, time.Second))
}

func TestOpenPostgres_UnknownDriver(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "no-such-driver", "host=localhost", PostgresPoolConfig{})
	require.Error(t, err)
}
