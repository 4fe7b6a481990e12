package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.setDefaults()
	assert.Equal(t, int32(10), o.MaxConns)
	assert.Equal(t, 5*time.Minute, o.MaxConnLifetime)
	assert.Equal(t, time.Minute, o.MaxConnIdleTime)
	assert.NotNil(t, o.Logger)

	o = Options{MaxConns: 3}
	o.setDefaults()
	assert.Equal(t, int32(3), o.MaxConns)
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestNotFoundMapping(t *testing.T) {
	assert.NoError(t, WrapNotFound(nil))
	assert.ErrorIs(t, WrapNotFound(pgx.ErrNoRows), ErrNotFound)
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)))

	other := errors.New("conn reset")
	wrapped := WrapNotFound(other)
	assert.ErrorIs(t, wrapped, other)
	assert.False(t, IsNotFound(wrapped))
}
