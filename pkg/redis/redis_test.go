package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringMapsNilToNotFound(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectGet("missing").RedisNil()

	_, err := client.GetString(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWithExpiration(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectSet("k", "v", time.Minute).SetVal("OK")

	require.NoError(t, client.SetWithExpiration(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectExists("present").SetVal(1)

	ok, err := client.Exists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetryableGetRetriesTransientErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectGet("k").SetErr(errors.New("dial tcp: connection refused"))
	mock.ExpectGet("k").SetVal("v")

	value, err := client.RetryableGet(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryableGetDoesNotRetryMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectGet("k").RedisNil()

	_, err := client.RetryableGet(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("read: connection reset by peer")))
	assert.False(t, isRetryable(goredis.Nil))
	assert.False(t, isRetryable(errors.New("WRONGTYPE Operation against a key")))
	assert.False(t, isRetryable(context.Canceled))
}
