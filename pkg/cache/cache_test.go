package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/navigator/pkg/geo"
	redisclient "github.com/richxcame/navigator/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newManager() (*Manager, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewManager(redisclient.NewFromClient(db)), mock
}

func TestGetHit(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").SetVal(`{"name":"route","count":3}`)

	var got payload
	require.NoError(t, m.Get(context.Background(), "k", &got))
	assert.Equal(t, payload{Name: "route", Count: 3}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMiss(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").RedisNil()

	var got payload
	assert.ErrorIs(t, m.Get(context.Background(), "k", &got), ErrMiss)
}

func TestGetCorruptValue(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").SetVal(`not json`)

	var got payload
	err := m.Get(context.Background(), "k", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestSet(t *testing.T) {
	m, mock := newManager()
	mock.ExpectSet("k", `{"name":"a","count":1}`, time.Minute).SetVal("OK")

	require.NoError(t, m.Set(context.Background(), "k", payload{Name: "a", Count: 1}, time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetMissCallsLoaderAndStores(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").RedisNil()
	mock.ExpectSet("k", `{"name":"fresh","count":2}`, time.Minute).SetVal("OK")

	calls := 0
	got, err := GetOrSet(context.Background(), m, "k", time.Minute, func(context.Context) (payload, error) {
		calls++
		return payload{Name: "fresh", Count: 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetHitSkipsLoader(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").SetVal(`{"name":"cached","count":9}`)

	got, err := GetOrSet(context.Background(), m, "k", time.Minute, func(context.Context) (payload, error) {
		t.Fatal("loader should not run on a hit")
		return payload{}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)
}

func TestGetOrSetLoaderErrorIsNotCached(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").RedisNil()

	boom := errors.New("upstream down")
	_, err := GetOrSet(context.Background(), m, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetIgnoresCacheOutage(t *testing.T) {
	m, mock := newManager()
	mock.ExpectGet("k").SetErr(errors.New("connection refused"))
	mock.ExpectSet("k", `{"name":"live","count":0}`, time.Minute).SetErr(errors.New("connection refused"))

	got, err := GetOrSet(context.Background(), m, "k", time.Minute, func(context.Context) (payload, error) {
		return payload{Name: "live"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "live", got.Name)
}

func TestNilManagerIsEmptyCache(t *testing.T) {
	var m *Manager

	got, err := GetOrSet(context.Background(), m, "k", time.Minute, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestDirectionsKey(t *testing.T) {
	key := Keys.Directions(geo.NewPoint(52.52, 13.405), geo.NewPoint(52.5, 13.4), "CAR")
	assert.Equal(t, "directions:car:52.52000,13.40500:52.50000,13.40000", key)
}
