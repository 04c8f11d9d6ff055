package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *HTTPService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	breaker := resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "incidents-test",
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          time.Second,
		Interval:         time.Minute,
		IsFailure:        httpclient.IsUpstreamFailure,
	})
	client := httpclient.NewClient(server.URL, time.Second, httpclient.WithBearerToken("svc-token"))
	return NewHTTPService(client, breaker)
}

func TestHTTPService_List(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/incidents", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id": 7, "typeId": 8, "typeName": "Speed camera", "latitude": 37.95, "longitude": 58.38},
			{"id": 9, "typeId": 11, "latitude": 37.96, "longitude": 58.39}
		]`))
	})

	hazards, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, hazards, 2)

	assert.Equal(t, int64(7), hazards[0].ID)
	assert.Equal(t, 4, hazards[0].CategoryID)
	assert.Equal(t, "Speed camera", hazards[0].Label)
	assert.Equal(t, "Animal on the road", hazards[1].Label)
	assert.Equal(t, 5, hazards[1].CategoryID)
}

func TestHTTPService_ListUpstreamError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.List(context.Background())
	require.Error(t, err)

	var httpErr *httpclient.HTTPError
	assert.True(t, errors.As(err, &httpErr))
}

func TestHTTPService_Create(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/incidents", r.URL.Path)

		var body wireIncidentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 6, body.TypeID)
		assert.Equal(t, "Road blocked", body.TypeName)
		assert.Equal(t, 37.9, body.Latitude)

		_, _ = w.Write([]byte(`{"id": 42}`))
	})

	hazard, err := svc.Create(context.Background(), CreateRequest{TypeID: 6, Latitude: 37.9, Longitude: 58.3})
	require.NoError(t, err)
	assert.Equal(t, int64(42), hazard.ID)
	assert.Equal(t, 6, hazard.TypeID)
	assert.Equal(t, 3, hazard.CategoryID)
	assert.Equal(t, 58.3, hazard.Longitude)
}

func TestHTTPService_CreateUnknownType(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.Create(context.Background(), CreateRequest{TypeID: 99})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestHTTPService_Rate(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/incidents/42/rate", r.URL.Path)

		var body wireRating
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Positive)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, svc.Rate(context.Background(), 42, false))
}

func TestHTTPService_RateIsNotRetried(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := svc.Rate(context.Background(), 1, true)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
