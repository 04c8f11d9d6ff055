package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/richxcame/navigator/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONSendsHeadersAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/directions", r.URL.Path)
		assert.Equal(t, "car", r.URL.Query().Get("mode"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "corr-1", r.Header.Get(CorrelationIDHeader))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second, WithBearerToken("abc"))
	ctx := logger.ContextWithCorrelationID(context.Background(), "corr-1")

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(ctx, "/directions", url.Values{"mode": {"car"}}, &out))
	assert.True(t, out.OK)
}

func TestPostJSONEncodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var in map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &in))
		assert.Equal(t, "like", in["vote"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	require.NoError(t, client.PostJSON(context.Background(), "/incidents/1/rate", map[string]string{"vote": "like"}, nil))
}

func TestMissingTokenFailsWithoutRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithBearerToken("  "))
	_, err := client.Get(context.Background(), "/user/route", nil)

	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, called)
}

func TestErrorStatusReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).Get(context.Background(), "/x", nil)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.True(t, IsUpstreamFailure(err))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "Bearer abc", BearerToken("abc"))
	assert.Equal(t, "Bearer abc", BearerToken("Bearer abc"))
	assert.Equal(t, "bearer abc", BearerToken("bearer abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.False(t, IsUpstreamFailure(nil))
	assert.False(t, IsUpstreamFailure(&HTTPError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsUpstreamFailure(ErrMissingToken))
	assert.True(t, IsUpstreamFailure(&HTTPError{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, IsUpstreamFailure(errors.New("dial tcp: connection refused")))
}

func TestContextTokenSourcePrefersRequestToken(t *testing.T) {
	source := ContextTokenSource("service-token")

	assert.Equal(t, "service-token", source(context.Background()))
	assert.Equal(t, "user-token", source(ContextWithToken(context.Background(), "user-token")))
	assert.Equal(t, "service-token", source(ContextWithToken(context.Background(), "  ")))
}
