package opensearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

// newTestClient builds a Client on handler without the connect-time ping.
func newTestClient(t *testing.T, handler http.HandlerFunc, bulkSize int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	osc, err := opensearchgo.NewClient(opensearchgo.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	c := &Client{
		client: osc,
		cfg:    config.OpenSearchConfig{Addresses: []string{server.URL}, Index: "perfumes-test", BulkSize: bulkSize},
		logger: logging.NewNopLogger(),
		cancel: func() {},
	}
	c.healthy.Store(true)
	return c
}

func TestNewClient_NoAddresses(t *testing.T) {
	client, err := NewClient(context.Background(), config.OpenSearchConfig{}, nil)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(context.Background(), config.OpenSearchConfig{Addresses: []string{server.URL}}, nil)
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.IsHealthy())
	assert.Equal(t, DefaultIndex, client.Index())
	assert.NotNil(t, client.GetClient())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusUnauthorized)
	defer server.Close()

	client, err := NewClient(context.Background(), config.OpenSearchConfig{Addresses: []string{server.URL}}, nil)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestClient_Ping_TracksHealth(t *testing.T) {
	var failing atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 0)

	require.NoError(t, c.Ping(context.Background()))
	assert.True(t, c.IsHealthy())

	failing.Store(true)
	assert.Error(t, c.Ping(context.Background()))
	assert.False(t, c.IsHealthy())
}

func TestClient_Close_Idempotent(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(context.Background(), config.OpenSearchConfig{Addresses: []string{server.URL}, Index: "catalog"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "catalog", client.Index())

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
