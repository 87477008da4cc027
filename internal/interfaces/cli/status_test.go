package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

func opsServer(t *testing.T, readyStatus int, readyBody string) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"alive","version":"1.4.0","uptime":"2m0s"}`)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(readyStatus)
		fmt.Fprint(w, readyBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestStatusCmd_Ready(t *testing.T) {
	var calls []bootstrap.Options
	addr := opsServer(t, http.StatusOK, `{"status":"ready","components":{"redis":{"status":"healthy","latency":"1ms"},"postgres":{"status":"healthy","latency":"2ms"}}}`)

	out, err := execute(t, stubOpen(&calls), "status", "--addr", addr)
	require.NoError(t, err)

	assert.Contains(t, out, "version 1.4.0")
	assert.Contains(t, out, "readiness: ready")
	assert.Less(t, strings.Index(out, "postgres"), strings.Index(out, "redis"))
	assert.Empty(t, calls, "status needs no infrastructure")
}

func TestStatusCmd_NotReady(t *testing.T) {
	addr := opsServer(t, http.StatusServiceUnavailable, `{"status":"not_ready","components":{"neo4j":{"status":"unhealthy","error":"refused"}}}`)

	out, err := execute(t, stubOpen(nil), "-o", "table", "status", "--addr", addr)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	assert.Contains(t, err.Error(), "neo4j")
	assert.Contains(t, out, "unhealthy")
	assert.Contains(t, out, "refused")
}

func TestStatusCmd_NoOpsEndpoints(t *testing.T) {
	addr := opsServer(t, http.StatusOK, `{}`)

	_, err := execute(t, stubOpen(nil), "status", "--addr", addr+"/nowhere", "--retries", "0")

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}
