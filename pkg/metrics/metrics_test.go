package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnOwnRegistry(t *testing.T) {
	a := New()
	b := New()

	a.BackupCount.WithLabelValues("shop", "success").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.BackupCount.WithLabelValues("shop", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BackupCount.WithLabelValues("shop", "success")))
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	m := New()
	m.BackupSize.WithLabelValues("shop").Set(2048)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `mysql_backup_size_bytes{database="shop"} 2048`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))
}

func TestPush(t *testing.T) {
	var path string
	var payload string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		payload = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New()
	m.LastRunTimestamp.Set(1700000000)

	require.NoError(t, m.Push(context.Background(), gateway.URL))
	assert.True(t, strings.HasSuffix(path, "/job/"+JobName), path)
	assert.NotEmpty(t, payload)
}
