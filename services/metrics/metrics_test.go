package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetricsCounters(t *testing.T) {
	m := New("yourdoll")
	m.PagesFetched.Add(2)
	m.RecordsScraped.Add(5)
	m.RecordsSkipped.WithLabelValues("outlier").Inc()
	m.RecordsSkipped.WithLabelValues("duplicate").Add(3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PagesFetched))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.RecordsScraped))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("duplicate")))

	// Separate runs do not share series
	other := New("kuma")
	assert.Equal(t, float64(0), testutil.ToFloat64(other.PagesFetched))
}

func TestPush(t *testing.T) {
	var path, body string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New("kuma")
	m.RecordsPublished.Add(4)

	require.NoError(t, m.Push(context.Background(), gateway.URL))
	assert.Equal(t, "/metrics/job/product_harvester/dialect/kuma", path)
	assert.Contains(t, body, "harvester_records_published_total")
}

func TestPushDisabled(t *testing.T) {
	assert.NoError(t, New("kuma").Push(context.Background(), ""))
}

func TestPushGatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	assert.Error(t, New("kuma").Push(context.Background(), gateway.URL))
}
