package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/content-service-backend/cache"
	"github.com/ruteri/content-service-backend/interfaces"
	"github.com/ruteri/content-service-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.OperationObserver = (*MetricsServer)(nil)
	_ cache.Observer            = (*MetricsServer)(nil)
)

func TestMetricsServer_Records(t *testing.T) {
	m, err := New("content_service", "")
	require.NoError(t, err)

	m.ProviderOperation("filesystem", "create_collection", 10*time.Millisecond, nil)
	m.ProviderOperation("filesystem", "create_collection", time.Millisecond, errors.New("boom"))
	m.ProviderOperation("rest", "read_item_version", time.Millisecond, interfaces.ErrNotFound)
	m.CacheLookup("remote", true)
	m.CacheLookup("remote", false)
	m.CacheLookup("remote", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("filesystem", "create_collection", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("filesystem", "create_collection", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("rest", "read_item_version", "not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheLookup.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheLookup.WithLabelValues("miss")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `content_service_provider_operations_total{operation="create_collection",provider="filesystem",status="ok"} 1`)
	assert.Contains(t, string(body), "content_service_provider_operation_duration_seconds_bucket")
	assert.Contains(t, string(body), `content_service_path_cache_lookups_total{result="miss"} 2`)
}
