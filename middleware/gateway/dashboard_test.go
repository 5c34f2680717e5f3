package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/domain"
	"classifier-gateway/middleware/gateway/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelopeOf[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Format  string `json:"format"`
}

func decodeEnvelope[T any](t *testing.T, body []byte) envelopeOf[T] {
	t.Helper()
	var e envelopeOf[T]
	require.NoError(t, json.Unmarshal(body, &e), "body: %s", body)
	return e
}

func newDashboard(t *testing.T, ttl time.Duration) (*services, http.Handler) {
	t.Helper()
	svc := newServices(t)
	rec := infra.NewPrometheusRecorder()
	h := NewDashboardRouter(DashboardOptions{
		Analytics:    svc.analytics,
		Admission:    svc.admission,
		Cache:        svc.cache,
		DashboardTTL: ttl,
		Metrics:      rec.Handler(),
	})
	return svc, h
}

func withKey(r *http.Request, key string) *http.Request {
	r.Header.Set(APIKeyHeader, key)
	return r
}

func TestDashboard_PublicRoutes(t *testing.T) {
	_, h := newDashboard(t, 0)

	w := serve(h, newRequest(http.MethodGet, "http://admin/health", "", "127.0.0.1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(h, newRequest(http.MethodGet, "http://admin/metrics", "", "127.0.0.1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestDashboard_RequiresValidKey(t *testing.T) {
	_, h := newDashboard(t, 0)

	w := serve(h, newRequest(http.MethodGet, "http://admin/analytics/realtime", "", "127.0.0.1"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key required", decodeDetail(t, w.Body.Bytes()))

	w = serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/realtime", "", "127.0.0.1"), "bogus"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", decodeDetail(t, w.Body.Bytes()))
}

func TestDashboard_AnalyticsViews(t *testing.T) {
	svc, h := newDashboard(t, 0)
	key := svc.issueKey(t, domain.TierFree)

	svc.analytics.RecordRequest(context.Background(),
		domain.RequestMeta{ClientAddress: "10.0.0.1", Path: "/honeypot/interact"},
		domain.TierFree,
		domain.ResultMeta{IsScam: true, DetectedPatterns: []string{"urgency"}},
		120*time.Millisecond,
	)

	w := serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/realtime", "", "127.0.0.1"), key))
	require.Equal(t, http.StatusOK, w.Code)
	rt := decodeEnvelope[domain.RealTimeStats](t, w.Body.Bytes())
	assert.True(t, rt.Success)
	assert.Equal(t, int64(1), rt.Data.TotalRequests)
	assert.Equal(t, float64(100), rt.Data.ScamRate)

	for _, path := range []string{"/analytics/intel", "/analytics/performance", "/analytics/trending", "/analytics/dashboard", "/security/stats", "/cache/stats"} {
		w := serve(h, withKey(newRequest(http.MethodGet, "http://admin"+path, "", "127.0.0.1"), key))
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, decodeEnvelope[json.RawMessage](t, w.Body.Bytes()).Success, path)
	}

	w = serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/performance", "", "127.0.0.1"), key))
	perf := decodeEnvelope[domain.PerformanceMetrics](t, w.Body.Bytes())
	assert.Equal(t, 0.12, perf.Data.Avg)
	assert.Equal(t, 1, perf.Data.Count)
}

func TestDashboard_DashboardIsCached(t *testing.T) {
	svc, h := newDashboard(t, time.Minute)
	key := svc.issueKey(t, domain.TierFree)

	w := serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/dashboard", "", "127.0.0.1"), key))
	require.Equal(t, http.StatusOK, w.Code)

	cached := 0
	for _, k := range svc.mr.Keys() {
		if strings.HasPrefix(k, "cache:analytics:") {
			cached++
		}
	}
	assert.Equal(t, 1, cached)
}

func TestDashboard_Export(t *testing.T) {
	svc, h := newDashboard(t, 0)
	key := svc.issueKey(t, domain.TierFree)

	w := serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/export", "", "127.0.0.1"), key))
	require.Equal(t, http.StatusOK, w.Code)
	js := decodeEnvelope[domain.AnalyticsSnapshot](t, w.Body.Bytes())
	assert.Equal(t, "json", js.Format)
	assert.False(t, js.Data.Timestamp.IsZero())

	w = serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/export?format=yaml", "", "127.0.0.1"), key))
	require.Equal(t, http.StatusOK, w.Code)
	ym := decodeEnvelope[string](t, w.Body.Bytes())
	assert.Equal(t, "yaml", ym.Format)
	assert.Contains(t, ym.Data, "total_requests: 0")

	w = serve(h, withKey(newRequest(http.MethodGet, "http://admin/analytics/export?format=xml", "", "127.0.0.1"), key))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard_AdminRequiresPremium(t *testing.T) {
	svc, h := newDashboard(t, 0)
	free := svc.issueKey(t, domain.TierFree)
	premium := svc.issueKey(t, domain.TierPremium)

	w := serve(h, withKey(newRequest(http.MethodPost, "http://admin/admin/api-keys", `{"tier":"basic"}`, "127.0.0.1"), free))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "insufficient tier", decodeDetail(t, w.Body.Bytes()))

	w = serve(h, withKey(newRequest(http.MethodPost, "http://admin/admin/api-keys", `{"tier":"basic"}`, "127.0.0.1"), premium))
	require.Equal(t, http.StatusCreated, w.Code)
	issued := decodeEnvelope[issuedKey](t, w.Body.Bytes())
	assert.Len(t, issued.Data.APIKey, 64)
	assert.Equal(t, domain.TierBasic, issued.Data.Tier)

	rec, err := svc.admission.ValidateAPIKey(context.Background(), issued.Data.APIKey)
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, rec.Tier)

	w = serve(h, withKey(newRequest(http.MethodPost, "http://admin/admin/api-keys", `{"tier":"gold"}`, "127.0.0.1"), premium))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard_ClearNamespace(t *testing.T) {
	svc, h := newDashboard(t, 0)
	premium := svc.issueKey(t, domain.TierPremium)
	ctx := context.Background()

	svc.cache.Set(ctx, "scam_detection:a", []byte(`{}`), time.Minute)
	svc.cache.Set(ctx, "scam_detection:b", []byte(`{}`), time.Minute)
	svc.cache.Set(ctx, "analytics:c", []byte(`{}`), time.Minute)

	w := serve(h, withKey(newRequest(http.MethodDelete, "http://admin/admin/cache/scam_detection", "", "127.0.0.1"), premium))
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeEnvelope[map[string]any](t, w.Body.Bytes())
	assert.Equal(t, "scam_detection", out.Data["namespace"])
	assert.Equal(t, float64(2), out.Data["removed"])

	_, ok := svc.cache.Get(ctx, "scam_detection:a")
	assert.False(t, ok)
	_, ok = svc.cache.Get(ctx, "analytics:c")
	assert.True(t, ok)
}

func TestDashboard_ClearNamespaceWithDependents(t *testing.T) {
	svc := newServices(t)
	premium := svc.issueKey(t, domain.TierPremium)
	ctx := context.Background()

	inv := application.NewInvalidator(svc.cache)
	inv.AddDependency("scam_detection", "analytics")
	h := NewDashboardRouter(DashboardOptions{
		Analytics:   svc.analytics,
		Admission:   svc.admission,
		Cache:       svc.cache,
		Invalidator: inv,
	})

	svc.cache.Set(ctx, "scam_detection:a", []byte(`{}`), time.Minute)
	svc.cache.Set(ctx, "analytics:c", []byte(`{}`), time.Minute)
	svc.cache.Set(ctx, "intelligence:d", []byte(`{}`), time.Minute)

	w := serve(h, withKey(newRequest(http.MethodDelete, "http://admin/admin/cache/scam_detection", "", "127.0.0.1"), premium))
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeEnvelope[map[string]any](t, w.Body.Bytes())
	assert.Equal(t, float64(2), out.Data["removed"])
	assert.Equal(t, []any{"analytics"}, out.Data["dependents"])

	_, ok := svc.cache.Get(ctx, "analytics:c")
	assert.False(t, ok)
	_, ok = svc.cache.Get(ctx, "intelligence:d")
	assert.True(t, ok)
}
