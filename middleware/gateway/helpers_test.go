package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"classifier-gateway/middleware/gateway/application"
	"classifier-gateway/middleware/gateway/domain"
	"classifier-gateway/middleware/gateway/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type services struct {
	mr        *miniredis.Miniredis
	cache     *application.Cache
	admission *application.AdmissionService
	analytics *application.Analytics
}

func newServices(t *testing.T, admissionOpts ...application.AdmissionOption) *services {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &services{
		mr:        mr,
		cache:     application.NewCache(infra.NewLocalCache(100), infra.NewRedisCache(rdb)),
		admission: application.NewAdmissionService(infra.NewRedisAdmissionStore(rdb), admissionOpts...),
		analytics: application.NewAnalytics(infra.NewRedisAnalyticsStore(rdb)),
	}
}

func (s *services) issueKey(t *testing.T, tier domain.Tier) string {
	t.Helper()
	rec, err := s.admission.IssueAPIKey(context.Background(), tier)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	return rec.Key
}

func newRequest(method, target, body, addr string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.RemoteAddr = addr + ":40000"
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// classifier responde como o upstream de classificação.
func classifier(calls *int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}
