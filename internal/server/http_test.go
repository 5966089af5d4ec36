package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/ai-search-backend/internal/conf"
	"github.com/lk2023060901/ai-search-backend/internal/data"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/biz"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/provider"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/service"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
)

func newTestServer(t *testing.T) *HTTPServer {
	nop := logger.NewNop()
	s := settings.FromConfig(nil)

	manager, err := biz.NewManager(s, biz.WithRegistry(provider.NewRegistry()), biz.WithManagerLogger(nop))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(manager.Close)

	uc := biz.NewSearchUseCase(s, manager,
		cache.New(cache.DefaultConfig(), cache.WithLogger(nop)),
		analytics.New(analytics.DefaultConfig(), analytics.WithLogger(nop)),
		nop,
	)

	cfg := &conf.Config{Server: conf.ServerConfig{Port: 8080, Mode: gin.TestMode}}
	return NewHTTPServer(cfg, nop, service.NewSearchService(uc, nop), &data.Data{})
}

func TestHTTPServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/search/providers", http.StatusOK},
		{http.MethodGet, "/api/v1/search/cache/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/search/analytics/report", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))
		})
	}
}
