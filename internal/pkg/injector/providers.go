package injector

import (
	"context"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/conf"
	"github.com/lk2023060901/ai-search-backend/internal/data"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/server"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/biz"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/service"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	dataProviderSet,
	searchProviderSet,
	serverProviderSet,
)

var dataProviderSet = wire.NewSet(
	data.NewData,
)

var searchProviderSet = wire.NewSet(
	provideSettings,
	provideManager,
	wire.Bind(new(biz.Searcher), new(*biz.Manager)),
	provideCache,
	provideAnalytics,
	biz.NewSearchUseCase,
	service.NewSearchService,
)

var serverProviderSet = wire.NewSet(
	server.NewHTTPServer,
	newApp,
)

const restoreTimeout = 10 * time.Second

func provideSettings(config *conf.Config) *settings.Settings {
	return settings.FromConfig(config.WebSearch)
}

func provideManager(s *settings.Settings, log *logger.Logger) (*biz.Manager, func(), error) {
	m, err := biz.NewManager(s, biz.WithManagerLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}

func provideCache(config *conf.Config, d *data.Data, log *logger.Logger) *cache.Cache {
	opts := []cache.Option{cache.WithLogger(log)}
	if backend := d.CacheBackend(); backend != nil {
		opts = append(opts, cache.WithBackend(backend))
	}
	return cache.New(config.Cache, opts...)
}

func provideAnalytics(config *conf.Config, d *data.Data, log *logger.Logger) *analytics.Analytics {
	opts := []analytics.Option{analytics.WithLogger(log)}
	repo := d.MetricRepo()
	if repo != nil {
		opts = append(opts, analytics.WithStore(repo))
	}
	a := analytics.New(config.Analytics.Config, opts...)

	if repo != nil && a.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		if _, err := a.Restore(ctx); err != nil {
			log.Warn("failed to restore analytics history", zap.Error(err))
		}
	}
	return a
}
