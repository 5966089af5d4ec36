package injector

import (
	"context"

	"github.com/lk2023060901/ai-search-backend/internal/conf"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/server"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/biz"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	Search     *biz.SearchUseCase
}

// StartMaintenance runs analytics retention cleanup in the background until ctx is done
func (a *App) StartMaintenance(ctx context.Context) {
	go a.Search.StartMaintenance(ctx, a.Config.Analytics.MaintenanceInterval)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	search *biz.SearchUseCase,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Search:     search,
	}
}
