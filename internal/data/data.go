package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/conf"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/database"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/redis"
	wsdata "github.com/lk2023060901/ai-search-backend/internal/websearch/data"
)

// Data holds the optional external stores. A nil field means the store is disabled.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{logger: log.Named("data")}

	if config.Redis.Enabled {
		client, err := redis.New(&config.Redis, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		d.Redis = client
	}

	if config.Database.Enabled {
		db, err := database.New(&config.Database, log)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db

		if err := db.AutoMigrate(&wsdata.SearchMetricPO{}); err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	d.logger.Info("data layer initialized",
		zap.Bool("redis", d.Redis != nil),
		zap.Bool("database", d.DB != nil),
	)
	return d, d.close, nil
}

func (d *Data) close() {
	d.logger.Info("cleaning up data resources")

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("close redis failed", zap.Error(err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.logger.Warn("close database failed", zap.Error(err))
		}
	}
}

// Health pings each enabled store and reports "ok" or the error text per store
func (d *Data) Health(ctx context.Context) map[string]string {
	status := make(map[string]string, 2)
	if d.Redis != nil {
		status["redis"] = healthOf(d.Redis.Ping(ctx))
	}
	if d.DB != nil {
		status["database"] = healthOf(d.DB.HealthCheck(ctx))
	}
	return status
}

func healthOf(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

// CacheBackend returns the Redis cache tier, or nil when Redis is disabled
func (d *Data) CacheBackend() *wsdata.RedisCacheBackend {
	if d.Redis == nil {
		return nil
	}
	return wsdata.NewRedisCacheBackend(d.Redis)
}

// MetricRepo returns the PostgreSQL metrics sink, or nil when the database is disabled
func (d *Data) MetricRepo() *wsdata.MetricRepo {
	if d.DB == nil {
		return nil
	}
	return wsdata.NewMetricRepo(d.DB.DB)
}
