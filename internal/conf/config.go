package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/database"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/redis"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Log       logger.Config          `mapstructure:"log"`
	Redis     redis.Config           `mapstructure:"redis"`
	Database  database.Config        `mapstructure:"database"`
	Cache     cache.Config           `mapstructure:"cache"`
	Analytics AnalyticsConfig        `mapstructure:"analytics"`
	WebSearch map[string]interface{} `mapstructure:"websearch"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AnalyticsConfig struct {
	analytics.Config    `mapstructure:",squash"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// LoadConfig reads the YAML file at path. Environment variables override file
// values using upper-case keys with dots replaced by underscores (SERVER_PORT).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the sections that are always in use
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Redis.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Database.Enabled {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	l := logger.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.format", l.Format)
	v.SetDefault("log.output", l.Output)
	v.SetDefault("log.service", "ai-search-backend")
	v.SetDefault("log.enablecaller", l.EnableCaller)
	v.SetDefault("log.enablestacktrace", l.EnableStacktrace)
	v.SetDefault("log.file.filename", l.File.Filename)
	v.SetDefault("log.file.maxsize", l.File.MaxSize)
	v.SetDefault("log.file.maxage", l.File.MaxAge)
	v.SetDefault("log.file.maxbackups", l.File.MaxBackups)
	v.SetDefault("log.file.compress", l.File.Compress)

	r := redis.DefaultConfig()
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", string(r.Mode))
	v.SetDefault("redis.addr", r.Addr)
	v.SetDefault("redis.pool_size", r.PoolSize)
	v.SetDefault("redis.min_idle_conns", r.MinIdleConns)
	v.SetDefault("redis.dial_timeout", r.DialTimeout)
	v.SetDefault("redis.read_timeout", r.ReadTimeout)
	v.SetDefault("redis.write_timeout", r.WriteTimeout)
	v.SetDefault("redis.max_retries", r.MaxRetries)

	d := database.DefaultConfig()
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", d.Host)
	v.SetDefault("database.port", d.Port)
	v.SetDefault("database.user", d.User)
	v.SetDefault("database.password", d.Password)
	v.SetDefault("database.dbname", d.DBName)
	v.SetDefault("database.sslmode", d.SSLMode)
	v.SetDefault("database.timezone", d.Timezone)
	v.SetDefault("database.maxidleconns", d.MaxIdleConns)
	v.SetDefault("database.maxopenconns", d.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", d.ConnMaxLifetime)
	v.SetDefault("database.loglevel", d.LogLevel)
	v.SetDefault("database.slowthreshold", d.SlowThreshold)
	v.SetDefault("database.automigrate", d.AutoMigrate)

	c := cache.DefaultConfig()
	v.SetDefault("cache.enabled", c.Enabled)
	v.SetDefault("cache.default_ttl", c.DefaultTTL)
	v.SetDefault("cache.max_size", c.MaxSize)

	a := analytics.DefaultConfig()
	v.SetDefault("analytics.enabled", a.Enabled)
	v.SetDefault("analytics.max_history", a.MaxHistory)
	v.SetDefault("analytics.retention_days", a.RetentionDays)
	v.SetDefault("analytics.maintenance_interval", time.Hour)
}
