package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "default", modify: func(c *Config) {}},
		{name: "missing host", modify: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "bad port", modify: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "missing user", modify: func(c *Config) { c.User = "" }, wantErr: true},
		{name: "missing dbname", modify: func(c *Config) { c.DBName = "" }, wantErr: true},
		{name: "bad sslmode", modify: func(c *Config) { c.SSLMode = "prefer" }, wantErr: true},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "debug" }, wantErr: true},
		{name: "idle exceeds open", modify: func(c *Config) { c.MaxIdleConns = 50 }, wantErr: true},
		{name: "unlimited open", modify: func(c *Config) {
			c.MaxOpenConns = 0
			c.MaxIdleConns = 50
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "db.internal"
	cfg.DBName = "search"

	assert.Equal(t,
		"host=db.internal port=5432 user=postgres password=postgres dbname=search sslmode=disable TimeZone=UTC",
		cfg.DSN(),
	)
}
