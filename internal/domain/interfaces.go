package domain

import (
	"context"
)

// Predictor runs every registered disease model over one request
type Predictor interface {
	PredictAll(ctx context.Context, raw RawInput) map[string]RiskResult
	Diseases() []string
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetModelsConfig() *ModelsConfig
	GetAuthConfig() *AuthConfig
	GetDatabaseConfig() *DatabaseConfig
	GetCacheConfig() *CacheConfig
	Reload() error
	Validate() error
	GetDatabaseURL() string
	IsProduction() bool
	IsDevelopment() bool
}
