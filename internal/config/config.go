package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/disease-risk-api/internal/domain"
)

// DefaultJWTSecret is only suitable for local development
const DefaultJWTSecret = "your-secret-key"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from .env, config.yaml and the environment
func (m *Manager) loadConfig() error {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/disease-risk-api/")

	v.SetEnvPrefix("RISK_API")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return err
	}

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// bindLegacyEnv keeps the unprefixed variable names used by existing deployments
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.google.client_id":     {"RISK_API_AUTH_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID"},
		"auth.google.client_secret": {"RISK_API_AUTH_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
		"auth.google.redirect_uri":  {"RISK_API_AUTH_GOOGLE_REDIRECT_URI", "GOOGLE_REDIRECT_URI"},
		"auth.jwt_secret":           {"RISK_API_AUTH_JWT_SECRET", "JWT_SECRET_KEY"},
		"auth.jwt_algorithm":        {"RISK_API_AUTH_JWT_ALGORITHM", "JWT_ALGORITHM"},
		"auth.frontend_url":         {"RISK_API_AUTH_FRONTEND_URL", "FRONTEND_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Model defaults
	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.diseases", []map[string]interface{}{
		{"key": "diabetes_risk", "name": "Diabetes Risk", "artifact": "xgboost_model_diabetes_risk.json"},
		{"key": "cvd_risk", "name": "Cardiovascular Disease Risk", "artifact": "xgboost_model_cvd_risk.json"},
		{"key": "CKD", "name": "Chronic Kidney Disease (CKD)", "artifact": "xgboost_model_CKD.json"},
		{"key": "Autoimmune_Disorder", "name": "Autoimmune Disorder", "artifact": "xgboost_model_Autoimmune_Disorder.json"},
	})

	// Seeded vocabularies follow sorted label order, matching how the
	// training pipeline label-encoded these columns
	v.SetDefault("encoding.vocabulary", map[string][]string{
		domain.FeatureSmokingStatus: {"Current", "Former", "Never"},
		domain.FeaturePlaqueLevel:   {"High", "Low", "Medium"},
	})
	v.SetDefault("encoding.frozen", false)

	// Vocabulary persistence defaults
	v.SetDefault("vocabulary.backend", "sqlite")
	v.SetDefault("vocabulary.sqlite_path", "./data/vocabulary.db")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "disease_risk")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.run_migrations", true)

	// Cache defaults
	v.SetDefault("cache.memory_size", 64)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.token_ttl", "60m")
	v.SetDefault("auth.frontend_url", "http://localhost:3000/login")
	v.SetDefault("auth.request_timeout", "10s")
	v.SetDefault("auth.rate_limit", 10)
	v.SetDefault("auth.rate_burst", 5)
	v.SetDefault("auth.google.redirect_uri", "http://localhost:8000/auth/google/callback")
	v.SetDefault("auth.google.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.google.auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("auth.google.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("auth.google.userinfo_url", "https://www.googleapis.com/oauth2/v2/userinfo")

	// CORS defaults
	v.SetDefault("cors.allow_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("cors.max_age", "12h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetModelsConfig returns the disease model configuration
func (m *Manager) GetModelsConfig() *domain.ModelsConfig {
	return &m.config.Models
}

// GetAuthConfig returns OAuth and token configuration
func (m *Manager) GetAuthConfig() *domain.AuthConfig {
	return &m.config.Auth
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetCacheConfig returns cache configuration
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Models.Diseases) == 0 {
		return fmt.Errorf("at least one disease model is required")
	}
	seenKeys := make(map[string]bool)
	seenNames := make(map[string]bool)
	for i, d := range config.Models.Diseases {
		if d.Key == "" || d.Name == "" || d.Artifact == "" {
			return fmt.Errorf("disease %d: key, name and artifact are required", i)
		}
		if seenNames[d.Name] {
			return fmt.Errorf("duplicate disease name: %s", d.Name)
		}
		seenNames[d.Name] = true
		if seenKeys[d.Key] {
			return fmt.Errorf("duplicate disease key: %s", d.Key)
		}
		seenKeys[d.Key] = true
	}

	switch strings.ToLower(config.Vocabulary.Backend) {
	case "memory", "postgres":
	case "sqlite":
		if config.Vocabulary.SQLitePath == "" {
			return fmt.Errorf("vocabulary sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid vocabulary backend: %s", config.Vocabulary.Backend)
	}

	switch config.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT algorithm: %s", config.Auth.JWTAlgorithm)
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if m.IsProduction() && config.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("the default JWT secret must not be used in production")
	}
	if config.Auth.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl: %s", config.Auth.TokenTTL)
	}
	if _, err := url.Parse(config.Auth.FrontendURL); err != nil {
		return fmt.Errorf("invalid frontend url: %w", err)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseURL returns a postgres URL usable by both pgx and golang-migrate
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     db.Database,
		RawQuery: "sslmode=" + url.QueryEscape(db.SSLMode),
	}
	return u.String()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
