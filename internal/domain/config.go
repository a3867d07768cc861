package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Models      ModelsConfig     `mapstructure:"models"`
	Encoding    EncodingConfig   `mapstructure:"encoding"`
	Vocabulary  VocabularyConfig `mapstructure:"vocabulary"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Auth        AuthConfig       `mapstructure:"auth"`
	CORS        CORSConfig       `mapstructure:"cors"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// ModelsConfig lists the disease classifiers loaded at startup
type ModelsConfig struct {
	Dir      string    `mapstructure:"dir"`
	Diseases []Disease `mapstructure:"diseases"`
}

// EncodingConfig controls the categorical encoder registry
type EncodingConfig struct {
	// Vocabulary seeds each categorical field with labels whose codes follow list order.
	Vocabulary map[string][]string `mapstructure:"vocabulary"`
	// Frozen rejects labels outside the seeded/persisted vocabulary.
	Frozen bool `mapstructure:"frozen"`
}

// VocabularyConfig selects where learned categorical codes are persisted
type VocabularyConfig struct {
	Backend    string `mapstructure:"backend"` // "memory", "sqlite", "postgres"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// CacheConfig represents feature-importance chart cache configuration
type CacheConfig struct {
	MemorySize  int           `mapstructure:"memory_size"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// AuthConfig represents OAuth and token configuration
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTAlgorithm   string        `mapstructure:"jwt_algorithm"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	FrontendURL    string        `mapstructure:"frontend_url"`
	Google         GoogleConfig  `mapstructure:"google"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// GoogleConfig represents the Google OAuth client registration
type GoogleConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url"`
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
