package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/auth"
	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/middleware"
	"github.com/disease-risk-api/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// ImportanceReporter renders feature importance for a disease key
type ImportanceReporter interface {
	Report(ctx context.Context, key string) (*service.ImportanceReport, error)
}

// TokenIssuer signs and verifies access tokens
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// VocabularySource exposes the categorical codes in use
type VocabularySource interface {
	Snapshot() map[string][]string
}

// ModelWidths reports the input width each loaded model expects
type ModelWidths interface {
	NumFeatures(disease string) (int, bool)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Dependencies are the components the routes delegate to
type Dependencies struct {
	Predictor    domain.Predictor
	Importance   ImportanceReporter
	Identity     auth.IdentityProvider
	Tokens       TokenIssuer
	Vocabulary   VocabularySource
	Diseases     []domain.Disease
	Models       ModelWidths
	FeatureWidth int
	HealthChecks map[string]HealthCheck
	Logger       *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	if len(cfg.CORS.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader},
			ExposeHeaders:    []string{middleware.CorrelationIDHeader},
			AllowCredentials: true,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	s := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        logger,
		router:        router,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/diseases", s.handleDiseases)
	s.router.GET("/vocabulary", s.handleVocabulary)

	s.router.POST("/predict_all", s.handlePredictAll)
	s.router.GET("/feature-importance/:key", s.handleFeatureImportance)

	authGroup := s.router.Group("/auth")
	{
		authGroup.GET("/google/login", s.handleGoogleLogin)
		authGroup.GET("/google/callback", s.handleGoogleCallback)
		authGroup.GET("/me", middleware.RequireBearer(s.deps.Tokens), s.handleMe)
	}

	s.router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, fmt.Errorf("%w: %s", domain.ErrNotFound, c.Request.URL.Path), "Route not found")
	})
}
