package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/logging"
	"github.com/disease-risk-api/internal/middleware"
)

// handlePredictAll scores the submitted fields against every disease model
func (s *Server) handlePredictAll(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.AbortWithError(c, domain.NewValidationError("body", "request body too large", tooLarge.Limit), "Invalid request body")
			return
		}
		middleware.AbortWithError(c, domain.NewValidationError("body", err.Error(), nil), "Invalid request body")
		return
	}

	var raw domain.RawInput
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		middleware.AbortWithError(c, domain.NewValidationError("body", "expected a JSON object", nil), "Invalid request body")
		return
	}

	results := s.deps.Predictor.PredictAll(c.Request.Context(), raw)
	c.JSON(http.StatusOK, results)
}

// handleFeatureImportance returns the top features chart for a disease key
func (s *Server) handleFeatureImportance(c *gin.Context) {
	key := c.Param("key")
	report, err := s.deps.Importance.Report(c.Request.Context(), key)
	if err != nil {
		if domain.CodeFor(err) != domain.ErrCodeNotFound {
			logging.FromContext(c.Request.Context(), s.logger).WithError(err).WithField("key", key).
				Error("Failed to build feature importance report")
		}
		middleware.AbortWithError(c, err, "Feature importance unavailable")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleGoogleLogin(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, s.deps.Identity.AuthCodeURL())
}

// handleGoogleCallback completes the OAuth flow and hands the frontend a token
func (s *Server) handleGoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		middleware.AbortWithError(c, domain.NewValidationError("code", "authorization code is required", nil), "Missing authorization code")
		return
	}

	identity, err := s.deps.Identity.Exchange(c.Request.Context(), code)
	if err != nil {
		logging.FromContext(c.Request.Context(), s.logger).WithError(err).Warn("OAuth code exchange failed")
		middleware.AbortWithError(c, err, "Failed to authenticate with Google")
		return
	}

	token, err := s.deps.Tokens.Issue(*identity)
	if err != nil {
		logging.FromContext(c.Request.Context(), s.logger).WithError(err).Error("Failed to issue access token")
		middleware.AbortWithError(c, err, "Failed to issue access token")
		return
	}

	target, err := url.Parse(s.configManager.GetAuthConfig().FrontendURL)
	if err != nil {
		middleware.AbortWithError(c, fmt.Errorf("invalid frontend url: %w", err), "Failed to redirect")
		return
	}
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	logging.FromContext(c.Request.Context(), s.logger).WithFields(logrus.Fields{
		"subject": identity.Email,
	}).Info("Issued access token")

	c.Redirect(http.StatusTemporaryRedirect, target.String())
}

func (s *Server) handleMe(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.AbortWithError(c, domain.ErrToken, "Not authenticated")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": claims})
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := make(map[string]string, len(s.deps.HealthChecks))
	healthy := true
	for name, check := range s.deps.HealthChecks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"models":    len(s.deps.Predictor.Diseases()),
		"checks":    checks,
	})
}

// diseaseInfo pairs the width a model expects with the width the feature
// builder produces. A mismatch means that disease always reports Error.
type diseaseInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	NumFeatures int    `json:"num_features"`
	VectorWidth int    `json:"vector_width"`
}

func (s *Server) handleDiseases(c *gin.Context) {
	out := make([]diseaseInfo, 0, len(s.deps.Diseases))
	for _, d := range s.deps.Diseases {
		info := diseaseInfo{Key: d.Key, Name: d.Name, VectorWidth: s.deps.FeatureWidth}
		if s.deps.Models != nil {
			info.NumFeatures, _ = s.deps.Models.NumFeatures(d.Name)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	c.JSON(http.StatusOK, gin.H{"diseases": out})
}

func (s *Server) handleVocabulary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vocabulary": s.deps.Vocabulary.Snapshot()})
}
