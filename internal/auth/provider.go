package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/disease-risk-api/internal/domain"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Identity is the authenticated user as reported by the identity provider
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IdentityProvider runs the authorization-code flow
type IdentityProvider interface {
	// AuthCodeURL returns the consent page the user is redirected to
	AuthCodeURL() string
	// Exchange trades an authorization code for the user's identity.
	// Failures match domain.ErrUpstreamAuth.
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider implements IdentityProvider against Google OAuth 2.0
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

// NewGoogleProvider creates a provider from config. Empty endpoint URLs
// fall back to Google's.
func NewGoogleProvider(config domain.AuthConfig, logger *logrus.Logger) *GoogleProvider {
	g := config.Google

	endpoint := google.Endpoint
	if g.AuthURL != "" {
		endpoint.AuthURL = g.AuthURL
	}
	if g.TokenURL != "" {
		endpoint.TokenURL = g.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	userInfoURL := g.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}

	scopes := g.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GoogleOAuth",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Rejected codes are the caller's fault, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     breaker,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

// AuthCodeURL requests offline access and forces the consent screen
func (p *GoogleProvider) AuthCodeURL() string {
	return p.oauth.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades code for a token and fetches the user's profile
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limited: %v", domain.ErrUpstreamAuth, err)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.exchange(ctx, code)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.WithError(err).Warn("Identity provider unavailable, failing fast")
		}
		if errors.Is(err, domain.ErrUpstreamAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamAuth, err)
	}
	return result.(*Identity), nil
}

func (p *GoogleProvider) exchange(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %w", domain.ErrUpstreamAuth, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", domain.ErrUpstreamAuth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamAuth, err)
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching user info: %v", domain.ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: user info returned %d: %s", domain.ErrUpstreamAuth, resp.StatusCode, body)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%w: decoding user info: %v", domain.ErrUpstreamAuth, err)
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("%w: user info has no email", domain.ErrUpstreamAuth)
	}

	p.logger.WithField("email", identity.Email).Debug("User authenticated with identity provider")
	return &identity, nil
}

func isClientError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		return status >= 400 && status < 500
	}
	return false
}
