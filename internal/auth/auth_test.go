package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disease-risk-api/internal/domain"
)

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	codec, err := NewTokenCodec("s3cret", "HS256", 60*time.Minute)
	require.NoError(t, err)

	token, err := codec.Issue(Identity{Email: "ann@example.com", Name: "Ann"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", claims.Subject)
	assert.Equal(t, "Ann", claims.Name)
	assert.Equal(t, 60*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestTokenCodec_Expiry(t *testing.T) {
	codec, err := NewTokenCodec("s3cret", "HS256", 60*time.Minute)
	require.NoError(t, err)

	issuedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issuedAt }
	token, err := codec.Issue(Identity{Email: "ann@example.com"})
	require.NoError(t, err)

	codec.now = func() time.Time { return issuedAt.Add(59 * time.Minute) }
	_, err = codec.Verify(token)
	assert.NoError(t, err)

	codec.now = func() time.Time { return issuedAt.Add(61 * time.Minute) }
	_, err = codec.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrToken))
}

func TestTokenCodec_Rejects(t *testing.T) {
	codec, err := NewTokenCodec("s3cret", "HS256", time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewTokenCodec("other", "HS256", time.Hour)
	require.NoError(t, err)
	forged, err := otherSecret.Issue(Identity{Email: "eve@example.com"})
	require.NoError(t, err)

	otherAlg, err := NewTokenCodec("s3cret", "HS512", time.Hour)
	require.NoError(t, err)
	wrongAlg, err := otherAlg.Issue(Identity{Email: "ann@example.com"})
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ann@example.com"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ann@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	valid, err := codec.Issue(Identity{Email: "ann@example.com"})
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"eve@example.com","exp":9999999999}`))
	tampered := strings.Join(parts, ".")

	tests := map[string]string{
		"Wrong secret":     forged,
		"Wrong algorithm":  wrongAlg,
		"Missing expiry":   noExpiry,
		"Missing subject":  noSubject,
		"Unsigned":         unsigned,
		"Malformed":        "not-a-token",
		"Empty":            "",
		"Tampered payload": tampered,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrToken))
		})
	}
}

func TestNewTokenCodec_Validation(t *testing.T) {
	_, err := NewTokenCodec("", "HS256", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenCodec("s", "RS256", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenCodec("s", "HS256", 0)
	assert.Error(t, err)

	codec, err := NewTokenCodec("s", "HS384", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, codec.TTL())
}

func newGoogleStub(t *testing.T, userInfoStatus int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_id") != "client-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if userInfoStatus != http.StatusOK {
			w.WriteHeader(userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"email": "ann@example.com", "name": "Ann"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(serverURL string) *GoogleProvider {
	logger, _ := logtest.NewNullLogger()
	return NewGoogleProvider(domain.AuthConfig{
		RequestTimeout: 2 * time.Second,
		Google: domain.GoogleConfig{
			ClientID:     "client-1",
			ClientSecret: "secret-1",
			RedirectURI:  "http://localhost:8000/auth/google/callback",
			AuthURL:      serverURL + "/auth",
			TokenURL:     serverURL + "/token",
			UserInfoURL:  serverURL + "/userinfo",
		},
	}, logger)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	p := newTestProvider("https://accounts.example.com")

	u, err := url.Parse(p.AuthCodeURL())
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", u.Host)
	assert.Equal(t, "/auth", u.Path)

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:8000/auth/google/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestGoogleProvider_Exchange(t *testing.T) {
	server := newGoogleStub(t, http.StatusOK)
	p := newTestProvider(server.URL)

	identity, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Email: "ann@example.com", Name: "Ann"}, identity)
}

func TestGoogleProvider_BadCodeDoesNotTripBreaker(t *testing.T) {
	server := newGoogleStub(t, http.StatusOK)
	p := newTestProvider(server.URL)

	for i := 0; i < 5; i++ {
		_, err := p.Exchange(context.Background(), "stale-code")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUpstreamAuth))
	}

	_, err := p.Exchange(context.Background(), "good-code")
	assert.NoError(t, err)
}

func TestGoogleProvider_UserInfoOutageOpensBreaker(t *testing.T) {
	server := newGoogleStub(t, http.StatusInternalServerError)
	p := newTestProvider(server.URL)

	for i := 0; i < 3; i++ {
		_, err := p.Exchange(context.Background(), "good-code")
		require.Error(t, err)
		assert.ErrorContains(t, err, "user info returned 500")
	}

	_, err := p.Exchange(context.Background(), "good-code")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamAuth))
	assert.ErrorContains(t, err, "circuit breaker is open")
}
