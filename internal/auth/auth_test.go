package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/upload-service/internal/auth"
)

const (
	testKID      = "test-key"
	testIssuer   = "http://user-service:3000"
	testAudience = "civicpulse"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type jwksServer struct {
	*httptest.Server
	key  *rsa.PrivateKey
	hits atomic.Int32
	fail atomic.Bool
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	body, err := json.Marshal(set)
	require.NoError(t, err)

	s := &jwksServer{key: priv}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
	Email       string   `json:"email,omitempty"`
}

func (s *jwksServer) sign(t *testing.T, mutate func(*tokenClaims, *jwt.Token)) string {
	t.Helper()
	c := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Permissions: []string{"media:upload"},
		Email:       "resident@example.org",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	token.Header["kid"] = testKID
	if mutate != nil {
		mutate(c, token)
	}
	signed, err := token.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func newVerifier(s *jwksServer) *auth.Verifier {
	return auth.NewVerifier(auth.NewJWKSClient(s.URL, time.Minute), auth.Config{Issuer: testIssuer, Audience: testAudience})
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()
	s := newJWKSServer(t)
	v := newVerifier(s)

	p, err := v.Verify(context.Background(), s.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.Equal(t, "resident@example.org", p.Email)
	assert.True(t, p.HasPermission("media:upload"))
	assert.False(t, p.HasPermission("media:delete"))
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()
	s := newJWKSServer(t)
	v := newVerifier(s)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{name: "garbage", token: func() string { return "not.a.jwt" }},
		{name: "expired", token: func() string {
			return s.sign(t, func(c *tokenClaims, _ *jwt.Token) {
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			})
		}},
		{name: "wrong issuer", token: func() string {
			return s.sign(t, func(c *tokenClaims, _ *jwt.Token) { c.Issuer = "https://evil.example" })
		}},
		{name: "wrong audience", token: func() string {
			return s.sign(t, func(c *tokenClaims, _ *jwt.Token) { c.Audience = jwt.ClaimStrings{"other"} })
		}},
		{name: "missing subject", token: func() string {
			return s.sign(t, func(c *tokenClaims, _ *jwt.Token) { c.Subject = "" })
		}},
		{name: "unknown kid", token: func() string {
			return s.sign(t, func(_ *tokenClaims, tok *jwt.Token) { tok.Header["kid"] = "rotated" })
		}},
		{name: "signed by another key", token: func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
				Subject: "user-42", Issuer: testIssuer, Audience: jwt.ClaimStrings{testAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			tok.Header["kid"] = testKID
			signed, err := tok.SignedString(otherKey)
			require.NoError(t, err)
			return signed
		}},
		{name: "hmac", token: func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-42"})
			tok.Header["kid"] = testKID
			signed, err := tok.SignedString([]byte("secret"))
			require.NoError(t, err)
			return signed
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token())
			assert.Error(t, err)
		})
	}
}

func TestJWKSClient_CachesAndServesStale(t *testing.T) {
	t.Parallel()
	s := newJWKSServer(t)

	cached := auth.NewJWKSClient(s.URL, time.Hour)
	for range 3 {
		_, err := cached.KeySet(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), s.hits.Load())

	stale := auth.NewJWKSClient(s.URL, time.Nanosecond)
	first, err := stale.KeySet(context.Background())
	require.NoError(t, err)

	s.fail.Store(true)
	time.Sleep(time.Millisecond)
	second, err := stale.KeySet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Len(), second.Len())
}

func TestJWKSClient_FailsWithoutCache(t *testing.T) {
	t.Parallel()
	s := newJWKSServer(t)
	s.fail.Store(true)

	_, err := auth.NewJWKSClient(s.URL, time.Minute).KeySet(context.Background())
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	s := newJWKSServer(t)

	router := gin.New()
	router.POST("/upload",
		auth.Middleware(newVerifier(s), nil),
		auth.RequirePermissions("media:upload"),
		func(c *gin.Context) {
			p, ok := auth.FromContext(c)
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{"user": p.UserID})
		},
	)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + s.sign(t, nil), want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + s.sign(t, nil), want: http.StatusOK},
		{name: "missing permission", header: "Bearer " + s.sign(t, func(c *tokenClaims, _ *jwt.Token) {
			c.Permissions = []string{"media:read"}
		}), want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequirePermissions_WithoutMiddleware(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/", auth.RequirePermissions("media:upload"), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
