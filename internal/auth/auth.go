package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const principalKey = "auth"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrUnknownKey   = errors.New("signing key not found")
)

// Principal is the authenticated caller of an upload request.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions []string
	Email       string
}

func (p *Principal) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}

type Config struct {
	Issuer   string
	Audience string
}

// KeySource supplies the verification keys.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

type cachedJWKS struct {
	set       jwk.Set
	expiresAt time.Time
}

// JWKSClient fetches a remote key set and caches it for a TTL. A failed
// refresh keeps serving the previous set.
type JWKSClient struct {
	url        string
	cache      *cachedJWKS
	cacheTTL   time.Duration
	mu         sync.RWMutex
	httpClient *http.Client
}

func NewJWKSClient(url string, cacheTTL time.Duration) *JWKSClient {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &JWKSClient{
		url:        url,
		cacheTTL:   cacheTTL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *JWKSClient) KeySet(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		set := c.cache.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		return c.cache.set, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		if c.cache != nil {
			return c.cache.set, nil
		}
		return nil, err
	}

	c.cache = &cachedJWKS{set: set, expiresAt: time.Now().Add(c.cacheTTL)}
	return set, nil
}

func (c *JWKSClient) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	set, err := jwk.ParseReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, nil
}

type claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Email       string   `json:"email"`
}

// Verifier checks RSA-signed bearer tokens against a key set.
type Verifier struct {
	keys KeySource
	cfg  Config
}

func NewVerifier(keys KeySource, cfg Config) *Verifier {
	return &Verifier{keys: keys, cfg: cfg}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid in header")
		}
		set, err := v.keys.KeySet(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get JWKS: %w", err)
		}
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
		}
		var publicKey any
		if err := key.Raw(&publicKey); err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	if c.Subject == "" {
		return nil, errors.New("token missing sub claim")
	}

	return &Principal{
		UserID:      c.Subject,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		Email:       c.Email,
	}, nil
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// Principal on the gin context.
func Middleware(v *Verifier, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid authorization header",
				"code":  "Unauthorized",
			})
			return
		}

		principal, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Info("Rejected bearer token", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "Unauthorized",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequirePermissions aborts with 403 unless the principal holds every
// permission in required.
func RequirePermissions(required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated", "code": "Unauthorized"})
			return
		}

		for _, perm := range required {
			if !principal.HasPermission(perm) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":    "Insufficient permissions",
					"code":     "Forbidden",
					"required": required,
				})
				return
			}
		}

		c.Next()
	}
}

func FromContext(c *gin.Context) (*Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
