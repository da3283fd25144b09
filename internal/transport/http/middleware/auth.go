package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// UserIDKey and UserEmailKey are the gin context keys Auth sets.
	UserIDKey    = "userID"
	UserEmailKey = "userEmail"

	errUnauthorized = "Unauthorized"
)

type AuthConfig struct {
	// JWKSURL selects RS256 verification against a remote key set.
	JWKSURL string
	// HMACKey is used for HS256 when JWKSURL is empty (local dev).
	HMACKey []byte
	// AcceptableSkew tolerates clock drift on exp/nbf/iat.
	AcceptableSkew time.Duration
}

// Auth validates a Bearer JWT and stores its subject (and email claim, when
// present) in the gin context. The JWKS is cached and refreshed at most
// every 15 minutes.
func Auth(ctx context.Context, cfg AuthConfig) (gin.HandlerFunc, error) {
	var parseOpts []jwt.ParseOption

	switch {
	case cfg.JWKSURL != "":
		cache := jwk.NewCache(ctx)
		if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			return nil, fmt.Errorf("register jwks: %w", err)
		}
		parseOpts = append(parseOpts, jwt.WithKeySet(jwk.NewCachedSet(cache, cfg.JWKSURL), jws.WithInferAlgorithmFromKey(true)))
	case len(cfg.HMACKey) > 0:
		parseOpts = append(parseOpts, jwt.WithKey(jwa.HS256, cfg.HMACKey))
	default:
		return nil, errors.New("auth: neither JWKS URL nor HMAC key configured")
	}
	parseOpts = append(parseOpts, jwt.WithValidate(true), jwt.WithAcceptableSkew(cfg.AcceptableSkew))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		tok, err := jwt.Parse([]byte(rawToken), parseOpts...)
		if err != nil || tok == nil || tok.Subject() == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(UserIDKey, tok.Subject())
		if v, ok := tok.Get("email"); ok {
			if email, ok := v.(string); ok && email != "" {
				c.Set(UserEmailKey, email)
			}
		}
		c.Next()
	}, nil
}
