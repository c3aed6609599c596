package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/devconnector/internal/actorctx"
	"github.com/geocoder89/devconnector/internal/auth"
	"github.com/gin-gonic/gin"
)

const TokenHeader = "x-auth-token"

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Runner bounds CPU-bound work; *workpool.Pool satisfies it.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

type AuthMiddleware struct {
	jwt  TokenVerifier
	pool Runner
}

// NewAuthMiddleware builds the token check. A nil pool verifies inline.
func NewAuthMiddleware(jwt TokenVerifier, pool Runner) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, pool: pool}
}

func (m *AuthMiddleware) verify(ctx context.Context, raw string) (*auth.Claims, error) {
	var claims *auth.Claims

	run := func() error {
		var err error
		claims, err = m.jwt.Verify(raw)
		return err
	}

	if m.pool == nil {
		return claims, run()
	}

	return claims, m.pool.Do(ctx, run)
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TokenHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "No token, authorization denied"})
			return
		}

		claims, err := m.verify(c.Request.Context(), raw)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				// pool acquisition failed, the request was cancelled or timed out
				slog.WarnContext(c.Request.Context(), "token verification aborted", "err", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token is not valid"})
			return
		}

		c.Set(CtxUserID, claims.User.ID)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.User.ID))

		c.Next()
	}
}

// UserIDFromContext spares handlers from knowing the context key.
func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
