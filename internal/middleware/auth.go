package middleware

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/proctorrelay/internal/auth"
	"github.com/charlesng35/proctorrelay/pkg/errors"
	"github.com/charlesng35/proctorrelay/pkg/logger"
	"github.com/charlesng35/proctorrelay/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxIdentityKey = "identity"
)

// IdentityResolver maps validated claims onto an account.
type IdentityResolver interface {
	Resolve(ctx context.Context, claims *iauth.Claims) (iauth.Identity, error)
}

// Auth validates the bearer token and resolves the caller's identity before any
// handler runs. Browsers cannot set headers on a WebSocket handshake, so the token
// is also accepted from the token, access_token and authorization query parameters.
func Auth(jwt *iauth.JWTService, identities IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			unauthorized(c)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			logger.WithModule("http").Debug("token rejected", zap.Error(err))
			unauthorized(c)
			return
		}

		identity, err := identities.Resolve(c.Request.Context(), claims)
		if err != nil {
			logger.WithModule("http").Debug("identity not resolved", zap.Error(err))
			switch {
			case stdErrors.Is(err, iauth.ErrIdentityNotFound):
				reject(c, errors.ErrUserNotFound)
			case stdErrors.Is(err, iauth.ErrIdentityInvalid):
				unauthorized(c)
			default:
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
				c.Abort()
			}
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxIdentityKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the identity stored by Auth.
func IdentityFromContext(c *gin.Context) (iauth.Identity, bool) {
	value, ok := c.Get(CtxIdentityKey)
	if !ok {
		return iauth.Identity{}, false
	}
	identity, ok := value.(iauth.Identity)
	return identity, ok
}

func bearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	for _, key := range []string{"token", "access_token", "authorization"} {
		value := strings.TrimSpace(c.Query(key))
		if value == "" {
			continue
		}
		if len(value) > 7 && strings.EqualFold(value[:7], "Bearer ") {
			value = strings.TrimSpace(value[7:])
		}
		return value
	}
	return ""
}

func unauthorized(c *gin.Context) {
	reject(c, errors.ErrUnauthorized)
}

func reject(c *gin.Context, appErr *errors.AppError) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, appErr)
	c.Abort()
}
