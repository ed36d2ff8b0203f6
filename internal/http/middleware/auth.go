// README: Bearer-token auth middleware; verifies the token and reloads the caller.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/infra"
	"giftwave/internal/modules/account"
	"giftwave/internal/types"
)

const (
	ctxUID  = "uid"
	ctxRole = "role"
	ctxUser = "user"
)

// Authorizer reloads the caller and re-applies the sign-in checks.
type Authorizer interface {
	Authorize(ctx context.Context, id types.ID) (*account.User, error)
	AuthorizeFirebase(ctx context.Context, firebaseUID, verifiedEmail string) (*account.User, error)
}

// Auth verifies the bearer token. When users is set the caller is reloaded on
// every request so blocks and bans apply immediately. Firebase tokens name a
// Firebase account, not a user, so they are refused without users.
func Auth(verifier infra.TokenVerifier, users Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		firebaseToken := token.Provider == infra.ProviderFirebase

		if users == nil {
			if firebaseToken {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(ctxUID, token.UID)
			if role, ok := token.Claims["role"].(string); ok {
				c.Set(ctxRole, role)
			}
			c.Next()
			return
		}

		var u *account.User
		if firebaseToken {
			u, err = users.AuthorizeFirebase(c.Request.Context(), token.UID, token.VerifiedEmail())
		} else {
			u, err = users.Authorize(c.Request.Context(), types.ID(token.UID))
		}
		switch {
		case errors.Is(err, apperr.ErrNotEligible):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Message(err)})
			return
		case errors.Is(err, apperr.ErrUnavailable):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": apperr.Message(err)})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, string(u.ID))
		c.Set(ctxUser, u)
		c.Set(ctxRole, u.Role())
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Message(apperr.ErrForbidden)})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerID(c *gin.Context) types.ID {
	return types.ID(c.GetString(ctxUID))
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// CallerUser is nil unless Auth ran with an Authorizer.
func CallerUser(c *gin.Context) *account.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*account.User)
	return u
}
