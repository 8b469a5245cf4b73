package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paceline/paceline/utils"
)

const (
	// ContextUserIDKey is where AuthRequired stores the authenticated user ID.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey is where AuthRequired stores the username.
	ContextUsernameKey = "username"
)

// AuthRequired rejects requests without a valid, unrevoked bearer token and
// stores the authenticated identity in the request context.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, code, msg := bearerToken(ctx)
		if token == "" {
			abortUnauthorized(ctx, code, msg)
			return
		}
		if utils.IsTokenBlacklisted(token) {
			abortUnauthorized(ctx, 40104, "token revoked")
			return
		}
		claims, err := utils.ParseToken(token)
		if err != nil {
			abortUnauthorized(ctx, 40105, "invalid token")
			return
		}
		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (token string, code int, msg string) {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		return "", 40101, "authorization header missing"
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", 40102, "invalid authorization header format"
	}
	token = strings.TrimSpace(rest)
	if token == "" {
		return "", 40103, "empty bearer token"
	}
	return token, 0, ""
}

func abortUnauthorized(ctx *gin.Context, code int, msg string) {
	utils.Error(ctx, http.StatusUnauthorized, code, msg)
	ctx.Abort()
}
