package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const (
	MsgTokenMissing     = "Token not provided or authorization header is missing."
	MsgTokenExpired     = "Token has expired."
	MsgTokenBlacklisted = "Token has been blacklisted."
	MsgTokenInvalid     = "Token is invalid."
	MsgUserNotFound     = "User not found."
)

// Keep these small so tests can fake them easily.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
	users  UserReader
}

func NewAuthMiddleware(tokens TokenVerifier, users UserReader) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, http.StatusUnauthorized, MsgTokenMissing)
			return
		}

		ctx := c.Request.Context()

		claims, err := m.tokens.Verify(ctx, raw)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				abortWithError(c, http.StatusUnauthorized, MsgTokenExpired)
			case errors.Is(err, auth.ErrTokenBlacklisted):
				abortWithError(c, http.StatusUnauthorized, MsgTokenBlacklisted)
			case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenMissing):
				abortWithError(c, http.StatusUnauthorized, MsgTokenInvalid)
			default:
				// blacklist backend unreachable
				slog.Default().ErrorContext(ctx, "token verification failed", "err", err)
				abortWithError(c, http.StatusInternalServerError, "Internal server error.")
			}
			return
		}

		u, err := m.users.GetByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				abortWithError(c, http.StatusUnauthorized, MsgUserNotFound)
				return
			}
			slog.Default().ErrorContext(ctx, "auth user lookup failed", "err", err)
			abortWithError(c, http.StatusInternalServerError, "Internal server error.")
			return
		}

		// Stash useful bits of identity on both contexts
		c.Set(CtxUserID, u.ID)
		c.Set(CtxEmail, u.Email)
		c.Set(CtxClaims, claims)
		c.Set(CtxUser, u)
		c.Set(CtxToken, raw)

		c.Request = c.Request.WithContext(actorctx.WithPrincipal(ctx, actorctx.Principal{
			UserID: u.ID,
			Email:  u.Email,
			Token:  raw,
		}))

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxUserID)
	return id, id != ""
}
