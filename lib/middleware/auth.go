package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// userIDContextKey is the context key the resolved subject claim is stored
// under by JwtAuth.
type userIDContextKey struct{}

// JwtAuth returns middleware that rejects requests without a valid bearer
// token signed with jwtSecret. Unlike the full registry/build-token scheme
// a multi-tenant image host needs, bubbled has exactly one audience: the
// caller driving Exec against this process's single project, so the only
// claim consulted is the standard "sub".
func JwtAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			sub, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), userIDContextKey{}, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the "sub" claim JwtAuth resolved, or "" if
// the request was never authenticated through it.
func GetUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("no Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("Authorization header is not a Bearer token")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
