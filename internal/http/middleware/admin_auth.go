package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const adminClaimsKey contextKey = "adminClaims"

// AdminAuth guards the operator API. Two credentials are accepted: an
// HMAC-signed JWT in the Authorization header, or the static API key in
// X-Admin-Key (the path the approval-email links and curl use). With neither
// secret configured the whole admin surface is closed.
func AdminAuth(jwtSecret, apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jwtSecret == "" && apiKey == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}

			if apiKey != "" {
				if key := r.Header.Get("X-Admin-Key"); key != "" {
					if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
			}

			if jwtSecret == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
