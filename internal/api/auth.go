package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// userID returns the authenticated user for the request. Only reachable
// behind the auth middleware, so the value is always present.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// authenticate validates the bearer token and provisions the user row on
// first sight. Tokens are HS256 with the user id in the subject claim.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			s.respond(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		})
		if err != nil {
			s.respond(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			s.respond(w, http.StatusUnauthorized, errorResponse{Error: "token has no subject"})
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			email = sub + "@local"
		}

		if err := s.store.EnsureUser(r.Context(), sub, email); err != nil {
			s.respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
