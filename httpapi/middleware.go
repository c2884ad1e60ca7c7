package httpapi

import (
	"context"
	"net/http"
	"strings"

	"loadboard/auth"
	"loadboard/load"
)

type contextKey string

const actorKey contextKey = "actor"

// TokenVerifier authenticates a bearer token into an identity and role.
type TokenVerifier interface {
	VerifyToken(token string) (string, auth.Role, error)
}

// requireAuth validates the bearer token and stores the acting identity in
// the request context.
func requireAuth(verifier TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		userID, role, err := verifier.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		actor := load.Actor{ID: userID, Role: role}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	}
}

func actorFrom(r *http.Request) load.Actor {
	actor, _ := r.Context().Value(actorKey).(load.Actor)
	return actor
}
