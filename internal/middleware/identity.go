package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ContextKey string

const PlayerIDKey ContextKey = "playerID"

// PlayerIDHeader carries the acting player, set by the gateway in front of
// the engine after it has authenticated the caller.
const PlayerIDHeader = "X-Player-ID"

func RequirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(PlayerIDHeader)
		if raw == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		playerID, err := uuid.Parse(raw)
		if err != nil || playerID == uuid.Nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PlayerIDKey, playerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetPlayerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(PlayerIDKey)
	if val == nil {
		return uuid.Nil, false
	}

	id, ok := val.(uuid.UUID)
	return id, ok
}
