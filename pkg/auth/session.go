package auth

import (
	"context"
	"net/http"
	"strings"
)

// Session is the authenticated caller. It is passed explicitly to chat and
// presence components instead of living in process-wide state.
type Session struct {
	UserID string
	Token  string
}

func (s Session) Valid() bool { return s.UserID != "" }

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok && s.Valid()
}

// BearerToken extracts a token from the Authorization header, falling back to
// the "token" query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	return strings.TrimPrefix(tokenString, "Bearer ")
}

// Middleware rejects requests without a valid token and stores the Session in
// the request context.
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			writeUnauthorized(w, "authorization header required")
			return
		}

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}

		ctx := WithSession(r.Context(), Session{UserID: claims.UserID, Token: tokenString})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
