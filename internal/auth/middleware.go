package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/postboard/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of type contextKey, so only this
// package can read or write userID values in the context.
type contextKey string

const userIDKey contextKey = "userID"

// CookieName is the HttpOnly cookie a browser client keeps its token in.
const CookieName = "token"

// Gate tells a handler who is making the request.
type Gate interface {
	// CurrentUserID returns the authenticated user's ID, or
	// apperror.ErrUnauthenticated for an anonymous request.
	CurrentUserID(ctx context.Context) (string, error)
}

// ContextGate reads the identity that Authenticate stored in the context.
type ContextGate struct{}

func (ContextGate) CurrentUserID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", apperror.Unauthenticated()
	}
	return id, nil
}

// Authenticate extracts the user identity if a valid token is present, but
// never blocks the request. Invalid or missing tokens leave it anonymous;
// handlers that need a user then get ErrUnauthenticated from the Gate.
//
// Use it on every API route: reads like GET /api/posts work anonymously but
// fill in voteStatus for a signed-in viewer.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth stops the chain with 401 unless Authenticate resolved a user.
// Mount it after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the context.
// Returns ("", false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID validates the bearer token if one is sent, otherwise the
// token cookie. A bearer header always wins over the cookie.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return "", apperror.Unauthenticated()
		}
		return tokens.Validate(strings.TrimSpace(raw))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		// http.ErrNoCookie: not an error, just anonymous
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
