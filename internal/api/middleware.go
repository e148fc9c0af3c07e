package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pingpad/pingpad/internal/chat"
)

const tokenCookieKey = "token"

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (chat.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(chat.Identity)
	return identity, ok
}

// bearerToken pulls the session token from the request, checking the cookie
// first, then the Authorization header, then the query string. The query
// string form exists for WebSocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(tokenCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", fmt.Errorf("malformed authorization header")
		}
		return token, nil
	}

	if token := r.URL.Query().Get(tokenCookieKey); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no session token")
}

func (s *PingpadApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		identity, err := s.sessions.Authenticate(token)
		if err != nil {
			s.log.Printf("authenticate: %v", err)
			errResp := apiError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

func (s *PingpadApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}
