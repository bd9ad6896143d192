package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"order-service/internal/models"
	"order-service/internal/util"
)

type contextKey string

const userContextKey contextKey = "authenticated_user"

// LoggerMiddleware logs every HTTP request with status and latency.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Authenticator resolves basic credentials to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// RequireAuth rejects requests without valid basic credentials and stores
// the resolved user in the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="ordering"`)
				respondWithError(w, http.StatusUnauthorized,
					errors.New("credentials required"), "Authentication required")
				return
			}

			user, err := auth.Authenticate(r.Context(), email, password)
			if err != nil {
				respondWithError(w, getStatusCode(err), err, "Authentication failed")
				return
			}
			if user == nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="ordering"`)
				respondWithError(w, http.StatusUnauthorized,
					errors.New("invalid credentials"), "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFrom returns the authenticated user placed by RequireAuth, or nil on
// unauthenticated routes.
func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}
