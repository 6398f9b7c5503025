package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"debtster-kpi/internal/domain"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const UserIDKey ctxKey = "userID"

type TokenFinder interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error)
}

// bearerToken returns the Authorization bearer token, falling back to the
// "token" query parameter used by websocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			return t
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func SanctumMiddleware(tokens TokenFinder, log *logrus.Entry) func(http.Handler) http.Handler {
	log = log.WithField("module", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain := bearerToken(r)
			if plain == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			pat, err := tokens.FindTokenByPlainToken(r.Context(), plain)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Debug("token lookup failed")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if pat.Expired(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), pat.UserID)))
		})
	}
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}
