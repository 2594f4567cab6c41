package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/groupify/backend/internal/logging"
)

// UserIDHeader is set by the authenticating gateway in front of the service.
const UserIDHeader = "X-User-ID"

// UserIdentity copies the gateway-provided user id onto the request context
// and the request logger. Requests without the header pass through unchanged;
// handlers that need a user reject them.
func UserIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logging.WithUserID(r.Context(), userID)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("user_id", userID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
