package middleware

import (
	"net/http"
	"slices"

	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Headers set by the upstream session authority after it authenticated the caller.
const (
	HeaderActorID      = "X-Actor-ID"
	HeaderActorRole    = "X-Actor-Role"
	HeaderActorCompany = "X-Actor-Company"
)

// Actor reads the caller identity forwarded by the session authority and
// stores it in the request context. Requests without identity pass through
// unauthenticated; RequireRole decides whether that is acceptable.
func Actor(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get(HeaderActorID)
			if rawID == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := uuid.Parse(rawID)
			if err != nil {
				logger.Warn("Malformed actor header", zap.String("actor_id", rawID))
				utils.ResponseUnauthorized(w, "Invalid actor identity")
				return
			}

			actor := utils.Actor{ID: id, Role: r.Header.Get(HeaderActorRole)}
			if rawCompany := r.Header.Get(HeaderActorCompany); rawCompany != "" {
				companyID, err := uuid.Parse(rawCompany)
				if err != nil {
					utils.ResponseUnauthorized(w, "Invalid actor company")
					return
				}
				actor.CompanyID = companyID
			}

			next.ServeHTTP(w, r.WithContext(utils.SetActorContext(r.Context(), actor)))
		})
	}
}

// RequireRole - middleware cek role actor. Admin always passes.
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := utils.GetActorFromContext(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			if !actor.IsAdmin() && !slices.Contains(roles, actor.Role) {
				logger.Warn("Role check: access denied",
					zap.String("actor_id", actor.ID.String()),
					zap.String("role", actor.Role),
					zap.Strings("required", roles),
					zap.String("path", r.URL.Path))
				utils.ResponseForbidden(w, "Insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
