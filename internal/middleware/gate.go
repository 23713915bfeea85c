package middleware

import (
	"net/http"

	"quincy-backend/internal/gate"
	"quincy-backend/internal/progress"

	"github.com/rs/zerolog/log"
)

// DeniedResponse tells the client where to navigate instead
type DeniedResponse struct {
	Error      string `json:"error"`
	RedirectTo string `json:"redirect_to"`
	ReturnTo   string `json:"return_to,omitempty"`
}

// RequireTier denies requests whose caller has not reached tier in the funnel.
// Progress is resolved on every request.
func RequireTier(tier gate.Tier, resolver progress.SnapshotResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			snap := resolver.Resolve(r.Context(), userID)

			decision := gate.Evaluate(snap.Progress, tier, gate.Normalize(r.URL.Path))
			if decision.Allow {
				next.ServeHTTP(w, r)
				return
			}

			log.Debug().
				Str("user_id", userID).
				Str("path", r.URL.Path).
				Str("tier", tier.String()).
				Str("redirect_to", decision.RedirectTo).
				Msg("Request gated")
			respondJSON(w, http.StatusForbidden, DeniedResponse{
				Error:      "Complete the previous step first",
				RedirectTo: decision.RedirectTo,
				ReturnTo:   decision.ReturnTo,
			})
		})
	}
}
