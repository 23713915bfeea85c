package handlers

import (
	"net/http"

	"quincy-backend/internal/gate"
	"quincy-backend/internal/middleware"
	"quincy-backend/internal/models"
	"quincy-backend/internal/progress"
)

// NavigationHandler tells the web client where a navigation attempt lands
type NavigationHandler struct {
	resolver progress.SnapshotResolver
	policy   *gate.Policy
}

func NewNavigationHandler(resolver progress.SnapshotResolver, policy *gate.Policy) *NavigationHandler {
	if policy == nil {
		policy = gate.DefaultPolicy()
	}
	return &NavigationHandler{resolver: resolver, policy: policy}
}

// NavigationResponse is the gate decision together with the progress it was made on
type NavigationResponse struct {
	Path     string          `json:"path"`
	Tier     string          `json:"tier"`
	Decision gate.Decision   `json:"decision"`
	Progress models.Progress `json:"progress"`
}

// Resolve handles GET /api/v1/navigation?path=
func (h *NavigationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path := gate.Normalize(r.URL.Query().Get("path"))
	snap := h.resolver.Resolve(ctx, middleware.GetUserID(ctx))

	respondJSON(w, http.StatusOK, NavigationResponse{
		Path:     path,
		Tier:     h.policy.Classify(path).String(),
		Decision: h.policy.Decide(snap.Progress, path),
		Progress: snap.Progress,
	})
}
