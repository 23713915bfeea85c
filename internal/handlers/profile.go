package handlers

import (
	"errors"
	"net/http"

	"quincy-backend/internal/middleware"
	"quincy-backend/internal/models"
	"quincy-backend/internal/progress"
	"quincy-backend/internal/services"
)

// ProfileHandler serves the caller's own profile
type ProfileHandler struct {
	userService    *services.UserService
	profileService *services.ProfileService
	resolver       progress.SnapshotResolver
}

func NewProfileHandler(userService *services.UserService, profileService *services.ProfileService, resolver progress.SnapshotResolver) *ProfileHandler {
	return &ProfileHandler{
		userService:    userService,
		profileService: profileService,
		resolver:       resolver,
	}
}

// MeResponse bundles everything the client needs after login
type MeResponse struct {
	User     *models.User    `json:"user"`
	Profile  *models.Profile `json:"profile,omitempty"`
	VibeCard string          `json:"vibe_card,omitempty"`
	Progress models.Progress `json:"progress"`
}

// GetMe handles GET /api/v1/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to get user")
		return
	}

	resp := MeResponse{
		User:     user,
		Progress: h.resolver.Resolve(ctx, userID).Progress,
	}

	profile, err := h.profileService.GetProfile(ctx, userID)
	switch {
	case err == nil:
		resp.Profile = profile
		resp.VibeCard = services.VibeCard(profile)
	case !errors.Is(err, services.ErrNotFound):
		respondServiceError(w, err, "Failed to get profile")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// UpdateProfile handles PUT /api/v1/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.profileService.UpdateProfile(ctx, userID, req)
	if err != nil {
		respondServiceError(w, err, "Failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"profile":   profile,
		"vibe_card": services.VibeCard(profile),
	})
}
