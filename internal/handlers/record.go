package handlers

import (
	"net/http"

	"quincy-backend/internal/middleware"
	"quincy-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RecordHandler handles record uploads and the Vinyl Wall
type RecordHandler struct {
	recordService *services.RecordService
	// nil when no OpenAI key is configured
	metadata *services.MetadataService
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(recordService *services.RecordService, metadata *services.MetadataService) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		metadata:      metadata,
	}
}

// PrepareUpload handles POST /api/v1/records/upload
func (h *RecordHandler) PrepareUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.UploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.recordService.PrepareUpload(ctx, userID, req)
	if err != nil {
		respondServiceError(w, err, "Failed to prepare upload")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("record_id", resp.RecordID).
		Msg("Upload URL generated")

	respondJSON(w, http.StatusOK, resp)
}

// Wall handles GET /api/v1/wall
func (h *RecordHandler) Wall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cards, err := h.recordService.Wall(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to load the wall")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": cards,
		"total":   len(cards),
	})
}

// ExtractRequest carries a cover photo as a data URL or https URL
type ExtractRequest struct {
	Image string `json:"image"`
}

// Extract handles POST /api/v1/records/extract
func (h *RecordHandler) Extract(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		respondError(w, "Record recognition is not configured", http.StatusServiceUnavailable)
		return
	}

	var req ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	info, err := h.metadata.ExtractRecordInfo(r.Context(), req.Image)
	if err != nil {
		respondServiceError(w, err, "Failed to read the cover")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// SummaryRequest names an album to summarize
type SummaryRequest struct {
	Album  string `json:"album"`
	Artist string `json:"artist"`
}

// Summary handles POST /api/v1/records/summary
func (h *RecordHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		respondError(w, "Album summaries are not configured", http.StatusServiceUnavailable)
		return
	}

	var req SummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.metadata.SummarizeAlbum(r.Context(), req.Album, req.Artist)
	if err != nil {
		respondServiceError(w, err, "Failed to summarize the album")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ConfirmUpload handles POST /api/v1/records/{record_id}/confirm
func (h *RecordHandler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := h.recordService.ConfirmUpload(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "record_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to confirm upload")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Get handles GET /api/v1/records/{record_id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	card, err := h.recordService.RecordDetail(ctx, middleware.GetUserID(ctx), chi.URLParam(r, "record_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to load the record")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// Mine handles GET /api/v1/me/records
func (h *RecordHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.recordService.MyRecords(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to load your records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   len(records),
	})
}

// Attendee handles GET /api/v1/users/{user_id}
func (h *RecordHandler) Attendee(w http.ResponseWriter, r *http.Request) {
	profile, err := h.recordService.UserProfile(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to load the attendee")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
