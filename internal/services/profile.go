package services

import (
	"context"
	"strings"
	"time"

	"quincy-backend/internal/models"
)

const maxTopGenres = 3

// ProgressPublisher is told when a user's funnel progress may have changed
type ProgressPublisher interface {
	Publish(ctx context.Context, userID string)
}

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}

var (
	identityLabels = map[string]string{
		"casual_listener":  "🎧 Casual Listener",
		"vinyl_collector":  "💿 Vinyl Collector",
		"vinyl_dj":         "🎚️ Vinyl DJ",
		"live_music_lover": "🎤 Live-Music Lover",
		"music_explorer":   "🔍 Music Explorer",
	}
	genreLabels = map[string]string{
		"house":      "House",
		"techno":     "Techno",
		"jazz":       "Jazz",
		"soul_funk":  "Soul/Funk",
		"hiphop":     "Hip-Hop",
		"rnb":        "R&B",
		"afrobeat":   "Afrobeat",
		"latin":      "Latin",
		"rock":       "Rock",
		"electronic": "Electronic",
	}
	intentLabels = map[string]string{
		"discovering_music":  "Discovering new music",
		"meeting_people":     "Meeting people",
		"dancing":            "Dancing",
		"chilling":           "Chilling & vibing",
		"supporting_artists": "Supporting artists",
	}
)

func label(table map[string]string, key string) string {
	if l, ok := table[key]; ok {
		return l
	}
	return key
}

// VibeCard renders the one-line summary shown under a user's name, e.g.
// "💿 Vinyl Collector · House, Jazz · Meeting people".
func VibeCard(p *models.Profile) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.MusicIdentity != "" {
		parts = append(parts, label(identityLabels, p.MusicIdentity))
	}
	if len(p.TopGenres) > 0 {
		genres := make([]string, 0, len(p.TopGenres))
		for _, g := range p.TopGenres {
			genres = append(genres, label(genreLabels, g))
		}
		parts = append(parts, strings.Join(genres, ", "))
	}
	if p.EventIntent != "" {
		parts = append(parts, label(intentLabels, p.EventIntent))
	}
	return strings.Join(parts, " · ")
}

// ProfileService manages onboarding answers
type ProfileService struct {
	profiles  ProfileStore
	publisher ProgressPublisher
}

func NewProfileService(profiles ProfileStore, publisher ProgressPublisher) *ProfileService {
	return &ProfileService{profiles: profiles, publisher: publisher}
}

// UpdateProfileRequest represents the onboarding / edit-profile form
type UpdateProfileRequest struct {
	DisplayName        string   `json:"display_name"`
	InstagramHandle    *string  `json:"instagram_handle,omitempty"`
	MusicIdentity      string   `json:"music_identity"`
	TopGenres          []string `json:"top_genres"`
	EventIntent        string   `json:"event_intent"`
	AvatarURL          *string  `json:"avatar_url,omitempty"`
	CompleteOnboarding bool     `json:"complete_onboarding"`
}

func (r *UpdateProfileRequest) validate() error {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.InstagramHandle != nil {
		handle := strings.TrimPrefix(strings.TrimSpace(*r.InstagramHandle), "@")
		r.InstagramHandle = &handle
	}
	if len(r.TopGenres) > maxTopGenres {
		return validationError("pick up to %d genres", maxTopGenres)
	}
	if !r.CompleteOnboarding {
		return nil
	}
	if r.DisplayName == "" {
		return validationError("display name is required")
	}
	if r.MusicIdentity == "" || r.EventIntent == "" || len(r.TopGenres) == 0 {
		return validationError("answer every onboarding question to finish")
	}
	return nil
}

// GetProfile returns the profile of userID
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	return p, nil
}

// UpdateProfile saves the answers. Completing onboarding is one-way.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.Profile, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &models.Profile{
		UserID:              userID,
		DisplayName:         req.DisplayName,
		InstagramHandle:     req.InstagramHandle,
		MusicIdentity:       req.MusicIdentity,
		TopGenres:           req.TopGenres,
		EventIntent:         req.EventIntent,
		AvatarURL:           req.AvatarURL,
		OnboardingCompleted: req.CompleteOnboarding,
		UpdatedAt:           time.Now().UTC(),
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, storeError("update profile", err)
	}

	if req.CompleteOnboarding && s.publisher != nil {
		s.publisher.Publish(ctx, userID)
	}
	return p, nil
}
