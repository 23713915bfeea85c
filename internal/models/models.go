package models

import (
	"fmt"
	"time"
)

// User represents an account in the system
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        *string   `json:"phone,omitempty"`
	PushToken    *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the onboarding answers of a user
type Profile struct {
	UserID              string    `json:"user_id"`
	DisplayName         string    `json:"display_name"`
	InstagramHandle     *string   `json:"instagram_handle,omitempty"`
	MusicIdentity       string    `json:"music_identity,omitempty"`
	TopGenres           []string  `json:"top_genres"`
	EventIntent         string    `json:"event_intent,omitempty"`
	AvatarURL           *string   `json:"avatar_url,omitempty"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Event is a single meetup instance. At most one is active at a time.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	VenueName string    `json:"venue_name"`
	City      string    `json:"city"`
	IsActive  bool      `json:"is_active"`
}

const RSVPStatusGoing = "going"

// RSVP records that a user is attending an event
type RSVP struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is a vinyl record a user brings to an event
type Record struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	TypedArtist string    `json:"typed_artist"`
	TypedAlbum  string    `json:"typed_album"`
	ImagePath   *string   `json:"image_path,omitempty"`
	UploadKey   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Uploaded reports whether the cover photo has been confirmed in storage.
// ImagePath stays nil until then; UploadKey is where the client PUTs it.
func (r *Record) Uploaded() bool {
	return r.ImagePath != nil
}

// WallEntry is a record joined with its owner's profile, as shown on the Vinyl Wall
type WallEntry struct {
	Record  Record
	Profile Profile
}

// Progress is a user's position in the funnel auth -> onboarding -> RSVP -> upload
type Progress struct {
	Authenticated      bool `json:"authenticated"`
	OnboardingComplete bool `json:"onboarding_complete"`
	HasRSVP            bool `json:"has_rsvp"`
	HasUploaded        bool `json:"has_uploaded"`
}

// InterestStatus is the state of a directed interest
type InterestStatus string

const (
	InterestPending  InterestStatus = "pending"
	InterestAccepted InterestStatus = "accepted"
	InterestDeclined InterestStatus = "declined"
)

// Terminal reports whether no further transition is allowed
func (s InterestStatus) Terminal() bool {
	return s == InterestAccepted || s == InterestDeclined
}

// Interest is one user vibing with another user's record
type Interest struct {
	ID         string         `json:"id"`
	EventID    string         `json:"event_id"`
	SenderID   string         `json:"sender_id"`
	ReceiverID string         `json:"receiver_id"`
	SubjectID  *string        `json:"subject_id,omitempty"`
	Status     InterestStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Connection represents a mutual match between two users
type Connection struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	UserAID        string    `json:"user_a_id"`
	UserBID        string    `json:"user_b_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// HasMember reports whether userID is one side of the connection
func (c *Connection) HasMember(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// PartnerOf returns the other member of the connection
func (c *Connection) PartnerOf(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// PairKey identifies an unordered pair of users within an event. UserA < UserB.
type PairKey struct {
	EventID string
	UserA   string
	UserB   string
}

// NewPairKey canonicalizes the pair so that both directions yield the same key
func NewPairKey(eventID, x, y string) PairKey {
	if x > y {
		x, y = y, x
	}
	return PairKey{EventID: eventID, UserA: x, UserB: y}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.EventID, k.UserA, k.UserB)
}

// Message is a chat message inside a connection
type Message struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	SenderID     string    `json:"sender_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConnectionPreview is what a connection list shows about the partner and the
// latest message
type ConnectionPreview struct {
	ConnectionID     string
	PartnerID        string
	PartnerName      string
	PartnerAvatarURL *string
	LastMessage      *Message
}

// ReminderTarget is an attendee who still has to upload a record
type ReminderTarget struct {
	UserID      string
	Phone       string
	DisplayName string
}
