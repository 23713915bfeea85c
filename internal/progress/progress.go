// Package progress resolves a user's funnel progress from the profile store and
// fans out changes to subscribers.
package progress

import (
	"context"
	"time"

	"quincy-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single resolution when none is configured.
const DefaultTimeout = 3 * time.Second

// State of a snapshot
type State int

const (
	// Loading must never reach the gate.
	Loading State = iota
	Resolved
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Resolved:
		return "resolved"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Snapshot is the outcome of a progress resolution
type Snapshot struct {
	State    State           `json:"-"`
	Progress models.Progress `json:"progress"`
}

// Ready reports whether the snapshot may be evaluated by the gate.
func (s Snapshot) Ready() bool {
	return s.State != Loading
}

// Unauth is the most restrictive snapshot.
func Unauth() Snapshot {
	return Snapshot{State: Unauthenticated}
}

// Source reads the stored facts progress is derived from.
type Source interface {
	// ActiveEventID returns "" when no event is active.
	ActiveEventID(ctx context.Context) (string, error)
	Lookup(ctx context.Context, userID, eventID string) (models.Progress, error)
}

// Resolver derives progress under a bounded timeout
type Resolver struct {
	source  Source
	timeout time.Duration
}

func NewResolver(source Source, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{source: source, timeout: timeout}
}

// Resolve never returns Loading. Store failures and timeouts degrade to
// Unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, userID string) Snapshot {
	if userID == "" {
		return Unauth()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	eventID, err := r.source.ActiveEventID(ctx)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to resolve active event")
		return Unauth()
	}

	p, err := r.source.Lookup(ctx, userID, eventID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to resolve progress")
		return Unauth()
	}

	p.Authenticated = true
	if eventID == "" {
		p.HasRSVP = false
		p.HasUploaded = false
	}
	return Snapshot{State: Resolved, Progress: p}
}
