// Package notify delivers "new connection" notifications over the WebSocket
// hub, APNs push and SMS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"quincy-backend/internal/models"
	"quincy-backend/internal/services"
)

const fallbackPartnerName = "a fellow vinyl lover"

// UserLookup is satisfied by *repository.UserRepository
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileLookup is satisfied by *repository.ProfileRepository
type ProfileLookup interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

// Multi fans a notification out to several notifiers concurrently
type Multi struct {
	notifiers []services.ConnectionNotifier
}

var _ services.ConnectionNotifier = (*Multi)(nil)

// NewMulti skips nil notifiers
func NewMulti(notifiers ...services.ConnectionNotifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify returns the joined errors of every notifier that failed
func (m *Multi) Notify(ctx context.Context, conn *models.Connection, recipientID string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n services.ConnectionNotifier) {
			defer wg.Done()
			if err := n.Notify(ctx, conn, recipientID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func matchText(partnerName string) string {
	if partnerName == "" {
		partnerName = fallbackPartnerName
	}
	return fmt.Sprintf("You matched with %s on Quincy! 🎉🎶 Say hi before the meetup, open Quincy to start chatting.", partnerName)
}

// partnerName looks up the display name of the recipient's partner. Failures
// fall back to a generic name.
func partnerName(ctx context.Context, profiles ProfileLookup, conn *models.Connection, recipientID string) string {
	if profiles == nil {
		return ""
	}
	p, err := profiles.GetByUserID(ctx, conn.PartnerOf(recipientID))
	if err != nil {
		return ""
	}
	return p.DisplayName
}
