package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quincy-backend/internal/models"
	"quincy-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultNotifyTimeout = 10 * time.Second

// ConnectionNotifier tells one member of a new connection about it
type ConnectionNotifier interface {
	Notify(ctx context.Context, conn *models.Connection, recipientID string) error
}

// InterestStore is the storage behind the ledger. InPairTx must serialize all
// callers that share a pair key.
type InterestStore interface {
	InPairTx(ctx context.Context, key models.PairKey, fn func(repository.InterestTx) error) error
	GetInterest(ctx context.Context, id string) (*models.Interest, error)
	// IsAttendee reports whether userID can be vibed with in the event
	IsAttendee(ctx context.Context, eventID, userID string) (bool, error)
}

type ConnectionLister interface {
	ListByUser(ctx context.Context, userID string) ([]*models.Connection, error)
}

// Ledger records directed interests and materializes a connection once
// interest is mutual.
type Ledger struct {
	store         InterestStore
	connections   ConnectionLister
	notifier      ConnectionNotifier
	notifyTimeout time.Duration

	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

// NewLedger creates a ledger. notifier may be nil.
func NewLedger(store InterestStore, connections ConnectionLister, notifier ConnectionNotifier, notifyTimeout time.Duration) *Ledger {
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &Ledger{
		store:         store,
		connections:   connections,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
}

// ExpressInterest records that senderID is interested in receiverID within an
// event. Repeating the call returns the stored row. If the receiver already
// expressed interest in the sender, both rows are accepted and the connection
// is formed.
func (l *Ledger) ExpressInterest(ctx context.Context, eventID, senderID, receiverID string, subjectID *string) (*models.Interest, error) {
	if eventID == "" || senderID == "" || receiverID == "" {
		return nil, validationError("event, sender and receiver are required")
	}
	if senderID == receiverID {
		return nil, validationError("cannot express interest in yourself")
	}

	attending, err := l.store.IsAttendee(ctx, eventID, receiverID)
	if err != nil {
		return nil, storeError("express interest", err)
	}
	if !attending {
		return nil, fmt.Errorf("receiver %s is not on the wall of event %s: %w", receiverID, eventID, ErrNotFound)
	}

	var (
		result *models.Interest
		formed *models.Connection
	)
	key := models.NewPairKey(eventID, senderID, receiverID)
	err = l.store.InPairTx(ctx, key, func(tx repository.InterestTx) error {
		formed = nil

		own, err := findOptional(ctx, tx, eventID, senderID, receiverID)
		if err != nil {
			return err
		}
		reverse, err := findOptional(ctx, tx, eventID, receiverID, senderID)
		if err != nil {
			return err
		}

		// A declined direction closes the pair for good.
		if isDeclined(own) || isDeclined(reverse) {
			if own != nil {
				result = own
				return nil
			}
			result, err = tx.InsertInterest(ctx, l.newInterest(eventID, senderID, receiverID, subjectID, models.InterestDeclined))
			return err
		}

		if own == nil {
			own, err = tx.InsertInterest(ctx, l.newInterest(eventID, senderID, receiverID, subjectID, models.InterestPending))
			if err != nil {
				return err
			}
		}

		if reverse == nil || own.Status == models.InterestAccepted {
			result = own
			return nil
		}

		result, formed, err = l.accept(ctx, tx, key, own, reverse)
		return err
	})
	if err != nil {
		return nil, storeError("express interest", err)
	}

	l.notifyMembers(formed)
	return result, nil
}

// RespondToInterest lets the receiver accept or decline a pending interest.
// Rows that are no longer pending are returned unchanged.
func (l *Ledger) RespondToInterest(ctx context.Context, interestID, receiverID string, decision models.InterestStatus) (*models.Interest, error) {
	if interestID == "" || receiverID == "" {
		return nil, validationError("interest and receiver are required")
	}
	if decision != models.InterestAccepted && decision != models.InterestDeclined {
		return nil, validationError("decision must be accepted or declined, got %q", decision)
	}

	target, err := l.store.GetInterest(ctx, interestID)
	if err != nil {
		return nil, storeError("respond to interest", err)
	}
	if target.ReceiverID != receiverID {
		return nil, storeError("respond to interest", ErrNotFound)
	}

	var (
		result *models.Interest
		formed *models.Connection
	)
	key := models.NewPairKey(target.EventID, target.SenderID, target.ReceiverID)
	err = l.store.InPairTx(ctx, key, func(tx repository.InterestTx) error {
		formed = nil

		in, err := tx.GetInterest(ctx, interestID)
		if err != nil {
			return err
		}
		if in.Status != models.InterestPending {
			result = in
			return nil
		}

		if decision == models.InterestDeclined {
			at := l.now()
			if err := tx.SetInterestStatus(ctx, in.ID, models.InterestDeclined, at); err != nil {
				return err
			}
			in.Status = models.InterestDeclined
			in.UpdatedAt = at
			result = in
			return nil
		}

		reverse, err := findOptional(ctx, tx, in.EventID, in.ReceiverID, in.SenderID)
		if err != nil {
			return err
		}
		if isDeclined(reverse) {
			result = in
			return nil
		}

		result, formed, err = l.accept(ctx, tx, key, in, reverse)
		return err
	})
	if err != nil {
		return nil, storeError("respond to interest", err)
	}

	l.notifyMembers(formed)
	return result, nil
}

// ListConnectionsFor returns the user's connections, most recent activity first
func (l *Ledger) ListConnectionsFor(ctx context.Context, userID string) ([]*models.Connection, error) {
	if userID == "" {
		return nil, validationError("user is required")
	}
	conns, err := l.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list connections", err)
	}
	if conns == nil {
		conns = []*models.Connection{}
	}
	return conns, nil
}

// Wait blocks until every in-flight notification has finished
func (l *Ledger) Wait() {
	l.inflight.Wait()
}

// accept marks in (and the reverse row, if pending) accepted and upserts the
// pair's connection. The connection is returned only if this call created it.
func (l *Ledger) accept(ctx context.Context, tx repository.InterestTx, key models.PairKey, in, reverse *models.Interest) (*models.Interest, *models.Connection, error) {
	at := l.now()

	if in.Status != models.InterestAccepted {
		if err := tx.SetInterestStatus(ctx, in.ID, models.InterestAccepted, at); err != nil {
			return nil, nil, err
		}
		in.Status = models.InterestAccepted
		in.UpdatedAt = at
	}
	if reverse != nil && reverse.Status == models.InterestPending {
		if err := tx.SetInterestStatus(ctx, reverse.ID, models.InterestAccepted, at); err != nil {
			return nil, nil, err
		}
	}

	conn, created, err := tx.UpsertConnection(ctx, &models.Connection{
		ID:             l.newID(),
		EventID:        key.EventID,
		UserAID:        key.UserA,
		UserBID:        key.UserB,
		CreatedAt:      at,
		LastActivityAt: at,
	})
	if err != nil {
		return nil, nil, err
	}

	if !created {
		return in, nil, nil
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("event_id", conn.EventID).
		Str("user_a_id", conn.UserAID).
		Str("user_b_id", conn.UserBID).
		Msg("Connection formed")
	return in, conn, nil
}

func (l *Ledger) newInterest(eventID, senderID, receiverID string, subjectID *string, status models.InterestStatus) *models.Interest {
	at := l.now()
	return &models.Interest{
		ID:         l.newID(),
		EventID:    eventID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		SubjectID:  subjectID,
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// notifyMembers runs outside the pair transaction. Failures are logged only.
func (l *Ledger) notifyMembers(conn *models.Connection) {
	if conn == nil || l.notifier == nil {
		return
	}
	for _, recipient := range []string{conn.UserAID, conn.UserBID} {
		l.inflight.Add(1)
		go l.notify(conn, recipient)
	}
}

func (l *Ledger) notify(conn *models.Connection, recipientID string) {
	defer l.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("connection_id", conn.ID).Msg("Connection notifier panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.notifyTimeout)
	defer cancel()

	if err := l.notifier.Notify(ctx, conn, recipientID); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("recipient_id", recipientID).
			Msg("Failed to notify connection")
	}
}

func findOptional(ctx context.Context, tx repository.InterestTx, eventID, senderID, receiverID string) (*models.Interest, error) {
	in, err := tx.FindInterest(ctx, eventID, senderID, receiverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return in, err
}

func isDeclined(in *models.Interest) bool {
	return in != nil && in.Status == models.InterestDeclined
}
