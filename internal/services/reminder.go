package services

import (
	"context"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ReminderType selects the text of an upload reminder
type ReminderType string

const (
	ReminderUpload     ReminderType = "upload_reminder"
	ReminderDayBefore  ReminderType = "day_before"
	ReminderLastChance ReminderType = "last_chance"
)

// ParseReminderType falls back to ReminderUpload for unknown values
func ParseReminderType(s string) ReminderType {
	switch t := ReminderType(s); t {
	case ReminderUpload, ReminderDayBefore, ReminderLastChance:
		return t
	}
	return ReminderUpload
}

// SMSSender sends a text message
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type ReminderSource interface {
	GetActive(ctx context.Context) (*models.Event, error)
	ListWithoutUpload(ctx context.Context, eventID string) ([]models.ReminderTarget, error)
}

// ReminderError is one failed send
type ReminderError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// ReminderResult summarizes a reminder run
type ReminderResult struct {
	Sent              int             `json:"sent"`
	TotalNeedReminder int             `json:"total_need_reminder"`
	Errors            []ReminderError `json:"errors,omitempty"`
}

// ReminderService texts attendees who have not uploaded their record yet
type ReminderService struct {
	source ReminderSource
	sms    SMSSender
}

func NewReminderService(source ReminderSource, sms SMSSender) *ReminderService {
	return &ReminderService{source: source, sms: sms}
}

func reminderBody(t ReminderType, e *models.Event) string {
	switch t {
	case ReminderDayBefore:
		return fmt.Sprintf("Tomorrow's the day! 🔥 %s at %s. Make sure your record is on the Vinyl Wall "+
			"so people can find you before the meetup. 👉 Open Quincy", e.Title, e.VenueName)
	case ReminderLastChance:
		return fmt.Sprintf("%s is almost here! 🎵 People are already swiping and matching. "+
			"Upload your record now or you'll miss out on connections. 👉 Open Quincy", e.Title)
	}
	return fmt.Sprintf("Hey! 🎶 Don't forget to share the record you're bringing to %s. "+
		"The Vinyl Wall is filling up, upload yours so you don't miss a connection! 👉 Open Quincy to upload", e.Title)
}

// Send texts every attendee of the active event without an upload. A failed
// send is recorded in the result and does not stop the run.
func (s *ReminderService) Send(ctx context.Context, t ReminderType) (*ReminderResult, error) {
	if s.sms == nil {
		return nil, fmt.Errorf("send reminders: %w", ErrTransient)
	}

	event, err := s.source.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}

	targets, err := s.source.ListWithoutUpload(ctx, event.ID)
	if err != nil {
		return nil, storeError("list reminder targets", err)
	}

	body := reminderBody(t, event)
	result := &ReminderResult{TotalNeedReminder: len(targets)}
	for _, target := range targets {
		if err := s.sms.SendSMS(ctx, target.Phone, body); err != nil {
			log.Warn().Err(err).Str("user_id", target.UserID).Msg("Failed to send reminder")
			result.Errors = append(result.Errors, ReminderError{UserID: target.UserID, Error: err.Error()})
			continue
		}
		result.Sent++
	}

	log.Info().
		Str("event_id", event.ID).
		Str("type", string(t)).
		Int("sent", result.Sent).
		Int("total", result.TotalNeedReminder).
		Msg("Reminders sent")
	return result, nil
}
