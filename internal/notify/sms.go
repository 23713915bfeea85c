package notify

import (
	"context"
	"fmt"
	"strings"

	"quincy-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is satisfied by the Twilio REST client's Api service
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends text messages through Twilio
type TwilioSender struct {
	api  messageCreator
	from string
}

// NewTwilioSender creates a sender for the given account
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from}
}

// SendSMS sends body to the E.164 number to
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	if msg.Sid != nil {
		log.Debug().Str("sid", *msg.Sid).Msg("SMS queued")
	}
	return nil
}

// SMSSender is satisfied by *TwilioSender
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMS texts the recipient that they matched
type SMS struct {
	sender   SMSSender
	users    UserLookup
	profiles ProfileLookup
	// appended to the text when set
	link string
}

func NewSMS(sender SMSSender, users UserLookup, profiles ProfileLookup) *SMS {
	return &SMS{sender: sender, users: users, profiles: profiles}
}

// WithAppURL links the matches page of the web client in every text
func (s *SMS) WithAppURL(appURL string) *SMS {
	if appURL != "" {
		s.link = strings.TrimSuffix(appURL, "/") + "/matches"
	}
	return s
}

// Notify skips recipients without a phone number
func (s *SMS) Notify(ctx context.Context, conn *models.Connection, recipientID string) error {
	user, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	if user.Phone == nil || *user.Phone == "" {
		return nil
	}
	body := matchText(partnerName(ctx, s.profiles, conn, recipientID))
	if s.link != "" {
		body += " " + s.link
	}
	return s.sender.SendSMS(ctx, *user.Phone, body)
}
