package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	client twiliowhatsapp.TwilioWhatsAppSender // real Twilio client or MockClient
	inbox  *inbox
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a new TwilioService around client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{client: client, inbox: newInbox("TwilioService")}
}

// ValidateAndCanonicalizeRecipient accepts plain numbers and "whatsapp:+..." addresses.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(twiliowhatsapp.PhoneFromAddress(recipient))
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio: inbound messages arrive through TwilioWebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the responses channel.
func (s *TwilioService) Stop() error {
	s.inbox.stop()
	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Responses returns the channel of inbound messages from the webhook.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.inbox.responses
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them as models.Response into the Responses() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		// Status callbacks and media-only messages carry no text to process.
		slog.Debug("Twilio webhook without text ignored", "from_set", from != "", "body_set", body != "")
		w.WriteHeader(http.StatusOK)
		return
	}

	response := models.Response{
		From:      twiliowhatsapp.PhoneFromAddress(from),
		Body:      body,
		MessageID: r.FormValue("MessageSid"),
		Time:      time.Now().Unix(),
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", response.From, "message_id", response.MessageID)

	if err := s.inbox.emit(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
