package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/google/uuid"
)

// LogService is used when no transport credentials are configured: sends are logged and
// recorded, and inbound messages can be injected through the UltraMsg-shaped webhook.
type LogService struct {
	inbox *inbox
	mu    sync.Mutex
	sent  []models.Response
}

var _ Service = (*LogService)(nil)

func NewLogService() *LogService {
	return &LogService{inbox: newInbox("LogService")}
}

func (s *LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (s *LogService) Start(ctx context.Context) error { return nil }

func (s *LogService) Stop() error {
	s.inbox.stop()
	return nil
}

// SendMessage logs the message instead of delivering it.
func (s *LogService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	slog.Info("[MOCK] LogService SendMessage", "to", to, "body", body)
	s.mu.Lock()
	s.sent = append(s.sent, models.Response{From: to, Body: body})
	s.mu.Unlock()
	return nil
}

func (s *LogService) Responses() <-chan models.Response {
	return s.inbox.responses
}

// Inject queues an inbound message as if it had arrived from a user. Messages without an ID
// get a generated one so dedup treats each injection as distinct.
func (s *LogService) Inject(response models.Response) error {
	if response.MessageID == "" {
		response.MessageID = "local-" + uuid.NewString()
	}
	return s.inbox.emit(response)
}

// WebhookHandler accepts the UltraMsg webhook shape so a local setup can be driven by hand.
func (s *LogService) WebhookHandler() http.HandlerFunc {
	return UltraMsgWebhookHandler(s.inbox.emit)
}

// Sent returns the recorded outbound messages; From holds the recipient.
func (s *LogService) Sent() []models.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Response, len(s.sent))
	copy(out, s.sent)
	return out
}
