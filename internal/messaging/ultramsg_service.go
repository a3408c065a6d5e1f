package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Constants for the UltraMsg WhatsApp gateway
const (
	DefaultUltraMsgBaseURL = "https://api.ultramsg.com"
	DefaultUltraMsgTimeout = 10 * time.Second
	// UltraMsgPriority is sent with every message; 10 is the highest queue priority.
	UltraMsgPriority = 10
	// UltraMsgEventMessageReceived is the only webhook event that carries user input.
	UltraMsgEventMessageReceived = "message_received"
	ultraMsgUserSuffix           = "@c.us"
	maxWebhookBodyBytes          = 1 << 20
)

// UltraMsgOpts holds configuration for the UltraMsg service.
type UltraMsgOpts struct {
	InstanceID string
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// UltraMsgOption configures the UltraMsg service.
type UltraMsgOption func(*UltraMsgOpts)

// WithInstanceID sets the UltraMsg instance identifier.
func WithInstanceID(id string) UltraMsgOption {
	return func(o *UltraMsgOpts) { o.InstanceID = id }
}

// WithToken sets the UltraMsg API token.
func WithToken(token string) UltraMsgOption {
	return func(o *UltraMsgOpts) { o.Token = token }
}

// WithBaseURL overrides the API endpoint (tests point it at httptest).
func WithBaseURL(url string) UltraMsgOption {
	return func(o *UltraMsgOpts) { o.BaseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) UltraMsgOption {
	return func(o *UltraMsgOpts) { o.HTTPClient = c }
}

// UltraMsgService implements Service over the UltraMsg HTTP API and its JSON webhook.
type UltraMsgService struct {
	cfg   UltraMsgOpts
	inbox *inbox
}

var _ Service = (*UltraMsgService)(nil)

// NewUltraMsgService creates the service. Instance ID and token are required.
func NewUltraMsgService(opts ...UltraMsgOption) (*UltraMsgService, error) {
	cfg := UltraMsgOpts{BaseURL: DefaultUltraMsgBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.InstanceID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("ultramsg instance ID and token must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultUltraMsgTimeout}
	}
	slog.Debug("UltraMsgService created", "instance", cfg.InstanceID, "base_url", cfg.BaseURL)
	return &UltraMsgService{cfg: cfg, inbox: newInbox("UltraMsgService")}, nil
}

func (s *UltraMsgService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimSuffix(recipient, ultraMsgUserSuffix))
}

// Start is a no-op: inbound messages arrive through WebhookHandler.
func (s *UltraMsgService) Start(ctx context.Context) error {
	return nil
}

func (s *UltraMsgService) Stop() error {
	s.inbox.stop()
	slog.Info("UltraMsgService stopped")
	return nil
}

func (s *UltraMsgService) Responses() <-chan models.Response {
	return s.inbox.responses
}

type ultraMsgSendRequest struct {
	Token    string `json:"token"`
	To       string `json:"to"`
	Body     string `json:"body"`
	Priority int    `json:"priority"`
}

type ultraMsgSendResponse struct {
	Sent  string `json:"sent"`
	ID    any    `json:"id"`
	Error any    `json:"error"`
}

// SendMessage posts a chat message to the UltraMsg API.
func (s *UltraMsgService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("UltraMsgService SendMessage validation error", "error", err, "to", to)
		return err
	}

	payload, err := json.Marshal(ultraMsgSendRequest{Token: s.cfg.Token, To: canonicalTo, Body: body, Priority: UltraMsgPriority})
	if err != nil {
		return fmt.Errorf("failed to encode ultramsg request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages/chat", s.cfg.BaseURL, s.cfg.InstanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build ultramsg request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		slog.Error("UltraMsgService SendMessage failed", "error", err, "to", canonicalTo)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("UltraMsgService SendMessage rejected", "status", resp.StatusCode, "to", canonicalTo, "response", string(raw))
		return fmt.Errorf("ultramsg returned status %d for %s", resp.StatusCode, canonicalTo)
	}
	var out ultraMsgSendResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Error != nil {
		slog.Error("UltraMsgService SendMessage API error", "to", canonicalTo, "error", out.Error)
		return fmt.Errorf("ultramsg error for %s: %v", canonicalTo, out.Error)
	}
	slog.Debug("UltraMsgService message sent", "to", canonicalTo, "id", out.ID, "body_length", len(body))
	return nil
}

// WebhookHandler returns the handler for UltraMsg webhook callbacks.
func (s *UltraMsgService) WebhookHandler() http.HandlerFunc {
	return UltraMsgWebhookHandler(s.inbox.emit)
}

// UltraMsgWebhook is the JSON body UltraMsg posts for each event.
type UltraMsgWebhook struct {
	EventType string `json:"event_type"`
	Data      struct {
		ID     string `json:"id"`
		From   string `json:"from"`
		Body   string `json:"body"`
		FromMe bool   `json:"fromMe"`
	} `json:"data"`
}

// ParseUltraMsgWebhook decodes a webhook body. ok is false for events that carry no user
// message: other event types, our own messages, and empty payloads.
func ParseUltraMsgWebhook(body []byte) (resp models.Response, ok bool, err error) {
	var hook UltraMsgWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return models.Response{}, false, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if hook.EventType != "" && hook.EventType != UltraMsgEventMessageReceived {
		return models.Response{}, false, nil
	}
	if hook.Data.FromMe || hook.Data.From == "" || strings.TrimSpace(hook.Data.Body) == "" {
		return models.Response{}, false, nil
	}
	return models.Response{
		From:      strings.TrimSuffix(hook.Data.From, ultraMsgUserSuffix),
		Body:      hook.Data.Body,
		MessageID: hook.Data.ID,
		Time:      time.Now().Unix(),
	}, true, nil
}

// UltraMsgWebhookHandler acknowledges every well-formed callback with 200 and queues user
// messages through emit. It answers 500 only when a message could not be queued.
func UltraMsgWebhookHandler(emit func(models.Response) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			slog.Error("UltraMsg webhook read failed", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		response, ok, err := ParseUltraMsgWebhook(body)
		if err != nil {
			slog.Warn("UltraMsg webhook rejected", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if !ok {
			slog.Debug("UltraMsg webhook ignored")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Webhook received")
			return
		}
		if err := emit(response); err != nil {
			slog.Error("UltraMsg webhook could not queue message", "error", err, "from", response.From)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		slog.Info("Inbound WhatsApp message from UltraMsg", "from", response.From, "message_id", response.MessageID)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Webhook received")
	}
}
