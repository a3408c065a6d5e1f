package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the responses channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted phone number
	MinPhoneDigits = 6
)

var (
	// ErrServiceStopped is returned when sending or receiving on a stopped service.
	ErrServiceStopped = errors.New("messaging: service stopped")
	// ErrInboxFull is returned when an inbound message cannot be queued in time.
	ErrInboxFull = errors.New("messaging: responses channel full")
)

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides a channel of inbound user messages.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the responses channel.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips everything but digits and checks the result is long enough.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	return canonical, nil
}

// inbox is the responses channel shared by every Service implementation.
type inbox struct {
	name      string
	responses chan models.Response
	mu        sync.RWMutex
	stopped   bool
}

func newInbox(name string) *inbox {
	return &inbox{name: name, responses: make(chan models.Response, DefaultChannelBufferSize)}
}

// emit queues an inbound message, giving up after DefaultChannelTimeout.
func (b *inbox) emit(response models.Response) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+" dropping inbound response (service stopped)", "from", response.From)
		return ErrServiceStopped
	}
	select {
	case b.responses <- response:
		slog.Debug(b.name+" emitted inbound response", "from", response.From, "message_id", response.MessageID)
		return nil
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+" responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
		return ErrInboxFull
	}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// stop closes the channel once. Holding the write lock excludes in-flight emits.
func (b *inbox) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.responses)
}
