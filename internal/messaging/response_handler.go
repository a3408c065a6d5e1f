// Package messaging provides the WhatsApp transports and the loop that feeds inbound
// messages into the conversation engine.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// DefaultTurnTimeout bounds a whole conversation turn, model retries included.
const DefaultTurnTimeout = 2 * time.Minute

// Processor runs one conversation turn.
type Processor interface {
	ProcessMessage(ctx context.Context, phone, text string) (flow.Result, error)
}

// ResponseHandlerOpts configures a ResponseHandler.
type ResponseHandlerOpts struct {
	Dedup       store.DedupRepo
	TurnTimeout time.Duration
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandlerOpts)

// WithDedup drops inbound messages whose ID was already seen.
func WithDedup(repo store.DedupRepo) ResponseHandlerOption {
	return func(o *ResponseHandlerOpts) { o.Dedup = repo }
}

// WithTurnTimeout bounds each turn.
func WithTurnTimeout(d time.Duration) ResponseHandlerOption {
	return func(o *ResponseHandlerOpts) { o.TurnTimeout = d }
}

// ResponseHandler consumes a Service's inbound messages and runs them as detached
// conversation turns, so webhook acknowledgement never waits on the model. Turns from one
// sender run one at a time in arrival order; different senders run in parallel.
type ResponseHandler struct {
	msgService Service
	processor  Processor
	opts       ResponseHandlerOpts
	inflight   sync.WaitGroup

	mu       sync.Mutex
	queues   map[string][]models.Response // a key is present while its worker runs
	loopDone chan struct{}
}

// NewResponseHandler creates a new ResponseHandler for msgService.
func NewResponseHandler(msgService Service, processor Processor, opts ...ResponseHandlerOption) *ResponseHandler {
	cfg := ResponseHandlerOpts{TurnTimeout: DefaultTurnTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	return &ResponseHandler{
		msgService: msgService,
		processor:  processor,
		opts:       cfg,
		queues:     make(map[string][]models.Response),
	}
}

// ProcessResponse validates, deduplicates and runs one inbound message synchronously.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	if err := response.Validate(); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.opts.Dedup != nil && response.MessageID != "" {
		fresh, err := rh.opts.Dedup.RecordInbound(ctx, response.MessageID, canonicalFrom)
		if err != nil {
			slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "message_id", response.MessageID)
		} else if !fresh {
			slog.Info("ResponseHandler dropping duplicate inbound message", "from", canonicalFrom, "message_id", response.MessageID)
			return nil
		}
	}

	tctx, cancel := context.WithTimeout(ctx, rh.opts.TurnTimeout)
	defer cancel()
	result, err := rh.processor.ProcessMessage(tctx, canonicalFrom, response.Body)
	if err != nil {
		slog.Error("ResponseHandler turn failed", "error", err, "from", canonicalFrom)
		return fmt.Errorf("turn failed: %w", err)
	}
	slog.Debug("ResponseHandler turn processed", "from", canonicalFrom, "step", result.Step, "replies", len(result.Replies))

	if rh.opts.Dedup != nil && response.MessageID != "" {
		if err := rh.opts.Dedup.MarkProcessed(context.WithoutCancel(ctx), response.MessageID); err != nil {
			slog.Warn("ResponseHandler mark processed failed", "error", err, "message_id", response.MessageID)
		}
	}
	return nil
}

// Start begins processing responses from the messaging service. Messages are queued per
// sender; each sender with pending messages gets one worker goroutine that exits once its
// queue is empty.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	done := make(chan struct{})
	rh.mu.Lock()
	rh.loopDone = done
	rh.mu.Unlock()

	// Turns outlive shutdown signals; Wait drains them.
	turnCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		defer slog.Info("ResponseHandler stopped response processing")
		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				rh.enqueue(turnCtx, response)
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// enqueue appends response to its sender's queue and starts a worker if none is running.
// Only the dispatch loop calls it, so every inflight.Add happens before the loop exits.
func (rh *ResponseHandler) enqueue(ctx context.Context, response models.Response) {
	key := response.From
	if canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From); err == nil {
		key = canonical
	}

	rh.mu.Lock()
	pending, running := rh.queues[key]
	rh.queues[key] = append(pending, response)
	rh.mu.Unlock()
	if running {
		slog.Debug("ResponseHandler queued turn behind running one", "from", key, "pending", len(pending)+1)
		return
	}

	rh.inflight.Add(1)
	go rh.drain(ctx, key)
}

// drain runs the queued turns for key in order.
func (rh *ResponseHandler) drain(ctx context.Context, key string) {
	defer rh.inflight.Done()
	for {
		rh.mu.Lock()
		pending := rh.queues[key]
		if len(pending) == 0 {
			delete(rh.queues, key)
			rh.mu.Unlock()
			return
		}
		next := pending[0]
		pending[0] = models.Response{}
		rh.queues[key] = pending[1:]
		rh.mu.Unlock()

		if err := rh.ProcessResponse(ctx, next); err != nil {
			slog.Error("ResponseHandler failed to process response", "error", err, "from", next.From)
		}
	}
}

// Wait blocks until the dispatch loop has exited and every queued turn has finished, or
// until ctx is done. Call it after cancelling the Start context or stopping the service.
func (rh *ResponseHandler) Wait(ctx context.Context) error {
	rh.mu.Lock()
	loopDone := rh.loopDone
	rh.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if loopDone != nil {
			<-loopDone
		}
		rh.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
