// Package flow implements the qualification conversation: the step state machine that
// consumes one inbound message per turn, and the lead finalizer that runs when the
// conversation completes.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/prompts"
	"github.com/BTreeMap/LeadPipe/internal/session"
)

// DefaultSendTimeout bounds each outbound message send.
const DefaultSendTimeout = 10 * time.Second

// ErrEmptyPhone is returned for a message without a sender.
var ErrEmptyPhone = errors.New("flow: empty phone number")

// Gateway evaluates one turn against the model.
type Gateway interface {
	Process(ctx context.Context, req genai.StepRequest) genai.StepResult
}

// Sender delivers an outbound message.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Finalizer persists the lead for a completed session.
type Finalizer interface {
	Finalize(ctx context.Context, sess models.Session)
}

// Result describes what a turn did.
type Result struct {
	Step    models.Step
	Replies []string
	Reset   bool
}

// Opts configures an Engine.
type Opts struct {
	Rules        prompts.BusinessRules
	HistoryLimit int
	SendTimeout  time.Duration
}

// Option configures an Engine.
type Option func(*Opts)

// WithRules sets the business rules the engine enforces.
func WithRules(r prompts.BusinessRules) Option {
	return func(o *Opts) {
		o.Rules = r
	}
}

// WithHistoryLimit caps the transcript kept on each session.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) {
		o.HistoryLimit = n
	}
}

// WithSendTimeout bounds each outbound send.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.SendTimeout = d
	}
}

// Engine drives the qualification state machine. Turns for the same phone number are
// serialized; different numbers run concurrently.
type Engine struct {
	gateway   Gateway
	sessions  session.Store
	sender    Sender
	finalizer Finalizer
	opts      Opts
	locks     *keyedMutex
}

// NewEngine creates an engine. finalizer may be nil.
func NewEngine(gateway Gateway, sessions session.Store, sender Sender, finalizer Finalizer, opts ...Option) *Engine {
	cfg := Opts{
		Rules:        prompts.DefaultRules(),
		HistoryLimit: models.DefaultHistoryLimit,
		SendTimeout:  DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = models.DefaultHistoryLimit
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Engine{
		gateway:   gateway,
		sessions:  sessions,
		sender:    sender,
		finalizer: finalizer,
		opts:      cfg,
		locks:     newKeyedMutex(),
	}
}

// turn carries the mutable state of one message through the step handlers.
type turn struct {
	phone string
	text  string
	step  models.Step
	data  models.SessionData
}

// ProcessMessage handles one inbound message. Model and store failures never escape:
// the only error is a missing phone number.
func (e *Engine) ProcessMessage(ctx context.Context, phone, text string) (Result, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Result{}, ErrEmptyPhone
	}
	text = strings.TrimSpace(text)

	unlock := e.locks.Lock(phone)
	defer unlock()

	if IsResetKeyword(text) {
		slog.Info("Engine.ProcessMessage: reset keyword received", "phone", phone)
		return e.startSession(ctx, phone, text, true), nil
	}

	sess, err := e.sessions.Get(ctx, phone)
	if err != nil {
		slog.Warn("Engine.ProcessMessage: session lookup failed, starting fresh", "phone", phone, "error", err)
	}
	if sess == nil {
		return e.startSession(ctx, phone, text, false), nil
	}
	if sess.Step.IsTerminal() {
		slog.Debug("Engine.ProcessMessage: session finished, ignoring message", "phone", phone, "step", sess.Step)
		return Result{Step: sess.Step}, nil
	}

	t := &turn{phone: phone, text: text, step: sess.Step, data: sess.Data.Clone()}
	t.data.AppendHistory(models.RoleUser, text, e.opts.HistoryLimit)
	slog.Debug("Engine.ProcessMessage: dispatching", "phone", phone, "step", t.step)

	switch t.step {
	case models.StepClosing:
		return e.handleClosing(ctx, t), nil
	default:
		return e.handleModelStep(ctx, t), nil
	}
}

// startSession creates or resets the session and sends the fixed greeting.
func (e *Engine) startSession(ctx context.Context, phone, text string, reset bool) Result {
	language := lang.Detect(text)
	if _, err := e.sessions.Create(ctx, phone, language); err != nil {
		slog.Warn("Engine.startSession: create failed", "phone", phone, "error", err)
	}
	greeting := prompts.Greeting(language)
	data := models.NewSessionData(language)
	data.AppendHistory(models.RoleUser, text, e.opts.HistoryLimit)
	data.AppendHistory(models.RoleAssistant, greeting, e.opts.HistoryLimit)
	e.persist(ctx, phone, models.StepGreeting, data)
	e.send(ctx, phone, greeting)
	slog.Info("Engine.startSession: session started", "phone", phone, "language", language, "reset", reset)
	return Result{Step: models.StepGreeting, Replies: []string{greeting}, Reset: reset}
}

// handleModelStep runs every non-terminal step except CLOSING through the gateway.
func (e *Engine) handleModelStep(ctx context.Context, t *turn) Result {
	res := e.gateway.Process(ctx, genai.StepRequest{
		Step:      t.step,
		UserInput: t.text,
		Context:   t.data,
		Language:  t.data.Language,
		History:   t.data.History,
	})
	if res.TotalFailure() {
		slog.Error("Engine.handleModelStep: model gave no response, leaving step unchanged", "phone", t.phone, "step", t.step, "error", res.Err)
		return Result{Step: t.step}
	}

	switch t.step {
	case models.StepGreeting:
		return e.advanceGreeting(ctx, t, res)
	case models.StepQualification:
		return e.advanceQualification(ctx, t, res)
	case models.StepPropertyOwnership:
		return e.advancePropertyOwnership(ctx, t, res)
	}

	if res.Err != nil || !res.IsValid {
		return e.stay(ctx, t, res)
	}
	mergeExtracted(&t.data, res.Data)
	fillFromInput(t.step, &t.data, t.text)
	next := t.step.Next()
	return e.advance(ctx, t, next, e.replyFor(res, next, t.data))
}

// advanceGreeting accepts any answer to "how are you" and asks for the name.
func (e *Engine) advanceGreeting(ctx context.Context, t *turn, res genai.StepResult) Result {
	reply := prompts.Question(t.data.Language, models.StepGetName, "")
	if res.Err == nil && res.Response != "" {
		reply = res.Response
	}
	return e.advance(ctx, t, models.StepGetName, reply)
}

// advanceQualification applies the minimum-amount rule whatever the model judged.
func (e *Engine) advanceQualification(ctx context.Context, t *turn, res genai.StepResult) Result {
	var amount int64
	var ok bool
	if res.Data.Amount != nil && *res.Data.Amount > 0 {
		amount, ok = *res.Data.Amount, true
	} else {
		amount, ok = genai.ParseAmount(t.text)
	}

	if !ok && res.Err != nil {
		// Nothing to judge without the model; let the user try again.
		return e.stay(ctx, t, res)
	}
	if res.Err == nil {
		mergeExtracted(&t.data, res.Data)
	}
	if ok {
		t.data.LoanAmount = amount
	}

	if !ok || !e.opts.Rules.Qualifies(amount) {
		slog.Info("Engine.advanceQualification: amount below threshold, closing", "phone", t.phone, "amount", amount, "parsed", ok)
		return e.advance(ctx, t, models.StepClosed, prompts.Rejection(t.data.Language, e.opts.Rules.MinLoanAmount))
	}

	reply := prompts.Question(t.data.Language, models.StepCity, t.data.FullName)
	if res.Err == nil && res.IsValid && res.Response != "" {
		reply = res.Response
	}
	return e.advance(ctx, t, models.StepCity, reply)
}

// advancePropertyOwnership routes to PROPERTY_DETAILS for owners and RISK_CHECK otherwise.
func (e *Engine) advancePropertyOwnership(ctx context.Context, t *turn, res genai.StepResult) Result {
	var owns, decided, fromModel bool
	if res.Err == nil && res.Data.HasProperty != nil {
		owns, decided, fromModel = *res.Data.HasProperty, true, true
	} else if kw, ok := propertyAnswer(t.text); ok {
		owns, decided = kw, true
	} else if res.Err == nil && res.IsValid {
		// A valid answer without a recognizable yes is treated as no.
		decided = true
	}
	if !decided {
		return e.stay(ctx, t, res)
	}

	if res.Err == nil {
		mergeExtracted(&t.data, res.Data)
	}
	t.data.HasProperty = models.TristateOf(owns)
	next := models.StepRiskCheck
	if owns {
		next = models.StepPropertyDetails
	}

	reply := prompts.Question(t.data.Language, next, t.data.FullName)
	if fromModel && res.IsValid && res.Response != "" {
		reply = res.Response
	}
	return e.advance(ctx, t, next, reply)
}

// handleClosing records the preferred call time, finalizes the lead and completes the session.
func (e *Engine) handleClosing(ctx context.Context, t *turn) Result {
	t.data.PreferredCallTime = t.text
	ack := prompts.Message(t.data.Language, prompts.MsgClosingAck)
	t.data.AppendHistory(models.RoleAssistant, ack, e.opts.HistoryLimit)

	if e.finalizer != nil {
		e.finalizer.Finalize(ctx, models.Session{
			PhoneNumber: t.phone,
			Step:        models.StepClosing,
			Data:        t.data.Clone(),
		})
	}
	e.send(ctx, t.phone, ack)
	e.persist(ctx, t.phone, models.StepCompleted, t.data)
	slog.Info("Engine.handleClosing: conversation completed", "phone", t.phone)
	return Result{Step: models.StepCompleted, Replies: []string{ack}}
}

// stay answers without advancing: the user retries the same step.
func (e *Engine) stay(ctx context.Context, t *turn, res genai.StepResult) Result {
	reply := res.Response
	if reply == "" {
		reply = prompts.Message(t.data.Language, prompts.MsgClarify)
	}
	slog.Debug("Engine.stay: input not accepted", "phone", t.phone, "step", t.step, "reason", res.Reason, "error", res.Err)
	t.data.AppendHistory(models.RoleAssistant, reply, e.opts.HistoryLimit)
	e.persist(ctx, t.phone, t.step, t.data)
	e.send(ctx, t.phone, reply)
	return Result{Step: t.step, Replies: []string{reply}}
}

func (e *Engine) advance(ctx context.Context, t *turn, next models.Step, reply string) Result {
	t.data.AppendHistory(models.RoleAssistant, reply, e.opts.HistoryLimit)
	e.persist(ctx, t.phone, next, t.data)
	e.send(ctx, t.phone, reply)
	slog.Debug("Engine.advance: step advanced", "phone", t.phone, "from", t.step, "to", next)
	return Result{Step: next, Replies: []string{reply}}
}

// replyFor prefers the model's phrasing and falls back to the fixed question for next.
func (e *Engine) replyFor(res genai.StepResult, next models.Step, data models.SessionData) string {
	if res.Response != "" {
		return res.Response
	}
	return prompts.Question(data.Language, next, data.FullName)
}

func (e *Engine) persist(ctx context.Context, phone string, step models.Step, data models.SessionData) {
	if _, err := e.sessions.Update(ctx, phone, step, data); err != nil {
		slog.Error("Engine.persist: session update failed", "phone", phone, "step", step, "error", err)
	}
}

// send delivers body with its own timeout. Failures are logged and swallowed.
func (e *Engine) send(ctx context.Context, phone, body string) {
	if e.sender == nil || body == "" {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SendTimeout)
	defer cancel()
	if err := e.sender.SendMessage(sctx, phone, body); err != nil {
		slog.Warn("Engine.send: outbound message failed", "phone", phone, "error", err)
	}
}

// mergeExtracted copies every field the model extracted into data.
func mergeExtracted(data *models.SessionData, x genai.ExtractedData) {
	if x.FullName != "" {
		data.FullName = x.FullName
	}
	if x.City != "" {
		data.City = x.City
	}
	if x.Amount != nil && *x.Amount > 0 {
		data.LoanAmount = *x.Amount
	}
	if x.Purpose != "" {
		data.Purpose = x.Purpose
	}
	if x.HasProperty != nil {
		data.HasProperty = models.TristateOf(*x.HasProperty)
	}
	if x.PropertyDetails != "" {
		data.PropertyDetails = x.PropertyDetails
	}
	if x.RiskInfo != "" {
		data.RiskInfo = x.RiskInfo
	}
	if x.Notes != "" {
		data.Notes = x.Notes
	}
	if x.PreferredCallTime != "" {
		data.PreferredCallTime = x.PreferredCallTime
	}
	if len(x.Extra) > 0 {
		if data.Extra == nil {
			data.Extra = make(map[string]string, len(x.Extra))
		}
		for k, v := range x.Extra {
			data.Extra[k] = v
		}
	}
}

// fillFromInput stores the raw answer when the model accepted it but extracted nothing.
func fillFromInput(step models.Step, data *models.SessionData, text string) {
	switch step {
	case models.StepGetName:
		if data.FullName == "" {
			data.FullName = text
		}
	case models.StepCity:
		if data.City == "" {
			data.City = text
		}
	case models.StepPurpose:
		if data.Purpose == "" {
			data.Purpose = text
		}
	case models.StepPropertyDetails:
		if data.PropertyDetails == "" {
			data.PropertyDetails = text
		}
	case models.StepRiskCheck:
		if data.RiskInfo == "" {
			data.RiskInfo = text
		}
	}
}
