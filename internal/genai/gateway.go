package genai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/prompts"
	"github.com/openai/openai-go"
)

// StepRequest is one conversation turn handed to the gateway.
type StepRequest struct {
	Step      models.Step
	UserInput string
	Context   models.SessionData
	Language  lang.Code
	History   []models.HistoryEntry
}

// StepResult is the gateway's verdict on a turn. Err is set whenever the model could not
// be used; Response is empty only when the backend failed every retry.
type StepResult struct {
	IsValid  bool
	Reason   string
	Response string
	Data     ExtractedData
	Err      error
}

// TotalFailure reports whether the turn should go unanswered.
func (r StepResult) TotalFailure() bool {
	return r.Err != nil && r.Response == ""
}

type completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Gateway turns a conversation turn into a single combined validate+extract+respond call.
type Gateway struct {
	client completer
	rules  prompts.BusinessRules
}

// NewGateway wraps client. A nil client yields a gateway that always reports ErrUnavailable.
func NewGateway(client *Client, rules prompts.BusinessRules) *Gateway {
	g := &Gateway{rules: rules}
	if client != nil {
		g.client = client
	}
	return g
}

// Process runs one turn. It never returns a Go error: every failure is folded into the
// result with a localized fallback message, except exhausted retries which leave
// Response empty.
func (g *Gateway) Process(ctx context.Context, req StepRequest) StepResult {
	language := lang.Normalize(req.Language)
	if g.client == nil {
		return StepResult{Response: prompts.Message(language, prompts.MsgAIUnavailable), Err: ErrUnavailable}
	}

	messages, err := g.buildMessages(req, language)
	if err != nil {
		slog.Error("Gateway.Process: failed to build prompt", "step", req.Step, "error", err)
		return StepResult{Response: prompts.Message(language, prompts.MsgSystemError), Err: errors.Join(ErrFatal, err)}
	}

	text, err := g.client.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			slog.Error("Gateway.Process: backend unavailable after retries", "step", req.Step, "error", err)
			return StepResult{Err: err}
		}
		slog.Error("Gateway.Process: backend call failed", "step", req.Step, "error", err)
		return StepResult{Response: prompts.Message(language, prompts.MsgSystemError), Err: err}
	}

	out, err := ParseStepOutput(text)
	if err != nil {
		slog.Warn("Gateway.Process: unparseable model output", "step", req.Step, "error", err, "output_length", len(text))
		return StepResult{Response: prompts.Message(language, prompts.MsgSystemError), Err: err}
	}
	if out.Response == "" && !out.IsValid {
		out.Response = prompts.Message(language, prompts.MsgClarify)
	}
	slog.Debug("Gateway.Process: step evaluated", "step", req.Step, "valid", out.IsValid, "reason", out.Reason)
	return StepResult{IsValid: out.IsValid, Reason: out.Reason, Response: out.Response, Data: out.Data}
}

func (g *Gateway) buildMessages(req StepRequest, language lang.Code) ([]openai.ChatCompletionMessageParamUnion, error) {
	system, err := prompts.RenderSystemPrompt(prompts.NewPromptData(g.rules, req.Step, req.Context, language))
	if err != nil {
		return nil, err
	}

	history := req.History
	// The engine appends the inbound message before calling; send it once, as the final turn.
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Content == req.UserInput {
		history = history[:n-1]
	}
	if w := g.rules.HistoryWindow; w > 0 && len(history) > w {
		history = history[len(history)-w:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(system))
	for _, h := range history {
		if h.Role == models.RoleUser {
			messages = append(messages, openai.UserMessage(h.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserInput))
	return messages, nil
}
