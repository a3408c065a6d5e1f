package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/prompts"
	"github.com/openai/openai-go"
)

type fakeCompleter struct {
	text     string
	err      error
	messages []openai.ChatCompletionMessageParamUnion
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	f.messages = messages
	return f.text, f.err
}

func newTestGateway(c completer) *Gateway {
	return &Gateway{client: c, rules: prompts.DefaultRules()}
}

func TestProcess_Unavailable(t *testing.T) {
	g := NewGateway(nil, prompts.DefaultRules())
	res := g.Process(context.Background(), StepRequest{Step: models.StepCity, UserInput: "Haifa", Language: lang.Russian})
	if !errors.Is(res.Err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", res.Err)
	}
	if res.IsValid || res.Response != prompts.Message(lang.Russian, prompts.MsgAIUnavailable) {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TotalFailure() {
		t.Error("unavailable backend still answers the user")
	}
}

func TestProcess_Success(t *testing.T) {
	fc := &fakeCompleter{text: `{"isValid": true, "response": "What is the loan for?", "data": {"city": "Haifa"}}`}
	res := newTestGateway(fc).Process(context.Background(), StepRequest{
		Step:      models.StepCity,
		UserInput: "Haifa",
		Language:  lang.Hebrew,
		History: []models.HistoryEntry{
			{Role: models.RoleAssistant, Content: "Which city?"},
			{Role: models.RoleUser, Content: "Haifa"},
		},
	})
	if res.Err != nil || !res.IsValid || res.Data.City != "Haifa" || res.Response != "What is the loan for?" {
		t.Fatalf("unexpected result %+v", res)
	}
	// system + assistant history + user input; the trailing duplicate user entry is dropped.
	if len(fc.messages) != 3 {
		t.Errorf("expected 3 messages, got %d", len(fc.messages))
	}
}

func TestProcess_HistoryWindow(t *testing.T) {
	fc := &fakeCompleter{text: `{"isValid": true, "response": "ok"}`}
	var history []models.HistoryEntry
	for i := 0; i < 25; i++ {
		history = append(history, models.HistoryEntry{Role: models.RoleAssistant, Content: fmt.Sprint(i)})
	}
	g := newTestGateway(fc)
	g.Process(context.Background(), StepRequest{Step: models.StepPurpose, UserInput: "renovation", History: history})
	if want := g.rules.HistoryWindow + 2; len(fc.messages) != want {
		t.Errorf("expected %d messages, got %d", want, len(fc.messages))
	}
}

func TestProcess_RetriesExhaustedLeavesNoResponse(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("%w after 3 attempts: boom", ErrRetriesExhausted)}
	res := newTestGateway(fc).Process(context.Background(), StepRequest{Step: models.StepCity, UserInput: "x"})
	if !res.TotalFailure() {
		t.Errorf("expected total failure, got %+v", res)
	}
}

func TestProcess_FatalGivesLocalizedError(t *testing.T) {
	fc := &fakeCompleter{err: fmt.Errorf("%w: bad request", ErrFatal)}
	res := newTestGateway(fc).Process(context.Background(), StepRequest{Step: models.StepCity, UserInput: "x", Language: lang.Arabic})
	if res.IsValid || res.Response != prompts.Message(lang.Arabic, prompts.MsgSystemError) {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TotalFailure() {
		t.Error("fatal errors still answer the user")
	}
}

func TestProcess_MalformedOutput(t *testing.T) {
	fc := &fakeCompleter{text: "I think the city is Haifa."}
	res := newTestGateway(fc).Process(context.Background(), StepRequest{Step: models.StepCity, UserInput: "Haifa"})
	if !errors.Is(res.Err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", res.Err)
	}
	if res.IsValid || res.Response == "" {
		t.Errorf("expected invalid result with fallback text, got %+v", res)
	}
}

func TestProcess_InvalidWithoutResponseGetsClarification(t *testing.T) {
	fc := &fakeCompleter{text: `{"isValid": false, "reason": "gibberish"}`}
	res := newTestGateway(fc).Process(context.Background(), StepRequest{Step: models.StepGetName, UserInput: "asdf", Language: lang.Hebrew})
	if res.Response != prompts.Message(lang.Hebrew, prompts.MsgClarify) {
		t.Errorf("expected clarification, got %q", res.Response)
	}
}

func TestBuildMessagesCarriesContext(t *testing.T) {
	g := newTestGateway(&fakeCompleter{})
	data := models.NewSessionData(lang.Hebrew)
	data.FullName = "Noa"
	msgs, err := g.buildMessages(StepRequest{Step: models.StepQualification, UserInput: "300000", Context: data}, lang.Hebrew)
	if err != nil {
		t.Fatalf("buildMessages error: %v", err)
	}
	if msgs[0].OfSystem == nil {
		t.Fatal("first message should be the system prompt")
	}
	sys := msgs[0].OfSystem.Content.OfString.Value
	if !strings.Contains(sys, "Name: Noa") || !strings.Contains(sys, "200,000") {
		t.Errorf("system prompt missing context:\n%s", sys)
	}
	last := msgs[len(msgs)-1]
	if last.OfUser == nil || last.OfUser.Content.OfString.Value != "300000" {
		t.Error("last message should be the user input")
	}
}
