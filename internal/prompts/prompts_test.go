package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestEveryStepHasDirective(t *testing.T) {
	for _, step := range models.Steps {
		d, ok := directives[step]
		if !ok {
			t.Errorf("no directive for step %s", step)
			continue
		}
		if d.Ask == "" {
			t.Errorf("step %s has empty ask directive", step)
		}
		if !step.IsTerminal() && d.Extract == "" {
			t.Errorf("step %s has empty extract directive", step)
		}
	}
}

func TestCatalogueComplete(t *testing.T) {
	keys := []MessageKey{
		MsgGreeting, MsgAskName, MsgAskAmount, MsgAskCity, MsgAskPurpose, MsgAskProperty,
		MsgAskDetails, MsgAskRisk, MsgAskAnythingElse, MsgAskCallTime, MsgClosingAck,
		MsgRejectAmount, MsgClarify, MsgSystemError, MsgAIUnavailable,
	}
	for _, l := range lang.Supported {
		for _, k := range keys {
			if catalogue[l][k] == "" {
				t.Errorf("missing %s message for language %s", k, l)
			}
		}
	}
}

func TestGreetingIsFixed(t *testing.T) {
	want := "שלום, תודה שפנית ל'אדמתנו ביתנו'. אנחנו כאן כדי לספק את הפתרונות הטובים ביותר עבורך. לפני שנתקדם – מה שלומך היום?"
	if got := Greeting(lang.Hebrew); got != want {
		t.Errorf("Greeting(he) = %q, want %q", got, want)
	}
	if got := Greeting("xx"); got != want {
		t.Errorf("unknown language should fall back to the Hebrew greeting, got %q", got)
	}
}

func TestQuestionFillsName(t *testing.T) {
	got := Question(lang.Russian, models.StepQualification, "Иван")
	if !strings.Contains(got, "Иван") {
		t.Errorf("expected name in question, got %q", got)
	}
	got = Question(lang.Russian, models.StepQualification, "")
	if strings.Contains(got, namePlaceholder) || strings.Contains(got, ", .") {
		t.Errorf("placeholder not removed cleanly: %q", got)
	}
}

func TestRejectionQuotesThreshold(t *testing.T) {
	got := Rejection(lang.Hebrew, 350000)
	if !strings.Contains(got, "350,000") {
		t.Errorf("expected threshold in rejection, got %q", got)
	}
	if strings.Contains(got, amountPlaceholder) {
		t.Errorf("placeholder left in rejection: %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		200000:  "200,000",
		1234567: "1,234,567",
		-5000:   "-5,000",
	}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBranches(t *testing.T) {
	rules := DefaultRules()
	b := Branches(models.StepPropertyOwnership, rules)
	if len(b) != 2 || b[0].Step != models.StepPropertyDetails || b[1].Step != models.StepRiskCheck {
		t.Errorf("unexpected property branches: %+v", b)
	}
	b = Branches(models.StepCity, rules)
	if len(b) != 1 || b[0].Step != models.StepPurpose {
		t.Errorf("unexpected city branches: %+v", b)
	}
}

func TestRenderSystemPromptCarriesRules(t *testing.T) {
	rules := DefaultRules()
	rules.MinLoanAmount = 250000
	data := models.NewSessionData(lang.Arabic)
	data.FullName = "Samir"
	data.LoanAmount = 400000

	out, err := RenderSystemPrompt(NewPromptData(rules, models.StepPropertyOwnership, data, lang.Arabic))
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	for _, want := range []string{
		"250,000 NIS",
		"Name: Samir",
		"Amount: 400,000",
		"The session language is Arabic",
		`Current Step: "PROPERTY_OWNERSHIP"`,
		"has_property",
		For(models.StepPropertyDetails).Ask,
		For(models.StepRiskCheck).Ask,
		`"isValid"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("system prompt missing %q\n%s", want, out)
		}
	}
}

func TestIronRulesNumbering(t *testing.T) {
	rules := DefaultRules()
	rules.RequireProperty = true
	out, err := RenderSystemPrompt(NewPromptData(rules, models.StepCity, models.NewSessionData(lang.Hebrew), lang.Hebrew))
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	for i, rule := range IronRules(rules, lang.Hebrew) {
		if want := fmt.Sprintf("\n%d. %s", i+1, rule); !strings.Contains(out, want) {
			t.Errorf("missing rule line %q", want)
		}
	}
	if n := len(IronRules(rules, lang.Hebrew)); n != 5 {
		t.Errorf("expected 5 rules with the property requirement, got %d", n)
	}
}

func TestRenderSystemPromptWithoutPropertyRule(t *testing.T) {
	rules := DefaultRules()
	rules.RequireProperty = false
	out, err := RenderSystemPrompt(NewPromptData(rules, models.StepCity, models.NewSessionData(lang.Hebrew), lang.Hebrew))
	if err != nil {
		t.Fatalf("RenderSystemPrompt error: %v", err)
	}
	if strings.Contains(out, "PROPERTY:") {
		t.Error("property rule should be omitted")
	}
	for _, want := range []string{"\n3. HONESTY:", "\n4. FLOW:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected rules numbered without gaps, missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\n5. ") {
		t.Error("expected four rules when property is not required")
	}
	if !strings.Contains(out, "Name: Guest") || !strings.Contains(out, "Amount: Unknown") {
		t.Errorf("expected placeholders for empty context:\n%s", out)
	}
}
