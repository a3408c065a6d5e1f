package prompts

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

const systemTemplate = `System Role: "{{.Rules.BrandName}}" - a senior financial house and consultancy.
Identity: we are the professional team, financial guardians for the family, not aggressive salespeople.
Tone: respected, responsible, stable, warm but professional. Never pressure the client or sell illusions.

Iron Rules:
{{- range $i, $rule := .IronRules}}
{{inc $i}}. {{$rule}}
{{- end}}

Current Context:
Name: {{or .Data.FullName "Guest"}}
City: {{or .Data.City "Unknown"}}
Amount: {{if .Data.LoanAmount}}{{amount .Data.LoanAmount}}{{else}}Unknown{{end}}
Property: {{if .Data.HasProperty}}{{.Data.HasProperty}}{{else}}Unknown{{end}}
Language: {{.Language}}

Current Step: "{{.Step}}"
Judge the user's latest message: {{.Extract}}

If the message is valid, write the NEXT message:
{{- range .Next}}
- {{if .When}}If {{.When}}: {{end}}{{.Ask}}
{{- end}}
If it is not valid, write a short polite clarification that repeats the question for step "{{.Step}}".

Reply with a single JSON object and nothing else:
{"isValid": boolean, "reason": string, "response": string, "data": {<data keys for this step>}}
`

var systemTmpl = template.Must(template.New("system").Funcs(template.FuncMap{
	"amount": FormatAmount,
	"inc":    func(i int) int { return i + 1 },
}).Parse(systemTemplate))

// NextDirective is a rendered branch: the condition and what the next message must do.
type NextDirective struct {
	When string
	Ask  string
}

// PromptData is everything the system prompt is rendered from.
type PromptData struct {
	Rules     BusinessRules
	IronRules []string
	Step      models.Step
	Extract   string
	Next      []NextDirective
	Data      models.SessionData
	Language  lang.Code
}

// NewPromptData assembles the prompt inputs for a turn at step.
func NewPromptData(rules BusinessRules, step models.Step, data models.SessionData, language lang.Code) PromptData {
	language = lang.Normalize(language)
	pd := PromptData{
		Rules:     rules,
		IronRules: IronRules(rules, language),
		Step:      step,
		Extract:   For(step).Extract,
		Data:      data,
		Language:  language,
	}
	for _, b := range Branches(step, rules) {
		pd.Next = append(pd.Next, NextDirective{When: b.When, Ask: For(b.Step).Ask})
	}
	return pd
}

// IronRules lists the non-negotiable rules for the system prompt, in order. The property
// rule is present only when rules require ownership.
func IronRules(rules BusinessRules, language lang.Code) []string {
	out := []string{
		fmt.Sprintf("LANGUAGE: %s by default. The session language is %s. Reply in it unless the user switches language.",
			rules.DefaultLanguage.Name(), language.Name()),
		fmt.Sprintf("LIMITS: we only handle loans of at least %s %s.", FormatAmount(rules.MinLoanAmount), rules.Currency),
	}
	if rules.RequireProperty {
		out = append(out, "PROPERTY: we only work with property owners (the applicant or first-degree family).")
	}
	return append(out,
		`HONESTY: never promise success. Say "we will examine" or "we will check feasibility".`,
		"FLOW: ask ONE question at a time.",
	)
}

// RenderSystemPrompt renders the system message for one turn.
func RenderSystemPrompt(pd PromptData) (string, error) {
	var buf bytes.Buffer
	if err := systemTmpl.Execute(&buf, pd); err != nil {
		return "", fmt.Errorf("failed to render system prompt for step %s: %w", pd.Step, err)
	}
	return buf.String(), nil
}
