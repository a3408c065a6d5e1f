package genai

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"isValid":true}`, `{"isValid":true}`},
		{"fenced", "```json\n{\"isValid\":true}\n```", `{"isValid":true}`},
		{"prose", "Sure! Here you go: {\"a\":{\"b\":1}} hope it helps", `{"a":{"b":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	for _, bad := range []string{"", "no json here", "} backwards {"} {
		if _, err := ExtractJSON(bad); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ExtractJSON(%q) error = %v, want ErrMalformedOutput", bad, err)
		}
	}
}

func TestParseStepOutput(t *testing.T) {
	out, err := ParseStepOutput("```json\n" + `{"isValid": true, "reason": "", "response": " Nice to meet you ", "data": {"amount": "300,000", "has_property": "yes", "full_name": "Dana", "extra_field": "x"}}` + "\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsValid || out.Response != "Nice to meet you" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Data.Amount == nil || *out.Data.Amount != 300000 {
		t.Errorf("amount = %v, want 300000", out.Data.Amount)
	}
	if out.Data.HasProperty == nil || !*out.Data.HasProperty {
		t.Errorf("has_property = %v, want true", out.Data.HasProperty)
	}
	if out.Data.FullName != "Dana" {
		t.Errorf("full_name = %q", out.Data.FullName)
	}
	if out.Data.Extra["extra_field"] != "x" {
		t.Errorf("extra = %v", out.Data.Extra)
	}
}

func TestParseStepOutputNullsAndDefaults(t *testing.T) {
	out, err := ParseStepOutput(`{"response": "ok", "data": {"amount": null, "has_property": null}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsValid {
		t.Error("missing isValid should read as valid")
	}
	if out.Data.Amount != nil || out.Data.HasProperty != nil {
		t.Errorf("nulls should stay unset: %+v", out.Data)
	}

	out, err = ParseStepOutput(`{"isValid": false, "reason": "gibberish", "data": {"amount": 150000.0, "has_property": false}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsValid || out.Reason != "gibberish" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Data.Amount == nil || *out.Data.Amount != 150000 {
		t.Errorf("amount = %v, want 150000", out.Data.Amount)
	}
	if out.Data.HasProperty == nil || *out.Data.HasProperty {
		t.Errorf("has_property = %v, want false", out.Data.HasProperty)
	}
}

func TestParseStepOutputMalformed(t *testing.T) {
	if _, err := ParseStepOutput(`{"isValid": tru`); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("expected ErrMalformedOutput, got %v", err)
	}
	if _, err := ParseStepOutput(`{"isValid": "maybe"}`); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("expected ErrMalformedOutput for wrong type, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"300000", 300000, true},
		{"50000", 50000, true},
		{"300,000", 300000, true},
		{"I need 250,000 NIS", 250000, true},
		{"200k", 200000, true},
		{"200 K", 200000, true},
		{"1.5m", 1500000, true},
		{"1.5 million", 1500000, true},
		{"300.000", 300000, true},
		{"500 אלף", 500000, true},
		{"50000 more or less", 50000, true},
		{"no idea", 0, false},
		{"0", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseAmount(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
