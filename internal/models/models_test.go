package models

import (
	"fmt"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/lang"
)

func TestStepIsValid(t *testing.T) {
	for _, s := range Steps {
		if !s.IsValid() {
			t.Errorf("step %q should be valid", s)
		}
	}
	if Step("LISTENING").IsValid() {
		t.Error("LISTENING should not be a valid step")
	}
	if Step("").IsValid() {
		t.Error("empty step should not be valid")
	}
}

func TestStepNext(t *testing.T) {
	s := StepGreeting
	var path []Step
	for !s.IsTerminal() {
		path = append(path, s)
		s = s.Next()
		if len(path) > len(Steps) {
			t.Fatalf("flow does not terminate: %v", path)
		}
	}
	if s != StepCompleted {
		t.Errorf("happy path ends in %q, want %q", s, StepCompleted)
	}
	if StepClosed.Next() != StepClosed {
		t.Error("terminal step should be its own successor")
	}
}

func TestAppendHistoryEvictsOldestFirst(t *testing.T) {
	d := NewSessionData(lang.Hebrew)
	for i := 0; i < 40; i++ {
		d.AppendHistory(RoleUser, fmt.Sprintf("msg-%d", i), 30)
		if len(d.History) > 30 {
			t.Fatalf("history length %d exceeds cap after %d appends", len(d.History), i+1)
		}
	}
	if len(d.History) != 30 {
		t.Fatalf("history length = %d, want 30", len(d.History))
	}
	if d.History[0].Content != "msg-10" {
		t.Errorf("oldest entry = %q, want msg-10", d.History[0].Content)
	}
	if d.History[29].Content != "msg-39" {
		t.Errorf("newest entry = %q, want msg-39", d.History[29].Content)
	}
}

func TestAppendHistoryDefaultLimit(t *testing.T) {
	d := NewSessionData(lang.Hebrew)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		d.AppendHistory(RoleAssistant, "x", 0)
	}
	if len(d.History) != DefaultHistoryLimit {
		t.Errorf("history length = %d, want %d", len(d.History), DefaultHistoryLimit)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := Session{PhoneNumber: "972500000000", Step: StepCity, Data: NewSessionData(lang.Arabic)}
	s.Data.AppendHistory(RoleUser, "hello", 30)
	s.Data.Extra = map[string]string{"k": "v"}

	c := s.Clone()
	c.Data.History[0].Content = "changed"
	c.Data.Extra["k"] = "changed"
	c.Data.AppendHistory(RoleUser, "more", 30)

	if s.Data.History[0].Content != "hello" {
		t.Error("clone shares history backing array")
	}
	if s.Data.Extra["k"] != "v" {
		t.Error("clone shares extra map")
	}
	if len(s.Data.History) != 1 {
		t.Errorf("original history length = %d, want 1", len(s.Data.History))
	}
}

func TestNewSessionDataNormalizesLanguage(t *testing.T) {
	d := NewSessionData("en")
	if d.Language != lang.Default {
		t.Errorf("language = %q, want %q", d.Language, lang.Default)
	}
	if d.History == nil {
		t.Error("history should be non-nil")
	}
}

func TestResponseValidate(t *testing.T) {
	if err := (Response{From: "1", Body: "x"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Response{Body: "x"}).Validate(); err == nil {
		t.Error("expected error for empty from")
	}
	if err := (Response{From: "1"}).Validate(); err == nil {
		t.Error("expected error for empty body")
	}
}
