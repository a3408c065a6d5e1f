package flow

import "testing"

func TestIsResetKeyword(t *testing.T) {
	tests := map[string]bool{
		"hi":              true,
		"Hi":              true,
		"  HELLO  ":       true,
		"hi there":        true,
		"hello!":          true,
		"restart":         true,
		"Start over":      true,
		"שלום":            true,
		"שלום, מה נשמע":   true,
		"היי":             true,
		"مرحبا":           true,
		"Привет":          true,
		"Здравствуйте!":   true,
		"history":         false,
		"hip":             false,
		"starting salary": false,
		"say hi":          false,
		"300000":          false,
		"":                false,
		"שלומי":           false,
	}
	for in, want := range tests {
		if got := IsResetKeyword(in); got != want {
			t.Errorf("IsResetKeyword(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPropertyAnswer(t *testing.T) {
	tests := []struct {
		in       string
		owns, ok bool
	}{
		{"yes", true, true},
		{"Yes, a flat", true, true},
		{"כן", true, true},
		{"نعم عندي بيت", true, true},
		{"да", true, true},
		{"no", false, true},
		{"לא", false, true},
		{"нет", false, true},
		{"לאו דווקא", false, false},
		{"nobody owns", false, false},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		owns, ok := propertyAnswer(tt.in)
		if owns != tt.owns || ok != tt.ok {
			t.Errorf("propertyAnswer(%q) = %v, %v; want %v, %v", tt.in, owns, ok, tt.owns, tt.ok)
		}
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	if k.size() != 1 {
		t.Fatalf("size = %d", k.size())
	}
	unlock()
	if k.size() != 0 {
		t.Errorf("entry not released, size = %d", k.size())
	}
}
