package lang

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Code
	}{
		{"empty", "", Hebrew},
		{"latin", "hi there", Hebrew},
		{"digits", "300000", Hebrew},
		{"hebrew", "שלום", Hebrew},
		{"arabic", "مرحبا", Arabic},
		{"russian", "привет", Russian},
		{"arabic beats cyrillic", "привет مرحبا", Arabic},
		{"cyrillic beats hebrew", "שלום привет", Russian},
		{"mixed latin hebrew", "hello שלום", Hebrew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("en"); got != Default {
		t.Errorf("Normalize(en) = %q, want %q", got, Default)
	}
	if got := Normalize(""); got != Default {
		t.Errorf("Normalize(empty) = %q, want %q", got, Default)
	}
	if got := Normalize(Russian); got != Russian {
		t.Errorf("Normalize(ru) = %q, want ru", got)
	}
}
