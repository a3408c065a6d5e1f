package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "972501234567", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}

	mock.Err = errors.New("rate limited")
	if err := mock.SendMessage(ctx, "972501234567", "again"); err == nil {
		t.Error("expected configured error")
	}
}

func TestWhatsAppAddress(t *testing.T) {
	tests := map[string]string{
		"972501234567":           "whatsapp:+972501234567",
		"+972501234567":          "whatsapp:+972501234567",
		"whatsapp:+972501234567": "whatsapp:+972501234567",
	}
	for in, want := range tests {
		if got := WhatsAppAddress(in); got != want {
			t.Errorf("WhatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhoneFromAddress(t *testing.T) {
	if got := PhoneFromAddress("whatsapp:+972501234567"); got != "972501234567" {
		t.Errorf("PhoneFromAddress = %q", got)
	}
	if got := PhoneFromAddress("972501234567"); got != "972501234567" {
		t.Errorf("PhoneFromAddress = %q", got)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without a from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}
