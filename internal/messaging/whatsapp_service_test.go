package messaging

import (
	"context"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestWhatsAppService_SendMessage(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "+972 50-123-4567", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	msgs := mockClient.Messages()
	if len(msgs) != 1 || msgs[0].To != "972501234567" {
		t.Errorf("expected canonical recipient, got %+v", msgs)
	}
}

// Test Start and Stop do not error and close channels
func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if response, ok := <-svc.Responses(); ok {
		t.Errorf("expected responses channel closed, got value %v", response)
	}
	if err := svc.SendMessage(context.Background(), "972501234567", "late"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

// fakeEventClient captures the registered handler so tests can fire events.
type fakeEventClient struct {
	*whatsapp.MockClient
	handler func(evt interface{})
}

func (f *fakeEventClient) AddEventHandler(h func(evt interface{})) { f.handler = h }

func TestWhatsAppService_ForwardsInboundText(t *testing.T) {
	client := &fakeEventClient{MockClient: whatsapp.NewMockClient()}
	svc := NewWhatsAppService(client)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.handler == nil {
		t.Fatal("event handler not registered")
	}

	own := &events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Sender: types.NewJID("972501234567", whatsapp.JIDSuffix), IsFromMe: true}, ID: "A"},
		Message: &waE2E.Message{Conversation: proto.String("echo")},
	}
	client.handler(own)
	client.handler(&events.Connected{})
	client.handler(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Sender: types.NewJID("972501234567", whatsapp.JIDSuffix)}, ID: "B"},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	})

	select {
	case r := <-svc.Responses():
		if r.From != "972501234567" || r.Body != "hi" || r.MessageID != "B" {
			t.Errorf("unexpected response %+v", r)
		}
	default:
		t.Fatal("expected inbound response")
	}
	select {
	case r := <-svc.Responses():
		t.Errorf("unexpected extra response %+v", r)
	default:
	}
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"972501234567", "972501234567", false},
		{"+972 (50) 123-4567", "972501234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, %v", tt.in, got, err)
		}
	}
}
