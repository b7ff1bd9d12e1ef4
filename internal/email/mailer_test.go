package email

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/theluxar/auth-service/config"
)

type capturePublisher struct {
	published [][]byte
}

func (p *capturePublisher) Publish(ctx context.Context, body []byte) error {
	p.published = append(p.published, body)
	return nil
}

func newTestMailer(t *testing.T) (*QueueMailer, *capturePublisher) {
	t.Helper()

	pub := &capturePublisher{}
	mailer, err := NewQueueMailer(pub, config.EmailConfig{
		Queue:       "email.outbound",
		FromAddress: "no-reply@theluxar.com",
		BaseURL:     "https://auth.theluxar.com",
	}, "theluxar", 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewQueueMailer returned error: %v", err)
	}
	return mailer, pub
}

func TestSendActivationEmail(t *testing.T) {
	mailer, pub := newTestMailer(t)

	err := mailer.SendActivationEmail(context.Background(), "ada@example.com", "tok/with+specials")
	if err != nil {
		t.Fatalf("SendActivationEmail returned error: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(pub.published))
	}

	var msg Message
	if err := json.Unmarshal(pub.published[0], &msg); err != nil {
		t.Fatalf("Published message is not valid JSON: %v", err)
	}

	if msg.Kind != "account_activation" {
		t.Errorf("Expected kind account_activation, got %s", msg.Kind)
	}
	if msg.To != "ada@example.com" {
		t.Errorf("Expected recipient ada@example.com, got %s", msg.To)
	}
	if msg.From != "no-reply@theluxar.com" {
		t.Errorf("Expected configured sender, got %s", msg.From)
	}

	// The link targets the confirm endpoint with the token query-escaped.
	if !strings.Contains(msg.Body, "https://auth.theluxar.com/api/v1/auth/confirm-email?token=tok%2Fwith%2Bspecials") {
		t.Errorf("Expected escaped activation link in body:\n%s", msg.Body)
	}
	// sprig's title pipeline renders the display name.
	if !strings.Contains(msg.Body, "Theluxar") {
		t.Errorf("Expected titled app name in body:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "24h") {
		t.Errorf("Expected activation TTL in body:\n%s", msg.Body)
	}
}

func TestSendPasswordResetEmail(t *testing.T) {
	mailer, pub := newTestMailer(t)

	err := mailer.SendPasswordResetEmail(context.Background(), "ada@example.com", "reset-token")
	if err != nil {
		t.Fatalf("SendPasswordResetEmail returned error: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(pub.published[0], &msg); err != nil {
		t.Fatalf("Published message is not valid JSON: %v", err)
	}

	if msg.Kind != "password_reset" {
		t.Errorf("Expected kind password_reset, got %s", msg.Kind)
	}
	if !strings.Contains(msg.Body, "https://auth.theluxar.com/api/v1/auth/reset-password?token=reset-token") {
		t.Errorf("Expected reset link in body:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "1h") {
		t.Errorf("Expected reset TTL in body:\n%s", msg.Body)
	}
}
