package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/theluxar/auth-service/config"
)

// Mailer is the outbound-mail collaborator of the account lifecycle
// manager. Delivery itself happens elsewhere; from the caller's point of
// view these are fire-and-forget.
type Mailer interface {
	SendActivationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Message is the queued mail job consumed by the delivery worker.
type Message struct {
	Kind     string    `json:"kind"`
	To       string    `json:"to"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// Publisher hands a serialized mail job to the transport.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

const (
	kindActivation    = "account_activation"
	kindPasswordReset = "password_reset"
)

const activationTemplate = `Hello,

Welcome to {{ .AppName | title }}! Confirm your email address to activate
your account:

    {{ .Link }}

The link expires in {{ .TTL }}. If you did not create an account, you can
ignore this message.`

const passwordResetTemplate = `Hello,

A password reset was requested for your {{ .AppName | title }} account. Use
the link below to choose a new password:

    {{ .Link }}

The link expires in {{ .TTL }}. If you did not request a reset, you can
ignore this message.`

// QueueMailer renders mail bodies and publishes them as JSON jobs.
type QueueMailer struct {
	pub           Publisher
	cfg           config.EmailConfig
	appName       string
	activationTTL time.Duration
	resetTTL      time.Duration
	activation    *template.Template
	reset         *template.Template
}

func NewQueueMailer(pub Publisher, cfg config.EmailConfig, appName string, activationTTL, resetTTL time.Duration) (*QueueMailer, error) {
	activation, err := template.New("activation").Funcs(sprig.TxtFuncMap()).Parse(activationTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activation template: %w", err)
	}
	reset, err := template.New("reset").Funcs(sprig.TxtFuncMap()).Parse(passwordResetTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reset template: %w", err)
	}

	return &QueueMailer{
		pub:           pub,
		cfg:           cfg,
		appName:       appName,
		activationTTL: activationTTL,
		resetTTL:      resetTTL,
		activation:    activation,
		reset:         reset,
	}, nil
}

type templateData struct {
	AppName string
	Link    string
	TTL     time.Duration
}

func (m *QueueMailer) SendActivationEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/api/v1/auth/confirm-email?token=%s", m.cfg.BaseURL, url.QueryEscape(token))
	return m.send(ctx, m.activation, kindActivation, to, "Activate your account", link, m.activationTTL)
}

func (m *QueueMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/api/v1/auth/reset-password?token=%s", m.cfg.BaseURL, url.QueryEscape(token))
	return m.send(ctx, m.reset, kindPasswordReset, to, "Reset your password", link, m.resetTTL)
}

func (m *QueueMailer) send(ctx context.Context, tmpl *template.Template, kind, to, subject, link string, ttl time.Duration) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, templateData{AppName: m.appName, Link: link, TTL: ttl}); err != nil {
		return fmt.Errorf("failed to render %s email: %w", kind, err)
	}

	msg := Message{
		Kind:     kind,
		To:       to,
		From:     m.cfg.FromAddress,
		Subject:  subject,
		Body:     body.String(),
		QueuedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s email: %w", kind, err)
	}
	return m.pub.Publish(ctx, data)
}
