package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendProvider sends mail through the Resend API.
type ResendProvider struct {
	client *resend.Client
}

// NewResendProvider constructs a provider. An empty key yields an unconfigured provider.
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		return &ResendProvider{}
	}
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) IsConfigured() bool {
	return p != nil && p.client != nil
}

func (p *ResendProvider) Send(ctx context.Context, msg *Message) error {
	if !p.IsConfigured() {
		return errors.New("resend: not configured")
	}
	_, err := p.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("resend: send: %w", err)
	}
	return nil
}
