package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the slice of the SES client the provider calls.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends mail through AWS SES v2.
type SESProvider struct {
	client sesAPI
}

// NewSESProvider loads the default AWS credential chain for region.
func NewSESProvider(ctx context.Context, region string) (*SESProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return &SESProvider{client: sesv2.NewFromConfig(cfg)}, nil
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) IsConfigured() bool {
	return p != nil && p.client != nil
}

func (p *SESProvider) Send(ctx context.Context, msg *Message) error {
	if !p.IsConfigured() {
		return errors.New("ses: not configured")
	}
	_, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(msg.Body)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses: send: %w", err)
	}
	return nil
}
