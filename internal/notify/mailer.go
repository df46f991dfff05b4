// Package notify delivers e-mail copies of attendee notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mail is one outgoing message. Either body may be empty.
type Mail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the SES endpoint, e.g. for LocalStack.
	Endpoint string
}

type Config struct {
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
}

// NewMailer creates a mailer from config. Provider "ses" uses AWS SES;
// "noop" or anything else logs and drops messages.
func NewMailer(cfg Config, log *slog.Logger) Mailer {
	switch cfg.Provider {
	case "ses":
		awsCfg := aws.Config{
			Region: cfg.SES.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					cfg.SES.AccessKeyID,
					cfg.SES.SecretAccessKey,
					"",
				),
			),
		}

		client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
			if cfg.SES.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.SES.Endpoint)
			}
		})

		return &SESMailer{
			client:      client,
			fromAddress: cfg.FromAddress,
			fromName:    cfg.FromName,
			log:         log,
		}
	case "noop", "":
		return &NoopMailer{log: log}
	default:
		log.Warn("unknown mail provider, using noop", slog.String("provider", cfg.Provider))
		return &NoopMailer{log: log}
	}
}

type SESMailer struct {
	client      *ses.Client
	fromAddress string
	fromName    string
	log         *slog.Logger
}

func (s *SESMailer) Send(ctx context.Context, m Mail) error {
	const op = "notify.SESMailer.Send"

	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{m.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(m.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if m.HTML != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(m.HTML),
			Charset: aws.String("UTF-8"),
		}
	}

	if m.Text != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(m.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("mail sent",
		slog.String("provider", "ses"),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

type NoopMailer struct {
	log *slog.Logger
}

func (n *NoopMailer) Send(_ context.Context, m Mail) error {
	n.log.Debug("mail dropped",
		slog.String("provider", "noop"),
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
	)
	return nil
}
