package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/resilience"
	"github.com/sony/gobreaker"
)

const charset = "UTF-8"

type sesAPI interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// SESSender delivers group messages through Amazon SES. Like SMTPSender it
// only uses blind copies so recipients stay hidden from each other.
type SESSender struct {
	client  sesAPI
	from    string
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  logger.Logger
}

func NewSESSender(client sesAPI, fromEmail, fromName string, log logger.Logger) *SESSender {
	cbCfg := resilience.DefaultCircuitBreakerConfig("ses")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	s := &SESSender{
		client:  client,
		from:    from,
		breaker: resilience.NewCircuitBreaker(cbCfg),
		retry:   resilience.DefaultRetryConfig(),
		logger:  log,
	}
	s.retry.ShouldRetry = func(err error) bool {
		return request.IsErrorRetryable(err) || request.IsErrorThrottle(err)
	}
	return s
}

func (s *SESSender) Send(ctx context.Context, to []string, msg notification.Message) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	body := &ses.Body{}
	content := &ses.Content{Charset: aws.String(charset), Data: aws.String(msg.Body)}
	if looksLikeHTML(msg.Body) {
		body.Html = content
	} else {
		body.Text = content
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &ses.Destination{BccAddresses: aws.StringSlice(to)},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(msg.Subject)},
			Body:    body,
		},
	}

	var messageID string
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
			out, err := s.client.SendEmailWithContext(ctx, input)
			if err != nil {
				return err
			}
			messageID = aws.StringValue(out.MessageId)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent", "recipients", len(to), "subject", msg.Subject, "messageId", messageID)
	return nil
}
