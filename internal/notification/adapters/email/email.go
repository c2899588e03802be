package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/notifly-go/internal/domain/notification"
	"github.com/notifly-go/pkg/logger"
	"github.com/notifly-go/pkg/resilience"
	"github.com/sony/gobreaker"
)

type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// implicitTLSPort is the SMTPS port; other ports use STARTTLS when offered.
const implicitTLSPort = 465

type sendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers group messages over SMTP. Recipients are addressed on the
// envelope only, so members of a group do not see each other.
type SMTPSender struct {
	config  Config
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  logger.Logger
	send    sendFunc
}

func NewSMTPSender(cfg Config, log logger.Logger) *SMTPSender {
	cbCfg := resilience.DefaultCircuitBreakerConfig("smtp")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	s := &SMTPSender{
		config:  cfg,
		breaker: resilience.NewCircuitBreaker(cbCfg),
		retry:   resilience.DefaultRetryConfig(),
		logger:  log,
	}
	s.retry.ShouldRetry = isTemporary
	if cfg.SMTPPort == implicitTLSPort {
		s.send = s.sendTLS
	} else {
		s.send = sendPlain
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, to []string, msg notification.Message) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	body := s.buildMessage(msg, time.Now())
	addr := net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(s.config.SMTPPort))

	var auth smtp.Auth
	if s.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	}

	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.send(ctx, addr, auth, s.config.FromEmail, to, body)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent", "recipients", len(to), "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) buildMessage(msg notification.Message, now time.Time) []byte {
	from := s.config.FromEmail
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.FromEmail)
	}

	contentType := "text/plain; charset=UTF-8"
	if looksLikeHTML(msg.Body) {
		contentType = "text/html; charset=UTF-8"
	}

	var b bytes.Buffer
	headers := [][2]string{
		{"From", from},
		{"To", "undisclosed-recipients:;"},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", contentType},
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(body))
	return strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html")
}

func sendPlain(_ context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, auth, from, to, msg)
}

func (s *SMTPSender) sendTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.config.SMTPHost}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

// isTemporary retries network errors and 4xx SMTP replies.
func isTemporary(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.HasPrefix(err.Error(), "4")
}

// LogSender is used when no SMTP host is configured.
type LogSender struct {
	fromEmail string
	logger    logger.Logger
}

func NewLogSender(fromEmail string, log logger.Logger) *LogSender {
	return &LogSender{fromEmail: fromEmail, logger: log}
}

func (l *LogSender) Send(_ context.Context, to []string, msg notification.Message) error {
	l.logger.Info("Email delivery skipped, no SMTP host configured",
		"from", l.fromEmail,
		"recipients", to,
		"subject", msg.Subject,
	)
	return nil
}
