package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"timeoff/internal/platform/config"
)

var ErrDisabled = errors.New("email delivery disabled")

type Settings struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	From     string
	UseTLS   bool
}

// Source resolves SMTP settings at send time so updates apply without restart.
type Source interface {
	SMTPSettings(ctx context.Context) (Settings, error)
}

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// StaticSource serves settings taken from the environment.
type StaticSource Settings

func (s StaticSource) SMTPSettings(context.Context) (Settings, error) {
	return Settings(s), nil
}

func FromConfig(cfg config.Config) StaticSource {
	return StaticSource{
		Enabled:  cfg.EmailEnabled,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		UseTLS:   cfg.SMTPUseTLS,
	}
}

type smtpSender struct {
	source Source
	dial   func(ctx context.Context, addr string) (net.Conn, error)
}

func New(source Source) Sender {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	return &smtpSender{
		source: source,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	settings, err := s.source.SMTPSettings(ctx)
	if err != nil {
		return fmt.Errorf("load smtp settings: %w", err)
	}
	if !settings.Enabled || settings.Host == "" {
		return ErrDisabled
	}

	addr := net.JoinHostPort(settings.Host, fmt.Sprint(settings.Port))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, settings.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if settings.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: settings.Host}); err != nil {
			return err
		}
	}
	if settings.User != "" {
		auth := smtp.PlainAuth("", settings.User, settings.Password, settings.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(settings.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(settings.From, to, subject, body)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	headers := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body)
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
