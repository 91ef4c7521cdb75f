package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/juanchiconsoli/email-monitor/report"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Mailer sends backup reports over SMTP.
type Mailer struct {
	cfg    Config
	sender gomail.Sender
	logger *slog.Logger
}

// New returns a Mailer that dials cfg.Host for every report. Port 465 uses
// implicit TLS; other ports upgrade with STARTTLS when the server offers it.
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}

	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		closer, err := dialer.Dial()
		if err != nil {
			return fmt.Errorf("smtp dial %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		defer closer.Close()
		return closer.Send(from, to, msg)
	})
	return NewWithSender(cfg, sender, logger), nil
}

// NewWithSender returns a Mailer delivering through sender.
func NewWithSender(cfg Config, sender gomail.Sender, logger *slog.Logger) *Mailer {
	if cfg.FromName == "" {
		cfg.FromName = "Backup Monitor"
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Mailer{cfg: cfg, sender: sender, logger: logger}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return errors.New("smtp host is empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", cfg.Port)
	}
	if cfg.From == "" && cfg.Username == "" {
		return errors.New("smtp sender address is empty")
	}
	return nil
}

// Message builds the multipart/alternative report mail: the CSV rendering as
// the text part and the HTML rendering as the preferred part.
func (m *Mailer) Message(to []string, subject string, r report.Report) (*gomail.Message, error) {
	if len(to) == 0 {
		return nil, errors.New("no report recipient")
	}
	text, err := report.CSVString(r)
	if err != nil {
		return nil, fmt.Errorf("csv report: %w", err)
	}
	html, err := report.HTMLString(r)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)
	return msg, nil
}

// Send mails the report to every recipient.
func (m *Mailer) Send(ctx context.Context, to []string, subject string, r report.Report) error {
	msg, err := m.Message(to, subject, r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := gomail.Send(m.sender, msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	if m.logger != nil {
		m.logger.Info("report sent", "to", strings.Join(to, ","), "subject", subject, "clients", r.Total, "pass", r.Pass)
	}
	return nil
}
