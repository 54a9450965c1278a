package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned when SMTP settings are incomplete.
var ErrNotConfigured = errors.New("email not configured")

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications as HTML email over SMTP.
type EmailNotifier struct {
	config EmailConfig
	server string
	auth   smtp.Auth
	send   sendFunc
	logger *slog.Logger
}

func NewEmailNotifier(config EmailConfig, logger *slog.Logger) *EmailNotifier {
	if config.AppName == "" {
		config.AppName = "Signoff"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
		logger: logger,
	}
}

// IsConfigured returns true if email is configured
func (n *EmailNotifier) IsConfigured() bool {
	return n.config.Host != "" && n.config.Port != "" && n.config.From != ""
}

func (n *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	if !n.IsConfigured() {
		return ErrNotConfigured
	}

	var to []string
	for _, r := range msg.To {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	if len(to) == 0 {
		n.logger.DebugContext(ctx, "notification has no email recipients", "kind", string(msg.Kind), "document_id", msg.DocumentID)
		return nil
	}

	subject, body, err := renderMessage(n.config.AppName, msg)
	if err != nil {
		return err
	}
	if err := n.send(n.server, n.auth, n.config.From, to, n.buildMIME(to, subject, body)); err != nil {
		return fmt.Errorf("send %s email: %w", msg.Kind, err)
	}
	return nil
}

func (n *EmailNotifier) buildMIME(to []string, subject, htmlBody string) []byte {
	from := n.config.From
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.From)
	}

	boundary := "boundary-signoff"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return msg.Bytes()
}
