// Package notify delivers best-effort notifications about approvals and edit locks.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindTeamApprovalRequest     Kind = "team_approval_request"
	KindCustomerApprovalRequest Kind = "customer_approval_request"
	KindEditLockChanged         Kind = "edit_lock_changed"
	KindUnlockRequested         Kind = "unlock_requested"
	KindUnlockDecided           Kind = "unlock_decided"
)

type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// Message is a single notification. Text carries the free-form part
// (approval message, lock reason or unlock decision).
type Message struct {
	Kind          Kind
	To            []Recipient
	DocumentID    string
	DocumentTitle string
	Actor         string
	Text          string
	Link          string
}

// Notifier delivers messages. Callers treat every error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	recipients := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		if r.UserID != "" {
			recipients = append(recipients, r.UserID)
			continue
		}
		recipients = append(recipients, r.Email)
	}
	n.logger.InfoContext(ctx, "notification",
		"kind", string(msg.Kind),
		"document_id", msg.DocumentID,
		"recipients", recipients,
		"actor", msg.Actor,
	)
	return nil
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) error { return nil }
