// Package events carries version status changes from the version manager to
// the approval workflow without letting an update echo back to its origin.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadySubscribed is returned when a second handler subscribes.
	ErrAlreadySubscribed = errors.New("events: handler already subscribed")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("events: handler panicked")
)

// VersionStatusChanged is published whenever a version's status is written.
type VersionStatusChanged struct {
	ID             string
	VersionID      string
	DocumentID     string
	OrganizationID string
	WorkflowID     string
	Status         string
	ActorID        string
	OccurredAt     time.Time
}

// NewVersionStatusChanged stamps a fresh event ID.
func NewVersionStatusChanged(versionID, documentID, organizationID, workflowID, status, actorID string, at time.Time) VersionStatusChanged {
	return VersionStatusChanged{
		ID:             uuid.NewString(),
		VersionID:      versionID,
		DocumentID:     documentID,
		OrganizationID: organizationID,
		WorkflowID:     workflowID,
		Status:         status,
		ActorID:        actorID,
		OccurredAt:     at,
	}
}

// DedupeKey identifies the change independently of who published it.
func (e VersionStatusChanged) DedupeKey() string {
	return e.VersionID + ":" + e.Status
}

type Handler func(ctx context.Context, event VersionStatusChanged) error

// Deduper records which changes have already been delivered.
type Deduper interface {
	// Claim returns true if key was not claimed before.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Bus delivers each VersionStatusChanged at most once to its single subscriber.
// Delivery is synchronous.
type Bus struct {
	mu      sync.RWMutex
	handler Handler
	deduper Deduper
	logger  *slog.Logger
}

func NewBus(deduper Deduper, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{deduper: deduper, logger: logger}
}

func (b *Bus) Subscribe(handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		return ErrAlreadySubscribed
	}
	b.handler = handler
	return nil
}

// Claim marks a change as delivered without invoking the subscriber. The
// originator of a status write claims it first so its own write is not
// handed back to it.
func (b *Bus) Claim(ctx context.Context, versionID, status string) (bool, error) {
	claimed, err := b.deduper.Claim(ctx, VersionStatusChanged{VersionID: versionID, Status: status}.DedupeKey())
	if err != nil {
		return false, fmt.Errorf("claim status change: %w", err)
	}
	return claimed, nil
}

// Release undoes a Claim, e.g. when the originating write failed.
func (b *Bus) Release(ctx context.Context, versionID, status string) error {
	return b.deduper.Release(ctx, VersionStatusChanged{VersionID: versionID, Status: status}.DedupeKey())
}

// Publish delivers event unless the same change was already delivered or
// claimed. A failed delivery releases the key so the change can be retried.
func (b *Bus) Publish(ctx context.Context, event VersionStatusChanged) error {
	key := event.DedupeKey()
	claimed, err := b.deduper.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("claim status change: %w", err)
	}
	if !claimed {
		b.logger.DebugContext(ctx, "status change already delivered", "key", key, "event_id", event.ID)
		return nil
	}

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		return nil
	}

	if err := b.safeHandle(ctx, handler, event); err != nil {
		if releaseErr := b.deduper.Release(ctx, key); releaseErr != nil {
			b.logger.WarnContext(ctx, "release status change failed", "key", key, "error", releaseErr)
		}
		return err
	}
	return nil
}

func (b *Bus) safeHandle(ctx context.Context, handler Handler, event VersionStatusChanged) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "status change handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, event)
}
