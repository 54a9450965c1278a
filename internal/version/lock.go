package version

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signoff/api/internal/apperr"
	"signoff/api/internal/notify"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
)

// LockStatus is the edit lock as seen by a caller.
type LockStatus struct {
	store.EditLock
	CanRequestUnlock bool
}

// LockEditing locks the document for the given reason.
func (m *Manager) LockEditing(ctx context.Context, documentID, reason string, actor store.Actor) error {
	if !validLockReason(reason) {
		return apperr.Validation(fmt.Sprintf("invalid lock reason %q", reason))
	}
	now := m.clock.Now()
	doc, err := m.store.UpdateDocument(ctx, documentID, func(doc *store.Document) error {
		engageLock(doc, reason, actor, now)
		return nil
	})
	if err != nil {
		return storeError(err, "document", documentID)
	}
	m.audit(ctx, documentID, store.AuditLocked, reason, actor)
	m.notifyLockChange(ctx, doc, "locked ("+reason+")", actor)
	return nil
}

// UnlockEditing releases the lock. Unlocking an unlocked document is a no-op.
func (m *Manager) UnlockEditing(ctx context.Context, documentID string, actor store.Actor) error {
	now := m.clock.Now()
	var previous string
	var wasLocked bool
	doc, err := m.store.UpdateDocument(ctx, documentID, func(doc *store.Document) error {
		wasLocked = doc.Lock.Locked
		previous = doc.Lock.Reason
		if !wasLocked {
			return nil
		}
		releaseLock(doc, actor, now)
		return nil
	})
	if err != nil {
		return storeError(err, "document", documentID)
	}
	if !wasLocked {
		return nil
	}
	m.audit(ctx, documentID, store.AuditUnlocked, previous, actor)
	m.notifyLockChange(ctx, doc, "unlocked", actor)
	return nil
}

func (m *Manager) GetEditLockStatus(ctx context.Context, documentID string) (LockStatus, error) {
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return LockStatus{}, storeError(err, "document", documentID)
	}
	return LockStatus{EditLock: doc.Lock, CanRequestUnlock: canRequestUnlock(doc.Lock)}, nil
}

func (m *Manager) IsEditingLocked(ctx context.Context, documentID string) (bool, error) {
	status, err := m.GetEditLockStatus(ctx, documentID)
	if err != nil {
		return false, err
	}
	return status.Locked, nil
}

// RequestUnlock files a request to lift the lock. Only one request may be
// pending, and system locks cannot be contested.
func (m *Manager) RequestUnlock(ctx context.Context, documentID, reason string, actor store.Actor) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperr.Validation("unlock reason is required")
	}
	now := m.clock.Now()
	request := store.UnlockRequest{
		ID:          util.NewID("unl"),
		RequestedBy: actor,
		RequestedAt: now,
		Reason:      reason,
		Status:      store.ApprovalPending,
	}
	doc, err := m.store.UpdateDocument(ctx, documentID, func(doc *store.Document) error {
		if !canRequestUnlock(doc.Lock) {
			return apperr.Validation("unlock cannot be requested for this document")
		}
		doc.Lock.UnlockRequests = append(doc.Lock.UnlockRequests, request)
		return nil
	})
	if err != nil {
		return "", storeError(err, "document", documentID)
	}

	m.audit(ctx, documentID, store.AuditUnlockRequested, reason, actor)
	if holder := doc.Lock.LockedBy; holder != nil {
		m.notify(ctx, notify.Message{
			Kind:          notify.KindUnlockRequested,
			To:            []notify.Recipient{{UserID: holder.UserID, Name: holder.DisplayName}},
			DocumentID:    documentID,
			DocumentTitle: doc.Title,
			Actor:         actor.DisplayName,
			Text:          reason,
		})
	}
	return request.ID, nil
}

// ApproveUnlockRequest approves a pending request and releases the lock in
// the same write.
func (m *Manager) ApproveUnlockRequest(ctx context.Context, documentID, requestID string, actor store.Actor) error {
	return m.decideUnlockRequest(ctx, documentID, requestID, store.ApprovalApproved, actor)
}

// RejectUnlockRequest rejects a pending request; the lock stays in place.
func (m *Manager) RejectUnlockRequest(ctx context.Context, documentID, requestID string, actor store.Actor) error {
	return m.decideUnlockRequest(ctx, documentID, requestID, store.ApprovalRejected, actor)
}

func (m *Manager) decideUnlockRequest(ctx context.Context, documentID, requestID, decision string, actor store.Actor) error {
	now := m.clock.Now()
	var request store.UnlockRequest
	doc, err := m.store.UpdateDocument(ctx, documentID, func(doc *store.Document) error {
		idx := -1
		for i, req := range doc.Lock.UnlockRequests {
			if req.ID == requestID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.NotFound("unlock request", requestID)
		}
		req := &doc.Lock.UnlockRequests[idx]
		if req.Status != store.ApprovalPending {
			return apperr.AlreadyDecided("unlock request was already " + req.Status)
		}
		req.Status = decision
		req.DecidedBy = &actor
		req.DecidedAt = &now
		request = *req
		if decision == store.ApprovalApproved {
			releaseLock(doc, actor, now)
		}
		return nil
	})
	if err != nil {
		return storeError(err, "document", documentID)
	}

	action := store.AuditUnlockRejected
	if decision == store.ApprovalApproved {
		action = store.AuditUnlockApproved
	}
	m.audit(ctx, documentID, action, request.Reason, actor)
	m.notify(ctx, notify.Message{
		Kind:          notify.KindUnlockDecided,
		To:            []notify.Recipient{{UserID: request.RequestedBy.UserID, Name: request.RequestedBy.DisplayName}},
		DocumentID:    documentID,
		DocumentTitle: doc.Title,
		Actor:         actor.DisplayName,
		Text:          decision,
	})
	return nil
}

func (m *Manager) notifyLockChange(ctx context.Context, doc store.Document, text string, actor store.Actor) {
	if doc.CreatedBy.UserID == "" || doc.CreatedBy.UserID == actor.UserID {
		return
	}
	m.notify(ctx, notify.Message{
		Kind:          notify.KindEditLockChanged,
		To:            []notify.Recipient{{UserID: doc.CreatedBy.UserID, Name: doc.CreatedBy.DisplayName}},
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		Actor:         actor.DisplayName,
		Text:          text,
	})
}

func engageLock(doc *store.Document, reason string, actor store.Actor, now time.Time) {
	doc.Lock.Locked = true
	doc.Lock.Reason = reason
	doc.Lock.LockedBy = &actor
	doc.Lock.LockedAt = &now
}

func releaseLock(doc *store.Document, actor store.Actor, now time.Time) {
	doc.Lock.Locked = false
	doc.Lock.Reason = ""
	doc.Lock.LockedBy = nil
	doc.Lock.LockedAt = nil
	doc.Lock.UnlockedAt = &now
	doc.Lock.LastUnlockedBy = &actor
	// A lifted lock answers any request that was still open.
	for i := range doc.Lock.UnlockRequests {
		if doc.Lock.UnlockRequests[i].Status == store.ApprovalPending {
			doc.Lock.UnlockRequests[i].Status = store.ApprovalApproved
			doc.Lock.UnlockRequests[i].DecidedBy = &actor
			doc.Lock.UnlockRequests[i].DecidedAt = &now
		}
	}
}

func canRequestUnlock(lock store.EditLock) bool {
	return lock.Locked && lock.Reason != store.LockSystem && lock.PendingUnlockRequest() < 0
}

func validLockReason(reason string) bool {
	switch reason {
	case store.LockPendingTeam, store.LockPendingCustomer, store.LockApprovedFinal, store.LockSystem:
		return true
	}
	return false
}
