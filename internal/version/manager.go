// Package version keeps numbered, rendered snapshots of a document and
// controls whether the document may be edited.
package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"signoff/api/internal/apperr"
	"signoff/api/internal/blob"
	"signoff/api/internal/clock"
	"signoff/api/internal/events"
	"signoff/api/internal/notify"
	"signoff/api/internal/render"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
)

const defaultHistoryLimit = 50

// Store is the persistence the manager needs.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	UpdateDocument(ctx context.Context, documentID string, fn func(*store.Document) error) (store.Document, error)
	CreateVersion(ctx context.Context, v store.Version) error
	GetVersion(ctx context.Context, versionID string) (store.Version, error)
	UpdateVersion(ctx context.Context, versionID string, fn func(*store.Version) error) (store.Version, error)
	ListVersions(ctx context.Context, documentID string, limit int) ([]store.Version, error)
	LatestVersionNumber(ctx context.Context, documentID string) (int, error)
	DeleteVersion(ctx context.Context, versionID string) error
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Artifact, error)
}

type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (blob.Object, error)
	Delete(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.VersionStatusChanged) error
}

type Deps struct {
	Store        Store
	Renderer     Renderer
	Blobs        BlobStore
	Publisher    Publisher
	Notifier     notify.Notifier
	Clock        clock.Clock
	Logger       *slog.Logger
	HistoryLimit int
}

type Manager struct {
	store        Store
	renderer     Renderer
	blobs        BlobStore
	publisher    Publisher
	notifier     notify.Notifier
	clock        clock.Clock
	logger       *slog.Logger
	historyLimit int
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		store:        d.Store,
		renderer:     d.Renderer,
		blobs:        d.Blobs,
		publisher:    d.Publisher,
		notifier:     d.Notifier,
		clock:        d.Clock,
		logger:       d.Logger,
		historyLimit: d.HistoryLimit,
	}
	if m.notifier == nil {
		m.notifier = notify.Discard{}
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.historyLimit <= 0 {
		m.historyLimit = defaultHistoryLimit
	}
	return m
}

// CreateContext describes who creates a version and in which state.
type CreateContext struct {
	Actor      store.Actor
	Status     string
	WorkflowID string
}

// CreateVersion renders content, stores the file and persists the next
// version number. A pending_* status also locks the document.
func (m *Manager) CreateVersion(ctx context.Context, documentID, organizationID string, content store.ContentSnapshot, cc CreateContext) (string, error) {
	status := cc.Status
	if status == "" {
		status = store.VersionDraft
	}
	if !validVersionStatus(status) {
		return "", apperr.Validation(fmt.Sprintf("invalid version status %q", status))
	}
	if _, err := m.store.GetDocument(ctx, documentID); err != nil {
		return "", storeError(err, "document", documentID)
	}

	latest, err := m.store.LatestVersionNumber(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("latest version number: %w", err)
	}
	number := latest + 1
	now := m.clock.Now()

	artifact, err := m.renderer.Render(ctx, render.Request{
		Title:               content.Title,
		ClientName:          content.ClientName,
		MainContent:         content.MainContent,
		BoilerplateSections: content.BoilerplateSections,
		Version:             number,
		Date:                now,
	})
	if err != nil {
		return "", apperr.External("render version", err)
	}

	versionID := util.NewID("ver")
	key := blob.VersionKey(organizationID, documentID, versionID, artifact.FileName)
	object, err := m.blobs.Upload(ctx, key, artifact.Data, artifact.MimeType)
	if err != nil {
		return "", apperr.External("upload version", err)
	}

	v := store.Version{
		ID:              versionID,
		DocumentID:      documentID,
		OrganizationID:  organizationID,
		Version:         number,
		Status:          status,
		ContentSnapshot: content,
		FileName:        artifact.FileName,
		DownloadURL:     object.URL,
		StorageKey:      object.Key,
		FileSize:        artifact.SizeBytes,
		Metadata: store.VersionMetadata{
			WordCount:      artifact.WordCount,
			PageCount:      artifact.PageCount,
			GenerationTime: artifact.Duration.Milliseconds(),
		},
		WorkflowID: cc.WorkflowID,
		CreatedBy:  cc.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.CreateVersion(ctx, v); err != nil {
		m.deleteBlob(ctx, key)
		if errors.Is(err, store.ErrConflict) {
			return "", apperr.New(apperr.CodeConflict, fmt.Sprintf("version %d already exists", number), map[string]string{"document_id": documentID})
		}
		return "", fmt.Errorf("persist version: %w", err)
	}

	reason := lockReasonFor(status)
	var locked bool
	doc, err := m.store.UpdateDocument(ctx, documentID, func(doc *store.Document) error {
		doc.CurrentVersionID = v.ID
		doc.UpdatedAt = now
		if reason != "" {
			locked = !doc.Lock.Locked || doc.Lock.Reason != reason
			engageLock(doc, reason, cc.Actor, now)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("link current version: %w", err)
	}

	m.logger.InfoContext(ctx, "version created", "document_id", documentID, "version_id", v.ID, "version", number, "status", status)
	if locked {
		m.audit(ctx, documentID, store.AuditLocked, reason, cc.Actor)
		m.notifyLockChange(ctx, doc, "locked ("+reason+")", cc.Actor)
	}
	return v.ID, nil
}

// Preview is a rendered file that was not persisted as a version.
type Preview struct {
	URL       string
	FileName  string
	SizeBytes int64
	WordCount int
	PageCount int
}

// CreatePreview renders and uploads content without creating a version.
func (m *Manager) CreatePreview(ctx context.Context, organizationID string, content store.ContentSnapshot) (Preview, error) {
	artifact, err := m.renderer.Render(ctx, render.Request{
		Title:               content.Title,
		ClientName:          content.ClientName,
		MainContent:         content.MainContent,
		BoilerplateSections: content.BoilerplateSections,
		Date:                m.clock.Now(),
		Preview:             true,
	})
	if err != nil {
		return Preview{}, apperr.External("render preview", err)
	}
	object, err := m.blobs.Upload(ctx, blob.VersionKey(organizationID, "", "", artifact.FileName), artifact.Data, artifact.MimeType)
	if err != nil {
		return Preview{}, apperr.External("upload preview", err)
	}
	return Preview{
		URL:       object.URL,
		FileName:  artifact.FileName,
		SizeBytes: artifact.SizeBytes,
		WordCount: artifact.WordCount,
		PageCount: artifact.PageCount,
	}, nil
}

// GetVersion returns a single version.
func (m *Manager) GetVersion(ctx context.Context, versionID string) (store.Version, error) {
	v, err := m.store.GetVersion(ctx, versionID)
	if err != nil {
		return store.Version{}, storeError(err, "version", versionID)
	}
	return v, nil
}

// GetVersionHistory returns the newest versions first, capped at the history limit.
func (m *Manager) GetVersionHistory(ctx context.Context, documentID string) ([]store.Version, error) {
	versions, err := m.store.ListVersions(ctx, documentID, m.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// GetCurrentVersion returns the document's current version, or nil if it has none.
func (m *Manager) GetCurrentVersion(ctx context.Context, documentID string) (*store.Version, error) {
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, storeError(err, "document", documentID)
	}
	if doc.CurrentVersionID != "" {
		v, err := m.store.GetVersion(ctx, doc.CurrentVersionID)
		if err == nil {
			return &v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get current version: %w", err)
		}
	}
	latest, err := m.store.ListVersions(ctx, documentID, 1)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if len(latest) == 0 {
		return nil, nil
	}
	return &latest[0], nil
}

// UpdateVersionStatus writes status and publishes the change. Delivery
// failures are logged; the status write stands.
func (m *Manager) UpdateVersionStatus(ctx context.Context, versionID, status string, actor store.Actor) error {
	if !validVersionStatus(status) {
		return apperr.Validation(fmt.Sprintf("invalid version status %q", status))
	}
	now := m.clock.Now()
	v, err := m.store.UpdateVersion(ctx, versionID, func(v *store.Version) error {
		v.Status = status
		v.UpdatedAt = now
		if status == store.VersionApproved && v.ApprovedAt == nil {
			v.ApprovedAt = &now
		}
		return nil
	})
	if err != nil {
		return storeError(err, "version", versionID)
	}

	if m.publisher != nil {
		event := events.NewVersionStatusChanged(v.ID, v.DocumentID, v.OrganizationID, v.WorkflowID, status, actor.UserID, now)
		if err := m.publisher.Publish(ctx, event); err != nil {
			m.logger.ErrorContext(ctx, "status change delivery failed", "version_id", v.ID, "status", status, "error", err)
		}
	}
	return nil
}

// DeleteOldDraftVersions removes all but the newest keepCount draft versions
// and returns how many were deleted. The current version is never removed.
func (m *Manager) DeleteOldDraftVersions(ctx context.Context, documentID string, keepCount int) (int, error) {
	if keepCount < 0 {
		return 0, apperr.Validation("keep count must not be negative")
	}
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, storeError(err, "document", documentID)
	}
	versions, err := m.store.ListVersions(ctx, documentID, 0)
	if err != nil {
		return 0, fmt.Errorf("list versions: %w", err)
	}

	deleted, kept := 0, 0
	for _, v := range versions {
		if v.Status != store.VersionDraft {
			continue
		}
		if kept < keepCount || v.ID == doc.CurrentVersionID {
			kept++
			continue
		}
		if err := m.store.DeleteVersion(ctx, v.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return deleted, fmt.Errorf("delete version %s: %w", v.ID, err)
		}
		m.deleteBlob(ctx, v.StorageKey)
		deleted++
	}
	if deleted > 0 {
		m.logger.InfoContext(ctx, "old drafts deleted", "document_id", documentID, "deleted", deleted)
	}
	return deleted, nil
}

func (m *Manager) deleteBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := m.blobs.Delete(ctx, key); err != nil {
		m.logger.WarnContext(ctx, "delete version file failed", "key", key, "error", err)
	}
}

func (m *Manager) audit(ctx context.Context, documentID, action, reason string, actor store.Actor) {
	entry := store.AuditEntry{
		ID:         util.NewID("aud"),
		DocumentID: documentID,
		Action:     action,
		Reason:     reason,
		Actor:      actor,
		Timestamp:  m.clock.Now(),
	}
	if err := m.store.AppendAudit(ctx, entry); err != nil {
		m.logger.WarnContext(ctx, "append audit entry failed", "document_id", documentID, "action", action, "error", err)
	}
}

func (m *Manager) notify(ctx context.Context, msg notify.Message) {
	if len(msg.To) == 0 {
		return
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.logger.WarnContext(ctx, "notification failed", "kind", string(msg.Kind), "document_id", msg.DocumentID, "error", err)
	}
}

func validVersionStatus(status string) bool {
	switch status {
	case store.VersionDraft, store.VersionPendingTeam, store.VersionPendingCustomer, store.VersionApproved, store.VersionRejected:
		return true
	}
	return false
}

func lockReasonFor(status string) string {
	switch status {
	case store.VersionPendingTeam:
		return store.LockPendingTeam
	case store.VersionPendingCustomer:
		return store.LockPendingCustomer
	}
	return ""
}

func storeError(err error, what, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what, id)
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}
