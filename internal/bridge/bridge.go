// Package bridge connects approval workflows to document versions and the
// edit lock, and hosts the save-and-review entry point.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"signoff/api/internal/apperr"
	"signoff/api/internal/clock"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
	"signoff/api/internal/version"
)

const fallbackShareIDLength = 16

type LinkKind string

const (
	LinkTeam     LinkKind = "team"
	LinkCustomer LinkKind = "customer"
)

type Store interface {
	CreateDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	UpdateDocument(ctx context.Context, documentID string, fn func(*store.Document) error) (store.Document, error)
	GetMarker(ctx context.Context, key string) (store.Marker, error)
	SaveMarker(ctx context.Context, m store.Marker) error
}

type Versions interface {
	CreateVersion(ctx context.Context, documentID, organizationID string, content store.ContentSnapshot, cc version.CreateContext) (string, error)
	GetVersion(ctx context.Context, versionID string) (store.Version, error)
	GetCurrentVersion(ctx context.Context, documentID string) (*store.Version, error)
	UpdateVersionStatus(ctx context.Context, versionID, status string, actor store.Actor) error
	LockEditing(ctx context.Context, documentID, reason string, actor store.Actor) error
	UnlockEditing(ctx context.Context, documentID string, actor store.Actor) error
	GetEditLockStatus(ctx context.Context, documentID string) (version.LockStatus, error)
}

type Workflows interface {
	CreateWorkflow(ctx context.Context, documentID, organizationID string, settings store.ApprovalSettings, actor store.Actor) (string, error)
	ResumeWorkflow(ctx context.Context, workflowID string, actor store.Actor) error
	GetWorkflow(ctx context.Context, workflowID string) (store.Workflow, error)
	ProcessStageCompletion(ctx context.Context, workflowID, stage string, actor store.Actor) error
	ProcessStageRejection(ctx context.Context, workflowID, stage string, actor store.Actor) error
	FindActiveWorkflow(ctx context.Context, documentID string) (*store.Workflow, error)
}

// Claimer marks a status change as already delivered.
type Claimer interface {
	Claim(ctx context.Context, versionID, status string) (bool, error)
	Release(ctx context.Context, versionID, status string) error
}

type Config struct {
	AppURL string
	// FreezeOnFinalApproval keeps a finally approved document locked with
	// reason approved_final instead of unlocking it.
	FreezeOnFinalApproval bool
}

type Deps struct {
	Store     Store
	Versions  Versions
	Workflows Workflows
	Claimer   Claimer
	Clock     clock.Clock
	Logger    *slog.Logger
	Config    Config
}

type Bridge struct {
	store     Store
	versions  Versions
	workflows Workflows
	claimer   Claimer
	clock     clock.Clock
	logger    *slog.Logger
	cfg       Config
}

func New(d Deps) *Bridge {
	b := &Bridge{
		store:     d.Store,
		versions:  d.Versions,
		workflows: d.Workflows,
		claimer:   d.Claimer,
		clock:     d.Clock,
		logger:    d.Logger,
		cfg:       d.Config,
	}
	b.cfg.AppURL = strings.TrimRight(b.cfg.AppURL, "/")
	if b.clock == nil {
		b.clock = clock.System{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// CreateVersionForApproval snapshots the document's current content as a new
// version tied to workflowID.
func (b *Bridge) CreateVersionForApproval(ctx context.Context, documentID, workflowID, initialStatus string, actor store.Actor) (store.Version, error) {
	doc, err := b.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Version{}, storeError(err, "document", documentID)
	}
	versionID, err := b.versions.CreateVersion(ctx, doc.ID, doc.OrganizationID, snapshotOf(doc), version.CreateContext{
		Actor:      actor,
		Status:     initialStatus,
		WorkflowID: workflowID,
	})
	if err != nil {
		return store.Version{}, err
	}
	return b.versions.GetVersion(ctx, versionID)
}

// CreateShareableLink builds the review URL of a version for the team or the
// customer.
func (b *Bridge) CreateShareableLink(ctx context.Context, versionID string, kind LinkKind) (string, error) {
	if kind != LinkTeam && kind != LinkCustomer {
		return "", apperr.Validation(fmt.Sprintf("unknown link kind %q", kind))
	}
	v, err := b.versions.GetVersion(ctx, versionID)
	if err != nil {
		return "", err
	}

	shareID := ""
	if v.WorkflowID != "" {
		wf, err := b.workflows.GetWorkflow(ctx, v.WorkflowID)
		if err != nil {
			return "", err
		}
		shareID = wf.CustomerSettings.ShareID
	}
	if shareID == "" {
		shareID = util.NewShareID(fallbackShareIDLength)
	}

	path := "/review/" + shareID
	if kind == LinkTeam {
		path = "/review/internal/" + shareID
	}
	return b.cfg.AppURL + path + "?version=" + url.QueryEscape(v.ID), nil
}

// SyncApprovalWithVersionStatus applies the transition for approvalStatus to
// the document lock and, when the document's current version belongs to the
// workflow, to that version. Versions of other workflows are never touched.
func (b *Bridge) SyncApprovalWithVersionStatus(ctx context.Context, workflowID, approvalStatus string, actor store.Actor) error {
	wf, err := b.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	tr := DetermineTransition(approvalStatus, wf.CustomerSettings.Required)

	current, err := b.versions.GetCurrentVersion(ctx, wf.DocumentID)
	if err != nil {
		return err
	}
	if current != nil && current.WorkflowID == wf.ID && current.Status != tr.VersionStatus {
		if err := b.updateVersionStatus(ctx, current.ID, tr.VersionStatus, actor); err != nil {
			return err
		}
	}

	if err := b.applyLock(ctx, wf.DocumentID, tr, actor); err != nil {
		return err
	}
	b.logger.InfoContext(ctx, "approval synced",
		"workflow_id", workflowID,
		"approval_status", approvalStatus,
		"version_status", tr.VersionStatus,
		"lock_action", string(tr.LockAction),
	)
	return nil
}

// updateVersionStatus claims the change before writing it so the write is not
// delivered back to the subscriber.
func (b *Bridge) updateVersionStatus(ctx context.Context, versionID, status string, actor store.Actor) error {
	claimed := false
	if b.claimer != nil {
		ok, err := b.claimer.Claim(ctx, versionID, status)
		if err != nil {
			return err
		}
		claimed = ok
	}
	if err := b.versions.UpdateVersionStatus(ctx, versionID, status, actor); err != nil {
		if claimed {
			if releaseErr := b.claimer.Release(ctx, versionID, status); releaseErr != nil {
				b.logger.WarnContext(ctx, "release claim failed", "version_id", versionID, "status", status, "error", releaseErr)
			}
		}
		return err
	}
	return nil
}

func (b *Bridge) applyLock(ctx context.Context, documentID string, tr Transition, actor store.Actor) error {
	switch tr.LockAction {
	case LockUpdate:
		return b.ensureLocked(ctx, documentID, lockReasonFor(tr.VersionStatus), actor)
	case LockRelease:
		if b.cfg.FreezeOnFinalApproval && tr.VersionStatus == store.VersionApproved {
			return b.ensureLocked(ctx, documentID, store.LockApprovedFinal, actor)
		}
		return b.versions.UnlockEditing(ctx, documentID, actor)
	}
	return nil
}

func (b *Bridge) ensureLocked(ctx context.Context, documentID, reason string, actor store.Actor) error {
	status, err := b.versions.GetEditLockStatus(ctx, documentID)
	if err != nil {
		return err
	}
	if status.Locked && status.Reason == reason {
		return nil
	}
	return b.versions.LockEditing(ctx, documentID, reason, actor)
}

// ReleaseEditLock unlocks the document regardless of the lock reason.
func (b *Bridge) ReleaseEditLock(ctx context.Context, documentID string, actor store.Actor) error {
	return b.versions.UnlockEditing(ctx, documentID, actor)
}

func snapshotOf(doc store.Document) store.ContentSnapshot {
	return store.ContentSnapshot{
		Title:               doc.Title,
		MainContent:         doc.MainContent,
		ClientName:          doc.ClientName,
		BoilerplateSections: append([]string(nil), doc.BoilerplateSections...),
	}
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
