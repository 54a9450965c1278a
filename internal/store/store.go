package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation, e.g. a duplicate version number.
	ErrConflict = errors.New("conflict")
)

// Store is the persistence contract of the approval engine. Update* methods
// run fn against the current record and persist the result atomically; an
// error from fn aborts the write and is returned unchanged.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, documentID string) (Document, error)
	UpdateDocument(ctx context.Context, documentID string, fn func(*Document) error) (Document, error)

	CreateWorkflow(ctx context.Context, wf Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (Workflow, error)
	UpdateWorkflow(ctx context.Context, workflowID string, fn func(*Workflow) error) (Workflow, error)
	ListWorkflowsByOrganization(ctx context.Context, organizationID string) ([]Workflow, error)
	ListWorkflowsByDocument(ctx context.Context, documentID string) ([]Workflow, error)

	// InsertTeamApprovals writes all approvals and applies fn to the workflow
	// as one all-or-nothing batch.
	InsertTeamApprovals(ctx context.Context, workflowID string, approvals []TeamApproval, fn func(*Workflow) error) (Workflow, error)
	GetTeamApproval(ctx context.Context, approvalID string) (TeamApproval, error)
	UpdateTeamApproval(ctx context.Context, approvalID string, fn func(*TeamApproval) error) (TeamApproval, error)
	ListTeamApprovalsByWorkflow(ctx context.Context, workflowID string) ([]TeamApproval, error)
	ListTeamApprovalsByUser(ctx context.Context, userID, organizationID, status string) ([]TeamApproval, error)
	ListTeamApprovalsByOrganization(ctx context.Context, organizationID string) ([]TeamApproval, error)

	CreateVersion(ctx context.Context, v Version) error
	GetVersion(ctx context.Context, versionID string) (Version, error)
	UpdateVersion(ctx context.Context, versionID string, fn func(*Version) error) (Version, error)
	ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error)
	LatestVersionNumber(ctx context.Context, documentID string) (int, error)
	DeleteVersion(ctx context.Context, versionID string) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, documentID string) ([]AuditEntry, error)

	GetMarker(ctx context.Context, key string) (Marker, error)
	SaveMarker(ctx context.Context, marker Marker) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
