// Package approval sequences the team and customer review stages of a
// document and tracks per-approver consensus for the team stage.
package approval

import (
	"context"
	"errors"
	"fmt"

	"signoff/api/internal/apperr"
	"signoff/api/internal/store"
)

// Approval status values understood by the status syncer.
const (
	StatusPendingTeam      = "pending_team"
	StatusPendingCustomer  = "pending_customer"
	StatusTeamApproved     = "team_approved"
	StatusCustomerApproved = "customer_approved"
	StatusRejected         = "rejected"
)

// Decision choices.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Store is the persistence the approval services need.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	UpdateDocument(ctx context.Context, documentID string, fn func(*store.Document) error) (store.Document, error)

	CreateWorkflow(ctx context.Context, wf store.Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (store.Workflow, error)
	UpdateWorkflow(ctx context.Context, workflowID string, fn func(*store.Workflow) error) (store.Workflow, error)
	ListWorkflowsByOrganization(ctx context.Context, organizationID string) ([]store.Workflow, error)
	ListWorkflowsByDocument(ctx context.Context, documentID string) ([]store.Workflow, error)

	InsertTeamApprovals(ctx context.Context, workflowID string, approvals []store.TeamApproval, fn func(*store.Workflow) error) (store.Workflow, error)
	GetTeamApproval(ctx context.Context, approvalID string) (store.TeamApproval, error)
	UpdateTeamApproval(ctx context.Context, approvalID string, fn func(*store.TeamApproval) error) (store.TeamApproval, error)
	ListTeamApprovalsByWorkflow(ctx context.Context, workflowID string) ([]store.TeamApproval, error)
	ListTeamApprovalsByUser(ctx context.Context, userID, organizationID, status string) ([]store.TeamApproval, error)
	ListTeamApprovalsByOrganization(ctx context.Context, organizationID string) ([]store.TeamApproval, error)
}

// StatusSyncer mirrors an approval status onto the document's version and
// edit lock.
type StatusSyncer interface {
	SyncApprovalWithVersionStatus(ctx context.Context, workflowID, approvalStatus string, actor store.Actor) error
}

func validDecision(decision string) bool {
	return decision == DecisionApproved || decision == DecisionRejected
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
