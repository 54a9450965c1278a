package approval

import (
	"context"
	"fmt"
	"log/slog"

	"signoff/api/internal/apperr"
	"signoff/api/internal/clock"
	"signoff/api/internal/notify"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
)

// TeamTracker records each approver's decision and derives the team stage
// outcome: all approvals complete it, a single rejection rejects it.
type TeamTracker struct {
	store    Store
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

func NewTeamTracker(st Store, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *TeamTracker {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamTracker{store: st, notifier: notifier, clock: clk, logger: logger}
}

// Aggregate summarizes all decisions of one workflow's team stage.
type Aggregate struct {
	Total       int
	Pending     int
	Approved    int
	Rejected    int
	AllApproved bool
	AnyRejected bool
}

func aggregate(approvals []store.TeamApproval) Aggregate {
	var agg Aggregate
	agg.Total = len(approvals)
	for _, a := range approvals {
		switch a.Status {
		case store.ApprovalApproved:
			agg.Approved++
		case store.ApprovalRejected:
			agg.Rejected++
		default:
			agg.Pending++
		}
	}
	agg.AllApproved = agg.Total > 0 && agg.Approved == agg.Total
	agg.AnyRejected = agg.Rejected > 0
	return agg
}

// DecisionResult is the outcome of one approver's decision. Triggered is true
// only for the single decision that moved the stage to a terminal status.
type DecisionResult struct {
	ApprovalID        string
	WorkflowID        string
	Decision          string
	StageStatus       string
	ReceivedApprovals int
	RequiredApprovals int
	Triggered         bool
	Approver          store.Approver
}

type ApproverStatus struct {
	ApprovalID string
	Approver   store.Approver
	Status     string
	Decision   *store.Decision
	Notified   bool
}

type TeamApprovalStatus struct {
	WorkflowID string
	Aggregate
	Approvals []ApproverStatus
}

// CreateTeamApproval creates one pending approval per approver and starts the
// team stage in the same batch.
func (t *TeamTracker) CreateTeamApproval(ctx context.Context, documentID, workflowID string, approvers []store.Approver, organizationID, message string) ([]string, error) {
	if len(approvers) == 0 {
		return nil, apperr.Validation("at least one approver is required")
	}
	now := t.clock.Now()
	approvals := make([]store.TeamApproval, 0, len(approvers))
	ids := make([]string, 0, len(approvers))
	for _, approver := range approvers {
		id := util.NewID("ta")
		ids = append(ids, id)
		approvals = append(approvals, store.TeamApproval{
			ID:             id,
			WorkflowID:     workflowID,
			DocumentID:     documentID,
			OrganizationID: organizationID,
			Approver:       approver,
			Status:         store.ApprovalPending,
			Message:        message,
			CreatedAt:      now,
		})
	}

	_, err := t.store.InsertTeamApprovals(ctx, workflowID, approvals, func(wf *store.Workflow) error {
		stage := wf.Stage(store.StageTeam)
		if stage == nil {
			return apperr.Validation("workflow has no team stage")
		}
		if len(wf.TeamSettings.ApprovalIDs) > 0 || stage.Status != store.StagePending {
			return apperr.New(apperr.CodeConflict, "team approval already started", map[string]string{"workflow_id": workflowID})
		}
		stage.Status = store.StageInProgress
		stage.StartedAt = &now
		stage.RequiredApprovals = len(approvals)
		stage.ReceivedApprovals = 0
		wf.CurrentStage = store.StageTeam
		wf.TeamSettings.ApprovalIDs = ids
		return nil
	})
	if err != nil {
		return nil, storeError(err, "workflow", workflowID)
	}
	t.logger.InfoContext(ctx, "team approval started", "workflow_id", workflowID, "approvers", len(ids))
	return ids, nil
}

// SubmitTeamDecision records userID's decision on approvalID and recomputes
// the team stage.
func (t *TeamTracker) SubmitTeamDecision(ctx context.Context, approvalID, userID, decision, comment string) (DecisionResult, error) {
	if !validDecision(decision) {
		return DecisionResult{}, apperr.Validation(fmt.Sprintf("invalid decision %q", decision))
	}
	now := t.clock.Now()
	approval, err := t.store.UpdateTeamApproval(ctx, approvalID, func(a *store.TeamApproval) error {
		if a.Approver.UserID != userID {
			return apperr.Unauthorized("only the assigned approver may decide")
		}
		if a.Status != store.ApprovalPending {
			return apperr.AlreadyDecided("approval was already " + a.Status)
		}
		a.Status = decision
		a.Decision = &store.Decision{Choice: decision, Comment: comment, SubmittedAt: now}
		return nil
	})
	if err != nil {
		return DecisionResult{}, storeError(err, "team approval", approvalID)
	}

	stage, triggered, _, err := t.reconcile(ctx, approval.WorkflowID)
	if err != nil {
		return DecisionResult{}, err
	}
	t.logger.InfoContext(ctx, "team decision recorded",
		"workflow_id", approval.WorkflowID,
		"approval_id", approvalID,
		"decision", decision,
		"stage_status", stage.Status,
	)
	return DecisionResult{
		ApprovalID:        approvalID,
		WorkflowID:        approval.WorkflowID,
		Decision:          decision,
		StageStatus:       stage.Status,
		ReceivedApprovals: stage.ReceivedApprovals,
		RequiredApprovals: stage.RequiredApprovals,
		Triggered:         triggered,
		Approver:          approval.Approver,
	}, nil
}

// reconcile folds the current decisions into the team stage. Counters only
// grow and a rejected stage stays rejected.
func (t *TeamTracker) reconcile(ctx context.Context, workflowID string) (store.Stage, bool, Aggregate, error) {
	approvals, err := t.store.ListTeamApprovalsByWorkflow(ctx, workflowID)
	if err != nil {
		return store.Stage{}, false, Aggregate{}, fmt.Errorf("list team approvals: %w", err)
	}
	agg := aggregate(approvals)
	now := t.clock.Now()

	var triggered bool
	wf, err := t.store.UpdateWorkflow(ctx, workflowID, func(wf *store.Workflow) error {
		stage := wf.Stage(store.StageTeam)
		if stage == nil {
			return apperr.Validation("workflow has no team stage")
		}
		if agg.Approved > stage.ReceivedApprovals {
			stage.ReceivedApprovals = agg.Approved
		}
		if stage.Status != store.StageInProgress {
			return nil
		}
		switch {
		case agg.AnyRejected:
			stage.Status = store.StageRejected
			stage.CompletedAt = &now
			triggered = true
		case agg.AllApproved:
			stage.Status = store.StageDone
			stage.CompletedAt = &now
			wf.TeamSettings.AllApproved = true
			wf.TeamSettings.CompletedAt = &now
			triggered = true
		}
		return nil
	})
	if err != nil {
		return store.Stage{}, false, Aggregate{}, storeError(err, "workflow", workflowID)
	}
	return *wf.Stage(store.StageTeam), triggered, agg, nil
}

// GetTeamApprovalStatus returns counts and the per-approver view.
func (t *TeamTracker) GetTeamApprovalStatus(ctx context.Context, workflowID string) (TeamApprovalStatus, error) {
	if _, err := t.store.GetWorkflow(ctx, workflowID); err != nil {
		return TeamApprovalStatus{}, storeError(err, "workflow", workflowID)
	}
	approvals, err := t.store.ListTeamApprovalsByWorkflow(ctx, workflowID)
	if err != nil {
		return TeamApprovalStatus{}, fmt.Errorf("list team approvals: %w", err)
	}
	status := TeamApprovalStatus{WorkflowID: workflowID, Aggregate: aggregate(approvals)}
	for _, a := range approvals {
		status.Approvals = append(status.Approvals, ApproverStatus{
			ApprovalID: a.ID,
			Approver:   a.Approver,
			Status:     a.Status,
			Decision:   a.Decision,
			Notified:   a.NotifiedAt != nil,
		})
	}
	return status, nil
}

// CheckAndUpdateWorkflowStatus re-derives the team stage from the stored
// decisions and reports whether every approver approved.
func (t *TeamTracker) CheckAndUpdateWorkflowStatus(ctx context.Context, workflowID string) (bool, error) {
	_, _, agg, err := t.reconcile(ctx, workflowID)
	if err != nil {
		return false, err
	}
	return agg.AllApproved && !agg.AnyRejected, nil
}

// GetApprovalsByUser lists userID's pending approvals, newest first.
func (t *TeamTracker) GetApprovalsByUser(ctx context.Context, userID, organizationID string) ([]store.TeamApproval, error) {
	items, err := t.store.ListTeamApprovalsByUser(ctx, userID, organizationID, store.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list approvals by user: %w", err)
	}
	return items, nil
}

// GetOrganizationApprovals lists every team approval of an organization, newest first.
func (t *TeamTracker) GetOrganizationApprovals(ctx context.Context, organizationID string) ([]store.TeamApproval, error) {
	items, err := t.store.ListTeamApprovalsByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list organization approvals: %w", err)
	}
	return items, nil
}

// NotifyTeamMembers asks every approver for a decision. Failures are logged.
func (t *TeamTracker) NotifyTeamMembers(ctx context.Context, approvalIDs []string, documentTitle string, requester store.Actor, message, link string) {
	var (
		recipients []notify.Recipient
		notified   []string
		documentID string
	)
	for _, id := range approvalIDs {
		a, err := t.store.GetTeamApproval(ctx, id)
		if err != nil {
			t.logger.WarnContext(ctx, "load approval for notification failed", "approval_id", id, "error", err)
			continue
		}
		if a.Status != store.ApprovalPending {
			continue
		}
		documentID = a.DocumentID
		recipients = append(recipients, notify.Recipient{UserID: a.Approver.UserID, Name: a.Approver.DisplayName, Email: a.Approver.Email})
		notified = append(notified, id)
	}
	if len(recipients) == 0 {
		return
	}

	err := t.notifier.Notify(ctx, notify.Message{
		Kind:          notify.KindTeamApprovalRequest,
		To:            recipients,
		DocumentID:    documentID,
		DocumentTitle: documentTitle,
		Actor:         requester.DisplayName,
		Text:          message,
		Link:          link,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "notify team members failed", "document_id", documentID, "error", err)
		return
	}

	now := t.clock.Now()
	for _, id := range notified {
		if _, err := t.store.UpdateTeamApproval(ctx, id, func(a *store.TeamApproval) error {
			a.NotifiedAt = &now
			return nil
		}); err != nil {
			t.logger.WarnContext(ctx, "mark approval notified failed", "approval_id", id, "error", err)
		}
	}
}
