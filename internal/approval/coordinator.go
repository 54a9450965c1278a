package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"signoff/api/internal/apperr"
	"signoff/api/internal/clock"
	"signoff/api/internal/notify"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
)

const shareIDLength = 20

type Options struct {
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	AppURL   string

	// TeamRejectionCompletesWorkflow finishes the workflow as rejected when
	// the team stage is rejected. Otherwise the workflow stays open.
	TeamRejectionCompletesWorkflow bool
}

// Coordinator drives a workflow through its stages.
type Coordinator struct {
	store    Store
	tracker  *TeamTracker
	syncer   StatusSyncer
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	appURL   string

	teamRejectionCompletes bool
}

func NewCoordinator(st Store, tracker *TeamTracker, opts Options) *Coordinator {
	c := &Coordinator{
		store:                  st,
		tracker:                tracker,
		notifier:               opts.Notifier,
		clock:                  opts.Clock,
		logger:                 opts.Logger,
		appURL:                 strings.TrimRight(opts.AppURL, "/"),
		teamRejectionCompletes: opts.TeamRejectionCompletesWorkflow,
	}
	if c.notifier == nil {
		c.notifier = notify.Discard{}
	}
	if c.clock == nil {
		c.clock = clock.System{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// SetStatusSyncer installs the syncer that mirrors stage changes onto the
// document's version and lock. Without one, stage changes are not mirrored.
func (c *Coordinator) SetStatusSyncer(s StatusSyncer) {
	c.syncer = s
}

// Tracker exposes the team tracker used by the coordinator.
func (c *Coordinator) Tracker() *TeamTracker {
	return c.tracker
}

// CreateWorkflow creates a workflow for documentID with one stage per
// required kind and starts the first one.
func (c *Coordinator) CreateWorkflow(ctx context.Context, documentID, organizationID string, settings store.ApprovalSettings, actor store.Actor) (string, error) {
	if _, err := c.store.GetDocument(ctx, documentID); err != nil {
		return "", storeError(err, "document", documentID)
	}
	if settings.Customer.Required && settings.Customer.Contact != nil && settings.Customer.Contact.Email == "" {
		return "", apperr.Validation("customer contact needs an email")
	}

	now := c.clock.Now()
	var stages []store.Stage
	if settings.Team.Required {
		stages = append(stages, store.Stage{
			Kind:              store.StageTeam,
			Status:            store.StagePending,
			RequiredApprovals: len(settings.Team.Approvers),
		})
	}
	if settings.Customer.Required {
		stages = append(stages, store.Stage{
			Kind:              store.StageCustomer,
			Status:            store.StagePending,
			RequiredApprovals: 1,
		})
	}

	shareID := util.NewShareID(shareIDLength)
	wf := store.Workflow{
		ID:             util.NewID("wf"),
		DocumentID:     documentID,
		OrganizationID: organizationID,
		Stages:         stages,
		TeamSettings: store.TeamSettings{
			Required:  settings.Team.Required,
			Approvers: settings.Team.Approvers,
			Message:   settings.Team.Message,
		},
		CustomerSettings: store.CustomerSettings{
			Required: settings.Customer.Required,
			Contact:  settings.Customer.Contact,
			Message:  settings.Customer.Message,
			ShareID:  shareID,
		},
		CreatedBy: actor,
		CreatedAt: now,
	}
	switch {
	case len(stages) == 0:
		wf.CurrentStage = store.StageCompleted
		wf.FinalStatus = store.FinalApproved
		wf.CompletedAt = &now
	default:
		wf.CurrentStage = stages[0].Kind
	}
	if settings.Customer.Required {
		wf.CustomerSettings.Status = store.ApprovalPending
	}

	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return "", fmt.Errorf("create workflow: %w", err)
	}

	if err := c.linkDocument(ctx, wf, actor); err != nil {
		return wf.ID, err
	}
	c.logger.InfoContext(ctx, "workflow created",
		"workflow_id", wf.ID,
		"document_id", documentID,
		"stages", len(stages),
	)
	if err := c.startFirstStage(ctx, wf, actor); err != nil {
		return wf.ID, err
	}
	return wf.ID, nil
}

// ResumeWorkflow finishes the setup of a workflow whose creation stopped part
// way. The document is linked again and a first stage that never got going
// is started, or synced and announced if it was opened but not synced.
// Completed workflows are left alone.
func (c *Coordinator) ResumeWorkflow(ctx context.Context, workflowID string, actor store.Actor) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if wf.Completed() {
		return nil
	}
	if err := c.linkDocument(ctx, wf, actor); err != nil {
		return err
	}
	return c.startFirstStage(ctx, wf, actor)
}

func (c *Coordinator) linkDocument(ctx context.Context, wf store.Workflow, actor store.Actor) error {
	now := c.clock.Now()
	started := wf.CreatedAt
	_, err := c.store.UpdateDocument(ctx, wf.DocumentID, func(doc *store.Document) error {
		doc.Approval = &store.ApprovalData{
			Settings:   settingsOf(wf),
			WorkflowID: wf.ID,
			ShareID:    wf.CustomerSettings.ShareID,
			StartedAt:  &started,
		}
		doc.ApprovalRequired = len(wf.Stages) > 0
		if len(wf.Stages) > 0 {
			doc.Status = store.DocumentInReview
		}
		doc.UpdatedBy = actor
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return storeError(err, "document", wf.DocumentID)
	}
	return nil
}

func (c *Coordinator) startFirstStage(ctx context.Context, wf store.Workflow, actor store.Actor) error {
	var kind, status string
	switch {
	case wf.TeamSettings.Required && len(wf.TeamSettings.Approvers) > 0:
		kind, status = store.StageTeam, StatusPendingTeam
	case wf.CustomerSettings.Required && !wf.TeamSettings.Required:
		kind, status = store.StageCustomer, StatusPendingCustomer
	default:
		return nil
	}
	stage := wf.Stage(kind)
	switch {
	case stage == nil:
		return nil
	case stage.Status == store.StagePending && kind == store.StageTeam:
		return c.StartTeamApproval(ctx, wf.ID, actor)
	case stage.Status == store.StagePending:
		return c.StartCustomerApproval(ctx, wf.ID, actor)
	case stage.Status == store.StageInProgress && wf.CurrentStage == kind:
		if err := c.sync(ctx, wf.ID, status, actor); err != nil {
			return err
		}
		c.SendStageNotifications(ctx, wf.ID, kind)
	}
	return nil
}

func settingsOf(wf store.Workflow) store.ApprovalSettings {
	return store.ApprovalSettings{
		Team: store.TeamConfig{
			Required:  wf.TeamSettings.Required,
			Approvers: wf.TeamSettings.Approvers,
			Message:   wf.TeamSettings.Message,
		},
		Customer: store.CustomerConfig{
			Required: wf.CustomerSettings.Required,
			Contact:  wf.CustomerSettings.Contact,
			Message:  wf.CustomerSettings.Message,
		},
	}
}

// StartTeamApproval creates the per-approver records, moves the version to
// pending_team and notifies the approvers.
func (c *Coordinator) StartTeamApproval(ctx context.Context, workflowID string, actor store.Actor) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if !wf.TeamSettings.Required || len(wf.TeamSettings.Approvers) == 0 {
		return apperr.NotConfigured("team approval has no approvers")
	}
	if wf.Completed() {
		return apperr.New(apperr.CodeConflict, "workflow already completed", map[string]string{"workflow_id": workflowID})
	}

	if _, err := c.tracker.CreateTeamApproval(ctx, wf.DocumentID, wf.ID, wf.TeamSettings.Approvers, wf.OrganizationID, wf.TeamSettings.Message); err != nil {
		return err
	}
	if err := c.sync(ctx, wf.ID, StatusPendingTeam, actor); err != nil {
		return err
	}
	c.SendStageNotifications(ctx, wf.ID, store.StageTeam)
	return nil
}

// StartCustomerApproval opens the customer stage, moves the version to
// pending_customer and notifies the contact.
func (c *Coordinator) StartCustomerApproval(ctx context.Context, workflowID string, actor store.Actor) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	contact := wf.CustomerSettings.Contact
	if !wf.CustomerSettings.Required || contact == nil || contact.Email == "" {
		return apperr.NotConfigured("customer approval has no contact")
	}

	now := c.clock.Now()
	if _, err := c.store.UpdateWorkflow(ctx, workflowID, func(wf *store.Workflow) error {
		if wf.Completed() {
			return apperr.New(apperr.CodeConflict, "workflow already completed", map[string]string{"workflow_id": workflowID})
		}
		stage := wf.Stage(store.StageCustomer)
		if stage == nil {
			return apperr.NotConfigured("workflow has no customer stage")
		}
		if stage.Status != store.StagePending {
			return apperr.New(apperr.CodeConflict, "customer stage already started", map[string]string{"workflow_id": workflowID})
		}
		stage.Status = store.StageInProgress
		stage.StartedAt = &now
		wf.CurrentStage = store.StageCustomer
		wf.CustomerSettings.Status = store.ApprovalPending
		return nil
	}); err != nil {
		return storeError(err, "workflow", workflowID)
	}

	if err := c.sync(ctx, workflowID, StatusPendingCustomer, actor); err != nil {
		return err
	}
	c.SendStageNotifications(ctx, workflowID, store.StageCustomer)
	return nil
}

// ProcessStageCompletion advances the workflow after stage finished with an
// approval.
func (c *Coordinator) ProcessStageCompletion(ctx context.Context, workflowID, stage string, actor store.Actor) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if wf.Completed() {
		return nil
	}

	switch stage {
	case store.StageTeam:
		if err := c.finishStage(ctx, workflowID, store.StageTeam, store.StageDone); err != nil {
			return err
		}
		if err := c.sync(ctx, workflowID, StatusTeamApproved, actor); err != nil {
			return err
		}
		if wf.CustomerSettings.Required {
			return c.StartCustomerApproval(ctx, workflowID, actor)
		}
		return c.CompleteWorkflow(ctx, workflowID, store.FinalApproved, actor)
	case store.StageCustomer:
		if err := c.finishStage(ctx, workflowID, store.StageCustomer, store.StageDone); err != nil {
			return err
		}
		if err := c.sync(ctx, workflowID, StatusCustomerApproved, actor); err != nil {
			return err
		}
		return c.CompleteWorkflow(ctx, workflowID, store.FinalApproved, actor)
	default:
		return apperr.Validation(fmt.Sprintf("unknown stage %q", stage))
	}
}

// ProcessStageRejection handles a rejected stage. A customer rejection
// always completes the workflow; a team rejection only does so when
// configured to.
func (c *Coordinator) ProcessStageRejection(ctx context.Context, workflowID, stage string, actor store.Actor) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if wf.Completed() {
		return nil
	}
	if stage != store.StageTeam && stage != store.StageCustomer {
		return apperr.Validation(fmt.Sprintf("unknown stage %q", stage))
	}

	if err := c.finishStage(ctx, workflowID, stage, store.StageRejected); err != nil {
		return err
	}
	if err := c.sync(ctx, workflowID, StatusRejected, actor); err != nil {
		return err
	}
	if stage == store.StageCustomer || c.teamRejectionCompletes {
		return c.CompleteWorkflow(ctx, workflowID, store.FinalRejected, actor)
	}
	c.logger.InfoContext(ctx, "team stage rejected, workflow held open", "workflow_id", workflowID)
	return nil
}

// finishStage moves a stage to a terminal status. A stage already in that
// status is left alone; a stage in the other terminal status is a conflict.
func (c *Coordinator) finishStage(ctx context.Context, workflowID, kind, status string) error {
	now := c.clock.Now()
	_, err := c.store.UpdateWorkflow(ctx, workflowID, func(wf *store.Workflow) error {
		stage := wf.Stage(kind)
		if stage == nil {
			return apperr.NotConfigured("workflow has no " + kind + " stage")
		}
		switch stage.Status {
		case status:
			return nil
		case store.StageDone, store.StageRejected:
			return apperr.New(apperr.CodeConflict, kind+" stage already "+stage.Status, map[string]string{"workflow_id": workflowID})
		}
		closeStage(wf, stage, status, now)
		return nil
	})
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	return nil
}

// closeStage moves stage to a terminal status and mirrors it onto the
// workflow's per-kind settings.
func closeStage(wf *store.Workflow, stage *store.Stage, status string, now time.Time) {
	stage.Status = status
	stage.CompletedAt = &now
	switch {
	case stage.Kind == store.StageCustomer && status == store.StageDone:
		wf.CustomerSettings.Status = store.ApprovalApproved
		stage.ReceivedApprovals = 1
	case stage.Kind == store.StageCustomer:
		wf.CustomerSettings.Status = store.ApprovalRejected
	case stage.Kind == store.StageTeam && status == store.StageDone:
		wf.TeamSettings.AllApproved = true
		wf.TeamSettings.CompletedAt = &now
	}
}

// CompleteWorkflow records the final outcome and the matching document
// status. It does not touch the version or lock.
func (c *Coordinator) CompleteWorkflow(ctx context.Context, workflowID, finalStatus string, actor store.Actor) error {
	if finalStatus != store.FinalApproved && finalStatus != store.FinalRejected {
		return apperr.Validation(fmt.Sprintf("invalid final status %q", finalStatus))
	}
	now := c.clock.Now()
	var already bool
	wf, err := c.store.UpdateWorkflow(ctx, workflowID, func(wf *store.Workflow) error {
		if wf.Completed() {
			already = true
			return nil
		}
		wf.CurrentStage = store.StageCompleted
		wf.FinalStatus = finalStatus
		wf.CompletedAt = &now
		return nil
	})
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if already {
		return nil
	}

	docStatus := store.DocumentApproved
	if finalStatus == store.FinalRejected {
		docStatus = store.DocumentChangesRequested
	}
	if _, err := c.store.UpdateDocument(ctx, wf.DocumentID, func(doc *store.Document) error {
		doc.Status = docStatus
		doc.UpdatedBy = actor
		doc.UpdatedAt = now
		return nil
	}); err != nil {
		return storeError(err, "document", wf.DocumentID)
	}
	c.logger.InfoContext(ctx, "workflow completed",
		"workflow_id", workflowID,
		"document_id", wf.DocumentID,
		"final_status", finalStatus,
	)
	return nil
}

// SubmitTeamDecision records one approver's decision. Only the decision that
// finishes the team stage advances the workflow.
func (c *Coordinator) SubmitTeamDecision(ctx context.Context, approvalID, userID, decision, comment string) (DecisionResult, error) {
	res, err := c.tracker.SubmitTeamDecision(ctx, approvalID, userID, decision, comment)
	if err != nil {
		return res, err
	}
	if !res.Triggered {
		return res, nil
	}
	actor := store.Actor{UserID: res.Approver.UserID, DisplayName: res.Approver.DisplayName}
	switch res.StageStatus {
	case store.StageDone:
		err = c.ProcessStageCompletion(ctx, res.WorkflowID, store.StageTeam, actor)
	case store.StageRejected:
		err = c.ProcessStageRejection(ctx, res.WorkflowID, store.StageTeam, actor)
	}
	return res, err
}

// SubmitCustomerDecision records the customer's decision made through the
// share link identified by shareID.
func (c *Coordinator) SubmitCustomerDecision(ctx context.Context, workflowID, shareID, decision, comment string, actor store.Actor) error {
	if !validDecision(decision) {
		return apperr.Validation(fmt.Sprintf("invalid decision %q", decision))
	}
	if decision == DecisionRejected && strings.TrimSpace(comment) == "" {
		return apperr.Validation("a rejection needs a comment")
	}
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return storeError(err, "workflow", workflowID)
	}
	if shareID == "" || shareID != wf.CustomerSettings.ShareID {
		return apperr.Unauthorized("share link does not match workflow")
	}

	now := c.clock.Now()
	if _, err := c.store.UpdateWorkflow(ctx, workflowID, func(wf *store.Workflow) error {
		stage := wf.Stage(store.StageCustomer)
		if stage == nil {
			return apperr.Validation("workflow has no customer stage")
		}
		if stage.Status == store.StageDone || stage.Status == store.StageRejected || wf.CustomerSettings.Decision != nil {
			return apperr.AlreadyDecided("customer stage already " + stage.Status)
		}
		if wf.CurrentStage != store.StageCustomer || stage.Status != store.StageInProgress {
			return apperr.Validation("customer stage is not active")
		}
		wf.CustomerSettings.Decision = &store.Decision{Choice: decision, Comment: comment, SubmittedAt: now}
		closed := store.StageDone
		if decision == DecisionRejected {
			closed = store.StageRejected
		}
		closeStage(wf, stage, closed, now)
		return nil
	}); err != nil {
		return storeError(err, "workflow", workflowID)
	}

	if decision == DecisionApproved {
		return c.ProcessStageCompletion(ctx, workflowID, store.StageCustomer, actor)
	}
	return c.ProcessStageRejection(ctx, workflowID, store.StageCustomer, actor)
}

type WorkflowStatus struct {
	WorkflowID     string
	DocumentID     string
	CurrentStage   string
	FinalStatus    string
	CompletedAt    *time.Time
	Stages         []store.Stage
	Team           *TeamApprovalStatus
	CustomerStatus string
	Customer       *store.Decision
}

// GetWorkflowStatus combines the workflow with the team tally.
func (c *Coordinator) GetWorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, error) {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return WorkflowStatus{}, storeError(err, "workflow", workflowID)
	}
	status := WorkflowStatus{
		WorkflowID:     wf.ID,
		DocumentID:     wf.DocumentID,
		CurrentStage:   wf.CurrentStage,
		FinalStatus:    wf.FinalStatus,
		CompletedAt:    wf.CompletedAt,
		Stages:         wf.Stages,
		CustomerStatus: wf.CustomerSettings.Status,
		Customer:       wf.CustomerSettings.Decision,
	}
	if wf.TeamSettings.Required {
		team, err := c.tracker.GetTeamApprovalStatus(ctx, workflowID)
		if err != nil {
			return WorkflowStatus{}, err
		}
		status.Team = &team
	}
	return status, nil
}

func (c *Coordinator) GetWorkflow(ctx context.Context, workflowID string) (store.Workflow, error) {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return store.Workflow{}, storeError(err, "workflow", workflowID)
	}
	return wf, nil
}

// GetWorkflowsByOrganization lists an organization's workflows, newest first.
func (c *Coordinator) GetWorkflowsByOrganization(ctx context.Context, organizationID string) ([]store.Workflow, error) {
	items, err := c.store.ListWorkflowsByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return items, nil
}

// FindActiveWorkflow returns the newest incomplete workflow of a document,
// or nil when there is none.
func (c *Coordinator) FindActiveWorkflow(ctx context.Context, documentID string) (*store.Workflow, error) {
	items, err := c.store.ListWorkflowsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	for i := range items {
		if !items[i].Completed() {
			return &items[i], nil
		}
	}
	return nil, nil
}

// SendStageNotifications notifies whoever has to act on stage. Failures are
// logged and never returned.
func (c *Coordinator) SendStageNotifications(ctx context.Context, workflowID, stage string) {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		c.logger.WarnContext(ctx, "load workflow for notification failed", "workflow_id", workflowID, "error", err)
		return
	}
	doc, err := c.store.GetDocument(ctx, wf.DocumentID)
	if err != nil {
		c.logger.WarnContext(ctx, "load document for notification failed", "document_id", wf.DocumentID, "error", err)
		return
	}

	switch stage {
	case store.StageTeam:
		c.tracker.NotifyTeamMembers(ctx, wf.TeamSettings.ApprovalIDs, doc.Title, wf.CreatedBy, wf.TeamSettings.Message, c.reviewLink(true, wf.CustomerSettings.ShareID))
	case store.StageCustomer:
		contact := wf.CustomerSettings.Contact
		if contact == nil || contact.Email == "" {
			return
		}
		err := c.notifier.Notify(ctx, notify.Message{
			Kind:          notify.KindCustomerApprovalRequest,
			To:            []notify.Recipient{{Name: contact.Name, Email: contact.Email}},
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Actor:         wf.CreatedBy.DisplayName,
			Text:          wf.CustomerSettings.Message,
			Link:          c.reviewLink(false, wf.CustomerSettings.ShareID),
		})
		if err != nil {
			c.logger.WarnContext(ctx, "notify customer failed", "workflow_id", workflowID, "error", err)
		}
	}
}

func (c *Coordinator) reviewLink(internal bool, shareID string) string {
	if internal {
		return c.appURL + "/review/internal/" + shareID
	}
	return c.appURL + "/review/" + shareID
}

func (c *Coordinator) sync(ctx context.Context, workflowID, status string, actor store.Actor) error {
	if c.syncer == nil {
		return nil
	}
	if err := c.syncer.SyncApprovalWithVersionStatus(ctx, workflowID, status, actor); err != nil {
		return fmt.Errorf("sync %s: %w", status, err)
	}
	return nil
}
