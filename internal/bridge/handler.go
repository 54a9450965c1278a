package bridge

import (
	"context"

	"signoff/api/internal/events"
	"signoff/api/internal/store"
)

// HandleVersionStatusChanged reacts to version status changes made outside
// the workflow: an approval during the customer stage completes it and a
// rejection rejects the active stage. Only a change to the document's
// current version under its active workflow counts.
func (b *Bridge) HandleVersionStatusChanged(ctx context.Context, event events.VersionStatusChanged) error {
	if event.Status != store.VersionApproved && event.Status != store.VersionRejected {
		return nil
	}
	wf, err := b.workflows.FindActiveWorkflow(ctx, event.DocumentID)
	if err != nil {
		return err
	}
	if wf == nil {
		b.logger.DebugContext(ctx, "no active workflow for status change", "document_id", event.DocumentID, "status", event.Status)
		return nil
	}

	if event.WorkflowID != wf.ID {
		b.logger.DebugContext(ctx, "status change for another workflow ignored",
			"version_id", event.VersionID, "event_workflow_id", event.WorkflowID, "active_workflow_id", wf.ID)
		return nil
	}
	current, err := b.versions.GetCurrentVersion(ctx, event.DocumentID)
	if err != nil {
		return err
	}
	if current == nil || current.ID != event.VersionID {
		b.logger.DebugContext(ctx, "status change for a superseded version ignored", "version_id", event.VersionID, "workflow_id", wf.ID)
		return nil
	}

	actor := store.Actor{UserID: event.ActorID}
	switch {
	case event.Status == store.VersionApproved && wf.CurrentStage == store.StageCustomer:
		return b.workflows.ProcessStageCompletion(ctx, wf.ID, store.StageCustomer, actor)
	case event.Status == store.VersionRejected:
		return b.workflows.ProcessStageRejection(ctx, wf.ID, wf.CurrentStage, actor)
	}
	return nil
}
