package bridge

import (
	"context"
	"errors"
	"fmt"

	"signoff/api/internal/apperr"
	"signoff/api/internal/store"
	"signoff/api/internal/util"
)

// Steps of a save, recorded in the marker after each one succeeds.
const (
	stepNone = iota
	stepDocumentSaved
	stepWorkflowCreated
	stepWorkflowStarted
	stepVersionCreated
	stepLinksCreated
)

// DocumentInput is the content a caller saves. An empty ID creates a new
// document.
type DocumentInput struct {
	ID                  string
	OrganizationID      string
	Title               string
	MainContent         string
	ClientName          string
	BoilerplateSections []string
}

type SaveContext struct {
	Actor          store.Actor
	OrganizationID string
	// IdempotencyKey lets a retried save resume after the last completed
	// step. Without one every call starts over.
	IdempotencyKey string
}

type Links struct {
	Team     string
	Customer string
}

// SaveResult holds whatever the save produced. On error it holds the steps
// that completed.
type SaveResult struct {
	DocumentID string
	WorkflowID string
	VersionID  string
	Links      Links
}

func requiresApproval(settings store.ApprovalSettings) bool {
	return settings.Team.Required || settings.Customer.Required
}

// SaveDocumentWithApprovalIntegration saves the document and, when an
// approval is required, starts a workflow, creates the version under review
// and builds the review links. Each step is durable before the next starts.
func (b *Bridge) SaveDocumentWithApprovalIntegration(ctx context.Context, input DocumentInput, settings store.ApprovalSettings, sc SaveContext) (SaveResult, error) {
	if input.OrganizationID == "" {
		input.OrganizationID = sc.OrganizationID
	}
	if input.OrganizationID == "" {
		return SaveResult{}, apperr.Validation("organization is required")
	}

	marker, err := b.loadMarker(ctx, sc.IdempotencyKey)
	if err != nil {
		return SaveResult{}, err
	}
	res := SaveResult{
		DocumentID: marker.DocumentID,
		WorkflowID: marker.Result.WorkflowID,
		VersionID:  marker.Result.VersionID,
		Links:      Links{Team: marker.Result.TeamLink, Customer: marker.Result.CustomerLink},
	}

	if marker.Step < stepDocumentSaved {
		documentID, err := b.saveDocument(ctx, input, settings, sc.Actor)
		if err != nil {
			return res, err
		}
		res.DocumentID = documentID
		if err := b.checkpoint(ctx, sc.IdempotencyKey, &marker, stepDocumentSaved, res); err != nil {
			return res, err
		}
	}
	if !requiresApproval(settings) {
		return res, nil
	}

	if marker.Step < stepWorkflowStarted {
		if err := b.startWorkflow(ctx, &res, &marker, input.OrganizationID, settings, sc); err != nil {
			return res, err
		}
		if err := b.checkpoint(ctx, sc.IdempotencyKey, &marker, stepWorkflowStarted, res); err != nil {
			return res, err
		}
	}

	if marker.Step < stepVersionCreated {
		status := store.VersionPendingCustomer
		if settings.Team.Required {
			status = store.VersionPendingTeam
		}
		v, err := b.CreateVersionForApproval(ctx, res.DocumentID, res.WorkflowID, status, sc.Actor)
		if err != nil {
			return res, err
		}
		res.VersionID = v.ID
		if err := b.checkpoint(ctx, sc.IdempotencyKey, &marker, stepVersionCreated, res); err != nil {
			return res, err
		}
	}

	if marker.Step < stepLinksCreated {
		var links Links
		if settings.Team.Required {
			if links.Team, err = b.CreateShareableLink(ctx, res.VersionID, LinkTeam); err != nil {
				return res, err
			}
		}
		if settings.Customer.Required {
			if links.Customer, err = b.CreateShareableLink(ctx, res.VersionID, LinkCustomer); err != nil {
				return res, err
			}
		}
		res.Links = links
		if err := b.checkpoint(ctx, sc.IdempotencyKey, &marker, stepLinksCreated, res); err != nil {
			return res, err
		}
	}

	b.logger.InfoContext(ctx, "document submitted for approval",
		"document_id", res.DocumentID,
		"workflow_id", res.WorkflowID,
		"version_id", res.VersionID,
	)
	return res, nil
}

// startWorkflow creates the workflow, or finishes setting up the one a
// previous attempt created. A workflow that exists but failed to start is
// recorded before the error is returned so a retry resumes it.
func (b *Bridge) startWorkflow(ctx context.Context, res *SaveResult, marker *store.Marker, organizationID string, settings store.ApprovalSettings, sc SaveContext) error {
	if res.WorkflowID != "" {
		return b.workflows.ResumeWorkflow(ctx, res.WorkflowID, sc.Actor)
	}
	workflowID, err := b.workflows.CreateWorkflow(ctx, res.DocumentID, organizationID, settings, sc.Actor)
	if workflowID == "" {
		return err
	}
	res.WorkflowID = workflowID
	if cpErr := b.checkpoint(ctx, sc.IdempotencyKey, marker, stepWorkflowCreated, *res); cpErr != nil {
		return errors.Join(err, cpErr)
	}
	return err
}

func (b *Bridge) saveDocument(ctx context.Context, input DocumentInput, settings store.ApprovalSettings, actor store.Actor) (string, error) {
	now := b.clock.Now()
	required := requiresApproval(settings)

	if input.ID == "" {
		doc := store.Document{
			ID:                  util.NewID("doc"),
			OrganizationID:      input.OrganizationID,
			Title:               input.Title,
			MainContent:         input.MainContent,
			ClientName:          input.ClientName,
			BoilerplateSections: input.BoilerplateSections,
			Status:              store.DocumentDraft,
			ApprovalRequired:    required,
			CreatedBy:           actor,
			UpdatedBy:           actor,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := b.store.CreateDocument(ctx, doc); err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
		return doc.ID, nil
	}

	_, err := b.store.UpdateDocument(ctx, input.ID, func(doc *store.Document) error {
		if doc.OrganizationID != input.OrganizationID {
			return apperr.Unauthorized("document belongs to another organization")
		}
		if doc.Lock.Locked {
			return apperr.EditLocked(doc.Lock.Reason)
		}
		doc.Title = input.Title
		doc.MainContent = input.MainContent
		doc.ClientName = input.ClientName
		doc.BoilerplateSections = input.BoilerplateSections
		doc.ApprovalRequired = required
		doc.UpdatedBy = actor
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return "", storeError(err, "document", input.ID)
	}
	return input.ID, nil
}

func (b *Bridge) loadMarker(ctx context.Context, key string) (store.Marker, error) {
	if key == "" {
		return store.Marker{}, nil
	}
	m, err := b.store.GetMarker(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Marker{Key: key}, nil
	}
	if err != nil {
		return store.Marker{}, fmt.Errorf("load save marker: %w", err)
	}
	return m, nil
}

func (b *Bridge) checkpoint(ctx context.Context, key string, m *store.Marker, step int, res SaveResult) error {
	m.Step = step
	m.DocumentID = res.DocumentID
	m.Result = store.MarkerResult{
		WorkflowID:   res.WorkflowID,
		VersionID:    res.VersionID,
		TeamLink:     res.Links.Team,
		CustomerLink: res.Links.Customer,
	}
	if key == "" {
		return nil
	}
	m.Key = key
	m.UpdatedAt = b.clock.Now()
	if err := b.store.SaveMarker(ctx, *m); err != nil {
		return fmt.Errorf("save marker: %w", err)
	}
	return nil
}
