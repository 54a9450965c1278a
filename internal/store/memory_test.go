package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateDocument(ctx, Document{ID: "doc_1", Title: "A"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	doc, _ := s.GetDocument(ctx, "doc_1")
	doc.Title = "mutated"
	doc.Lock.UnlockRequests = append(doc.Lock.UnlockRequests, UnlockRequest{ID: "r1"})

	again, _ := s.GetDocument(ctx, "doc_1")
	if again.Title != "A" || len(again.Lock.UnlockRequests) != 0 {
		t.Fatalf("store state leaked through returned value: %+v", again)
	}
}

func TestMemoryStoreUpdateAbortsOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateDocument(ctx, Document{ID: "doc_1", Title: "A"})

	sentinel := errors.New("abort")
	_, err := s.UpdateDocument(ctx, "doc_1", func(d *Document) error {
		d.Title = "B"
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	doc, _ := s.GetDocument(ctx, "doc_1")
	if doc.Title != "A" {
		t.Errorf("expected title unchanged, got %q", doc.Title)
	}

	if _, err := s.UpdateDocument(ctx, "missing", func(*Document) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreVersionUniqueness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateVersion(ctx, Version{ID: "v1", DocumentID: "doc_1", Version: 1}); err != nil {
		t.Fatalf("create version: %v", err)
	}
	if err := s.CreateVersion(ctx, Version{ID: "v2", DocumentID: "doc_1", Version: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.CreateVersion(ctx, Version{ID: "v3", DocumentID: "doc_2", Version: 1}); err != nil {
		t.Fatalf("numbers are scoped per document: %v", err)
	}
	_ = s.CreateVersion(ctx, Version{ID: "v4", DocumentID: "doc_1", Version: 2})

	latest, _ := s.LatestVersionNumber(ctx, "doc_1")
	if latest != 2 {
		t.Errorf("expected latest 2, got %d", latest)
	}

	versions, _ := s.ListVersions(ctx, "doc_1", 1)
	if len(versions) != 1 || versions[0].ID != "v4" {
		t.Errorf("expected newest version first, got %+v", versions)
	}
}

func TestMemoryStoreInsertTeamApprovalsIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateWorkflow(ctx, Workflow{ID: "wf_1", Stages: []Stage{{Kind: StageTeam, Status: StagePending}}})

	approvals := []TeamApproval{{ID: "ta_1", WorkflowID: "wf_1"}, {ID: "ta_2", WorkflowID: "wf_1"}}
	failing := errors.New("boom")
	if _, err := s.InsertTeamApprovals(ctx, "wf_1", approvals, func(*Workflow) error { return failing }); !errors.Is(err, failing) {
		t.Fatalf("expected failure, got %v", err)
	}
	if items, _ := s.ListTeamApprovalsByWorkflow(ctx, "wf_1"); len(items) != 0 {
		t.Fatalf("failed batch must not leave approvals behind, got %d", len(items))
	}

	if _, err := s.InsertTeamApprovals(ctx, "wf_1", approvals, func(w *Workflow) error {
		w.Stages[0].Status = StageInProgress
		return nil
	}); err != nil {
		t.Fatalf("insert approvals: %v", err)
	}
	items, _ := s.ListTeamApprovalsByWorkflow(ctx, "wf_1")
	if len(items) != 2 || items[0].ID != "ta_1" {
		t.Fatalf("expected approvals in creation order, got %+v", items)
	}
	wf, _ := s.GetWorkflow(ctx, "wf_1")
	if wf.Stages[0].Status != StageInProgress {
		t.Errorf("expected stage update applied, got %s", wf.Stages[0].Status)
	}
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.CreateWorkflow(ctx, Workflow{ID: "wf_old", OrganizationID: "org", CreatedAt: base})
	_ = s.CreateWorkflow(ctx, Workflow{ID: "wf_new", OrganizationID: "org", CreatedAt: base.Add(time.Hour)})
	_ = s.CreateWorkflow(ctx, Workflow{ID: "wf_other", OrganizationID: "other", CreatedAt: base})

	items, _ := s.ListWorkflowsByOrganization(ctx, "org")
	if len(items) != 2 || items[0].ID != "wf_new" {
		t.Fatalf("expected newest workflow first, got %+v", items)
	}
}

func TestMemoryStoreMarkers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.GetMarker(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.SaveMarker(ctx, Marker{Key: "k", Step: 1})
	_ = s.SaveMarker(ctx, Marker{Key: "k", Step: 2, Result: MarkerResult{WorkflowID: "wf"}})
	m, err := s.GetMarker(ctx, "k")
	if err != nil || m.Step != 2 || m.Result.WorkflowID != "wf" {
		t.Fatalf("expected latest marker, got %+v (%v)", m, err)
	}
}
