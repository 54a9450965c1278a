package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Every read returns a copy, so callers
// never share state with the store.
type MemoryStore struct {
	mu        sync.Mutex
	seq       int64
	documents map[string]Document
	workflows map[string]entry[Workflow]
	approvals map[string]entry[TeamApproval]
	versions  map[string]entry[Version]
	audit     []AuditEntry
	markers   map[string]Marker
}

// entry keeps insertion order so records created within the same instant sort stably.
type entry[T any] struct {
	seq   int64
	value T
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: map[string]Document{},
		workflows: map[string]entry[Workflow]{},
		approvals: map[string]entry[TeamApproval]{},
		versions:  map[string]entry[Version]{},
		markers:   map[string]Marker{},
	}
}

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return ErrConflict
	}
	s.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, documentID string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, documentID string, fn func(*Document) error) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	working := cloneDocument(doc)
	if err := fn(&working); err != nil {
		return Document{}, err
	}
	s.documents[documentID] = cloneDocument(working)
	return working, nil
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, wf Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; ok {
		return ErrConflict
	}
	s.workflows[wf.ID] = entry[Workflow]{seq: s.nextSeq(), value: cloneWorkflow(wf)}
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, workflowID string) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.workflows[workflowID]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	return cloneWorkflow(e.value), nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, workflowID string, fn func(*Workflow) error) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWorkflowLocked(workflowID, fn)
}

func (s *MemoryStore) updateWorkflowLocked(workflowID string, fn func(*Workflow) error) (Workflow, error) {
	e, ok := s.workflows[workflowID]
	if !ok {
		return Workflow{}, ErrNotFound
	}
	working := cloneWorkflow(e.value)
	if err := fn(&working); err != nil {
		return Workflow{}, err
	}
	e.value = cloneWorkflow(working)
	s.workflows[workflowID] = e
	return working, nil
}

func (s *MemoryStore) ListWorkflowsByOrganization(_ context.Context, organizationID string) ([]Workflow, error) {
	return s.listWorkflows(func(wf Workflow) bool { return wf.OrganizationID == organizationID }), nil
}

func (s *MemoryStore) ListWorkflowsByDocument(_ context.Context, documentID string) ([]Workflow, error) {
	return s.listWorkflows(func(wf Workflow) bool { return wf.DocumentID == documentID }), nil
}

func (s *MemoryStore) listWorkflows(match func(Workflow) bool) []Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []entry[Workflow]
	for _, e := range s.workflows {
		if match(e.value) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.value.CreatedAt.Equal(b.value.CreatedAt) {
			return a.value.CreatedAt.After(b.value.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]Workflow, 0, len(matched))
	for _, e := range matched {
		out = append(out, cloneWorkflow(e.value))
	}
	return out
}

func (s *MemoryStore) InsertTeamApprovals(_ context.Context, workflowID string, approvals []TeamApproval, fn func(*Workflow) error) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, approval := range approvals {
		if _, ok := s.approvals[approval.ID]; ok {
			return Workflow{}, ErrConflict
		}
	}
	wf, err := s.updateWorkflowLocked(workflowID, fn)
	if err != nil {
		return Workflow{}, err
	}
	for _, approval := range approvals {
		s.approvals[approval.ID] = entry[TeamApproval]{seq: s.nextSeq(), value: cloneApproval(approval)}
	}
	return wf, nil
}

func (s *MemoryStore) GetTeamApproval(_ context.Context, approvalID string) (TeamApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.approvals[approvalID]
	if !ok {
		return TeamApproval{}, ErrNotFound
	}
	return cloneApproval(e.value), nil
}

func (s *MemoryStore) UpdateTeamApproval(_ context.Context, approvalID string, fn func(*TeamApproval) error) (TeamApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.approvals[approvalID]
	if !ok {
		return TeamApproval{}, ErrNotFound
	}
	working := cloneApproval(e.value)
	if err := fn(&working); err != nil {
		return TeamApproval{}, err
	}
	e.value = cloneApproval(working)
	s.approvals[approvalID] = e
	return working, nil
}

func (s *MemoryStore) ListTeamApprovalsByWorkflow(_ context.Context, workflowID string) ([]TeamApproval, error) {
	return s.listApprovals(func(a TeamApproval) bool { return a.WorkflowID == workflowID }, false), nil
}

func (s *MemoryStore) ListTeamApprovalsByUser(_ context.Context, userID, organizationID, status string) ([]TeamApproval, error) {
	return s.listApprovals(func(a TeamApproval) bool {
		return a.Approver.UserID == userID &&
			a.OrganizationID == organizationID &&
			(status == "" || a.Status == status)
	}, true), nil
}

func (s *MemoryStore) ListTeamApprovalsByOrganization(_ context.Context, organizationID string) ([]TeamApproval, error) {
	return s.listApprovals(func(a TeamApproval) bool { return a.OrganizationID == organizationID }, true), nil
}

func (s *MemoryStore) listApprovals(match func(TeamApproval) bool, newestFirst bool) []TeamApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []entry[TeamApproval]
	for _, e := range s.approvals {
		if match(e.value) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.value.CreatedAt.Equal(b.value.CreatedAt) {
			if newestFirst {
				return a.value.CreatedAt.After(b.value.CreatedAt)
			}
			return a.value.CreatedAt.Before(b.value.CreatedAt)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	out := make([]TeamApproval, 0, len(matched))
	for _, e := range matched {
		out = append(out, cloneApproval(e.value))
	}
	return out
}

func (s *MemoryStore) CreateVersion(_ context.Context, v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[v.ID]; ok {
		return ErrConflict
	}
	for _, e := range s.versions {
		if e.value.DocumentID == v.DocumentID && e.value.Version == v.Version {
			return ErrConflict
		}
	}
	s.versions[v.ID] = entry[Version]{seq: s.nextSeq(), value: cloneVersion(v)}
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, versionID string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.versions[versionID]
	if !ok {
		return Version{}, ErrNotFound
	}
	return cloneVersion(e.value), nil
}

func (s *MemoryStore) UpdateVersion(_ context.Context, versionID string, fn func(*Version) error) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.versions[versionID]
	if !ok {
		return Version{}, ErrNotFound
	}
	working := cloneVersion(e.value)
	if err := fn(&working); err != nil {
		return Version{}, err
	}
	e.value = cloneVersion(working)
	s.versions[versionID] = e
	return working, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, documentID string, limit int) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Version
	for _, e := range s.versions {
		if e.value.DocumentID == documentID {
			out = append(out, cloneVersion(e.value))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LatestVersionNumber(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := 0
	for _, e := range s.versions {
		if e.value.DocumentID == documentID && e.value.Version > latest {
			latest = e.value.Version
		}
	}
	return latest, nil
}

func (s *MemoryStore) DeleteVersion(_ context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[versionID]; !ok {
		return ErrNotFound
	}
	delete(s.versions, versionID)
	return nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, documentID string) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetMarker(_ context.Context, key string) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[key]
	if !ok {
		return Marker{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) SaveMarker(_ context.Context, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[m.Key] = m
	return nil
}
