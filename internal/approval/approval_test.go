package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signoff/api/internal/clock"
	"signoff/api/internal/notify"
	"signoff/api/internal/store"
)

type syncCall struct {
	WorkflowID string
	Status     string
}

type recordingSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (s *recordingSyncer) SyncApprovalWithVersionStatus(_ context.Context, workflowID, status string, _ store.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, syncCall{WorkflowID: workflowID, Status: status})
	return s.err
}

func (s *recordingSyncer) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Status)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	messages []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) byKind(kind notify.Kind) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

var (
	owner = store.Actor{UserID: "u_owner", DisplayName: "Owner"}
	alice = store.Approver{UserID: "u_alice", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = store.Approver{UserID: "u_bob", DisplayName: "Bob", Email: "bob@example.com"}
	carol = store.Approver{UserID: "u_carol", DisplayName: "Carol", Email: "carol@example.com"}
	buyer = store.Contact{Name: "Dana Buyer", Email: "dana@customer.test", Company: "Customer Co"}
)

type fixture struct {
	store       *store.MemoryStore
	syncer      *recordingSyncer
	notifier    *recordingNotifier
	tracker     *TeamTracker
	coordinator *Coordinator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemoryStore(),
		syncer:   &recordingSyncer{},
		notifier: &recordingNotifier{},
	}
	clk := clock.NewStep(time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC), time.Second)
	f.tracker = NewTeamTracker(f.store, f.notifier, clk, nil)
	opts.Notifier = f.notifier
	opts.Clock = clk
	if opts.AppURL == "" {
		opts.AppURL = "https://app.example.com/"
	}
	f.coordinator = NewCoordinator(f.store, f.tracker, opts)
	f.coordinator.SetStatusSyncer(f.syncer)
	require.NoError(t, f.store.CreateDocument(context.Background(), store.Document{
		ID:             "doc_1",
		OrganizationID: "org_1",
		Title:          "Q3 Proposal",
		Status:         store.DocumentDraft,
		CreatedBy:      owner,
	}))
	return f
}

func teamAndCustomer(approvers ...store.Approver) store.ApprovalSettings {
	contact := buyer
	return store.ApprovalSettings{
		Team:     store.TeamConfig{Required: true, Approvers: approvers, Message: "please review"},
		Customer: store.CustomerConfig{Required: true, Contact: &contact, Message: "ready for you"},
	}
}

func teamOnly(approvers ...store.Approver) store.ApprovalSettings {
	return store.ApprovalSettings{Team: store.TeamConfig{Required: true, Approvers: approvers}}
}

func (f *fixture) approvals(t *testing.T, workflowID string) map[string]string {
	t.Helper()
	items, err := f.store.ListTeamApprovalsByWorkflow(context.Background(), workflowID)
	require.NoError(t, err)
	out := make(map[string]string, len(items))
	for _, a := range items {
		out[a.Approver.UserID] = a.ID
	}
	return out
}

func (f *fixture) workflow(t *testing.T, id string) store.Workflow {
	t.Helper()
	wf, err := f.store.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	return wf
}

func (f *fixture) document(t *testing.T) store.Document {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), "doc_1")
	require.NoError(t, err)
	return doc
}

var errBoom = errors.New("boom")
