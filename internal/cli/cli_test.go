package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"signoff/api/internal/apperr"
	"signoff/api/internal/blob"
	"signoff/api/internal/bridge"
	"signoff/api/internal/clock"
	"signoff/api/internal/config"
	"signoff/api/internal/events"
	"signoff/api/internal/notify"
	"signoff/api/internal/render"
	"signoff/api/internal/store"
	"signoff/api/internal/version"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, req render.Request) (render.Artifact, error) {
	data := []byte("%PDF-1.4 " + req.Title)
	words := render.CountWords(req.MainContent)
	return render.Artifact{
		Data:      data,
		FileName:  render.FileName(req),
		MimeType:  "application/pdf",
		SizeBytes: int64(len(data)),
		WordCount: words,
		PageCount: render.EstimatePages(words),
	}, nil
}

type harness struct {
	cfg   config.Config
	store *store.MemoryStore
	blobs *blob.MemoryStore
	clock clock.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg: config.Config{
			AppURL:              "https://app.example.com",
			LogLevel:            "error",
			OperatorRole:        "admin",
			DedupeTTL:           time.Minute,
			VersionHistoryLimit: 50,
			DraftKeepCount:      1,
		},
		store: store.NewMemoryStore(),
		blobs: blob.NewMemoryStore("https://files.example.com"),
		clock: clock.NewStep(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), time.Second),
	}
	if err := h.store.CreateDocument(context.Background(), store.Document{
		ID:             "doc_1",
		OrganizationID: "org_1",
		Title:          "Statement of Work",
		MainContent:    "<p>deliverables and milestones</p>",
		Status:         store.DocumentDraft,
		CreatedBy:      store.Actor{UserID: "u_owner", DisplayName: "Owner"},
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return h
}

func (h *harness) open(_ context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	return Assemble(cfg, Parts{
		Store:    h.store,
		Renderer: stubRenderer{},
		Blobs:    h.blobs,
		Deduper:  events.NewMemoryDeduper(cfg.DedupeTTL),
		Notifier: notify.Discard{},
		Clock:    h.clock,
		Logger:   logger,
	})
}

func (h *harness) runtime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := h.open(context.Background(), h.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("assemble runtime: %v", err)
	}
	return rt
}

// executeCommand runs a fresh command tree with args and returns captured output
func (h *harness) executeCommand(args ...string) (string, error) {
	root := NewRootCmd(h.cfg, h.open)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd(config.Config{}, nil)
	if root.Use != "signoff" {
		t.Fatalf("Use = %q, want signoff", root.Use)
	}
	want := map[string][]string{
		"migrate":   nil,
		"lock":      {"status", "unlock", "request", "approve", "reject"},
		"versions":  {"list", "prune", "link", "preview", "status"},
		"workflow":  {"show", "list", "create"},
		"approvals": {"list", "approve", "reject"},
		"document":  {"save"},
		"customer":  {"decide"},
	}
	got := map[string]*cobra.Command{}
	for _, c := range root.Commands() {
		got[c.Name()] = c
	}
	for name, subs := range want {
		c, ok := got[name]
		if !ok {
			t.Errorf("missing command %q", name)
			continue
		}
		names := map[string]bool{}
		for _, sub := range c.Commands() {
			names[sub.Name()] = true
		}
		for _, sub := range subs {
			if !names[sub] {
				t.Errorf("missing command %q %q", name, sub)
			}
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRoleGatesCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rt := h.runtime(t)
	if err := rt.Versions.LockEditing(ctx, "doc_1", store.LockPendingCustomer, store.Actor{UserID: "u_owner"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := h.executeCommand("lock", "status", "doc_1", "--role", "viewer"); err != nil {
		t.Fatalf("viewer lock status: %v", err)
	}
	_, err := h.executeCommand("lock", "unlock", "doc_1", "--role", "editor")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("editor unlock error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("versions", "prune", "doc_1", "--role", "approver"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("approver prune error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("migrate", "--role", "viewer"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("viewer migrate error = %v, want unauthorized", err)
	}

	locked, err := rt.Versions.IsEditingLocked(ctx, "doc_1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if !locked {
		t.Fatal("refused unlock must leave the lock in place")
	}
}

func TestLockCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.executeCommand("lock", "status", "doc_1")
	if err != nil {
		t.Fatalf("lock status: %v", err)
	}
	if !strings.Contains(out, "unlocked") || !strings.Contains(out, "can request unlock: false") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	rt := h.runtime(t)
	if err := rt.Versions.LockEditing(ctx, "doc_1", store.LockPendingTeam, store.Actor{UserID: "u_owner", DisplayName: "Owner"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := h.executeCommand("lock", "request", "doc_1", "--user", "u_editor"); err == nil {
		t.Fatal("expected an error for a request without reason")
	}

	out, err = h.executeCommand("lock", "request", "doc_1", "--user", "u_editor", "--name", "Editor", "--reason", "fix a typo")
	if err != nil {
		t.Fatalf("lock request: %v", err)
	}
	status, err := rt.Versions.GetEditLockStatus(ctx, "doc_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.UnlockRequests) != 1 {
		t.Fatalf("unlock requests = %d, want 1", len(status.UnlockRequests))
	}
	requestID := status.UnlockRequests[0].ID
	if !strings.Contains(out, requestID) {
		t.Fatalf("request output %q does not name %s", out, requestID)
	}

	out, err = h.executeCommand("lock", "status", "doc_1")
	if err != nil {
		t.Fatalf("lock status: %v", err)
	}
	for _, want := range []string{"locked: pending_team_approval by Owner", "fix a typo", "Editor"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	if _, err := h.executeCommand("lock", "approve", "doc_1", requestID, "--user", "u_owner"); err != nil {
		t.Fatalf("lock approve: %v", err)
	}
	locked, err := rt.Versions.IsEditingLocked(ctx, "doc_1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("document still locked after approval")
	}

	if _, err := h.executeCommand("lock", "status", "doc_missing"); err == nil {
		t.Fatal("expected an error for an unknown document")
	}
}

func TestVersionsCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.executeCommand("versions", "list", "doc_1")
	if err != nil {
		t.Fatalf("versions list: %v", err)
	}
	if !strings.Contains(out, "no versions") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	rt := h.runtime(t)
	content := store.ContentSnapshot{Title: "Statement of Work", MainContent: "<p>draft</p>"}
	for i := 0; i < 3; i++ {
		if _, err := rt.Versions.CreateVersion(ctx, "doc_1", "org_1", content, version.CreateContext{Status: store.VersionDraft}); err != nil {
			t.Fatalf("create version: %v", err)
		}
	}

	out, err = h.executeCommand("versions", "list", "doc_1")
	if err != nil {
		t.Fatalf("versions list: %v", err)
	}
	if !strings.Contains(out, "Statement_of_Work_v3_2026-06-01.pdf") {
		t.Fatalf("list output missing newest version:\n%s", out)
	}

	out, err = h.executeCommand("versions", "prune", "doc_1")
	if err != nil {
		t.Fatalf("versions prune: %v", err)
	}
	if !strings.Contains(out, "deleted 2 draft versions") {
		t.Fatalf("unexpected prune output:\n%s", out)
	}
}

func TestWorkflowAndApprovalCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rt := h.runtime(t)

	res, err := rt.Bridge.SaveDocumentWithApprovalIntegration(ctx, bridge.DocumentInput{
		ID:             "doc_1",
		OrganizationID: "org_1",
		Title:          "Statement of Work",
		MainContent:    "<p>deliverables</p>",
	}, store.ApprovalSettings{
		Team: store.TeamConfig{Required: true, Approvers: []store.Approver{{UserID: "u_alice", DisplayName: "Alice"}}},
	}, bridge.SaveContext{Actor: store.Actor{UserID: "u_owner", DisplayName: "Owner"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := h.executeCommand("approvals", "list", "--user", "u_alice"); err == nil {
		t.Fatal("expected --org to be required")
	}

	out, err := h.executeCommand("approvals", "list", "--user", "u_alice", "--org", "org_1")
	if err != nil {
		t.Fatalf("approvals list: %v", err)
	}
	approvals, err := rt.Tracker.GetApprovalsByUser(ctx, "u_alice", "org_1")
	if err != nil || len(approvals) != 1 {
		t.Fatalf("pending approvals = %v, %v", approvals, err)
	}
	if !strings.Contains(out, approvals[0].ID) {
		t.Fatalf("list output missing approval:\n%s", out)
	}

	if _, err := h.executeCommand("approvals", "approve", approvals[0].ID, "--user", "u_bob"); err == nil {
		t.Fatal("expected an unassigned approver to be refused")
	}

	out, err = h.executeCommand("approvals", "approve", approvals[0].ID, "--user", "u_alice", "--comment", "ship it")
	if err != nil {
		t.Fatalf("approvals approve: %v", err)
	}
	if !strings.Contains(out, "approved recorded, team stage completed (1/1)") {
		t.Fatalf("unexpected decide output:\n%s", out)
	}

	out, err = h.executeCommand("workflow", "show", res.WorkflowID)
	if err != nil {
		t.Fatalf("workflow show: %v", err)
	}
	for _, want := range []string{"current stage: completed", "final status: approved", "Alice", "ship it"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = h.executeCommand("workflow", "list", "--org", "org_1")
	if err != nil {
		t.Fatalf("workflow list: %v", err)
	}
	if !strings.Contains(out, res.WorkflowID) {
		t.Fatalf("list output missing workflow:\n%s", out)
	}

	locked, err := rt.Versions.IsEditingLocked(ctx, "doc_1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("document still locked after final approval")
	}
}

// outputField returns the value printed after "name: " in out.
func outputField(t *testing.T, out, name string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, name+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("output has no %q line:\n%s", name, out)
	return ""
}

func TestParseApprover(t *testing.T) {
	cases := []struct {
		in   string
		want store.Approver
		err  bool
	}{
		{in: "u_alice", want: store.Approver{UserID: "u_alice", DisplayName: "u_alice"}},
		{in: "u_alice:Alice", want: store.Approver{UserID: "u_alice", DisplayName: "Alice"}},
		{in: "u_alice:Alice:alice@example.com", want: store.Approver{UserID: "u_alice", DisplayName: "Alice", Email: "alice@example.com"}},
		{in: "u_alice::alice@example.com", want: store.Approver{UserID: "u_alice", DisplayName: "u_alice", Email: "alice@example.com"}},
		{in: ":Alice", err: true},
	}
	for _, tc := range cases {
		got, err := parseApprover(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("parseApprover(%q) expected an error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseApprover(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseApprover(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestDocumentSaveCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	args := []string{"document", "save", "--org", "org_1", "--title", "Proposal",
		"--content", "<p>scope and fees</p>", "--client", "Customer Co",
		"--approver", "u_alice:Alice:alice@example.com",
		"--customer-name", "Buyer", "--customer-email", "buyer@customer.test",
		"--idempotency-key", "save-1"}

	if _, err := h.executeCommand(append(args, "--role", "viewer")...); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("viewer save error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("document", "save", "--org", "org_1"); err == nil {
		t.Fatal("expected --title to be required")
	}

	out, err := h.executeCommand(append(args, "--role", "editor", "--user", "u_owner")...)
	if err != nil {
		t.Fatalf("document save: %v", err)
	}
	documentID := outputField(t, out, "document")
	workflowID := outputField(t, out, "workflow")
	versionID := outputField(t, out, "version")
	if !strings.Contains(outputField(t, out, "team link"), "https://app.example.com/review/internal/") {
		t.Errorf("unexpected team link:\n%s", out)
	}
	if !strings.Contains(outputField(t, out, "customer link"), "?version="+versionID) {
		t.Errorf("unexpected customer link:\n%s", out)
	}

	again, err := h.executeCommand(append(args, "--user", "u_owner")...)
	if err != nil {
		t.Fatalf("repeated save: %v", err)
	}
	if outputField(t, again, "workflow") != workflowID {
		t.Fatalf("repeated save started another workflow:\n%s", again)
	}

	rt := h.runtime(t)
	wf, err := rt.Coordinator.GetWorkflow(ctx, workflowID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if wf.CurrentStage != store.StageTeam || len(wf.Stages) != 2 {
		t.Fatalf("workflow stages = %+v, current %s", wf.Stages, wf.CurrentStage)
	}
	v, err := rt.Versions.GetVersion(ctx, versionID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if v.Status != store.VersionPendingTeam || v.WorkflowID != workflowID {
		t.Fatalf("version = %s/%s, want pending_team under %s", v.Status, v.WorkflowID, workflowID)
	}

	_, err = h.executeCommand("document", "save", "--org", "org_1", "--id", documentID, "--title", "Proposal v2")
	if !errors.Is(err, apperr.ErrEditLocked) {
		t.Fatalf("save of locked document error = %v, want edit locked", err)
	}
}

func TestWorkflowCreateAndCustomerDecide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.executeCommand("workflow", "create", "doc_1", "--org", "org_1"); err == nil {
		t.Fatal("expected a workflow without approvers to be refused")
	}

	out, err := h.executeCommand("workflow", "create", "doc_1", "--org", "org_1",
		"--customer-name", "Buyer", "--customer-email", "buyer@customer.test")
	if err != nil {
		t.Fatalf("workflow create: %v", err)
	}
	workflowID := outputField(t, out, "workflow")
	if !strings.Contains(out, "(v1, pending_customer)") {
		t.Fatalf("unexpected create output:\n%s", out)
	}

	rt := h.runtime(t)
	wf, err := rt.Coordinator.GetWorkflow(ctx, workflowID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	shareID := wf.CustomerSettings.ShareID

	if _, err := h.executeCommand("customer", "decide", workflowID, "approved", "--share", shareID, "--role", "editor"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("editor decide error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("customer", "decide", workflowID, "approved", "--share", "not-the-share"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("wrong share error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("customer", "decide", workflowID, "rejected", "--share", shareID); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("rejection without comment error = %v, want validation", err)
	}

	out, err = h.executeCommand("customer", "decide", workflowID, "approved", "--share", shareID, "--user", "u_buyer", "--comment", "looks good")
	if err != nil {
		t.Fatalf("customer decide: %v", err)
	}
	if !strings.Contains(out, "customer approved recorded, current stage: completed") {
		t.Fatalf("unexpected decide output:\n%s", out)
	}

	if _, err := h.executeCommand("customer", "decide", workflowID, "rejected", "--share", shareID, "--comment", "changed my mind"); !errors.Is(err, apperr.ErrAlreadyDecided) {
		t.Fatalf("second decision error = %v, want already decided", err)
	}

	locked, err := rt.Versions.IsEditingLocked(ctx, "doc_1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("document still locked after customer approval")
	}
}

func TestVersionsLinkPreviewAndStatusCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rt := h.runtime(t)

	content := store.ContentSnapshot{Title: "Statement of Work", MainContent: "<p>draft</p>"}
	versionID, err := rt.Versions.CreateVersion(ctx, "doc_1", "org_1", content, version.CreateContext{Status: store.VersionDraft})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	out, err := h.executeCommand("versions", "link", versionID, "--kind", "team", "--role", "viewer")
	if err != nil {
		t.Fatalf("versions link: %v", err)
	}
	if !strings.HasPrefix(out, "https://app.example.com/review/internal/") || !strings.Contains(out, "?version="+versionID) {
		t.Fatalf("unexpected link:\n%s", out)
	}
	if _, err := h.executeCommand("versions", "link", versionID, "--kind", "partner"); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("unknown kind error = %v, want validation", err)
	}

	if _, err := h.executeCommand("versions", "preview", "doc_1", "--role", "viewer"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("viewer preview error = %v, want unauthorized", err)
	}
	out, err = h.executeCommand("versions", "preview", "doc_1", "--role", "editor")
	if err != nil {
		t.Fatalf("versions preview: %v", err)
	}
	if !strings.Contains(out, "https://files.example.com/") || !strings.Contains(out, "pages") {
		t.Fatalf("unexpected preview output:\n%s", out)
	}
	history, err := rt.Versions.GetVersionHistory(ctx, "doc_1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("preview created a version: %d versions", len(history))
	}

	if _, err := h.executeCommand("versions", "status", versionID, "approved", "--role", "approver"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("approver status error = %v, want unauthorized", err)
	}
	if _, err := h.executeCommand("versions", "status", versionID, "published"); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("unknown status error = %v, want validation", err)
	}
	out, err = h.executeCommand("versions", "status", versionID, "approved")
	if err != nil {
		t.Fatalf("versions status: %v", err)
	}
	if !strings.Contains(out, "is now approved") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
	v, err := rt.Versions.GetVersion(ctx, versionID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if v.Status != store.VersionApproved || v.ApprovedAt == nil {
		t.Fatalf("version status = %s, approved at %v", v.Status, v.ApprovedAt)
	}
}
