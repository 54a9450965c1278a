package approval

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signoff/api/internal/apperr"
	"signoff/api/internal/notify"
	"signoff/api/internal/store"
)

func TestCreateTeamApprovalStartsStageOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob), owner)
	require.NoError(t, err)

	wf := f.workflow(t, wfID)
	stage := wf.Stage(store.StageTeam)
	require.NotNil(t, stage)
	assert.Equal(t, store.StageInProgress, stage.Status)
	assert.Equal(t, 2, stage.RequiredApprovals)
	assert.NotNil(t, stage.StartedAt)
	assert.Len(t, wf.TeamSettings.ApprovalIDs, 2)

	_, err = f.tracker.CreateTeamApproval(ctx, "doc_1", wfID, []store.Approver{carol}, "org_1", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.approvals(t, wfID), 2, "a rejected batch must not leave approvals behind")

	_, err = f.tracker.CreateTeamApproval(ctx, "doc_1", wfID, nil, "org_1", "")
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestSubmitTeamDecisionGuards(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob), owner)
	require.NoError(t, err)
	ids := f.approvals(t, wfID)

	_, err = f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], bob.UserID, DecisionApproved, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, "maybe", "")
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.tracker.SubmitTeamDecision(ctx, "ta_missing", alice.UserID, DecisionApproved, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	res, err := f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, DecisionApproved, "lgtm")
	require.NoError(t, err)
	assert.Equal(t, store.StageInProgress, res.StageStatus)
	assert.Equal(t, 1, res.ReceivedApprovals)
	assert.Equal(t, 2, res.RequiredApprovals)
	assert.False(t, res.Triggered)

	before, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
	require.NoError(t, err)
	wfBefore := f.workflow(t, wfID)
	stageBefore := *wfBefore.Stage(store.StageTeam)

	_, err = f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, DecisionRejected, "changed my mind")
	assert.ErrorIs(t, err, apperr.ErrAlreadyDecided)

	after, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a refused decision leaves the tally alone")
	wfAfter := f.workflow(t, wfID)
	assert.Equal(t, stageBefore, *wfAfter.Stage(store.StageTeam))
}

func TestTeamStageCompletesWhenAllApprove(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob), owner)
	require.NoError(t, err)
	ids := f.approvals(t, wfID)

	first, err := f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, DecisionApproved, "")
	require.NoError(t, err)
	assert.False(t, first.Triggered)

	last, err := f.tracker.SubmitTeamDecision(ctx, ids[bob.UserID], bob.UserID, DecisionApproved, "")
	require.NoError(t, err)
	assert.True(t, last.Triggered)
	assert.Equal(t, store.StageDone, last.StageStatus)
	assert.Equal(t, 2, last.ReceivedApprovals)

	wf := f.workflow(t, wfID)
	assert.True(t, wf.TeamSettings.AllApproved)
	assert.NotNil(t, wf.TeamSettings.CompletedAt)

	ok, err := f.tracker.CheckAndUpdateWorkflowStatus(ctx, wfID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTeamRejectionIsSticky(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob, carol), owner)
	require.NoError(t, err)
	ids := f.approvals(t, wfID)

	_, err = f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, DecisionApproved, "")
	require.NoError(t, err)
	rejected, err := f.tracker.SubmitTeamDecision(ctx, ids[bob.UserID], bob.UserID, DecisionRejected, "wrong pricing")
	require.NoError(t, err)
	assert.True(t, rejected.Triggered)
	assert.Equal(t, store.StageRejected, rejected.StageStatus)

	late, err := f.tracker.SubmitTeamDecision(ctx, ids[carol.UserID], carol.UserID, DecisionApproved, "")
	require.NoError(t, err)
	assert.False(t, late.Triggered)
	assert.Equal(t, store.StageRejected, late.StageStatus)
	assert.Equal(t, 2, late.ReceivedApprovals)

	status, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.Approved)
	assert.Equal(t, 1, status.Rejected)
	assert.Equal(t, 0, status.Pending)
	assert.True(t, status.AnyRejected)
	assert.False(t, status.AllApproved)
	require.Len(t, status.Approvals, 3)
	assert.Equal(t, alice.UserID, status.Approvals[0].Approver.UserID)

	ok, err := f.tracker.CheckAndUpdateWorkflowStatus(ctx, wfID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTeamRejectionWinsInAnyOrder(t *testing.T) {
	type vote struct {
		approver store.Approver
		decision string
	}
	a := vote{alice, DecisionApproved}
	b := vote{bob, DecisionApproved}
	c := vote{carol, DecisionRejected}
	orders := map[string][]vote{
		"a b c": {a, b, c},
		"a c b": {a, c, b},
		"b a c": {b, a, c},
		"b c a": {b, c, a},
		"c a b": {c, a, b},
		"c b a": {c, b, a},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Options{})
			ctx := context.Background()
			wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob, carol), owner)
			require.NoError(t, err)
			ids := f.approvals(t, wfID)

			triggeredBy := ""
			for _, v := range order {
				res, err := f.tracker.SubmitTeamDecision(ctx, ids[v.approver.UserID], v.approver.UserID, v.decision, "comment")
				require.NoError(t, err)
				if res.Triggered {
					require.Empty(t, triggeredBy, "stage transitioned twice")
					triggeredBy = v.approver.UserID
				}
			}
			assert.Equal(t, carol.UserID, triggeredBy)

			wf := f.workflow(t, wfID)
			stage := wf.Stage(store.StageTeam)
			assert.Equal(t, store.StageRejected, stage.Status)
			assert.Equal(t, 2, stage.ReceivedApprovals)

			status, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
			require.NoError(t, err)
			assert.Equal(t, 2, status.Approved)
			assert.Equal(t, 1, status.Rejected)
			assert.True(t, status.AnyRejected)
			assert.False(t, status.AllApproved)
		})
	}
}

func TestConcurrentDecisionsTransitionExactlyOnce(t *testing.T) {
	approvers := []store.Approver{alice, bob, carol,
		{UserID: "u_dave", DisplayName: "Dave"},
		{UserID: "u_erin", DisplayName: "Erin"},
	}
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(approvers...), owner)
	require.NoError(t, err)
	ids := f.approvals(t, wfID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		triggered int
	)
	for _, a := range approvers {
		wg.Add(1)
		go func(a store.Approver) {
			defer wg.Done()
			res, err := f.tracker.SubmitTeamDecision(ctx, ids[a.UserID], a.UserID, DecisionApproved, "")
			assert.NoError(t, err)
			if res.Triggered {
				mu.Lock()
				triggered++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, 1, triggered)
	wf := f.workflow(t, wfID)
	stage := wf.Stage(store.StageTeam)
	assert.Equal(t, store.StageDone, stage.Status)
	assert.Equal(t, len(approvers), stage.ReceivedApprovals)
}

func TestApprovalListings(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob), owner)
	require.NoError(t, err)
	ids := f.approvals(t, wfID)

	pending, err := f.tracker.GetApprovalsByUser(ctx, alice.UserID, "org_1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[alice.UserID], pending[0].ID)

	_, err = f.tracker.SubmitTeamDecision(ctx, ids[alice.UserID], alice.UserID, DecisionApproved, "")
	require.NoError(t, err)

	pending, err = f.tracker.GetApprovalsByUser(ctx, alice.UserID, "org_1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := f.tracker.GetOrganizationApprovals(ctx, "org_1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := f.tracker.GetOrganizationApprovals(ctx, "org_2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestNotifyTeamMembersMarksNotified(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice, bob), owner)
	require.NoError(t, err)

	msgs := f.notifier.byKind(notify.KindTeamApprovalRequest)
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].To, 2)
	assert.Equal(t, "Q3 Proposal", msgs[0].DocumentTitle)
	assert.Contains(t, msgs[0].Link, "https://app.example.com/review/internal/")

	status, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
	require.NoError(t, err)
	for _, a := range status.Approvals {
		assert.True(t, a.Notified, a.Approver.UserID)
	}
}

func TestNotifyTeamMembersFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Options{})
	f.notifier.err = errBoom
	ctx := context.Background()

	wfID, err := f.coordinator.CreateWorkflow(ctx, "doc_1", "org_1", teamOnly(alice), owner)
	require.NoError(t, err)

	status, err := f.tracker.GetTeamApprovalStatus(ctx, wfID)
	require.NoError(t, err)
	require.Len(t, status.Approvals, 1)
	assert.False(t, status.Approvals[0].Notified)
	assert.Equal(t, []string{StatusPendingTeam}, f.syncer.statuses())
}
