package store

import "time"

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneActor(a *Actor) *Actor {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func cloneDecision(d *Decision) *Decision {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneContact(c *Contact) *Contact {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneApprovers(in []Approver) []Approver {
	if in == nil {
		return nil
	}
	return append([]Approver(nil), in...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneLock(l EditLock) EditLock {
	out := l
	out.LockedBy = cloneActor(l.LockedBy)
	out.LockedAt = cloneTime(l.LockedAt)
	out.UnlockedAt = cloneTime(l.UnlockedAt)
	out.LastUnlockedBy = cloneActor(l.LastUnlockedBy)
	if l.UnlockRequests != nil {
		out.UnlockRequests = make([]UnlockRequest, len(l.UnlockRequests))
		for i, req := range l.UnlockRequests {
			req.DecidedBy = cloneActor(req.DecidedBy)
			req.DecidedAt = cloneTime(req.DecidedAt)
			out.UnlockRequests[i] = req
		}
	}
	return out
}

func cloneDocument(d Document) Document {
	out := d
	out.BoilerplateSections = cloneStrings(d.BoilerplateSections)
	out.Lock = cloneLock(d.Lock)
	if d.Approval != nil {
		approval := *d.Approval
		approval.Settings.Team.Approvers = cloneApprovers(d.Approval.Settings.Team.Approvers)
		approval.Settings.Customer.Contact = cloneContact(d.Approval.Settings.Customer.Contact)
		approval.StartedAt = cloneTime(d.Approval.StartedAt)
		out.Approval = &approval
	}
	return out
}

func cloneWorkflow(w Workflow) Workflow {
	out := w
	if w.Stages != nil {
		out.Stages = make([]Stage, len(w.Stages))
		for i, st := range w.Stages {
			st.StartedAt = cloneTime(st.StartedAt)
			st.CompletedAt = cloneTime(st.CompletedAt)
			out.Stages[i] = st
		}
	}
	out.TeamSettings.Approvers = cloneApprovers(w.TeamSettings.Approvers)
	out.TeamSettings.ApprovalIDs = cloneStrings(w.TeamSettings.ApprovalIDs)
	out.TeamSettings.CompletedAt = cloneTime(w.TeamSettings.CompletedAt)
	out.CustomerSettings.Contact = cloneContact(w.CustomerSettings.Contact)
	out.CustomerSettings.Decision = cloneDecision(w.CustomerSettings.Decision)
	out.CompletedAt = cloneTime(w.CompletedAt)
	return out
}

func cloneApproval(a TeamApproval) TeamApproval {
	out := a
	out.Decision = cloneDecision(a.Decision)
	out.NotifiedAt = cloneTime(a.NotifiedAt)
	return out
}

func cloneVersion(v Version) Version {
	out := v
	out.ContentSnapshot.BoilerplateSections = cloneStrings(v.ContentSnapshot.BoilerplateSections)
	out.ApprovedAt = cloneTime(v.ApprovedAt)
	return out
}
