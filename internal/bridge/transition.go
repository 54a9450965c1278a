package bridge

import (
	"signoff/api/internal/approval"
	"signoff/api/internal/store"
)

type LockAction string

const (
	LockUpdate  LockAction = "update"
	LockRelease LockAction = "release"
	LockNone    LockAction = "none"
)

// Transition is what an approval status means for the version and the lock.
type Transition struct {
	VersionStatus string
	LockAction    LockAction
}

// DetermineTransition is the only mapping from approval status to version
// status and lock action.
func DetermineTransition(approvalStatus string, customerRequired bool) Transition {
	switch approvalStatus {
	case approval.StatusTeamApproved:
		if customerRequired {
			return Transition{VersionStatus: store.VersionPendingCustomer, LockAction: LockUpdate}
		}
		return Transition{VersionStatus: store.VersionApproved, LockAction: LockRelease}
	case approval.StatusCustomerApproved:
		return Transition{VersionStatus: store.VersionApproved, LockAction: LockRelease}
	case approval.StatusRejected:
		return Transition{VersionStatus: store.VersionRejected, LockAction: LockRelease}
	case approval.StatusPendingTeam:
		return Transition{VersionStatus: store.VersionPendingTeam, LockAction: LockUpdate}
	case approval.StatusPendingCustomer:
		return Transition{VersionStatus: store.VersionPendingCustomer, LockAction: LockUpdate}
	default:
		return Transition{VersionStatus: store.VersionDraft, LockAction: LockNone}
	}
}

func lockReasonFor(versionStatus string) string {
	switch versionStatus {
	case store.VersionPendingTeam:
		return store.LockPendingTeam
	case store.VersionPendingCustomer:
		return store.LockPendingCustomer
	case store.VersionApproved:
		return store.LockApprovedFinal
	}
	return ""
}
