package store

import "time"

// Document status
const (
	DocumentDraft            = "draft"
	DocumentInReview         = "in_review"
	DocumentApproved         = "approved"
	DocumentChangesRequested = "changes_requested"
)

// Workflow stages and final outcomes
const (
	StageTeam      = "team"
	StageCustomer  = "customer"
	StageCompleted = "completed"

	FinalApproved = "approved"
	FinalRejected = "rejected"
)

// Stage status
const (
	StagePending    = "pending"
	StageInProgress = "in_progress"
	StageDone       = "completed"
	StageRejected   = "rejected"
)

// Approval and unlock-request status
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Version status
const (
	VersionDraft           = "draft"
	VersionPendingTeam     = "pending_team"
	VersionPendingCustomer = "pending_customer"
	VersionApproved        = "approved"
	VersionRejected        = "rejected"
)

// Edit lock reasons
const (
	LockPendingTeam     = "pending_team_approval"
	LockPendingCustomer = "pending_customer_approval"
	LockApprovedFinal   = "approved_final"
	LockSystem          = "system_processing"
)

// Audit actions
const (
	AuditLocked          = "locked"
	AuditUnlocked        = "unlocked"
	AuditUnlockRequested = "unlock_requested"
	AuditUnlockApproved  = "unlock_approved"
	AuditUnlockRejected  = "unlock_rejected"
)

type Actor struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type Approver struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
}

type Document struct {
	ID                  string
	OrganizationID      string
	Title               string
	MainContent         string
	ClientName          string
	BoilerplateSections []string
	Status              string
	ApprovalRequired    bool
	Approval            *ApprovalData
	CurrentVersionID    string
	Lock                EditLock
	CreatedBy           Actor
	UpdatedBy           Actor
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Editable reports whether the document content may be changed.
func (d Document) Editable() bool {
	return !d.Lock.Locked
}

type ApprovalData struct {
	Settings   ApprovalSettings `json:"settings"`
	WorkflowID string           `json:"workflow_id,omitempty"`
	ShareID    string           `json:"share_id,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
}

type ApprovalSettings struct {
	Team     TeamConfig     `json:"team"`
	Customer CustomerConfig `json:"customer"`
}

type TeamConfig struct {
	Required  bool       `json:"required"`
	Approvers []Approver `json:"approvers"`
	Message   string     `json:"message,omitempty"`
}

type CustomerConfig struct {
	Required bool     `json:"required"`
	Contact  *Contact `json:"contact,omitempty"`
	Message  string   `json:"message,omitempty"`
}

type EditLock struct {
	Locked         bool            `json:"locked"`
	Reason         string          `json:"reason,omitempty"`
	LockedBy       *Actor          `json:"locked_by,omitempty"`
	LockedAt       *time.Time      `json:"locked_at,omitempty"`
	UnlockedAt     *time.Time      `json:"unlocked_at,omitempty"`
	LastUnlockedBy *Actor          `json:"last_unlocked_by,omitempty"`
	UnlockRequests []UnlockRequest `json:"unlock_requests,omitempty"`
}

// PendingUnlockRequest returns the index of the first pending request, or -1.
func (l EditLock) PendingUnlockRequest() int {
	for i, req := range l.UnlockRequests {
		if req.Status == ApprovalPending {
			return i
		}
	}
	return -1
}

type UnlockRequest struct {
	ID          string     `json:"id"`
	RequestedBy Actor      `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	DecidedBy   *Actor     `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

type Workflow struct {
	ID               string
	DocumentID       string
	OrganizationID   string
	Stages           []Stage
	CurrentStage     string
	TeamSettings     TeamSettings
	CustomerSettings CustomerSettings
	FinalStatus      string
	CreatedBy        Actor
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// Stage returns a pointer to the stage of the given kind, or nil.
func (w *Workflow) Stage(kind string) *Stage {
	for i := range w.Stages {
		if w.Stages[i].Kind == kind {
			return &w.Stages[i]
		}
	}
	return nil
}

func (w Workflow) Completed() bool {
	return w.CurrentStage == StageCompleted
}

type Stage struct {
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	RequiredApprovals int        `json:"required_approvals"`
	ReceivedApprovals int        `json:"received_approvals"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type TeamSettings struct {
	Required    bool       `json:"required"`
	Approvers   []Approver `json:"approvers"`
	Message     string     `json:"message,omitempty"`
	ApprovalIDs []string   `json:"approval_ids,omitempty"`
	AllApproved bool       `json:"all_approved"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type CustomerSettings struct {
	Required bool      `json:"required"`
	Contact  *Contact  `json:"contact,omitempty"`
	Message  string    `json:"message,omitempty"`
	ShareID  string    `json:"share_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Decision *Decision `json:"decision,omitempty"`
}

type Decision struct {
	Choice      string    `json:"choice"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type TeamApproval struct {
	ID             string
	WorkflowID     string
	DocumentID     string
	OrganizationID string
	Approver       Approver
	Status         string
	Decision       *Decision
	Message        string
	NotifiedAt     *time.Time
	CreatedAt      time.Time
}

type Version struct {
	ID              string
	DocumentID      string
	OrganizationID  string
	Version         int
	Status          string
	ContentSnapshot ContentSnapshot
	FileName        string
	DownloadURL     string
	StorageKey      string
	FileSize        int64
	Metadata        VersionMetadata
	WorkflowID      string
	CreatedBy       Actor
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ApprovedAt      *time.Time
}

type ContentSnapshot struct {
	Title               string   `json:"title"`
	MainContent         string   `json:"main_content"`
	ClientName          string   `json:"client_name,omitempty"`
	BoilerplateSections []string `json:"boilerplate_sections,omitempty"`
}

type VersionMetadata struct {
	WordCount      int   `json:"word_count"`
	PageCount      int   `json:"page_count"`
	GenerationTime int64 `json:"generation_time_ms"`
}

type AuditEntry struct {
	ID         string
	DocumentID string
	Action     string
	Reason     string
	Actor      Actor
	Timestamp  time.Time
}

// Marker records how far a multi-step save got under an idempotency key.
type Marker struct {
	Key        string
	DocumentID string
	Step       int
	Result     MarkerResult
	UpdatedAt  time.Time
}

type MarkerResult struct {
	WorkflowID   string `json:"workflow_id,omitempty"`
	VersionID    string `json:"version_id,omitempty"`
	TeamLink     string `json:"team_link,omitempty"`
	CustomerLink string `json:"customer_link,omitempty"`
}
