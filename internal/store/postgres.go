package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func encodeJSON(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(encoded), nil
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Documents

const documentColumns = `id, organization_id, title, main_content, client_name, boilerplate_sections,
	status, approval_required, approval, current_version_id, edit_lock, created_by, updated_by, created_at, updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc                                    Document
		boilerplate, approval, lock, by, updBy []byte
	)
	if err := row.Scan(&doc.ID, &doc.OrganizationID, &doc.Title, &doc.MainContent, &doc.ClientName, &boilerplate,
		&doc.Status, &doc.ApprovalRequired, &approval, &doc.CurrentVersionID, &lock, &by, &updBy,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	if err := decodeJSON(boilerplate, &doc.BoilerplateSections); err != nil {
		return Document{}, err
	}
	if len(approval) > 0 && string(approval) != "null" {
		doc.Approval = &ApprovalData{}
		if err := decodeJSON(approval, doc.Approval); err != nil {
			return Document{}, err
		}
	}
	if err := decodeJSON(lock, &doc.Lock); err != nil {
		return Document{}, err
	}
	if err := decodeJSON(by, &doc.CreatedBy); err != nil {
		return Document{}, err
	}
	if err := decodeJSON(updBy, &doc.UpdatedBy); err != nil {
		return Document{}, err
	}
	return doc, nil
}

type documentJSON struct {
	boilerplate, approval, lock, createdBy, updatedBy string
}

func encodeDocument(doc Document) (documentJSON, error) {
	var (
		out documentJSON
		err error
	)
	if out.boilerplate, err = encodeJSON(doc.BoilerplateSections); err != nil {
		return out, err
	}
	if out.approval, err = encodeJSON(doc.Approval); err != nil {
		return out, err
	}
	if out.lock, err = encodeJSON(doc.Lock); err != nil {
		return out, err
	}
	if out.createdBy, err = encodeJSON(doc.CreatedBy); err != nil {
		return out, err
	}
	out.updatedBy, err = encodeJSON(doc.UpdatedBy)
	return out, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) error {
	encoded, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9::jsonb, $10, $11::jsonb, $12::jsonb, $13::jsonb, $14, $15)
	`, doc.ID, doc.OrganizationID, doc.Title, doc.MainContent, doc.ClientName, encoded.boilerplate,
		doc.Status, doc.ApprovalRequired, encoded.approval, doc.CurrentVersionID, encoded.lock,
		encoded.createdBy, encoded.updatedBy, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return mapError("insert document", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, mapError("get document", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, documentID string, fn func(*Document) error) (Document, error) {
	var updated Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, documentID)
		doc, err := scanDocument(row)
		if err != nil {
			return mapError("lock document", err)
		}
		if err := fn(&doc); err != nil {
			return err
		}
		encoded, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET title=$2, main_content=$3, client_name=$4, boilerplate_sections=$5::jsonb, status=$6,
				approval_required=$7, approval=$8::jsonb, current_version_id=$9, edit_lock=$10::jsonb,
				updated_by=$11::jsonb, updated_at=$12
			WHERE id=$1
		`, doc.ID, doc.Title, doc.MainContent, doc.ClientName, encoded.boilerplate, doc.Status,
			doc.ApprovalRequired, encoded.approval, doc.CurrentVersionID, encoded.lock,
			encoded.updatedBy, doc.UpdatedAt)
		if err != nil {
			return mapError("update document", err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

// Workflows

const workflowColumns = `id, document_id, organization_id, stages, current_stage, team_settings,
	customer_settings, final_status, created_by, created_at, completed_at`

func scanWorkflow(row rowScanner) (Workflow, error) {
	var (
		wf                         Workflow
		stages, team, customer, by []byte
		completedAt                sql.NullTime
	)
	if err := row.Scan(&wf.ID, &wf.DocumentID, &wf.OrganizationID, &stages, &wf.CurrentStage, &team,
		&customer, &wf.FinalStatus, &by, &wf.CreatedAt, &completedAt); err != nil {
		return Workflow{}, err
	}
	for _, pair := range []struct {
		raw    []byte
		target any
	}{{stages, &wf.Stages}, {team, &wf.TeamSettings}, {customer, &wf.CustomerSettings}, {by, &wf.CreatedBy}} {
		if err := decodeJSON(pair.raw, pair.target); err != nil {
			return Workflow{}, err
		}
	}
	wf.CompletedAt = timePtr(completedAt)
	return wf, nil
}

func encodeWorkflow(wf Workflow) (stages, team, customer, by string, err error) {
	if stages, err = encodeJSON(wf.Stages); err != nil {
		return
	}
	if team, err = encodeJSON(wf.TeamSettings); err != nil {
		return
	}
	if customer, err = encodeJSON(wf.CustomerSettings); err != nil {
		return
	}
	by, err = encodeJSON(wf.CreatedBy)
	return
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf Workflow) error {
	stages, team, customer, by, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7::jsonb, $8, $9::jsonb, $10, $11)
	`, wf.ID, wf.DocumentID, wf.OrganizationID, stages, wf.CurrentStage, team, customer,
		wf.FinalStatus, by, wf.CreatedAt, nullTime(wf.CompletedAt))
	if err != nil {
		return mapError("insert workflow", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id=$1`, workflowID))
	if err != nil {
		return Workflow{}, mapError("get workflow", err)
	}
	return wf, nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, workflowID string, fn func(*Workflow) error) (Workflow, error) {
	var updated Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		wf, err := updateWorkflowTx(ctx, tx, workflowID, fn)
		updated = wf
		return err
	})
	if err != nil {
		return Workflow{}, err
	}
	return updated, nil
}

func updateWorkflowTx(ctx context.Context, tx *sql.Tx, workflowID string, fn func(*Workflow) error) (Workflow, error) {
	wf, err := scanWorkflow(tx.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id=$1 FOR UPDATE`, workflowID))
	if err != nil {
		return Workflow{}, mapError("lock workflow", err)
	}
	if err := fn(&wf); err != nil {
		return Workflow{}, err
	}
	stages, team, customer, _, err := encodeWorkflow(wf)
	if err != nil {
		return Workflow{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE workflows
		SET stages=$2::jsonb, current_stage=$3, team_settings=$4::jsonb, customer_settings=$5::jsonb,
			final_status=$6, completed_at=$7
		WHERE id=$1
	`, wf.ID, stages, wf.CurrentStage, team, customer, wf.FinalStatus, nullTime(wf.CompletedAt))
	if err != nil {
		return Workflow{}, mapError("update workflow", err)
	}
	return wf, nil
}

func (s *PostgresStore) ListWorkflowsByOrganization(ctx context.Context, organizationID string) ([]Workflow, error) {
	return s.listWorkflows(ctx, `organization_id=$1`, organizationID)
}

func (s *PostgresStore) ListWorkflowsByDocument(ctx context.Context, documentID string) ([]Workflow, error) {
	return s.listWorkflows(ctx, `document_id=$1`, documentID)
}

func (s *PostgresStore) listWorkflows(ctx context.Context, where string, arg string) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE `+where+` ORDER BY created_at DESC, id DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	items := make([]Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		items = append(items, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return items, nil
}

// Team approvals

const approvalColumns = `id, workflow_id, document_id, organization_id, approver, status, decision, message, notified_at, created_at`

func scanApproval(row rowScanner) (TeamApproval, error) {
	var (
		a                  TeamApproval
		approver, decision []byte
		notifiedAt         sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.WorkflowID, &a.DocumentID, &a.OrganizationID, &approver, &a.Status,
		&decision, &a.Message, &notifiedAt, &a.CreatedAt); err != nil {
		return TeamApproval{}, err
	}
	if err := decodeJSON(approver, &a.Approver); err != nil {
		return TeamApproval{}, err
	}
	if len(decision) > 0 && string(decision) != "null" {
		a.Decision = &Decision{}
		if err := decodeJSON(decision, a.Decision); err != nil {
			return TeamApproval{}, err
		}
	}
	a.NotifiedAt = timePtr(notifiedAt)
	return a, nil
}

func (s *PostgresStore) InsertTeamApprovals(ctx context.Context, workflowID string, approvals []TeamApproval, fn func(*Workflow) error) (Workflow, error) {
	var updated Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range approvals {
			approver, err := encodeJSON(a.Approver)
			if err != nil {
				return err
			}
			decision, err := encodeJSON(a.Decision)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO team_approvals (id, workflow_id, document_id, organization_id, approver_user_id,
					approver, status, decision, message, notified_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9, $10, $11)
			`, a.ID, a.WorkflowID, a.DocumentID, a.OrganizationID, a.Approver.UserID, approver, a.Status,
				decision, a.Message, nullTime(a.NotifiedAt), a.CreatedAt)
			if err != nil {
				return mapError("insert team approval", err)
			}
		}
		wf, err := updateWorkflowTx(ctx, tx, workflowID, fn)
		updated = wf
		return err
	})
	if err != nil {
		return Workflow{}, err
	}
	return updated, nil
}

func (s *PostgresStore) GetTeamApproval(ctx context.Context, approvalID string) (TeamApproval, error) {
	a, err := scanApproval(s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM team_approvals WHERE id=$1`, approvalID))
	if err != nil {
		return TeamApproval{}, mapError("get team approval", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateTeamApproval(ctx context.Context, approvalID string, fn func(*TeamApproval) error) (TeamApproval, error) {
	var updated TeamApproval
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM team_approvals WHERE id=$1 FOR UPDATE`, approvalID))
		if err != nil {
			return mapError("lock team approval", err)
		}
		if err := fn(&a); err != nil {
			return err
		}
		decision, err := encodeJSON(a.Decision)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE team_approvals SET status=$2, decision=$3::jsonb, notified_at=$4 WHERE id=$1
		`, a.ID, a.Status, decision, nullTime(a.NotifiedAt))
		if err != nil {
			return mapError("update team approval", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return TeamApproval{}, err
	}
	return updated, nil
}

func (s *PostgresStore) ListTeamApprovalsByWorkflow(ctx context.Context, workflowID string) ([]TeamApproval, error) {
	return s.listApprovals(ctx, `workflow_id=$1 ORDER BY created_at ASC, id ASC`, workflowID)
}

func (s *PostgresStore) ListTeamApprovalsByUser(ctx context.Context, userID, organizationID, status string) ([]TeamApproval, error) {
	return s.listApprovals(ctx, `approver_user_id=$1 AND organization_id=$2 AND ($3 = '' OR status=$3) ORDER BY created_at DESC, id DESC`,
		userID, organizationID, status)
}

func (s *PostgresStore) ListTeamApprovalsByOrganization(ctx context.Context, organizationID string) ([]TeamApproval, error) {
	return s.listApprovals(ctx, `organization_id=$1 ORDER BY created_at DESC, id DESC`, organizationID)
}

func (s *PostgresStore) listApprovals(ctx context.Context, clause string, args ...any) ([]TeamApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+approvalColumns+` FROM team_approvals WHERE `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list team approvals: %w", err)
	}
	defer rows.Close()

	items := make([]TeamApproval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team approval: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team approvals: %w", err)
	}
	return items, nil
}

// Versions

const versionColumns = `id, document_id, organization_id, version, status, content_snapshot, file_name,
	download_url, storage_key, file_size, metadata, workflow_id, created_by, created_at, updated_at, approved_at`

func scanVersion(row rowScanner) (Version, error) {
	var (
		v                      Version
		snapshot, metadata, by []byte
		approvedAt             sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.DocumentID, &v.OrganizationID, &v.Version, &v.Status, &snapshot, &v.FileName,
		&v.DownloadURL, &v.StorageKey, &v.FileSize, &metadata, &v.WorkflowID, &by, &v.CreatedAt, &v.UpdatedAt,
		&approvedAt); err != nil {
		return Version{}, err
	}
	if err := decodeJSON(snapshot, &v.ContentSnapshot); err != nil {
		return Version{}, err
	}
	if err := decodeJSON(metadata, &v.Metadata); err != nil {
		return Version{}, err
	}
	if err := decodeJSON(by, &v.CreatedBy); err != nil {
		return Version{}, err
	}
	v.ApprovedAt = timePtr(approvedAt)
	return v, nil
}

func (s *PostgresStore) CreateVersion(ctx context.Context, v Version) error {
	snapshot, err := encodeJSON(v.ContentSnapshot)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(v.Metadata)
	if err != nil {
		return err
	}
	by, err := encodeJSON(v.CreatedBy)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11::jsonb, $12, $13::jsonb, $14, $15, $16)
	`, v.ID, v.DocumentID, v.OrganizationID, v.Version, v.Status, snapshot, v.FileName, v.DownloadURL,
		v.StorageKey, v.FileSize, metadata, v.WorkflowID, by, v.CreatedAt, v.UpdatedAt, nullTime(v.ApprovedAt))
	if err != nil {
		return mapError("insert version", err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id=$1`, versionID))
	if err != nil {
		return Version{}, mapError("get version", err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateVersion(ctx context.Context, versionID string, fn func(*Version) error) (Version, error) {
	var updated Version
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := scanVersion(tx.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id=$1 FOR UPDATE`, versionID))
		if err != nil {
			return mapError("lock version", err)
		}
		if err := fn(&v); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE versions SET status=$2, workflow_id=$3, updated_at=$4, approved_at=$5 WHERE id=$1
		`, v.ID, v.Status, v.WorkflowID, v.UpdatedAt, nullTime(v.ApprovedAt))
		if err != nil {
			return mapError("update version", err)
		}
		updated = v
		return nil
	})
	if err != nil {
		return Version{}, err
	}
	return updated, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE document_id=$1 ORDER BY version DESC`
	args := []any{documentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) LatestVersionNumber(ctx context.Context, documentID string) (int, error) {
	var latest int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM versions WHERE document_id=$1`, documentID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	return latest, nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, versionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM versions WHERE id=$1`, versionID)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete version rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit log

func (s *PostgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	actor, err := encodeJSON(e.Actor)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, document_id, action, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, e.ID, e.DocumentID, e.Action, e.Reason, actor, e.Timestamp)
	if err != nil {
		return mapError("insert audit entry", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, documentID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, action, reason, actor, created_at
		FROM audit_log
		WHERE document_id=$1
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var (
			e     AuditEntry
			actor []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Action, &e.Reason, &actor, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := decodeJSON(actor, &e.Actor); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return items, nil
}

// Save markers

func (s *PostgresStore) GetMarker(ctx context.Context, key string) (Marker, error) {
	var (
		m      Marker
		result []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, document_id, step, result, updated_at FROM save_markers WHERE key=$1
	`, key).Scan(&m.Key, &m.DocumentID, &m.Step, &result, &m.UpdatedAt)
	if err != nil {
		return Marker{}, mapError("get marker", err)
	}
	if err := decodeJSON(result, &m.Result); err != nil {
		return Marker{}, err
	}
	return m, nil
}

func (s *PostgresStore) SaveMarker(ctx context.Context, m Marker) error {
	result, err := encodeJSON(m.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_markers (key, document_id, step, result, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (key) DO UPDATE SET document_id=EXCLUDED.document_id, step=EXCLUDED.step,
			result=EXCLUDED.result, updated_at=EXCLUDED.updated_at
	`, m.Key, m.DocumentID, m.Step, result, m.UpdatedAt)
	if err != nil {
		return mapError("save marker", err)
	}
	return nil
}
