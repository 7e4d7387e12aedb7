package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gresham24/invite-ai/internal/models"
)

// SQLiteStore persists invites in an embedded SQLite database. Timestamps are
// stored as Unix nanoseconds so they sort numerically.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps a migrated SQLite handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

const inviteColumns = `id, form_data, raw_text, sanitized_code, is_safe, rejection_reason, model,
	code_hash, seal, owner_email, view_count, is_active, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteInvite(row rowScanner) (*models.Invite, error) {
	var (
		inv       models.Invite
		formData  string
		reason    sql.NullString
		owner     sql.NullString
		createdAt int64
		updatedAt int64
		deletedAt sql.NullInt64
	)
	err := row.Scan(
		&inv.ID, &formData, &inv.Artifact.RawText, &inv.Artifact.SanitizedCode, &inv.Artifact.IsSafe,
		&reason, &inv.Artifact.Model, &inv.Artifact.CodeHash, &inv.Artifact.Seal, &owner,
		&inv.ViewCount, &inv.IsActive, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	inputs, err := decodeInputs([]byte(formData))
	if err != nil {
		return nil, err
	}
	inv.Inputs = inputs
	if reason.Valid {
		r := reason.String
		inv.Artifact.RejectionReason = &r
	}
	inv.OwnerEmail = owner.String
	inv.CreatedAt = fromNanos(createdAt)
	inv.UpdatedAt = fromNanos(updatedAt)
	if deletedAt.Valid {
		d := fromNanos(deletedAt.Int64)
		inv.DeletedAt = &d
	}
	return &inv, nil
}

// Create inserts a new invite. Soft-deleted records still hold their id.
func (s *SQLiteStore) Create(ctx context.Context, inv *models.Invite) (*models.Invite, error) {
	if err := validateInvite(inv); err != nil {
		return nil, err
	}
	inputs, err := encodeInputs(inv.Inputs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (
		   id, form_data, raw_text, sanitized_code, is_safe, rejection_reason, model,
		   code_hash, seal, owner_email, view_count, is_active, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		inv.ID, string(inputs), inv.Artifact.RawText, inv.Artifact.SanitizedCode, inv.Artifact.IsSafe,
		inv.Artifact.RejectionReason, inv.Artifact.Model, inv.Artifact.CodeHash, inv.Artifact.Seal,
		nullableString(normalizeEmail(inv.OwnerEmail)), toNanos(createdAt), toNanos(now),
	)
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	if n == 0 {
		return nil, ErrConflict
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, inv.ID)
	created, err := scanSQLiteInvite(row)
	if err != nil {
		return nil, fmt.Errorf("reload invite: %w", err)
	}
	return created, nil
}

// Exists reports whether any record, active or soft-deleted, holds id.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM invites WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check invite id: %w", err)
	}
	return true, nil
}

// Save upserts the invite and returns the stored record.
func (s *SQLiteStore) Save(ctx context.Context, inv *models.Invite) (*models.Invite, error) {
	if err := validateInvite(inv); err != nil {
		return nil, err
	}
	inputs, err := encodeInputs(inv.Inputs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invites (
		   id, form_data, raw_text, sanitized_code, is_safe, rejection_reason, model,
		   code_hash, seal, owner_email, view_count, is_active, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   form_data = excluded.form_data,
		   raw_text = excluded.raw_text,
		   sanitized_code = excluded.sanitized_code,
		   is_safe = excluded.is_safe,
		   rejection_reason = excluded.rejection_reason,
		   model = excluded.model,
		   code_hash = excluded.code_hash,
		   seal = excluded.seal,
		   owner_email = excluded.owner_email,
		   updated_at = excluded.updated_at`,
		inv.ID, string(inputs), inv.Artifact.RawText, inv.Artifact.SanitizedCode, inv.Artifact.IsSafe,
		inv.Artifact.RejectionReason, inv.Artifact.Model, inv.Artifact.CodeHash, inv.Artifact.Seal,
		nullableString(normalizeEmail(inv.OwnerEmail)), toNanos(createdAt), toNanos(now),
	)
	if err != nil {
		return nil, fmt.Errorf("save invite: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, inv.ID)
	saved, err := scanSQLiteInvite(row)
	if err != nil {
		return nil, fmt.Errorf("reload invite: %w", err)
	}
	return saved, nil
}

// Load returns an active invite.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Invite, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ? AND is_active = 1`, id)
	inv, err := scanSQLiteInvite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}
	return inv, nil
}

// ListByOwner returns the newest active invites of an owner.
func (s *SQLiteStore) ListByOwner(ctx context.Context, email string, limit int) ([]models.InviteSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invites
		 WHERE owner_email = ? AND is_active = 1
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		normalizeEmail(email), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.InviteSummary, 0)
	for rows.Next() {
		inv, err := scanSQLiteInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		summaries = append(summaries, summaryOf(inv))
	}
	return summaries, rows.Err()
}

// IncrementViews adds one view to an active invite.
func (s *SQLiteStore) IncrementViews(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET view_count = view_count + 1 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return expectOneRow(res)
}

// Analytics reports the view figures of an active invite.
func (s *SQLiteStore) Analytics(ctx context.Context, id string) (*models.Analytics, error) {
	var views, createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT view_count, created_at FROM invites WHERE id = ? AND is_active = 1`, id,
	).Scan(&views, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}
	a := models.NewAnalytics(views, fromNanos(createdAt), s.now())
	return &a, nil
}

// SoftDelete deactivates an invite. The row stays for auditing.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) error {
	now := toNanos(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET is_active = 0, deleted_at = ?, updated_at = ? WHERE id = ? AND is_active = 1`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete invite: %w", err)
	}
	return expectOneRow(res)
}

// ListExpired returns active invites created before the cutoff, oldest first.
func (s *SQLiteStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Invite, error) {
	if limit <= 0 {
		limit = defaultExpiredBatch
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invites
		 WHERE is_active = 1 AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		toNanos(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired invites: %w", err)
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		inv, err := scanSQLiteInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// RecordUsage stores one generation log entry.
func (s *SQLiteStore) RecordUsage(ctx context.Context, log *models.GenerationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_logs (id, invite_id, model_id, tokens_in, tokens_out, latency_ms, cost, safe, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.InviteID, log.ModelID, log.TokensIn, log.TokensOut, log.LatencyMs, log.Cost, log.Safe,
		toNanos(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const defaultExpiredBatch = 500

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
