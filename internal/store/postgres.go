package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gresham24/invite-ai/internal/models"
)

// PostgresStore persists invites in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of a connection pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanPostgresInvite(row pgx.Row) (*models.Invite, error) {
	var (
		inv      models.Invite
		formData []byte
		owner    *string
	)
	err := row.Scan(
		&inv.ID, &formData, &inv.Artifact.RawText, &inv.Artifact.SanitizedCode, &inv.Artifact.IsSafe,
		&inv.Artifact.RejectionReason, &inv.Artifact.Model, &inv.Artifact.CodeHash, &inv.Artifact.Seal, &owner,
		&inv.ViewCount, &inv.IsActive, &inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	inputs, err := decodeInputs(formData)
	if err != nil {
		return nil, err
	}
	inv.Inputs = inputs
	inv.OwnerEmail = derefString(owner)
	return &inv, nil
}

// Create inserts a new invite. Soft-deleted records still hold their id.
func (s *PostgresStore) Create(ctx context.Context, inv *models.Invite) (*models.Invite, error) {
	if err := validateInvite(inv); err != nil {
		return nil, err
	}
	inputs, err := encodeInputs(inv.Inputs)
	if err != nil {
		return nil, err
	}

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO invites (
		   id, form_data, raw_text, sanitized_code, is_safe, rejection_reason, model,
		   code_hash, seal, owner_email, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+inviteColumns,
		inv.ID, inputs, inv.Artifact.RawText, inv.Artifact.SanitizedCode, inv.Artifact.IsSafe,
		inv.Artifact.RejectionReason, inv.Artifact.Model, inv.Artifact.CodeHash, inv.Artifact.Seal,
		nullableString(normalizeEmail(inv.OwnerEmail)), createdAt,
	)
	created, err := scanPostgresInvite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return created, nil
}

// Exists reports whether any record, active or soft-deleted, holds id
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invites WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check invite id: %w", err)
	}
	return exists, nil
}

// Save upserts the invite and returns the stored record
func (s *PostgresStore) Save(ctx context.Context, inv *models.Invite) (*models.Invite, error) {
	if err := validateInvite(inv); err != nil {
		return nil, err
	}
	inputs, err := encodeInputs(inv.Inputs)
	if err != nil {
		return nil, err
	}

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO invites (
		   id, form_data, raw_text, sanitized_code, is_safe, rejection_reason, model,
		   code_hash, seal, owner_email, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   form_data = EXCLUDED.form_data,
		   raw_text = EXCLUDED.raw_text,
		   sanitized_code = EXCLUDED.sanitized_code,
		   is_safe = EXCLUDED.is_safe,
		   rejection_reason = EXCLUDED.rejection_reason,
		   model = EXCLUDED.model,
		   code_hash = EXCLUDED.code_hash,
		   seal = EXCLUDED.seal,
		   owner_email = EXCLUDED.owner_email,
		   updated_at = NOW()
		 RETURNING `+inviteColumns,
		inv.ID, inputs, inv.Artifact.RawText, inv.Artifact.SanitizedCode, inv.Artifact.IsSafe,
		inv.Artifact.RejectionReason, inv.Artifact.Model, inv.Artifact.CodeHash, inv.Artifact.Seal,
		nullableString(normalizeEmail(inv.OwnerEmail)), createdAt,
	)
	saved, err := scanPostgresInvite(row)
	if err != nil {
		return nil, fmt.Errorf("save invite: %w", err)
	}
	return saved, nil
}

// Load returns an active invite
func (s *PostgresStore) Load(ctx context.Context, id string) (*models.Invite, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1 AND is_active`, id)
	inv, err := scanPostgresInvite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}
	return inv, nil
}

// ListByOwner returns the newest active invites of an owner
func (s *PostgresStore) ListByOwner(ctx context.Context, email string, limit int) ([]models.InviteSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, form_data->'formData'->>'eventTitle', form_data->'formData'->>'eventDate', created_at, view_count
		 FROM invites
		 WHERE owner_email = $1 AND is_active
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		normalizeEmail(email), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.InviteSummary, 0)
	for rows.Next() {
		var (
			sum         models.InviteSummary
			title, date *string
		)
		if err := rows.Scan(&sum.ID, &title, &date, &sum.CreatedAt, &sum.ViewCount); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		sum.Title = derefString(title)
		sum.Date = derefString(date)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// IncrementViews adds one view to an active invite
func (s *PostgresStore) IncrementViews(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invites SET view_count = view_count + 1 WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Analytics reports the view figures of an active invite
func (s *PostgresStore) Analytics(ctx context.Context, id string) (*models.Analytics, error) {
	var (
		views     int64
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT view_count, created_at FROM invites WHERE id = $1 AND is_active`, id,
	).Scan(&views, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}
	a := models.NewAnalytics(views, createdAt, time.Now())
	return &a, nil
}

// SoftDelete deactivates an invite
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invites SET is_active = FALSE, deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("soft delete invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired returns active invites created before the cutoff, oldest first
func (s *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Invite, error) {
	if limit <= 0 {
		limit = defaultExpiredBatch
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+inviteColumns+` FROM invites
		 WHERE is_active AND created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired invites: %w", err)
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		inv, err := scanPostgresInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// RecordUsage stores one generation log entry
func (s *PostgresStore) RecordUsage(ctx context.Context, log *models.GenerationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_logs (id, invite_id, model_id, tokens_in, tokens_out, latency_ms, cost, safe, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, log.InviteID, log.ModelID, log.TokensIn, log.TokensOut, log.LatencyMs, log.Cost, log.Safe, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Ping checks the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
