// Package store persists invites and generation usage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gresham24/invite-ai/internal/models"
)

// ErrNotFound is returned for unknown or soft-deleted invites.
var ErrNotFound = errors.New("invite not found")

// ErrConflict is returned by Create when the id already has a record.
var ErrConflict = errors.New("invite id already in use")

// DefaultListLimit caps owner listings.
const DefaultListLimit = 10

// Store is the persistence facade of the invite service. Save is an upsert
// keyed by invite id, so saving the same id twice leaves one record. Create
// only inserts and fails with ErrConflict when any record, deleted or not,
// already holds the id.
type Store interface {
	Create(ctx context.Context, inv *models.Invite) (*models.Invite, error)
	Save(ctx context.Context, inv *models.Invite) (*models.Invite, error)
	Exists(ctx context.Context, id string) (bool, error)
	Load(ctx context.Context, id string) (*models.Invite, error)
	ListByOwner(ctx context.Context, email string, limit int) ([]models.InviteSummary, error)
	IncrementViews(ctx context.Context, id string) error
	Analytics(ctx context.Context, id string) (*models.Analytics, error)
	SoftDelete(ctx context.Context, id string) error
	ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Invite, error)
	RecordUsage(ctx context.Context, log *models.GenerationLog) error
	Ping(ctx context.Context) error
}

func validateInvite(inv *models.Invite) error {
	if inv == nil {
		return fmt.Errorf("invite is required")
	}
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invite id is required")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

func encodeInputs(req models.GenerationRequest) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	return b, nil
}

func decodeInputs(b []byte) (models.GenerationRequest, error) {
	var req models.GenerationRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return req, fmt.Errorf("decode inputs: %w", err)
	}
	return req, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func summaryOf(inv *models.Invite) models.InviteSummary {
	return models.InviteSummary{
		ID:        inv.ID,
		Title:     inv.Inputs.Event.Title,
		Date:      inv.Inputs.Event.Date,
		CreatedAt: inv.CreatedAt,
		ViewCount: inv.ViewCount,
	}
}
