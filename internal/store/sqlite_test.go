package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/database"
	"github.com/Gresham24/invite-ai/internal/models"
)

func openTempStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "invite.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.RunSQLiteMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewSQLiteStore(db)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func newInvite(id, owner, title string) *models.Invite {
	return &models.Invite{
		ID: id,
		Inputs: models.GenerationRequest{
			Event: models.EventFields{
				Title:       title,
				Date:        "2026-05-01",
				Time:        "18:00",
				Venue:       "The Hall",
				Description: "A party",
			},
			Images: models.ImageRefs{Hero: "https://cdn.example/hero.jpg"},
		},
		Artifact: models.GeneratedArtifact{
			RawText:       "```jsx\nfunction InviteComponent() {}\n```",
			SanitizedCode: "function InviteComponent() {}",
			IsSafe:        true,
			Model:         "test-model",
			CodeHash:      "hash",
			Seal:          "seal",
		},
		OwnerEmail: owner,
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, newInvite("inv-1", "Owner@Example.com", "Party"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !saved.IsActive || saved.CreatedAt.IsZero() {
		t.Errorf("Unexpected saved record %+v", saved)
	}

	got, err := s.Load(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Inputs.Event.Title != "Party" || got.Inputs.Images.Hero != "https://cdn.example/hero.jpg" {
		t.Errorf("Inputs not round-tripped: %+v", got.Inputs)
	}
	if got.Artifact.SanitizedCode != "function InviteComponent() {}" || !got.Artifact.IsSafe {
		t.Errorf("Artifact not round-tripped: %+v", got.Artifact)
	}
	if got.Artifact.RawText == "" || got.Artifact.Seal != "seal" || got.Artifact.CodeHash != "hash" {
		t.Errorf("Audit fields not stored: %+v", got.Artifact)
	}
	if got.OwnerEmail != "owner@example.com" {
		t.Errorf("Owner email should be normalized, got %q", got.OwnerEmail)
	}
	if got.Artifact.RejectionReason != nil {
		t.Errorf("Safe artifact should have no reason")
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, newInvite("inv-1", "", "First"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.IncrementViews(ctx, "inv-1"); err != nil {
		t.Fatalf("IncrementViews failed: %v", err)
	}

	second := newInvite("inv-1", "", "Second")
	reason := "forbidden construct: eval"
	second.Artifact = models.GeneratedArtifact{IsSafe: false, RejectionReason: &reason}
	if _, err := s.Save(ctx, second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := s.Load(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Inputs.Event.Title != "Second" || got.Artifact.IsSafe || got.Artifact.Reason() != reason {
		t.Errorf("Upsert did not replace content: %+v", got)
	}
	if got.ViewCount != 1 {
		t.Errorf("Upsert should keep the view count, got %d", got.ViewCount)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Upsert should keep created_at: %v vs %v", got.CreatedAt, first.CreatedAt)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM invites`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one row, got %d", count)
	}
}

func TestCreateNeverReplaces(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, newInvite("inv-1", "host@example.com", "Party"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !created.IsActive || created.OwnerEmail != "host@example.com" {
		t.Errorf("Unexpected created record %+v", created)
	}

	if _, err := s.Create(ctx, newInvite("inv-1", "attacker@example.com", "Hijacked")); !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
	got, err := s.Load(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.OwnerEmail != "host@example.com" || got.Inputs.Event.Title != "Party" {
		t.Errorf("Create replaced an existing record: %+v", got)
	}

	if err := s.SoftDelete(ctx, "inv-1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := s.Create(ctx, newInvite("inv-1", "attacker@example.com", "Hijacked")); !errors.Is(err, ErrConflict) {
		t.Errorf("Soft-deleted ids must stay taken, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "inv-1"); err != nil || ok {
		t.Fatalf("Expected no record, got %v %v", ok, err)
	}
	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.SoftDelete(ctx, "inv-1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if ok, err := s.Exists(ctx, "inv-1"); err != nil || !ok {
		t.Errorf("Soft-deleted record should exist, got %v %v", ok, err)
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := openTempStore(t)
	if _, err := s.Save(context.Background(), &models.Invite{}); err == nil {
		t.Fatal("Expected an error for a missing id")
	}
}

func TestLoadNotFound(t *testing.T) {
	s := openTempStore(t)
	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "a@example.com", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.SoftDelete(ctx, "inv-1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := s.Load(ctx, "inv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleted invite should not load, got %v", err)
	}
	if err := s.SoftDelete(ctx, "inv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second delete should report not found, got %v", err)
	}
	if err := s.IncrementViews(ctx, "inv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Views on a deleted invite should report not found, got %v", err)
	}

	var deletedAt *int64
	if err := s.db.QueryRow(`SELECT deleted_at FROM invites WHERE id = 'inv-1'`).Scan(&deletedAt); err != nil {
		t.Fatalf("query: %v", err)
	}
	if deletedAt == nil {
		t.Error("Row should remain with deleted_at set")
	}
}

func TestListByOwner(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		inv := newInvite(fmt.Sprintf("inv-%02d", i), "owner@example.com", fmt.Sprintf("Party %d", i))
		inv.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := s.Save(ctx, inv); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := s.Save(ctx, newInvite("other", "someone@example.com", "Other")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.SoftDelete(ctx, "inv-11"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	list, err := s.ListByOwner(ctx, " OWNER@example.com ", 0)
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(list) != DefaultListLimit {
		t.Fatalf("Expected %d invites, got %d", DefaultListLimit, len(list))
	}
	if list[0].ID != "inv-10" || list[9].ID != "inv-01" {
		t.Errorf("Expected newest first without deleted invites, got %s..%s", list[0].ID, list[9].ID)
	}
	if list[0].Title != "Party 10" || list[0].Date != "2026-05-01" {
		t.Errorf("Unexpected summary %+v", list[0])
	}

	empty, err := s.ListByOwner(ctx, "nobody@example.com", 5)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty list, got %v %v", empty, err)
	}
}

func TestAnalytics(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := newInvite("inv-1", "", "Party")
	inv.CreatedAt = created
	if _, err := s.Save(ctx, inv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		if err := s.IncrementViews(ctx, "inv-1"); err != nil {
			t.Fatalf("IncrementViews failed: %v", err)
		}
	}

	s.now = func() time.Time { return created.Add(3*24*time.Hour + time.Minute) }
	a, err := s.Analytics(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if a.ViewCount != 6 || a.DaysSinceCreation != 3 || a.AverageViewsPerDay != 2 {
		t.Errorf("Unexpected analytics %+v", a)
	}
	if !a.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, created)
	}

	if _, err := s.Analytics(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListExpired(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{-72 * time.Hour, -48 * time.Hour, time.Hour} {
		inv := newInvite(fmt.Sprintf("inv-%d", i), "", "Party")
		inv.CreatedAt = cutoff.Add(offset)
		if _, err := s.Save(ctx, inv); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	expired, err := s.ListExpired(ctx, cutoff, 0)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expired) != 2 || expired[0].ID != "inv-0" || expired[1].ID != "inv-1" {
		t.Errorf("Unexpected expired set %+v", expired)
	}

	limited, err := s.ListExpired(ctx, cutoff, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Expected one expired invite with limit 1, got %d (%v)", len(limited), err)
	}
}

func TestRecordUsage(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, newInvite("inv-1", "", "Party")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entry := &models.GenerationLog{InviteID: "inv-1", ModelID: "m", TokensIn: 10, TokensOut: 20, Cost: 0.01, Safe: true}
	if err := s.RecordUsage(ctx, entry); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("RecordUsage should fill id and timestamp")
	}

	var tokensOut int
	if err := s.db.QueryRow(`SELECT tokens_out FROM generation_logs WHERE invite_id = 'inv-1'`).Scan(&tokensOut); err != nil {
		t.Fatalf("query: %v", err)
	}
	if tokensOut != 20 {
		t.Errorf("tokens_out = %d, want 20", tokensOut)
	}

	orphan := &models.GenerationLog{InviteID: "missing", ModelID: "m"}
	if err := s.RecordUsage(ctx, orphan); err == nil {
		t.Error("Expected foreign key violation for an unknown invite")
	}
}
