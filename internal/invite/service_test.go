package invite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/database"
	"github.com/Gresham24/invite-ai/internal/economics"
	"github.com/Gresham24/invite-ai/internal/eventbus"
	"github.com/Gresham24/invite-ai/internal/generation"
	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/models"
	"github.com/Gresham24/invite-ai/internal/render"
	"github.com/Gresham24/invite-ai/internal/store"
	"github.com/Gresham24/invite-ai/internal/verification"
)

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return nil, g.err
	}
	return &generation.Response{
		Text:  g.text,
		Model: "test-model",
		Usage: models.Usage{InputTokens: 800, OutputTokens: 1200},
	}, nil
}

type harness struct {
	svc    *Service
	gen    *fakeGenerator
	db     *sql.DB
	bucket *imagestore.MemoryBucket
	events *eventbus.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "invite.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.RunSQLiteMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLiteStore(db)

	logger := zap.NewNop()
	bucket := imagestore.NewMemoryBucket(imagestore.AssetURL("https://invites.example"))
	h := &harness{
		gen:    &fakeGenerator{},
		db:     db,
		bucket: bucket,
		events: &eventbus.Recorder{},
	}
	h.svc = NewService(Deps{
		Store:     st,
		Generator: h.gen,
		Sealer:    verification.NewSealService("test-key"),
		Usage:     economics.NewService(st, logger),
		Uploader:  imagestore.NewUploader(bucket, 0, logger),
		Events:    h.events,
		Logger:    logger,
	})
	t.Cleanup(func() {
		h.svc.Close()
		st.Close()
	})
	return h
}

func partyRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Event: models.EventFields{
			Title:       "Summer Party",
			Date:        "2026-07-04",
			Time:        "18:00",
			Venue:       "Rooftop Garden",
			Description: "Food, friends and fireworks.",
			OwnerEmail:  "host@example.com",
		},
	}
}

const validCompletion = "Here is your invitation:\n\n```jsx\nfunction InviteComponent() {\n  const now = useNow(1000);\n  return <div className=\"p-4\">{now.toISOString()}</div>;\n}\n```\n\nEnjoy!"

func assertFallbackPage(t *testing.T, page *Page) {
	t.Helper()
	if page.Output.State != render.Fallback {
		t.Fatalf("Expected Fallback, got %s", page.Output.State)
	}
	for _, want := range []string{"Summer Party", "2026-07-04", "Rooftop Garden"} {
		if !bytes.Contains(page.HTML, []byte(want)) {
			t.Errorf("Fallback page missing %q", want)
		}
	}
	if bytes.Contains(page.HTML, []byte("<iframe")) {
		t.Error("Fallback page must not frame the artifact")
	}
}

func TestGenerate_FencedComponentRenders(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	inv, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !inv.Artifact.IsSafe || inv.Artifact.RejectionReason != nil {
		t.Fatalf("Expected a safe artifact, got %+v", inv.Artifact)
	}
	if strings.Contains(inv.Artifact.SanitizedCode, "```") || !strings.HasPrefix(inv.Artifact.SanitizedCode, "function InviteComponent()") {
		t.Errorf("Fences not stripped: %q", inv.Artifact.SanitizedCode)
	}
	if inv.Artifact.RawText != validCompletion {
		t.Error("Raw text should be kept for audit")
	}

	page, err := h.svc.Page(ctx, inv.ID, "/invite/"+inv.ID+"/frame")
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if page.Output.State != render.Rendered {
		t.Fatalf("Expected Rendered, got %s (%s)", page.Output.State, page.Output.Reason)
	}
	if !bytes.Contains(page.HTML, []byte(`sandbox="allow-scripts"`)) {
		t.Error("Host page should frame the artifact in a sandbox")
	}

	frame, err := h.svc.Frame(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if !bytes.Contains(frame.Frame, []byte("InviteComponent")) {
		t.Error("Frame document should carry the component")
	}

	if len(h.gen.prompts) != 1 || !strings.Contains(h.gen.prompts[0], "Summer Party") {
		t.Error("Prompt should describe the event")
	}
}

func TestGenerate_UnsafeArtifactFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"eval", "```jsx\nfunction InviteComponent() { return eval(userInput); }\n```", "eval"},
		{"too long", "```jsx\nfunction InviteComponent() { return null; }\n" + strings.Repeat("a", 60000) + "\n```", "exceeds length limit"},
		{"empty completion", "", "empty code"},
		{"prose only", "Sorry, I can't help with that.", "empty code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gen.text = tt.text
			ctx := context.Background()

			inv, err := h.svc.Generate(ctx, partyRequest(), "")
			if err != nil {
				t.Fatalf("An unsafe artifact is not an error, got %v", err)
			}
			if inv.Artifact.IsSafe || inv.Artifact.SanitizedCode != "" {
				t.Fatalf("Expected an unsafe artifact, got %+v", inv.Artifact)
			}
			if !strings.Contains(inv.Artifact.Reason(), tt.reason) {
				t.Errorf("Reason %q should mention %q", inv.Artifact.Reason(), tt.reason)
			}

			page, err := h.svc.Page(ctx, inv.ID, "/invite/"+inv.ID+"/frame")
			if err != nil {
				t.Fatalf("Page failed: %v", err)
			}
			assertFallbackPage(t, page)
		})
	}
}

func TestGenerate_ValidationRunsBeforeGeneration(t *testing.T) {
	h := newHarness(t)
	req := partyRequest()
	req.Event.Title = "  "
	req.Event.Venue = ""
	req.Event.OwnerEmail = "not-an-email"
	req.Images.Hero = "javascript:alert(1)"

	_, err := h.svc.Generate(context.Background(), req, "")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	for _, field := range []string{"eventTitle", "venue", "userEmail", "uploadedImages.hero"} {
		if _, ok := ve.Fields[field]; !ok {
			t.Errorf("Expected %s to be reported, got %v", field, ve.Fields)
		}
	}
	if h.gen.calls != 0 {
		t.Error("Generator must not be called for invalid input")
	}

	if _, err := h.svc.Generate(context.Background(), partyRequest(), "not-a-uuid"); !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError for a bad id, got %v", err)
	}
}

func TestGenerate_UpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("upstream 529: overloaded")

	_, err := h.svc.Generate(context.Background(), partyRequest(), "")
	var ue *UpstreamGenerationError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected UpstreamGenerationError, got %v", err)
	}
	if err.Error() != "generation failed" {
		t.Errorf("Upstream detail must not leak, got %q", err.Error())
	}

	var count int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM invites`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("Nothing should be stored after a failed generation, got %d rows", count)
	}
}

func TestGenerate_UsesReservedIDAndRecordsUsage(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	const id = "6f1c1c64-3c43-4c7e-9a55-0d4f2b6f9b1e"

	inv, err := h.svc.Generate(context.Background(), partyRequest(), id)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if inv.ID != id {
		t.Errorf("Expected id %s, got %s", id, inv.ID)
	}

	var tokensIn, tokensOut int
	if err := h.db.QueryRow(`SELECT tokens_in, tokens_out FROM generation_logs WHERE invite_id = ?`, id).Scan(&tokensIn, &tokensOut); err != nil {
		t.Fatalf("usage row: %v", err)
	}
	if tokensIn != 800 || tokensOut != 1200 {
		t.Errorf("Unexpected usage %d/%d", tokensIn, tokensOut)
	}

	if subjects := h.events.Subjects(); len(subjects) != 1 || subjects[0] != eventbus.SubjectGenerated {
		t.Errorf("Expected one generated event, got %v", subjects)
	}
}

func TestGenerate_RejectsIDOfExistingInvite(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	victim, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	calls := h.gen.calls

	takeover := partyRequest()
	takeover.Event.Title = "Hijacked"
	takeover.Event.OwnerEmail = "attacker@example.com"
	if _, err := h.svc.Generate(ctx, takeover, victim.ID); !errors.Is(err, ErrIDTaken) {
		t.Fatalf("Expected ErrIDTaken, got %v", err)
	}
	if h.gen.calls != calls {
		t.Error("A taken id should be rejected before generation")
	}

	got, err := h.svc.Get(ctx, victim.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OwnerEmail != "host@example.com" || got.Inputs.Event.Title != "Summer Party" {
		t.Errorf("Existing invite was modified: owner %q title %q", got.OwnerEmail, got.Inputs.Event.Title)
	}
	if err := h.svc.Delete(ctx, victim.ID, Actor{Email: "attacker@example.com"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Attacker should not be able to delete, got %v", err)
	}

	if err := h.svc.Delete(ctx, victim.ID, Actor{Email: "host@example.com"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := h.svc.Generate(ctx, takeover, victim.ID); !errors.Is(err, ErrIDTaken) {
		t.Errorf("Ids of deleted invites stay taken, got %v", err)
	}
}

func TestCheckUploadID(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	const fresh = "0b7c6d2e-8f1a-4c3b-9d5e-6a7b8c9d0e1f"
	if err := h.svc.CheckUploadID(ctx, fresh); err != nil {
		t.Fatalf("Unused id should be accepted, got %v", err)
	}

	var ve *ValidationError
	if err := h.svc.CheckUploadID(ctx, "not-a-uuid"); !errors.As(err, &ve) {
		t.Errorf("Expected a ValidationError, got %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if _, err := h.bucket.Store(ctx, png, "image/png", imagestore.InvitePrefix(fresh)+"hero/hero.png"); err != nil {
		t.Fatalf("store image: %v", err)
	}
	if err := h.svc.CheckUploadID(ctx, fresh); !errors.Is(err, ErrIDTaken) {
		t.Errorf("Id holding images should be taken, got %v", err)
	}

	inv, err := h.svc.Generate(ctx, partyRequest(), fresh)
	if err != nil {
		t.Fatalf("Reserved id should be usable for generation, got %v", err)
	}
	if err := h.svc.CheckUploadID(ctx, inv.ID); !errors.Is(err, ErrIDTaken) {
		t.Errorf("Id of an invite should be taken, got %v", err)
	}
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t)
	h.gen.text = "```jsx\nfunction InviteComponent() { return eval(x); }\n```"
	ctx := context.Background()

	first, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := h.svc.Get(ctx, first.ID); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	h.svc.Close()

	h.gen.text = validCompletion
	second, err := h.svc.Regenerate(ctx, first.ID)
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if second.ID != first.ID || !second.Artifact.IsSafe {
		t.Errorf("Expected a safe artifact for the same invite, got %+v", second)
	}
	if second.ViewCount != 1 {
		t.Errorf("Views should survive regeneration, got %d", second.ViewCount)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("Creation time should survive regeneration")
	}
	if h.gen.calls != 2 {
		t.Errorf("Expected two generation calls, got %d", h.gen.calls)
	}

	if _, err := h.svc.Regenerate(ctx, "6f1c1c64-3c43-4c7e-9a55-0d4f2b6f9b1e"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetCountsViews(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	inv, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.svc.Get(ctx, inv.ID); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if _, err := h.svc.Page(ctx, inv.ID, "/frame"); err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	h.svc.Close()

	a, err := h.svc.Analytics(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if a.ViewCount != 4 {
		t.Errorf("Expected 4 views, got %d", a.ViewCount)
	}
	if a.DaysSinceCreation != 0 || a.AverageViewsPerDay != 4 {
		t.Errorf("Unexpected analytics %+v", a)
	}

	if _, err := h.svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a malformed id, got %v", err)
	}
	if _, err := h.svc.Analytics(ctx, "6f1c1c64-3c43-4c7e-9a55-0d4f2b6f9b1e"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTamperedArtifactIsNotRendered(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	inv, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := h.db.Exec(`UPDATE invites SET sanitized_code = ? WHERE id = ?`,
		"function InviteComponent() { return null; } fetch('https://evil.example')", inv.ID); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	page, err := h.svc.Page(ctx, inv.ID, "/frame")
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if page.Output.Reason != render.ReasonSealBroken {
		t.Errorf("Expected seal failure, got %q", page.Output.Reason)
	}
	assertFallbackPage(t, page)
}

func TestListForOwner(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.svc.Generate(ctx, partyRequest(), ""); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	list, err := h.svc.ListForOwner(ctx, "HOST@example.com", 0)
	if err != nil {
		t.Fatalf("ListForOwner failed: %v", err)
	}
	if len(list) != 3 || list[0].Title != "Summer Party" {
		t.Errorf("Unexpected listing %+v", list)
	}

	var ve *ValidationError
	if _, err := h.svc.ListForOwner(ctx, "nope", 0); !errors.As(err, &ve) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	inv, err := h.svc.Generate(ctx, partyRequest(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if _, err := h.bucket.Store(ctx, png, "image/png", imagestore.InvitePrefix(inv.ID)+"hero/hero.png"); err != nil {
		t.Fatalf("store image: %v", err)
	}

	if err := h.svc.Delete(ctx, inv.ID, Actor{Email: "guest@example.com"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}
	if err := h.svc.Delete(ctx, inv.ID, Actor{Email: "Host@Example.com"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if h.bucket.Len() != 0 {
		t.Error("Images should be removed with the invite")
	}
	if _, err := h.svc.Get(ctx, inv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleted invite should not be served, got %v", err)
	}
	if err := h.svc.Delete(ctx, inv.ID, Actor{Admin: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second delete should report not found, got %v", err)
	}

	subjects := h.events.Subjects()
	if subjects[len(subjects)-1] != eventbus.SubjectDeleted {
		t.Errorf("Expected a deleted event last, got %v", subjects)
	}
}

func TestActorCanModify(t *testing.T) {
	owned := &models.Invite{OwnerEmail: "host@example.com"}
	anonymous := &models.Invite{}

	if !(Actor{Email: " HOST@example.com"}).CanModify(owned) {
		t.Error("Owner should modify their invite")
	}
	if (Actor{Email: "guest@example.com"}).CanModify(owned) {
		t.Error("Other users should not modify the invite")
	}
	if (Actor{Email: ""}).CanModify(anonymous) {
		t.Error("Invites without owner are admin-only")
	}
	if !(Actor{Admin: true}).CanModify(anonymous) {
		t.Error("Admins may modify any invite")
	}
}

func TestCleanup(t *testing.T) {
	h := newHarness(t)
	h.gen.text = validCompletion
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		inv, err := h.svc.Generate(ctx, partyRequest(), "")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		ids = append(ids, inv.ID)
	}

	report, err := h.svc.Cleanup(ctx, 30, time.Now().Add(10*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if report.Processed != 0 || report.Deleted != 0 {
		t.Errorf("Nothing is old enough yet, got %+v", report)
	}

	report, err = h.svc.Cleanup(ctx, 30, time.Now().Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if report.Processed != 3 || report.Deleted != 3 || len(report.Errors) != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	for _, id := range ids {
		if _, err := h.svc.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Invite %s should be expired, got %v", id, err)
		}
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	if got := Cutoff(now, 30); !got.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected cutoff %v", got)
	}
}
