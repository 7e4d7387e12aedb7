// Package invite runs the generation pipeline and serves stored invites.
package invite

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/economics"
	"github.com/Gresham24/invite-ai/internal/eventbus"
	"github.com/Gresham24/invite-ai/internal/extract"
	"github.com/Gresham24/invite-ai/internal/generation"
	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/metrics"
	"github.com/Gresham24/invite-ai/internal/models"
	"github.com/Gresham24/invite-ai/internal/prompt"
	"github.com/Gresham24/invite-ai/internal/render"
	"github.com/Gresham24/invite-ai/internal/sanitize"
	"github.com/Gresham24/invite-ai/internal/store"
	"github.com/Gresham24/invite-ai/internal/verification"
)

var tracer = otel.Tracer("invite-ai/invite")

// DefaultViewTimeout bounds the background view-count update.
const DefaultViewTimeout = 5 * time.Second

// Deps are the collaborators of the service. Events and Uploader are optional.
type Deps struct {
	Store     store.Store
	Generator generation.Client
	Filter    *sanitize.Filter
	Sealer    *verification.SealService
	Renderer  *render.Renderer
	Usage     *economics.Service
	Uploader  *imagestore.Uploader
	Events    eventbus.Publisher
	Logger    *zap.Logger

	MaxOutputTokens int
	ViewTimeout     time.Duration
}

// Service owns the invite lifecycle
type Service struct {
	store     store.Store
	generator generation.Client
	filter    *sanitize.Filter
	sealer    *verification.SealService
	renderer  *render.Renderer
	usage     *economics.Service
	uploader  *imagestore.Uploader
	events    eventbus.Publisher
	logger    *zap.Logger

	maxTokens   int
	viewTimeout time.Duration
	newID       func() string

	background sync.WaitGroup
}

// NewService wires the pipeline.
func NewService(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		generator:   d.Generator,
		filter:      d.Filter,
		sealer:      d.Sealer,
		renderer:    d.Renderer,
		usage:       d.Usage,
		uploader:    d.Uploader,
		events:      d.Events,
		logger:      d.Logger,
		maxTokens:   d.MaxOutputTokens,
		viewTimeout: d.ViewTimeout,
		newID:       uuid.NewString,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.filter == nil {
		s.filter = sanitize.New()
	}
	if s.renderer == nil {
		s.renderer = render.New(render.WithFilter(s.filter), render.WithLogger(s.logger))
	}
	if s.events == nil {
		s.events = eventbus.Nop{}
	}
	if s.viewTimeout <= 0 {
		s.viewTimeout = DefaultViewTimeout
	}
	return s
}

// Close waits for background work such as view-count updates.
func (s *Service) Close() {
	s.background.Wait()
}

// Generate runs one generation cycle for req and stores the result. inviteID
// may be empty, in which case a new id is assigned; uploads reserve the id
// ahead of generation so their image URLs and the invite share it.
//
// A rejected artifact is not an error: the invite is stored with
// IsSafe=false and renders through the fallback.
func (s *Service) Generate(ctx context.Context, req models.GenerationRequest, inviteID string) (*models.Invite, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if inviteID == "" {
		inviteID = s.newID()
	} else if err := s.checkUnused(ctx, inviteID); err != nil {
		return nil, err
	}

	inv := &models.Invite{
		ID:         inviteID,
		Inputs:     req,
		OwnerEmail: req.Event.OwnerEmail,
	}
	saved, err := s.run(ctx, inv, true)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.SubjectGenerated, saved)
	return saved, nil
}

// Regenerate runs a fresh generation cycle for the stored inputs of an invite.
// Views and the creation time are kept.
func (s *Service) Regenerate(ctx context.Context, id string) (*models.Invite, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	inv := &models.Invite{
		ID:         existing.ID,
		Inputs:     existing.Inputs,
		OwnerEmail: existing.OwnerEmail,
		CreatedAt:  existing.CreatedAt,
	}
	saved, err := s.run(ctx, inv, false)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.SubjectRegenerated, saved)
	return saved, nil
}

// CheckUploadID accepts a caller-supplied id for an image upload only while
// it is unused: no invite record holds it and no images are stored under it.
func (s *Service) CheckUploadID(ctx context.Context, id string) error {
	if err := s.checkUnused(ctx, id); err != nil {
		return err
	}
	if s.uploader == nil {
		return nil
	}
	has, err := s.uploader.HasImages(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return ErrIDTaken
	}
	return nil
}

// checkUnused rejects ids that already have an invite record, including
// soft-deleted ones.
func (s *Service) checkUnused(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return persistenceError("check", err)
	}
	if exists {
		return ErrIDTaken
	}
	return nil
}

// run is the pipeline: prompt, generate, extract, sanitize, seal, store. A
// new invite is inserted and never replaces an existing record; regeneration
// upserts.
func (s *Service) run(ctx context.Context, inv *models.Invite, create bool) (*models.Invite, error) {
	ctx, span := tracer.Start(ctx, "invite.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("invite.id", inv.ID))

	start := time.Now()
	resp, err := s.generator.Generate(ctx, generation.Request{
		Prompt:          prompt.Build(inv.Inputs),
		MaxOutputTokens: s.maxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		metrics.GenerationTotal.WithLabelValues("unknown", "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		s.logger.Error("Generation failed",
			zap.String("invite_id", inv.ID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, &UpstreamGenerationError{Err: err}
	}
	metrics.GenerationDuration.WithLabelValues(resp.Model).Observe(latency.Seconds())

	inv.Artifact = s.artifact(resp)
	s.sealer.Seal(inv.ID, &inv.Artifact)

	status := "safe"
	if !inv.Artifact.IsSafe {
		status = "unsafe"
	}
	metrics.GenerationTotal.WithLabelValues(resp.Model, status).Inc()
	metrics.SanitizeVerdicts.WithLabelValues(strconv.FormatBool(inv.Artifact.IsSafe), inv.Artifact.Reason()).Inc()
	span.SetAttributes(
		attribute.Bool("artifact.safe", inv.Artifact.IsSafe),
		attribute.String("artifact.reason", inv.Artifact.Reason()),
	)

	var saved *models.Invite
	if create {
		saved, err = s.store.Create(ctx, inv)
	} else {
		saved, err = s.store.Save(ctx, inv)
	}
	if errors.Is(err, store.ErrConflict) {
		s.logger.Warn("Invite id already in use", zap.String("invite_id", inv.ID))
		return nil, ErrIDTaken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.logger.Error("Failed to save invite", zap.String("invite_id", inv.ID), zap.Error(err))
		return nil, persistenceError("save", err)
	}

	if s.usage != nil {
		if _, err := s.usage.RecordUsage(ctx, saved.ID, resp.Model, resp.Usage, latency, saved.Artifact.IsSafe); err != nil {
			s.logger.Warn("Failed to record generation usage", zap.String("invite_id", saved.ID), zap.Error(err))
		}
	}

	s.logger.Info("Invite generated",
		zap.String("invite_id", saved.ID),
		zap.String("model", resp.Model),
		zap.Bool("safe", saved.Artifact.IsSafe),
		zap.String("reason", saved.Artifact.Reason()),
		zap.Int("tokens_in", resp.Usage.InputTokens),
		zap.Int("tokens_out", resp.Usage.OutputTokens),
		zap.Duration("latency", latency),
	)
	return saved, nil
}

// artifact extracts and checks the completion. The raw text is kept for audit
// whatever the verdict.
func (s *Service) artifact(resp *generation.Response) models.GeneratedArtifact {
	a := models.GeneratedArtifact{
		RawText: resp.Text,
		Model:   resp.Model,
	}
	verdict := s.filter.Check(extract.Code(resp.Text))
	if verdict.Safe {
		a.IsSafe = true
		a.SanitizedCode = verdict.Code
		return a
	}
	reason := verdict.Reason
	a.RejectionReason = &reason
	return a
}

// Get returns a stored invite and counts a view.
func (s *Service) Get(ctx context.Context, id string) (*models.Invite, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.countView(inv.ID)
	return inv, nil
}

// Page is a rendered invite ready to be served
type Page struct {
	Invite *models.Invite
	Output *render.Output
	HTML   []byte
}

// Page renders the host document for an invite and counts a view. frameURL
// is where the browser loads the sandboxed frame from.
func (s *Service) Page(ctx context.Context, id, frameURL string) (*Page, error) {
	inv, out, err := s.render(ctx, id)
	if err != nil {
		return nil, err
	}
	s.countView(inv.ID)
	return &Page{Invite: inv, Output: out, HTML: s.renderer.Host(out, frameURL)}, nil
}

// Frame renders the sandboxed document of an invite. The output is in the
// Fallback state when there is nothing safe to run.
func (s *Service) Frame(ctx context.Context, id string) (*render.Output, error) {
	_, out, err := s.render(ctx, id)
	return out, err
}

func (s *Service) render(ctx context.Context, id string) (*models.Invite, *render.Output, error) {
	ctx, span := tracer.Start(ctx, "invite.Render")
	defer span.End()
	span.SetAttributes(attribute.String("invite.id", id))

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	fields := render.FieldsFrom(inv.Inputs)
	if !s.sealer.Verify(inv.ID, inv.Artifact) {
		s.logger.Warn("Stored artifact failed seal verification", zap.String("invite_id", inv.ID))
		out := s.renderer.Unverified(fields)
		span.SetAttributes(attribute.String("render.state", out.State.String()))
		return inv, out, nil
	}

	out := s.renderer.RenderArtifact(inv.Artifact, fields)
	span.SetAttributes(attribute.String("render.state", out.State.String()))
	return inv, out, nil
}

// Analytics reports view figures for an invite.
func (s *Service) Analytics(ctx context.Context, id string) (*models.Analytics, error) {
	if err := ValidateID(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := s.store.Analytics(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("analytics", err)
	}
	return a, nil
}

// ListForOwner lists an owner's newest active invites.
func (s *Service) ListForOwner(ctx context.Context, email string, limit int) ([]models.InviteSummary, error) {
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"email": "is not a valid email address"}}
	}
	list, err := s.store.ListByOwner(ctx, email, limit)
	if err != nil {
		return nil, persistenceError("list", err)
	}
	return list, nil
}

// Actor is the authenticated caller of a mutating operation
type Actor struct {
	Email string
	Admin bool
}

// CanModify reports whether the actor owns the invite or is an admin.
func (a Actor) CanModify(inv *models.Invite) bool {
	if a.Admin {
		return true
	}
	return inv.OwnerEmail != "" && strings.EqualFold(strings.TrimSpace(a.Email), inv.OwnerEmail)
}

// Delete soft-deletes an invite on behalf of actor and removes its images.
func (s *Service) Delete(ctx context.Context, id string, actor Actor) error {
	inv, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(inv) {
		return ErrForbidden
	}
	if err := s.expire(ctx, inv.ID); err != nil {
		return err
	}
	s.publish(ctx, eventbus.SubjectDeleted, inv)
	return nil
}

// expire soft-deletes one invite and removes its images. Image removal
// failures are logged; the invite stays deleted.
func (s *Service) expire(ctx context.Context, id string) error {
	err := s.store.SoftDelete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return persistenceError("delete", err)
	}
	if s.uploader != nil {
		n, err := s.uploader.DeleteInvite(ctx, id)
		if err != nil {
			s.logger.Warn("Failed to remove invite images", zap.String("invite_id", id), zap.Error(err))
		} else if n > 0 {
			s.logger.Info("Removed invite images", zap.String("invite_id", id), zap.Int("objects", n))
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Invite, error) {
	if ValidateID(id) != nil {
		return nil, ErrNotFound
	}
	inv, err := s.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("load", err)
	}
	return inv, nil
}

// countView increments the view counter without holding up the response.
func (s *Service) countView(id string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.viewTimeout)
		defer cancel()

		if err := s.store.IncrementViews(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to count view", zap.String("invite_id", id), zap.Error(err))
			return
		}
		s.publishEvent(ctx, eventbus.NewEvent(eventbus.SubjectViewed, id, nil))
	}()
}

func (s *Service) publish(ctx context.Context, subject string, inv *models.Invite) {
	s.publishEvent(ctx, eventbus.NewEvent(subject, inv.ID, map[string]any{
		"safe":   inv.Artifact.IsSafe,
		"reason": inv.Artifact.Reason(),
		"model":  inv.Artifact.Model,
	}))
}

func (s *Service) publishEvent(ctx context.Context, ev eventbus.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("subject", ev.Subject),
			zap.String("invite_id", ev.InviteID),
			zap.Error(err),
		)
	}
}
