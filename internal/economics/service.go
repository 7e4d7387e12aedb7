package economics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/metrics"
	"github.com/Gresham24/invite-ai/internal/models"
)

// Pricing is the USD price per million tokens of a model
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing covers the models the generation client ships with.
var DefaultPricing = map[string]Pricing{
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.8, OutputPerMTok: 4},
	"gpt-4o":                     {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4o-mini":                {InputPerMTok: 0.15, OutputPerMTok: 0.6},
}

// UsageStore persists generation log entries
type UsageStore interface {
	RecordUsage(ctx context.Context, log *models.GenerationLog) error
}

// Service handles usage tracking and cost estimation for generations
type Service struct {
	store   UsageStore
	pricing map[string]Pricing
	logger  *zap.Logger
}

func NewService(store UsageStore, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		pricing: DefaultPricing,
		logger:  logger,
	}
}

// WithPricing replaces the price table.
func (s *Service) WithPricing(p map[string]Pricing) *Service {
	s.pricing = p
	return s
}

// EstimateCost prices token usage. Unknown models cost nothing.
func (s *Service) EstimateCost(model string, usage models.Usage) float64 {
	p, ok := s.pricing[model]
	if !ok {
		return 0
	}
	cost := float64(usage.InputTokens)*p.InputPerMTok/1e6 + float64(usage.OutputTokens)*p.OutputPerMTok/1e6
	// Round to a millionth of a dollar
	return math.Round(cost*1e6) / 1e6
}

// RecordUsage logs the usage of one generation against its invite. The invite
// must already be stored.
func (s *Service) RecordUsage(ctx context.Context, inviteID, model string, usage models.Usage, latency time.Duration, safe bool) (*models.GenerationLog, error) {
	entry := &models.GenerationLog{
		InviteID:  inviteID,
		ModelID:   model,
		TokensIn:  usage.InputTokens,
		TokensOut: usage.OutputTokens,
		LatencyMs: latency.Milliseconds(),
		Cost:      s.EstimateCost(model, usage),
		Safe:      safe,
	}

	metrics.TokensUsed.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	metrics.TokensUsed.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))

	if err := s.store.RecordUsage(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	s.logger.Info("Generation usage recorded",
		zap.String("invite_id", inviteID),
		zap.String("model", model),
		zap.Int("tokens_in", usage.InputTokens),
		zap.Int("tokens_out", usage.OutputTokens),
		zap.Float64("cost", entry.Cost),
	)
	return entry, nil
}
