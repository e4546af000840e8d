package normalize

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// Normalizer applies a classification strategy to raw statements with
// the fallback contract: malformed or unclassifiable input yields a
// single UNCLASSIFIED assignment flagged for manual review, never an
// error and never a dropped statement.
type Normalizer struct {
	strategy Strategy
	cfg      config.NormalizeConfig
}

// New creates a Normalizer over the given strategy.
func New(strategy Strategy, cfg config.NormalizeConfig) *Normalizer {
	return &Normalizer{strategy: strategy, cfg: cfg}
}

// Classify normalizes one statement. It never returns an error.
func (n *Normalizer) Classify(ctx context.Context, stm model.RawRiskStatement) model.NormalizedRisk {
	risk := model.NormalizedRisk{
		ID:          uuid.New().String(),
		StatementID: stm.ID,
		SourceType:  stm.SourceType,
		ModelType:   stm.ModelType,
		Timestamp:   stm.Timestamp,
		Method:      n.strategy.Name(),
		CreatedAt:   time.Now().UTC(),
	}

	text := strings.TrimSpace(stm.Text)
	if len(text) < n.cfg.MinLength {
		zap.L().Debug("normalize: statement below minimum length",
			zap.String("statement_id", stm.ID),
			zap.Int("length", len(text)),
		)
		return n.unclassified(risk)
	}

	assignments, err := n.classifyBounded(ctx, text)
	if err != nil {
		// Strategy failure routes to the review queue, it is never fatal.
		zap.L().Warn("normalize: strategy failed, falling back to unclassified",
			zap.String("statement_id", stm.ID),
			zap.Error(err),
		)
		return n.unclassified(risk)
	}

	kept := assignments[:0]
	for _, a := range assignments {
		if a.Confidence >= n.cfg.ConfidenceThreshold {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return n.unclassified(risk)
	}

	risk.Assignments = kept
	return risk
}

// classifyBounded runs the strategy under the configured timeout so a
// stalled plug-in cannot block the pipeline.
func (n *Normalizer) classifyBounded(ctx context.Context, text string) ([]model.CategoryAssignment, error) {
	if n.cfg.StrategyTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.StrategyTimeout())
		defer cancel()
	}

	type result struct {
		assignments []model.CategoryAssignment
		err         error
	}
	done := make(chan result, 1)
	go func() {
		assignments, err := n.strategy.Classify(ctx, text)
		done <- result{assignments, err}
	}()

	select {
	case r := <-done:
		return r.assignments, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *Normalizer) unclassified(risk model.NormalizedRisk) model.NormalizedRisk {
	risk.Assignments = []model.CategoryAssignment{{
		TaxonomyID: model.TaxonomyMIT,
		Code:       model.CodeUnclassified,
		Confidence: 0,
	}}
	risk.NeedsReview = true
	return risk
}

// ClassifyAll normalizes statements in parallel. Statements are
// independent during classification, so there is no shared mutable
// state; output order matches input order.
func (n *Normalizer) ClassifyAll(ctx context.Context, stms []model.RawRiskStatement) []model.NormalizedRisk {
	risks := make([]model.NormalizedRisk, len(stms))

	g, gCtx := errgroup.WithContext(ctx)
	limit := n.cfg.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, stm := range stms {
		g.Go(func() error {
			risks[i] = n.Classify(gCtx, stm)
			return nil
		})
	}
	_ = g.Wait()

	var review int
	for _, r := range risks {
		if r.NeedsReview {
			review++
		}
	}
	zap.L().Info("normalize: classified statements",
		zap.Int("statements", len(stms)),
		zap.Int("needs_review", review),
	)

	return risks
}

// Override builds a human-override record that supersedes an existing
// normalized risk. The original record is retained for audit; the
// override carries the full replacement assignment set.
func Override(original model.NormalizedRisk, assignments []model.CategoryAssignment) model.NormalizedRisk {
	return model.NormalizedRisk{
		ID:           uuid.New().String(),
		StatementID:  original.StatementID,
		SourceType:   original.SourceType,
		ModelType:    original.ModelType,
		Timestamp:    original.Timestamp,
		Assignments:  assignments,
		Method:       model.MethodHumanOverride,
		SupersedesID: original.ID,
		CreatedAt:    time.Now().UTC(),
	}
}
