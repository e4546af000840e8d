package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
	"github.com/risk-sentinel/sentinel-cli/pkg/anthropic"
)

const claudeSystemPrompt = `You classify AI risk statements into two independent taxonomies.
Taxonomy "mit" categories: %s.
Taxonomy "air" categories: %s.
A statement may belong to several categories in each taxonomy, or to none.
Respond with a valid JSON object:
{"assignments": [{"taxonomy_id": "<mit|air>", "code": "<category>", "confidence": <0.0-1.0>}]}`

const claudeUserPrompt = `Risk statement:
%s`

// ClaudeStrategy is the learned classification strategy backed by the
// Anthropic API.
type ClaudeStrategy struct {
	client   anthropic.Client
	taxonomy *registry.Taxonomy
	cfg      config.AnthropicConfig
	system   string
}

// NewClaudeStrategy creates the learned strategy. The category lists in
// the system prompt come from the registry so prompt and validation can
// never drift apart.
func NewClaudeStrategy(client anthropic.Client, tax *registry.Taxonomy, cfg config.AnthropicConfig) *ClaudeStrategy {
	system := fmt.Sprintf(claudeSystemPrompt,
		strings.Join(tax.Codes(model.TaxonomyMIT), ", "),
		strings.Join(tax.Codes(model.TaxonomyAIR), ", "),
	)
	return &ClaudeStrategy{client: client, taxonomy: tax, cfg: cfg, system: system}
}

// Name returns the classification method this strategy records.
func (s *ClaudeStrategy) Name() model.ClassificationMethod {
	return model.MethodLearned
}

// Classify sends the statement text to the model and parses the JSON
// assignment list. Codes not present in the registry are discarded.
func (s *ClaudeStrategy) Classify(ctx context.Context, text string) ([]model.CategoryAssignment, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    s.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(claudeUserPrompt, text)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "normalize: claude classify")
	}

	return s.parse(resp.Text()), nil
}

func (s *ClaudeStrategy) parse(text string) []model.CategoryAssignment {
	var result struct {
		Assignments []model.CategoryAssignment `json:"assignments"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		zap.L().Warn("normalize: unparseable claude response",
			zap.String("response", text),
			zap.Error(err),
		)
		return nil
	}

	out := result.Assignments[:0]
	for _, a := range result.Assignments {
		if a.Code == model.CodeUnclassified {
			continue
		}
		if !s.taxonomy.Has(a.TaxonomyID, a.Code) {
			zap.L().Debug("normalize: discarding unknown category from claude",
				zap.String("taxonomy", string(a.TaxonomyID)),
				zap.String("code", a.Code),
			)
			continue
		}
		if a.Confidence < 0 {
			a.Confidence = 0
		}
		if a.Confidence > 1 {
			a.Confidence = 1
		}
		out = append(out, a)
	}
	return out
}

// cleanJSON strips markdown code fences so fenced responses still parse.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
