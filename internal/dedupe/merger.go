package dedupe

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// statementText resolves the raw text for a normalized risk. The caller
// supplies it because NormalizedRisk only references its statement.
type statementText func(statementID string) string

// Merger clusters normalized risks into canonical entities. A single
// Merger instance owns the cluster partition for one run; concurrent
// calls serialize on the internal mutex (single-writer discipline).
type Merger struct {
	cfg  config.DedupeConfig
	text statementText

	mu sync.Mutex
}

// NewMerger creates a Merger. textOf must return the statement text for
// any risk passed to Merge.
func NewMerger(cfg config.DedupeConfig, textOf func(statementID string) string) *Merger {
	return &Merger{cfg: cfg, text: textOf}
}

// Merge clusters the given risks into canonical entities. Two risks
// merge iff their text similarity reaches the threshold AND they share
// at least one category assignment in either taxonomy; merging is
// transitive within the run. Processing order is fixed by the
// (timestamp, source type, statement id) tie-break key, so the partition
// is deterministic under input permutation and idempotent on re-runs.
func (m *Merger) Merge(risks []model.NormalizedRisk) []model.CanonicalRiskEntity {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]model.NormalizedRisk, len(risks))
	copy(ordered, risks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		if ordered[i].SourceType != ordered[j].SourceType {
			return ordered[i].SourceType < ordered[j].SourceType
		}
		return ordered[i].StatementID < ordered[j].StatementID
	})

	texts := make([]string, len(ordered))
	for i, r := range ordered {
		texts[i] = m.text(r.StatementID)
	}

	uf := newUnionFind(len(ordered))
	var nearMisses int

	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			sim := Similarity(texts[i], texts[j])
			if sim < m.cfg.SimilarityThreshold {
				continue
			}
			if !shareCategory(ordered[i], ordered[j]) {
				// Similar text but incompatible category sets: keep the
				// records separate and log the near-miss.
				nearMisses++
				zap.L().Warn("dedupe: near-miss not merged",
					zap.String("statement_a", ordered[i].StatementID),
					zap.String("statement_b", ordered[j].StatementID),
					zap.Float64("similarity", sim),
				)
				continue
			}
			uf.union(i, j)
		}
	}

	entities := m.buildEntities(ordered, texts, uf)

	zap.L().Info("dedupe: merged risks",
		zap.Int("risks", len(ordered)),
		zap.Int("entities", len(entities)),
		zap.Int("near_misses", nearMisses),
	)

	return entities
}

// shareCategory reports whether the two risks have at least one common
// (taxonomy, code) assignment. UNCLASSIFIED never counts as shared.
func shareCategory(a, b model.NormalizedRisk) bool {
	for _, aa := range a.Assignments {
		if aa.Code == model.CodeUnclassified {
			continue
		}
		if b.HasCategory(aa.Key()) {
			return true
		}
	}
	return false
}

func (m *Merger) buildEntities(ordered []model.NormalizedRisk, texts []string, uf *unionFind) []model.CanonicalRiskEntity {
	groups := make(map[int][]int)
	for i := range ordered {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	now := time.Now().UTC()
	entities := make([]model.CanonicalRiskEntity, 0, len(roots))
	for _, root := range roots {
		members := groups[root]

		e := model.CanonicalRiskEntity{
			ClusterID: uuid.New().String(),
			// The earliest member under the tie-break key represents the
			// cluster; members are already in that order.
			Representative: texts[members[0]],
			SourceCounts:   make(map[model.SourceType]int),
			CreatedAt:      now,
		}

		seenAssignment := make(map[model.CategoryKey]bool)
		seenModelType := make(map[string]bool)
		for _, idx := range members {
			r := ordered[idx]
			e.MemberIDs = append(e.MemberIDs, r.ID)
			e.SourceCounts[r.SourceType]++
			if r.ModelType != "" && !seenModelType[r.ModelType] {
				seenModelType[r.ModelType] = true
				e.ModelTypes = append(e.ModelTypes, r.ModelType)
			}
			for _, a := range r.Assignments {
				if a.Code == model.CodeUnclassified {
					continue
				}
				if seenAssignment[a.Key()] {
					continue
				}
				seenAssignment[a.Key()] = true
				e.Assignments = append(e.Assignments, a)
			}
		}

		sort.Slice(e.Assignments, func(i, j int) bool {
			if e.Assignments[i].TaxonomyID != e.Assignments[j].TaxonomyID {
				return e.Assignments[i].TaxonomyID < e.Assignments[j].TaxonomyID
			}
			return e.Assignments[i].Code < e.Assignments[j].Code
		})

		entities = append(entities, e)
	}

	return entities
}
