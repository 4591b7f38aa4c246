package resolver

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/catalog"
	"github.com/concept-agent/backend/internal/embed"
	"github.com/concept-agent/backend/internal/extraction"
	"github.com/concept-agent/backend/internal/vector/milvus"
	"github.com/concept-agent/backend/pkg/config"
	"github.com/concept-agent/backend/pkg/logger"
)

// Searcher is the slice of the vector store the resolver needs. The milvus
// client satisfies it; tests substitute a fake.
type Searcher interface {
	SearchProfileAttributes(ctx context.Context, queryEmbedding []float32, limit int) ([]milvus.SearchResult, error)
	SearchEvents(ctx context.Context, queryEmbedding []float32, limit int) ([]milvus.SearchResult, error)
	SearchEventAttributes(ctx context.Context, queryEmbedding []float32, parentEventID string, limit int) ([]milvus.SearchResult, error)
}

// Candidate is one scored catalog field considered for a query fragment,
// kept so downstream consumers can inspect the runners-up.
type Candidate struct {
	ConceptID  string  `json:"concept_id"`
	FieldName  string  `json:"field_name"`
	SourceName string  `json:"source_name"`
	Score      float64 `json:"score"`
}

// Match is a resolved catalog field for one query fragment.
type Match struct {
	ConceptID   string           `json:"concept_id"`
	Category    catalog.Category `json:"category"`
	FieldName   string           `json:"field_name"`
	SourceName  string           `json:"source_name"`
	Score       float64          `json:"score"`
	SourceQuery string           `json:"source_query"`

	// AttributeName is set for profile matches that came from a named
	// "attribute: value" fragment.
	AttributeName string `json:"attribute_name,omitempty"`

	// Parent linkage for event-scoped attributes.
	ParentEventID   string `json:"parent_event_id,omitempty"`
	ParentEventName string `json:"parent_event_name,omitempty"`

	// Ambiguous marks a near-tie between the top two candidates.
	Ambiguous  bool        `json:"ambiguous,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`

	// attributeQueries rides along on event matches so the event-attribute
	// stage knows what to look for inside each resolved event.
	attributeQueries []string
}

// AttributeQueries returns the attribute fragments carried by an event match.
func (m *Match) AttributeQueries() []string {
	return m.attributeQueries
}

type Resolver struct {
	embedder embed.Provider
	searcher Searcher
	cfg      config.SearchConfig
}

func NewResolver(embedder embed.Provider, searcher Searcher, cfg config.SearchConfig) *Resolver {
	return &Resolver{
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg,
	}
}

// ResolveProfileAttributes matches each profile query fragment against the
// profile attribute catalog.
func (r *Resolver) ResolveProfileAttributes(ctx context.Context, queries []extraction.ProfileQuery) []Match {
	if len(queries) == 0 {
		return nil
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.QueryText
	}

	embeddings, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Error("Profile attribute embedding failed, stage degraded",
			zap.Error(err),
			zap.Int("queries", len(queries)),
		)
		return nil
	}

	matches := make([]Match, 0, len(queries))
	for i, q := range queries {
		results, err := r.searcher.SearchProfileAttributes(ctx, embeddings[i], r.cfg.TopK)
		if err != nil {
			logger.Error("Profile attribute search failed",
				zap.Error(err),
				zap.String("query", q.QueryText),
			)
			continue
		}

		m, ok := r.pickBest(results, q.QueryText)
		if !ok {
			logger.Debug("No profile attribute above threshold",
				zap.String("query", q.QueryText),
			)
			continue
		}
		m.Category = catalog.CategoryProfileAttribute
		m.AttributeName = q.AttributeName
		matches = append(matches, m)
	}

	return matches
}

// ResolveEvents matches each event description against the event catalog and
// carries the event's attribute fragments forward for the next stage.
func (r *Resolver) ResolveEvents(ctx context.Context, queries []extraction.EventQuery) []Match {
	if len(queries) == 0 {
		return nil
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Description
	}

	embeddings, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Error("Event embedding failed, stage degraded",
			zap.Error(err),
			zap.Int("queries", len(queries)),
		)
		return nil
	}

	matches := make([]Match, 0, len(queries))
	for i, q := range queries {
		results, err := r.searcher.SearchEvents(ctx, embeddings[i], r.cfg.TopK)
		if err != nil {
			logger.Error("Event search failed",
				zap.Error(err),
				zap.String("query", q.Description),
			)
			continue
		}

		m, ok := r.pickBest(results, q.Description)
		if !ok {
			logger.Debug("No event above threshold", zap.String("query", q.Description))
			continue
		}
		m.Category = catalog.CategoryEvent
		m.attributeQueries = q.AttributeQueries
		matches = append(matches, m)
	}

	return matches
}

// ResolveEventAttributes matches the attribute fragments carried by each
// resolved event against that event's own attributes only.
func (r *Resolver) ResolveEventAttributes(ctx context.Context, events []Match) []Match {
	texts := make([]string, 0)
	owners := make([]int, 0)
	for i, ev := range events {
		for _, attr := range ev.attributeQueries {
			texts = append(texts, attr)
			owners = append(owners, i)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	embeddings, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Error("Event attribute embedding failed, stage degraded",
			zap.Error(err),
			zap.Int("queries", len(texts)),
		)
		return nil
	}

	matches := make([]Match, 0, len(texts))
	for i, text := range texts {
		parent := events[owners[i]]
		results, err := r.searcher.SearchEventAttributes(ctx, embeddings[i], parent.ConceptID, r.cfg.TopK)
		if err != nil {
			logger.Error("Event attribute search failed",
				zap.Error(err),
				zap.String("query", text),
				zap.String("parent_event", parent.ConceptID),
			)
			continue
		}

		m, ok := r.pickBest(results, text)
		if !ok {
			logger.Debug("No event attribute above threshold",
				zap.String("query", text),
				zap.String("parent_event", parent.ConceptID),
			)
			continue
		}
		m.Category = catalog.CategoryEventAttribute
		m.ParentEventID = parent.ConceptID
		m.ParentEventName = parent.FieldName
		matches = append(matches, m)
	}

	return matches
}

// pickBest takes the highest-scoring hit above the similarity threshold and
// flags a near-tie with the runner-up as ambiguous. The store's result
// ordering is not trusted; candidates are re-sorted before selection.
func (r *Resolver) pickBest(results []milvus.SearchResult, sourceQuery string) (Match, bool) {
	if len(results) == 0 {
		return Match{}, false
	}

	sorted := make([]milvus.SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	best := sorted[0]
	if float64(best.Score) < r.cfg.SimilarityThreshold {
		return Match{}, false
	}

	m := Match{
		ConceptID:   best.ConceptID,
		FieldName:   best.FieldName,
		SourceName:  best.SourceName,
		Score:       float64(best.Score),
		SourceQuery: sourceQuery,
	}

	candidates := make([]Candidate, 0, len(sorted))
	for _, res := range sorted {
		if float64(res.Score) < r.cfg.SimilarityThreshold {
			break
		}
		candidates = append(candidates, Candidate{
			ConceptID:  res.ConceptID,
			FieldName:  res.FieldName,
			SourceName: res.SourceName,
			Score:      float64(res.Score),
		})
	}
	m.Candidates = candidates

	if len(candidates) >= 2 {
		gap := candidates[0].Score - candidates[1].Score
		if gap < r.cfg.AmbiguityMargin {
			m.Ambiguous = true
			logger.Debug("Ambiguous match",
				zap.String("query", sourceQuery),
				zap.String("top", candidates[0].FieldName),
				zap.String("runner_up", candidates[1].FieldName),
				zap.Float64("gap", gap),
			)
		}
	}

	return m, true
}
