package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/metrics"
	"github.com/concept-agent/backend/internal/resolver"
	"github.com/concept-agent/backend/pkg/config"
	"github.com/concept-agent/backend/pkg/logger"
)

const (
	confidenceHigh   = 0.85
	confidenceMedium = 0.70

	bandHigh   = "high"
	bandMedium = "medium"
	bandLow    = "low"
)

// FieldMatch is one resolved catalog field in the final result.
type FieldMatch struct {
	ConceptID       string  `json:"concept_id"`
	FieldName       string  `json:"field_name"`
	SourceName      string  `json:"source_name"`
	Score           float64 `json:"score"`
	Confidence      string  `json:"confidence"`
	SourceQuery     string  `json:"source_query"`
	AttributeName   string  `json:"attribute_name,omitempty"`
	ParentEventID   string  `json:"parent_event_id,omitempty"`
	ParentEventName string  `json:"parent_event_name,omitempty"`
}

// AmbiguousOption is a group of closely scored candidates for one query
// fragment that a caller should disambiguate.
type AmbiguousOption struct {
	SourceQuery string               `json:"source_query"`
	Category    string               `json:"category"`
	Candidates  []resolver.Candidate `json:"candidates"`
}

// Result is the final resolution payload returned to callers.
type Result struct {
	Query             string            `json:"query"`
	ProfileAttributes []FieldMatch      `json:"profile_attributes"`
	Events            []FieldMatch      `json:"events"`
	EventAttributes   []FieldMatch      `json:"event_attributes"`
	HasAmbiguity      bool              `json:"has_ambiguity"`
	AmbiguousOptions  []AmbiguousOption `json:"ambiguous_options"`
	TotalResults      int               `json:"total_results"`
	ConfidenceScore   float64           `json:"confidence_score"`
	Summary           string            `json:"summary"`
	ExecutionTime     float64           `json:"execution_time"`
	Error             string            `json:"error,omitempty"`
}

// Analyzer turns raw stage matches into the final deduplicated, scored,
// ambiguity-annotated result.
type Analyzer struct {
	cfg config.SearchConfig
}

func NewAnalyzer(cfg config.SearchConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze normalizes each category independently, then computes the overall
// confidence and ambiguity view across all three.
func (a *Analyzer) Analyze(query string, res resolver.Resolution) Result {
	out := Result{
		Query:             query,
		ProfileAttributes: []FieldMatch{},
		Events:            []FieldMatch{},
		EventAttributes:   []FieldMatch{},
		AmbiguousOptions:  []AmbiguousOption{},
	}

	out.ProfileAttributes = a.normalize(res.ProfileMatches)
	out.Events = a.normalize(res.EventMatches)
	out.EventAttributes = a.normalize(res.EventAttrMatches)

	out.AmbiguousOptions = a.collectAmbiguity(res)
	out.HasAmbiguity = len(out.AmbiguousOptions) > 0
	if out.HasAmbiguity {
		metrics.AmbiguityDetected.Inc()
	}

	out.TotalResults = len(out.ProfileAttributes) + len(out.Events) + len(out.EventAttributes)
	out.ConfidenceScore = a.overallConfidence(out)
	out.Summary = a.summarize(out)

	metrics.ConfidenceScore.Observe(out.ConfidenceScore)
	metrics.MatchCount.WithLabelValues("profile_attribute").Observe(float64(len(out.ProfileAttributes)))
	metrics.MatchCount.WithLabelValues("event").Observe(float64(len(out.Events)))
	metrics.MatchCount.WithLabelValues("event_attribute").Observe(float64(len(out.EventAttributes)))

	logger.Debug("Aggregation completed",
		zap.Int("total_results", out.TotalResults),
		zap.Float64("confidence", out.ConfidenceScore),
		zap.Bool("has_ambiguity", out.HasAmbiguity),
	)

	return out
}

// normalize sorts score-descending, drops sub-threshold matches, and keeps
// only the highest-scoring occurrence of each concept.
func (a *Analyzer) normalize(matches []resolver.Match) []FieldMatch {
	sorted := make([]resolver.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	seen := make(map[string]bool)
	out := make([]FieldMatch, 0, len(sorted))
	for _, m := range sorted {
		if m.Score < a.cfg.SimilarityThreshold {
			continue
		}
		if seen[m.ConceptID] {
			continue
		}
		seen[m.ConceptID] = true

		out = append(out, FieldMatch{
			ConceptID:       m.ConceptID,
			FieldName:       m.FieldName,
			SourceName:      m.SourceName,
			Score:           m.Score,
			Confidence:      confidenceBand(m.Score),
			SourceQuery:     m.SourceQuery,
			AttributeName:   m.AttributeName,
			ParentEventID:   m.ParentEventID,
			ParentEventName: m.ParentEventName,
		})
	}
	return out
}

// collectAmbiguity walks the pre-dedup candidate trails and groups, per
// query fragment, every candidate scoring at or above the ambiguity score
// threshold. Groups of one are not ambiguous.
func (a *Analyzer) collectAmbiguity(res resolver.Resolution) []AmbiguousOption {
	options := []AmbiguousOption{}

	categories := []struct {
		name    string
		matches []resolver.Match
	}{
		{"profile_attribute", res.ProfileMatches},
		{"event", res.EventMatches},
		{"event_attribute", res.EventAttrMatches},
	}

	for _, cat := range categories {
		for _, m := range cat.matches {
			group := make([]resolver.Candidate, 0, len(m.Candidates))
			for _, c := range m.Candidates {
				if c.Score >= a.cfg.AmbiguityScoreThreshold {
					group = append(group, c)
				}
			}
			if len(group) < 2 && !m.Ambiguous {
				continue
			}
			if len(group) < 2 {
				// A near-tie flagged at resolve time still counts even
				// when the runners-up fall under the score threshold.
				group = m.Candidates
			}
			if len(group) < 2 {
				continue
			}
			options = append(options, AmbiguousOption{
				SourceQuery: m.SourceQuery,
				Category:    cat.name,
				Candidates:  group,
			})
		}
	}

	return options
}

func (a *Analyzer) overallConfidence(res Result) float64 {
	sum := 0.0
	n := 0
	for _, list := range [][]FieldMatch{res.ProfileAttributes, res.Events, res.EventAttributes} {
		for _, m := range list {
			sum += m.Score
			n++
		}
	}
	if n == 0 {
		return 0.0
	}
	return sum / float64(n)
}

func (a *Analyzer) summarize(res Result) string {
	if res.TotalResults == 0 {
		return "未找到匹配的字段"
	}

	parts := []string{}
	if len(res.ProfileAttributes) > 0 {
		parts = append(parts, fmt.Sprintf("已识别用户属性: %s", fieldNames(res.ProfileAttributes)))
	}
	if len(res.Events) > 0 {
		parts = append(parts, fmt.Sprintf("已识别行为事件: %s", fieldNames(res.Events)))
	}
	if len(res.EventAttributes) > 0 {
		parts = append(parts, fmt.Sprintf("已识别事件属性: %s", fieldNames(res.EventAttributes)))
	}
	if res.HasAmbiguity {
		parts = append(parts, fmt.Sprintf("存在 %d 组歧义匹配，建议确认", len(res.AmbiguousOptions)))
	}
	return strings.Join(parts, "；")
}

// fieldNames lists at most three field names for the summary line.
func fieldNames(matches []FieldMatch) string {
	names := make([]string, 0, 3)
	for _, m := range matches {
		names = append(names, m.FieldName)
		if len(names) == 3 {
			break
		}
	}
	s := strings.Join(names, "、")
	if len(matches) > 3 {
		s += fmt.Sprintf(" 等%d项", len(matches))
	}
	return s
}

func confidenceBand(score float64) string {
	switch {
	case score >= confidenceHigh:
		return bandHigh
	case score >= confidenceMedium:
		return bandMedium
	default:
		return bandLow
	}
}
