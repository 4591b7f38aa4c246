package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concept-agent/backend/internal/resolver"
	"github.com/concept-agent/backend/pkg/config"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(config.SearchConfig{
		TopK:                    5,
		SimilarityThreshold:     0.65,
		AmbiguityMargin:         0.05,
		AmbiguityScoreThreshold: 0.75,
	})
}

func match(id, field string, score float64) resolver.Match {
	return resolver.Match{
		ConceptID:   id,
		FieldName:   field,
		SourceName:  "crm",
		Score:       score,
		SourceQuery: "q",
	}
}

func TestAnalyze_SortsDescendingByScore(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{
			match("a", "a", 0.70),
			match("b", "b", 0.95),
			match("c", "c", 0.80),
		},
	})

	require.Len(t, res.ProfileAttributes, 3)
	assert.Equal(t, "b", res.ProfileAttributes[0].ConceptID)
	assert.Equal(t, "c", res.ProfileAttributes[1].ConceptID)
	assert.Equal(t, "a", res.ProfileAttributes[2].ConceptID)
}

func TestAnalyze_DedupKeepsHighestScore(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{
			match("dup", "age", 0.72),
			match("dup", "age", 0.90),
			match("other", "city", 0.80),
		},
	})

	require.Len(t, res.ProfileAttributes, 2)
	assert.Equal(t, "dup", res.ProfileAttributes[0].ConceptID)
	assert.InDelta(t, 0.90, res.ProfileAttributes[0].Score, 1e-9)
	assert.Equal(t, 2, res.TotalResults)
}

func TestAnalyze_DropsSubThresholdMatches(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		EventMatches: []resolver.Match{
			match("keep", "purchase", 0.66),
			match("drop", "refund", 0.60),
		},
	})

	require.Len(t, res.Events, 1)
	assert.Equal(t, "keep", res.Events[0].ConceptID)
}

func TestAnalyze_ConfidenceBands(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{
			match("h", "h", 0.90),
			match("m", "m", 0.75),
			match("l", "l", 0.66),
		},
	})

	require.Len(t, res.ProfileAttributes, 3)
	assert.Equal(t, "high", res.ProfileAttributes[0].Confidence)
	assert.Equal(t, "medium", res.ProfileAttributes[1].Confidence)
	assert.Equal(t, "low", res.ProfileAttributes[2].Confidence)
}

func TestAnalyze_OverallConfidenceIsMean(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{match("a", "a", 0.80)},
		EventMatches:   []resolver.Match{match("b", "b", 0.90)},
	})

	assert.InDelta(t, 0.85, res.ConfidenceScore, 1e-9)
}

func TestAnalyze_AmbiguityGroups(t *testing.T) {
	m := match("a", "reg_city", 0.82)
	m.Candidates = []resolver.Candidate{
		{ConceptID: "a", FieldName: "reg_city", Score: 0.82},
		{ConceptID: "b", FieldName: "home_city", Score: 0.80},
		{ConceptID: "c", FieldName: "work_city", Score: 0.50},
	}
	m.SourceQuery = "城市"

	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{m},
	})

	assert.True(t, res.HasAmbiguity)
	require.Len(t, res.AmbiguousOptions, 1)
	opt := res.AmbiguousOptions[0]
	assert.Equal(t, "城市", opt.SourceQuery)
	assert.Equal(t, "profile_attribute", opt.Category)
	// The 0.50 candidate falls under the ambiguity score threshold.
	require.Len(t, opt.Candidates, 2)
}

func TestAnalyze_SingleStrongCandidateIsNotAmbiguous(t *testing.T) {
	m := match("a", "age", 0.92)
	m.Candidates = []resolver.Candidate{
		{ConceptID: "a", FieldName: "age", Score: 0.92},
		{ConceptID: "b", FieldName: "birth_year", Score: 0.70},
	}

	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches: []resolver.Match{m},
	})

	assert.False(t, res.HasAmbiguity)
	assert.Empty(t, res.AmbiguousOptions)
}

func TestAnalyze_ResolveTimeNearTieStaysAmbiguous(t *testing.T) {
	m := match("a", "x", 0.70)
	m.Ambiguous = true
	m.Candidates = []resolver.Candidate{
		{ConceptID: "a", FieldName: "x", Score: 0.70},
		{ConceptID: "b", FieldName: "y", Score: 0.68},
	}

	res := testAnalyzer().Analyze("query", resolver.Resolution{
		EventMatches: []resolver.Match{m},
	})

	assert.True(t, res.HasAmbiguity)
	require.Len(t, res.AmbiguousOptions, 1)
	assert.Equal(t, "event", res.AmbiguousOptions[0].Category)
	assert.Len(t, res.AmbiguousOptions[0].Candidates, 2)
}

func TestAnalyze_EmptyResolutionIsWellFormed(t *testing.T) {
	res := testAnalyzer().Analyze("无匹配查询", resolver.Resolution{})

	assert.Equal(t, "无匹配查询", res.Query)
	assert.NotNil(t, res.ProfileAttributes)
	assert.NotNil(t, res.Events)
	assert.NotNil(t, res.EventAttributes)
	assert.NotNil(t, res.AmbiguousOptions)
	assert.Equal(t, 0, res.TotalResults)
	assert.Equal(t, 0.0, res.ConfidenceScore)
	assert.False(t, res.HasAmbiguity)
	assert.Equal(t, "未找到匹配的字段", res.Summary)
}

func TestAnalyze_SummaryMentionsEachCategory(t *testing.T) {
	res := testAnalyzer().Analyze("query", resolver.Resolution{
		ProfileMatches:   []resolver.Match{match("a", "age", 0.90)},
		EventMatches:     []resolver.Match{match("b", "purchase", 0.88)},
		EventAttrMatches: []resolver.Match{match("c", "order_amount", 0.85)},
	})

	assert.Contains(t, res.Summary, "已识别用户属性")
	assert.Contains(t, res.Summary, "age")
	assert.Contains(t, res.Summary, "已识别行为事件")
	assert.Contains(t, res.Summary, "purchase")
	assert.Contains(t, res.Summary, "已识别事件属性")
	assert.Contains(t, res.Summary, "order_amount")
}

func TestAnalyze_SummaryTruncatesLongLists(t *testing.T) {
	matches := []resolver.Match{
		match("a", "f1", 0.95),
		match("b", "f2", 0.94),
		match("c", "f3", 0.93),
		match("d", "f4", 0.92),
		match("e", "f5", 0.91),
	}

	res := testAnalyzer().Analyze("query", resolver.Resolution{ProfileMatches: matches})

	assert.Contains(t, res.Summary, "等5项")
	assert.NotContains(t, res.Summary, "f4")
}
