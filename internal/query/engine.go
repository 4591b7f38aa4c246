package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/aggregate"
	"github.com/concept-agent/backend/internal/extraction"
	"github.com/concept-agent/backend/internal/metrics"
	"github.com/concept-agent/backend/internal/resolver"
	"github.com/concept-agent/backend/internal/storage/models"
	"github.com/concept-agent/backend/pkg/logger"
)

// Extractor produces the structured extraction payload for a raw query.
// The llm client satisfies it; tests substitute a fake.
type Extractor interface {
	Extract(ctx context.Context, query string) (json.RawMessage, error)
}

// History records resolution outcomes. Nil-able so the engine runs without
// a database.
type History interface {
	RecordResolution(rec models.ResolutionRecord) error
}

// Engine orchestrates one resolution: extract, normalize, resolve the three
// stages, aggregate, persist.
type Engine struct {
	extractor Extractor
	resolver  *resolver.Resolver
	analyzer  *aggregate.Analyzer
	history   History
}

func NewEngine(extractor Extractor, res *resolver.Resolver, analyzer *aggregate.Analyzer, history History) *Engine {
	return &Engine{
		extractor: extractor,
		resolver:  res,
		analyzer:  analyzer,
		history:   history,
	}
}

// Resolve runs the full pipeline for one query. It always returns a
// well-formed result; pipeline failures surface in the Error field.
func (e *Engine) Resolve(ctx context.Context, queryText string) (result aggregate.Result) {
	requestID := uuid.New().String()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Resolution panicked",
				zap.Any("panic", r),
				zap.String("request_id", requestID),
			)
			result = errorResult(queryText, "internal resolution error", start)
			metrics.ResolutionTotal.WithLabelValues("panic").Inc()
		}
	}()

	logger.Info("Resolution started",
		zap.String("request_id", requestID),
		zap.String("query", queryText),
	)

	canonical := e.extract(ctx, queryText)

	resolution := e.resolver.Resolve(ctx, canonical)
	result = e.analyzer.Analyze(queryText, resolution)
	result.ExecutionTime = time.Since(start).Seconds()

	status := "ok"
	if result.TotalResults == 0 {
		status = "empty"
	}
	metrics.ResolutionTotal.WithLabelValues(status).Inc()
	metrics.ResolutionDuration.WithLabelValues("resolve").Observe(result.ExecutionTime)

	e.record(requestID, queryText, result)

	logger.Info("Resolution completed",
		zap.String("request_id", requestID),
		zap.Int("total_results", result.TotalResults),
		zap.Float64("confidence", result.ConfidenceScore),
		zap.Float64("execution_time", result.ExecutionTime),
	)

	return result
}

// extract calls the extractor and normalizes its payload. When extraction
// fails or yields nothing usable, it falls back to keyword fragments so the
// pipeline still has something to resolve.
func (e *Engine) extract(ctx context.Context, queryText string) extraction.CanonicalQuery {
	raw, err := e.extractor.Extract(ctx, queryText)
	if err != nil {
		logger.Warn("Extraction failed, falling back to keywords",
			zap.Error(err),
			zap.String("query", queryText),
		)
		return extraction.CanonicalQuery{ProfileQueries: extraction.KeywordQueries(queryText)}
	}

	canonical := extraction.Normalize(raw)
	if canonical.IsEmpty() {
		logger.Warn("Extraction yielded no fragments, falling back to keywords",
			zap.String("query", queryText),
		)
		return extraction.CanonicalQuery{ProfileQueries: extraction.KeywordQueries(queryText)}
	}
	return canonical
}

func (e *Engine) record(requestID, queryText string, res aggregate.Result) {
	if e.history == nil {
		return
	}
	err := e.history.RecordResolution(models.ResolutionRecord{
		ID:             requestID,
		QueryText:      queryText,
		Summary:        res.Summary,
		Confidence:     res.ConfidenceScore,
		ProfileCount:   len(res.ProfileAttributes),
		EventCount:     len(res.Events),
		EventAttrCount: len(res.EventAttributes),
		HasAmbiguity:   res.HasAmbiguity,
		LatencyMS:      int64(res.ExecutionTime * 1000),
	})
	if err != nil {
		logger.Warn("Failed to record resolution history",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
	}
}

func errorResult(queryText, msg string, start time.Time) aggregate.Result {
	return aggregate.Result{
		Query:             queryText,
		ProfileAttributes: []aggregate.FieldMatch{},
		Events:            []aggregate.FieldMatch{},
		EventAttributes:   []aggregate.FieldMatch{},
		AmbiguousOptions:  []aggregate.AmbiguousOption{},
		Summary:           "解析失败",
		ExecutionTime:     time.Since(start).Seconds(),
		Error:             msg,
	}
}
