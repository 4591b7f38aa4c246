package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/catalog"
	"github.com/concept-agent/backend/internal/embed"
	"github.com/concept-agent/backend/internal/metrics"
	"github.com/concept-agent/backend/pkg/logger"
)

const embedBatchSize = 64

// Inserter is the slice of the vector store ingestion needs.
type Inserter interface {
	Insert(ctx context.Context, fields []catalog.Field, embeddings [][]float32) error
}

// Processor loads catalog field definitions from CSV and indexes them into
// the vector store.
type Processor struct {
	embedder embed.Provider
	store    Inserter
}

func NewProcessor(embedder embed.Provider, store Inserter) *Processor {
	return &Processor{
		embedder: embedder,
		store:    store,
	}
}

// IngestCSV reads catalog fields from r and indexes them. Expected columns:
// concept_id, source_type, source_name, field_name, parent_event,
// description, raw_metadata. The first row is a header.
func (p *Processor) IngestCSV(ctx context.Context, r io.Reader) (int, error) {
	fields, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}

	total := 0
	for start := 0; start < len(fields); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(fields) {
			end = len(fields)
		}
		batch := fields[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = embedText(f)
		}

		embeddings, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("failed to embed batch at row %d: %w", start, err)
		}

		if err := p.store.Insert(ctx, batch, embeddings); err != nil {
			return total, fmt.Errorf("failed to insert batch at row %d: %w", start, err)
		}
		total += len(batch)
	}

	metrics.CatalogFieldsIngested.Add(float64(total))
	logger.Info("Catalog ingestion completed", zap.Int("fields", total))

	return total, nil
}

// embedText composes the text a field is indexed under: source context plus
// field name anchor short descriptions, and the description itself carries
// any enumerated value lists.
func embedText(f catalog.Field) string {
	if f.SourceName == "" {
		return fmt.Sprintf("%s: %s", f.FieldName, f.Description)
	}
	return fmt.Sprintf("%s %s: %s", f.SourceName, f.FieldName, f.Description)
}

// ParseCSV parses and validates catalog field rows.
func ParseCSV(r io.Reader) ([]catalog.Field, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"concept_id", "source_type", "field_name", "description"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	fields := make([]catalog.Field, 0)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		f := catalog.Field{
			ID:            get(row, "concept_id"),
			Category:      catalog.Category(get(row, "source_type")),
			SourceName:    get(row, "source_name"),
			FieldName:     get(row, "field_name"),
			ParentEventID: get(row, "parent_event"),
			Description:   get(row, "description"),
			RawMetadata:   get(row, "raw_metadata"),
		}

		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		fields = append(fields, f)
	}

	return fields, nil
}

func validateField(f catalog.Field) error {
	if f.ID == "" {
		return fmt.Errorf("empty concept_id")
	}
	// Identifiers end up inside vector-store filter expressions.
	if strings.ContainsAny(f.ID, `"\`) {
		return fmt.Errorf("concept_id %q contains quote or backslash", f.ID)
	}
	if strings.ContainsAny(f.ParentEventID, `"\`) {
		return fmt.Errorf("parent_event %q contains quote or backslash", f.ParentEventID)
	}
	if f.FieldName == "" {
		return fmt.Errorf("empty field_name")
	}
	if f.Description == "" {
		return fmt.Errorf("empty description")
	}
	switch f.Category {
	case catalog.CategoryProfileAttribute, catalog.CategoryEvent:
		if f.ParentEventID != "" {
			return fmt.Errorf("parent_event set on %s field", f.Category)
		}
	case catalog.CategoryEventAttribute:
		if f.ParentEventID == "" {
			return fmt.Errorf("event attribute missing parent_event")
		}
	default:
		return fmt.Errorf("unknown source_type %q", f.Category)
	}
	return nil
}
