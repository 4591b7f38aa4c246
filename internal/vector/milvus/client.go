package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/catalog"
	"github.com/concept-agent/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// SearchResult is one catalog field returned by a similarity search, with
// the COSINE similarity score attached.
type SearchResult struct {
	ConceptID     string
	SourceType    string
	SourceName    string
	FieldName     string
	ParentEventID string
	RawMetadata   string
	Score         float32
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CollectionName() string {
	return m.collectionName
}

func (m *Client) VectorDim() int {
	return m.vectorDim
}

// EnsureCollection creates the catalog collection, its HNSW index, and loads
// it into memory. Existing collections are left untouched.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Profile and event attribute metadata for concept resolution",
		Fields: []*entity.Field{
			{
				Name:       "concept_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "source_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "source_name",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "field_name",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "parent_event",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "raw_metadata",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "concept_embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 256)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "concept_embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// Insert writes catalog fields and their embeddings. fields and embeddings
// must be index-aligned.
func (m *Client) Insert(ctx context.Context, fields []catalog.Field, embeddings [][]float32) error {
	if len(fields) == 0 {
		return nil
	}
	if len(fields) != len(embeddings) {
		return fmt.Errorf("field/embedding count mismatch: %d vs %d", len(fields), len(embeddings))
	}

	conceptIDs := make([]string, len(fields))
	sourceTypes := make([]string, len(fields))
	sourceNames := make([]string, len(fields))
	fieldNames := make([]string, len(fields))
	parentEvents := make([]string, len(fields))
	rawMetadata := make([]string, len(fields))

	for i, f := range fields {
		conceptIDs[i] = f.ID
		sourceTypes[i] = string(f.Category)
		sourceNames[i] = f.SourceName
		fieldNames[i] = f.FieldName
		parentEvents[i] = f.ParentEventID
		rawMetadata[i] = f.RawMetadata
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("concept_id", conceptIDs),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("source_name", sourceNames),
		entity.NewColumnVarChar("field_name", fieldNames),
		entity.NewColumnVarChar("parent_event", parentEvents),
		entity.NewColumnVarChar("raw_metadata", rawMetadata),
		entity.NewColumnFloatVector("concept_embedding", m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert catalog fields: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Catalog fields inserted into vector DB", zap.Int("count", len(fields)))

	return nil
}

func (m *Client) SearchProfileAttributes(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	expr := fmt.Sprintf(`source_type == "%s"`, catalog.CategoryProfileAttribute)
	return m.search(ctx, queryEmbedding, expr, limit)
}

func (m *Client) SearchEvents(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	expr := fmt.Sprintf(`source_type == "%s"`, catalog.CategoryEvent)
	return m.search(ctx, queryEmbedding, expr, limit)
}

// SearchEventAttributes scopes the search to attributes owned by one event.
// The parent filter is what keeps attribute resolution from crossing event
// boundaries.
func (m *Client) SearchEventAttributes(ctx context.Context, queryEmbedding []float32, parentEventID string, limit int) ([]SearchResult, error) {
	expr := fmt.Sprintf(`source_type == "%s" && parent_event == "%s"`,
		catalog.CategoryEventAttribute, escapeExprString(parentEventID))
	return m.search(ctx, queryEmbedding, expr, limit)
}

// escapeExprString escapes a value interpolated into a boolean filter
// expression so quotes in an identifier cannot break or widen the filter.
func escapeExprString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func (m *Client) search(ctx context.Context, queryEmbedding []float32, expr string, limit int) ([]SearchResult, error) {
	sp, _ := entity.NewIndexHNSWSearchParam(128)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"concept_id", "source_type", "source_name", "field_name", "parent_event", "raw_metadata"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"concept_embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("concept_id")
		typeCol := sr.Fields.GetColumn("source_type")
		sourceCol := sr.Fields.GetColumn("source_name")
		fieldCol := sr.Fields.GetColumn("field_name")
		parentCol := sr.Fields.GetColumn("parent_event")
		metaCol := sr.Fields.GetColumn("raw_metadata")

		for i := 0; i < sr.ResultCount; i++ {
			conceptID, _ := idCol.GetAsString(i)
			sourceType, _ := typeCol.GetAsString(i)
			sourceName, _ := sourceCol.GetAsString(i)
			fieldName, _ := fieldCol.GetAsString(i)
			parentEvent, _ := parentCol.GetAsString(i)
			rawMeta, _ := metaCol.GetAsString(i)

			results = append(results, SearchResult{
				ConceptID:     conceptID,
				SourceType:    sourceType,
				SourceName:    sourceName,
				FieldName:     fieldName,
				ParentEventID: parentEvent,
				RawMetadata:   rawMeta,
				Score:         sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("limit", limit),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}
