package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concept-agent/backend/internal/catalog"
)

const sampleCSV = `concept_id,source_type,source_name,field_name,parent_event,description,raw_metadata
attr_age,PROFILE_ATTRIBUTE,crm,age,,用户的年龄,
evt_purchase,EVENT,events,purchase,,用户购买商品的行为事件,
attr_amount,EVENT_ATTRIBUTE,events,order_amount,evt_purchase,订单金额,"{""unit"":""CNY""}"
`

type fakeEmbedBackend struct {
	texts []string
}

func (f *fakeEmbedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeInserter struct {
	fields     []catalog.Field
	embeddings [][]float32
}

func (f *fakeInserter) Insert(ctx context.Context, fields []catalog.Field, embeddings [][]float32) error {
	f.fields = append(f.fields, fields...)
	f.embeddings = append(f.embeddings, embeddings...)
	return nil
}

func TestParseCSV(t *testing.T) {
	fields, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.Equal(t, "attr_age", fields[0].ID)
	assert.Equal(t, catalog.CategoryProfileAttribute, fields[0].Category)
	assert.Equal(t, "用户的年龄", fields[0].Description)

	assert.Equal(t, catalog.CategoryEvent, fields[1].Category)
	assert.Empty(t, fields[1].ParentEventID)

	assert.Equal(t, catalog.CategoryEventAttribute, fields[2].Category)
	assert.Equal(t, "evt_purchase", fields[2].ParentEventID)
	assert.Equal(t, `{"unit":"CNY"}`, fields[2].RawMetadata)
}

func TestParseCSV_Validation(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{
			"event attribute missing parent",
			"concept_id,source_type,field_name,description\na,EVENT_ATTRIBUTE,f,desc\n",
		},
		{
			"profile attribute with parent",
			"concept_id,source_type,field_name,parent_event,description\na,PROFILE_ATTRIBUTE,f,evt_x,desc\n",
		},
		{
			"unknown source type",
			"concept_id,source_type,field_name,description\na,WIDGET,f,desc\n",
		},
		{
			"empty concept id",
			"concept_id,source_type,field_name,description\n,PROFILE_ATTRIBUTE,f,desc\n",
		},
		{
			"empty description",
			"concept_id,source_type,field_name,description\na,PROFILE_ATTRIBUTE,f,\n",
		},
		{
			"missing required column",
			"concept_id,source_type,field_name\na,PROFILE_ATTRIBUTE,f\n",
		},
		{
			"quote in concept id",
			"concept_id,source_type,field_name,description\n" + `"a""b",PROFILE_ATTRIBUTE,f,desc` + "\n",
		},
		{
			"backslash in parent event",
			"concept_id,source_type,field_name,parent_event,description\n" + `a,EVENT_ATTRIBUTE,f,evt\x,desc` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.csv))
			assert.Error(t, err)
		})
	}
}

func TestIngestCSV(t *testing.T) {
	backend := &fakeEmbedBackend{}
	store := &fakeInserter{}
	p := NewProcessor(backend, store)

	count, err := p.IngestCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, store.fields, 3)
	require.Len(t, store.embeddings, 3)
	assert.Equal(t, "attr_age", store.fields[0].ID)

	// Embedding text carries source context and field name, not the bare
	// description column.
	require.Len(t, backend.texts, 3)
	assert.Equal(t, "crm age: 用户的年龄", backend.texts[0])
	assert.Equal(t, "events order_amount: 订单金额", backend.texts[2])
}

func TestIngestCSV_EmptyBody(t *testing.T) {
	store := &fakeInserter{}
	p := NewProcessor(&fakeEmbedBackend{}, store)

	_, err := p.IngestCSV(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestIngestCSV_HeaderOnly(t *testing.T) {
	store := &fakeInserter{}
	p := NewProcessor(&fakeEmbedBackend{}, store)

	count, err := p.IngestCSV(context.Background(), strings.NewReader("concept_id,source_type,field_name,description\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, store.fields)
}
