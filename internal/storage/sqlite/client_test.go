package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concept-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRecordAndListResolutions(t *testing.T) {
	client := newTestClient(t)

	err := client.RecordResolution(models.ResolutionRecord{
		ID:             "req-1",
		QueryText:      "用户的年龄信息",
		Summary:        "已识别用户属性: age",
		Confidence:     0.92,
		ProfileCount:   1,
		EventCount:     0,
		EventAttrCount: 0,
		HasAmbiguity:   false,
		LatencyMS:      120,
	})
	require.NoError(t, err)

	records, err := client.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "req-1", rec.ID)
	assert.Equal(t, "用户的年龄信息", rec.QueryText)
	assert.InDelta(t, 0.92, rec.Confidence, 1e-9)
	assert.Equal(t, 1, rec.ProfileCount)
	assert.False(t, rec.HasAmbiguity)
	assert.Equal(t, int64(120), rec.LatencyMS)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestListRecent_Limit(t *testing.T) {
	client := newTestClient(t)

	for i := 0; i < 5; i++ {
		err := client.RecordResolution(models.ResolutionRecord{
			ID:        string(rune('a' + i)),
			QueryText: "q",
		})
		require.NoError(t, err)
	}

	records, err := client.ListRecent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestListRecent_DefaultLimit(t *testing.T) {
	client := newTestClient(t)

	records, err := client.ListRecent(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordResolution_DuplicateID(t *testing.T) {
	client := newTestClient(t)

	rec := models.ResolutionRecord{ID: "dup", QueryText: "q"}
	require.NoError(t, client.RecordResolution(rec))
	assert.Error(t, client.RecordResolution(rec))
}

func TestRecordResolution_AmbiguityRoundTrip(t *testing.T) {
	client := newTestClient(t)

	err := client.RecordResolution(models.ResolutionRecord{
		ID:           "amb",
		QueryText:    "城市",
		HasAmbiguity: true,
	})
	require.NoError(t, err)

	records, err := client.ListRecent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].HasAmbiguity)
}
