package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DictShapedAttributes(t *testing.T) {
	raw := json.RawMessage(`{
		"person_attributes": {"年龄": "25到35岁之间", "城市": "北京"},
		"behavioral_events": []
	}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 2)
	assert.Equal(t, "年龄", got.ProfileQueries[0].AttributeName)
	assert.Equal(t, "年龄: 25到35岁之间", got.ProfileQueries[0].QueryText)
	assert.Equal(t, "城市: 北京", got.ProfileQueries[1].QueryText)
	assert.Empty(t, got.EventQueries)
}

func TestNormalize_ListShapedAttributes(t *testing.T) {
	raw := json.RawMessage(`{"person_attributes": ["年龄", "性别"]}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 2)
	assert.Equal(t, "年龄", got.ProfileQueries[0].QueryText)
	assert.Equal(t, "性别", got.ProfileQueries[1].QueryText)
}

func TestNormalize_PreservesAttributeOrder(t *testing.T) {
	raw := json.RawMessage(`{"person_attributes": {"z": "1", "a": "2", "m": "3", "b": "4"}}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 4)
	names := make([]string, 0, 4)
	for _, q := range got.ProfileQueries {
		names = append(names, q.AttributeName)
	}
	assert.Equal(t, []string{"z", "a", "m", "b"}, names)
}

func TestNormalize_ListShapeDropsBlankNames(t *testing.T) {
	raw := json.RawMessage(`{"person_attributes": ["age", "", "  "]}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 1)
	assert.Equal(t, "age", got.ProfileQueries[0].QueryText)
}

func TestNormalize_NestedStructuredQuery(t *testing.T) {
	raw := json.RawMessage(`{
		"structured_query": {
			"person_attributes": {"职业": "工程师"},
			"events": [{"event_description": "购买商品", "attributes": {"金额": "100元以上"}}]
		}
	}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 1)
	assert.Equal(t, "职业: 工程师", got.ProfileQueries[0].QueryText)
	require.Len(t, got.EventQueries, 1)
	assert.Equal(t, "购买商品", got.EventQueries[0].Description)
	assert.Equal(t, []string{"金额: 100元以上"}, got.EventQueries[0].AttributeQueries)
}

func TestNormalize_EventTypePreferredOverDescription(t *testing.T) {
	raw := json.RawMessage(`{
		"behavioral_events": [
			{"event_type": "下单", "event_description": "用户下了订单"}
		]
	}`)

	got := Normalize(raw)

	require.Len(t, got.EventQueries, 1)
	assert.Equal(t, "下单", got.EventQueries[0].Description)
}

func TestNormalize_DropsEventWithoutDescription(t *testing.T) {
	raw := json.RawMessage(`{
		"behavioral_events": [
			{"attributes": {"金额": "100"}},
			{"event_type": "  "},
			{"event_type": "登录"}
		]
	}`)

	got := Normalize(raw)

	require.Len(t, got.EventQueries, 1)
	assert.Equal(t, "登录", got.EventQueries[0].Description)
}

func TestNormalize_TrimsAndDropsEmptyEntries(t *testing.T) {
	raw := json.RawMessage(`{
		"person_attributes": {"  年龄  ": "  30岁  ", "空值": "   ", "": "x"}
	}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 1)
	assert.Equal(t, "年龄", got.ProfileQueries[0].AttributeName)
	assert.Equal(t, "年龄: 30岁", got.ProfileQueries[0].QueryText)
}

func TestNormalize_ScalarAttributeValues(t *testing.T) {
	raw := json.RawMessage(`{
		"person_attributes": {"年龄": 30, "活跃": true, "评分": 4.5, "嵌套": {"x": 1}}
	}`)

	got := Normalize(raw)

	require.Len(t, got.ProfileQueries, 3)
	assert.Equal(t, "年龄: 30", got.ProfileQueries[0].QueryText)
	assert.Equal(t, "活跃: true", got.ProfileQueries[1].QueryText)
	assert.Equal(t, "评分: 4.5", got.ProfileQueries[2].QueryText)
}

func TestNormalize_GarbageTolerance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"null", `null`},
		{"not an object", `[1, 2, 3]`},
		{"truncated", `{"person_attributes": {"a"`},
		{"wrong field types", `{"person_attributes": 42, "behavioral_events": "no"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(json.RawMessage(tt.raw))
			assert.True(t, got.IsEmpty())
		})
	}
}

func TestNormalize_EventsFieldFallback(t *testing.T) {
	raw := json.RawMessage(`{
		"behavioral_events": null,
		"events": [{"event_type": "签到", "attributes": ["日期"]}]
	}`)

	got := Normalize(raw)

	require.Len(t, got.EventQueries, 1)
	assert.Equal(t, "签到", got.EventQueries[0].Description)
	assert.Equal(t, []string{"日期"}, got.EventQueries[0].AttributeQueries)
}

func TestKeywordQueries(t *testing.T) {
	got := KeywordQueries("active users in Beijing")

	require.NotEmpty(t, got)
	for _, q := range got {
		assert.NotContains(t, []string{"in", "the"}, q.QueryText)
		assert.Equal(t, q.AttributeName, q.QueryText)
	}
}

func TestKeywordQueries_Empty(t *testing.T) {
	assert.Nil(t, KeywordQueries("   "))
}

func TestKeywordQueries_Dedup(t *testing.T) {
	got := KeywordQueries("payment payment payment")
	assert.Len(t, got, 1)
}
