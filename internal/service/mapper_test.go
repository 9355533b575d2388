package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapValidRecord(t *testing.T) {
	m := NewRecordMapper()

	raw := json.RawMessage(`{
		"id": 42,
		"name": "Widget",
		"price": 12.34,
		"stock": 7,
		"brand_id": "acme",
		"category_id": "cat-9",
		"images": ["a.jpg", "b.jpg"],
		"active": false
	}`)

	cmd, skip, reason, err := m.Map(raw)
	require.NoError(t, err)
	require.False(t, skip, "reason: %s", reason)

	assert.Equal(t, "42", cmd.ExternalID)
	assert.Equal(t, "Widget", cmd.Name)
	assert.Equal(t, int64(1234), cmd.Price)
	assert.Equal(t, 7, cmd.Stock)
	assert.Equal(t, "acme", cmd.BrandID)
	assert.Equal(t, "cat-9", cmd.ExternalCategoryID)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, cmd.Images)
	assert.False(t, cmd.Active)
}

func TestMapFieldSynonyms(t *testing.T) {
	m := NewRecordMapper()

	cmd, skip, _, err := m.Map(json.RawMessage(`{
		"sku": "SKU-1",
		"title": "Fallback Name",
		"price": 5,
		"quantity": 3
	}`))
	require.NoError(t, err)
	require.False(t, skip)

	assert.Equal(t, "SKU-1", cmd.ExternalID)
	assert.Equal(t, "Fallback Name", cmd.Name)
	assert.Equal(t, int64(500), cmd.Price)
	assert.Equal(t, 3, cmd.Stock)
	assert.True(t, cmd.Active, "active defaults to true")
}

func TestMapSkipsIncompleteRecords(t *testing.T) {
	m := NewRecordMapper()

	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"no identifier", `{"name": "x", "price": 1}`, SkipReasonMissingExternalID},
		{"no name", `{"id": "1", "price": 1}`, SkipReasonMissingName},
		{"no price", `{"id": "1", "name": "x"}`, SkipReasonMissingPrice},
		{"negative price", `{"id": "1", "name": "x", "price": -1}`, SkipReasonNegativePrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, skip, reason, err := m.Map(json.RawMessage(tc.raw))
			require.NoError(t, err, "a skip is not an error")
			assert.True(t, skip)
			assert.Equal(t, tc.reason, reason)
			assert.Nil(t, cmd)
		})
	}
}

func TestMapStructuralFailureIsError(t *testing.T) {
	m := NewRecordMapper()

	cases := []string{
		`{"id": "1", "name": "x", "price": "not-a-number"}`,
		`{"id": "1", "name": "x", "price": 1, "images": {"oops": true}}`,
		`{"id": true, "name": "x", "price": 1}`,
		`[1, 2, 3]`,
	}

	for _, raw := range cases {
		cmd, skip, _, err := m.Map(json.RawMessage(raw))
		assert.Error(t, err, "raw: %s", raw)
		assert.False(t, skip, "a structural failure must not count as a skip")
		assert.Nil(t, cmd)
	}
}

func TestBestEffortID(t *testing.T) {
	m := NewRecordMapper()

	assert.Equal(t, "7", m.BestEffortID(json.RawMessage(`{"id": 7, "images": {"bad": 1}}`)))
	assert.Equal(t, "ext-1", m.BestEffortID(json.RawMessage(`{"external_id": "ext-1", "id": 7}`)))
	assert.Equal(t, "SKU-2", m.BestEffortID(json.RawMessage(`{"sku": "SKU-2"}`)))
	assert.Equal(t, "unknown", m.BestEffortID(json.RawMessage(`[1, 2]`)))
	assert.Equal(t, "unknown", m.BestEffortID(json.RawMessage(`{"name": "no ids"}`)))
}
