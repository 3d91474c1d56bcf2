package replication

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestToReplicationDoc_DatesBecomeEpochMillis tests date rewriting and passthrough
func TestToReplicationDoc_DatesBecomeEpochMillis(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 123_456_789, time.UTC)
	updated := created.Add(90 * time.Second)

	row := map[string]any{
		"id":        "deck-1",
		"name":      "Mono Red",
		"quantity":  int32(4),
		"createdAt": created,
		"updatedAt": &updated,
	}

	doc := ToReplicationDoc(row, []string{"createdAt", "updatedAt"}, false)

	assert.Equal(t, created.UnixMilli(), doc["createdAt"])
	assert.Equal(t, updated.UnixMilli(), doc["updatedAt"])
	assert.Equal(t, "Mono Red", doc["name"])
	assert.Equal(t, int32(4), doc["quantity"])
	assert.Equal(t, false, doc[DeletedField])
	assert.False(t, doc.Deleted())

	// The source row is left untouched
	assert.Equal(t, created, row["createdAt"])
	assert.NotContains(t, row, DeletedField)
}

// TestToReplicationDoc_NullDates tests that nullable dates map to nil, never 0
func TestToReplicationDoc_NullDates(t *testing.T) {
	var missing *time.Time
	row := map[string]any{
		"id":         "loc-1",
		"assignedAt": time.UnixMilli(5000),
		"updatedAt":  missing,
		"removedAt":  nil,
	}

	doc := ToReplicationDoc(row, []string{"assignedAt", "updatedAt", "removedAt"}, true)

	assert.Equal(t, int64(5000), doc["assignedAt"])
	assert.Nil(t, doc["updatedAt"])
	assert.Nil(t, doc["removedAt"])
	assert.True(t, doc.Deleted())
}

// TestToReplicationDoc_NonDatePanics tests that a mis-declared date field is a programmer error
func TestToReplicationDoc_NonDatePanics(t *testing.T) {
	row := map[string]any{"id": "x", "createdAt": "yesterday"}

	assert.Panics(t, func() {
		ToReplicationDoc(row, []string{"createdAt"}, false)
	})
}

// TestFromReplicationDoc_DecodedJSON tests the client direction on a JSON-decoded document
func TestFromReplicationDoc_DecodedJSON(t *testing.T) {
	var doc Document
	err := json.Unmarshal([]byte(`{"id":"tag-1","name":"foil","createdAt":1700000000123,"updatedAt":null,"_deleted":true}`), &doc)
	require.NoError(t, err)

	row, deleted, err := FromReplicationDoc(doc, []string{"createdAt", "updatedAt"})

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, row, DeletedField)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), row["createdAt"])
	assert.Nil(t, row["updatedAt"])
	assert.Equal(t, "foil", row["name"])
}

// TestFromReplicationDoc_Invalid tests rejection of malformed client input
func TestFromReplicationDoc_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"fractional date", Document{"id": "a", "createdAt": 12.5}},
		{"string date", Document{"id": "a", "createdAt": "2024-01-01"}},
		{"non-bool tombstone", Document{"id": "a", DeletedField: "yes"}},
		{"overflowing date", Document{"id": "a", "createdAt": 1e19}},
		{"negative overflowing date", Document{"id": "a", "createdAt": -1e19}},
		{"date at 2^63", Document{"id": "a", "createdAt": float64(math.MaxInt64)}},
		{"date after year 9999", Document{"id": "a", "createdAt": float64(MaxDateMillis + 1)}},
		{"date before year 1", Document{"id": "a", "createdAt": MinDateMillis - 1}},
		{"NaN date", Document{"id": "a", "createdAt": math.NaN()}},
		{"overflowing json number", Document{"id": "a", "createdAt": json.Number("99999999999999999999")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FromReplicationDoc(tt.doc, []string{"createdAt"})
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestFromReplicationDoc_DateRangeBounds(t *testing.T) {
	row, _, err := FromReplicationDoc(Document{"id": "a", "createdAt": float64(MaxDateMillis)}, []string{"createdAt"})
	require.NoError(t, err)
	assert.Equal(t, 9999, row["createdAt"].(time.Time).Year())

	row, _, err = FromReplicationDoc(Document{"id": "a", "createdAt": MinDateMillis}, []string{"createdAt"})
	require.NoError(t, err)
	assert.Equal(t, 1, row["createdAt"].(time.Time).Year())
}
