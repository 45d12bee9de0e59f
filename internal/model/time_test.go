package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSummaryJSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	raw, err := json.Marshal(DocumentSummary{ID: 1, Source: "memo.pdf", Chunks: 3, CreatedAt: LocalTime(ts)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"source":"memo.pdf","chunks":3,"created_at":"2026-03-01 09:30:00"}`, string(raw))
}

func TestLocalTimeRoundTrip(t *testing.T) {
	var s DocumentSummary
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"created_at":"2026-03-01 09:30:00"}`), &s))
	got := time.Time(s.CreatedAt)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, 9, got.Hour())

	assert.Error(t, json.Unmarshal([]byte(`{"created_at":"yesterday"}`), &s))
	require.NoError(t, json.Unmarshal([]byte(`{"created_at":null}`), &s))
}
