package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/lwi/internal/indexing"
)

func TestEnvelopeJSONShape(t *testing.T) {
	high := roundTrip(t, HighConfidence(map[string]int{"n": 1}, LocalContext("billing")))
	assert.Equal(t, "high", high["confidence"])
	assert.NotContains(t, high, "error")
	assert.NotContains(t, high, "reason")
	assert.Equal(t, map[string]any{"service": "billing", "layout": "micro", "scope": "local"}, high["context"])

	partial := roundTrip(t, PartialConfidence([]int{}, InterServiceContext("auth"), "ambiguous"))
	assert.Equal(t, "partial", partial["confidence"])
	assert.Equal(t, "ambiguous", partial["reason"])
	assert.Equal(t, "inter_service", partial["context"].(map[string]any)["scope"])

	refusal := NewRefusal(CodeRouteNotFound, "no route", "0 routes", "list routes", LocalContext(""))
	assert.True(t, refusal.IsRefusal())
	out := roundTrip(t, refusal.WithCandidates(nil))
	assert.Nil(t, out["data"])
	assert.NotContains(t, out["error"].(map[string]any), "candidates")
}

func TestNotReadySuggestionsByState(t *testing.T) {
	failed := notReady(indexing.StateFailed, "permission denied")
	assert.Equal(t, CodeIndexNotReady, failed.Error.Code)
	assert.Contains(t, failed.Error.Cause, "permission denied")
	assert.Contains(t, failed.Error.Suggestion, "rescan")

	scanning := notReady(indexing.StateScanning, "")
	assert.Contains(t, scanning.Error.Suggestion, "get_index_status")
}
