package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"mit:malicious_actors", "air:deceptive_use:0.8"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.TaxonomyMIT, got[0].TaxonomyID)
	assert.Equal(t, model.MITMaliciousActors, got[0].Code)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)

	assert.Equal(t, model.TaxonomyAIR, got[1].TaxonomyID)
	assert.InDelta(t, 0.8, got[1].Confidence, 1e-9)
}

func TestParseAssignmentsRejectsMalformed(t *testing.T) {
	cases := [][]string{
		nil,
		{"malicious_actors"},
		{"mit:code:0.5:extra"},
		{"mit:code:high"},
		{"mit:code:1.5"},
	}
	for _, specs := range cases {
		_, err := parseAssignments(specs)
		assert.Error(t, err, "specs %v", specs)
	}
}

func TestFormatAssignments(t *testing.T) {
	assert.Equal(t, "-", formatAssignments(nil))

	got := formatAssignments([]model.CategoryAssignment{
		{TaxonomyID: model.TaxonomyMIT, Code: "misinformation", Confidence: 0.45},
	})
	assert.Equal(t, "mit:misinformation (0.45)", got)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abc"))
	assert.Equal(t, "short", truncateID("short"))
}
