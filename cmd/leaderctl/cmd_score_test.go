package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/scoring"
)

func TestPrintBreakdown(t *testing.T) {
	entry := &models.LeaderboardEntry{HiveAuthor: "gnarly", Points: 90}
	result := scoring.Result{
		Points: 120,
		Breakdown: scoring.Breakdown{
			HiveBalance:  10,
			PostsScore:   100,
			Inactivity:   5,
			InactiveDays: 12,
			RawTotal:     105,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printBreakdown(&buf, entry, result))
	out := buf.String()

	assert.Contains(t, out, "gnarly")
	assert.Contains(t, out, "-5.00")
	assert.Contains(t, out, "12 days ago")
	assert.Contains(t, out, "120 (stored 90)")
	assert.NotContains(t, out, "floor")
}

func TestPrintBreakdown_NeverPostedFloor(t *testing.T) {
	entry := &models.LeaderboardEntry{HiveAuthor: "lurker"}
	result := scoring.Result{Breakdown: scoring.Breakdown{InactiveDays: -1, FloorApplied: true, RawTotal: -40}}

	var buf bytes.Buffer
	require.NoError(t, printBreakdown(&buf, entry, result))

	assert.Contains(t, buf.String(), "never")
	assert.Contains(t, buf.String(), "posts score used")
}
