package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skatehive-leaderboard/internal/models"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	t := testNow.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

// activeEntry has every field populated so no zero penalty triggers.
func activeEntry() models.LeaderboardEntry {
	return models.LeaderboardEntry{
		HiveAuthor:          "gnarly",
		HiveBalance:         500,
		HPBalance:           2000,
		HBDSavingsBalance:   100,
		PostsScore:          300,
		SkatehiveNFTBalance: 1,
		GnarsBalance:        2,
		GnarsVotes:          2,
		MaxVotingPowerUSD:   0.05,
		DelegatedCurator:    100,
		HasVotedInWitness:   true,
		EthAddress:          "0x1111111111111111111111111111111111111111",
		LastPost:            daysAgo(1),
	}
}

func TestCalculate_EndToEndScenarioFallsBackToPostsScore(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	e := models.LeaderboardEntry{
		HiveAuthor:        "newbie",
		HiveBalance:       2000,
		HPBalance:         0,
		HasVotedInWitness: false,
		EthAddress:        models.ZeroAddress,
		LastPost:          daysAgo(40),
		PostsScore:        0,
		Points:            0,
	}

	r := calc.Calculate(&e, testNow)

	assert.Equal(t, 100.0, r.Breakdown.HiveBalance, "hive balance capped at 1000 x 0.1")
	assert.Equal(t, -3500.0, r.Breakdown.Witness)
	assert.Equal(t, 0.0, r.Breakdown.Wallet)
	assert.Equal(t, 100.0, r.Breakdown.Inactivity)
	assert.Equal(t, -5000.0-7000-300-900-200, r.Breakdown.ZeroPenalty)
	assert.Less(t, r.Breakdown.RawTotal, 0.0)
	assert.True(t, r.Breakdown.FloorApplied)
	assert.Equal(t, 0, r.Points)
	assert.False(t, r.Changed)
}

func TestCalculate_FloorSubstitutesPostsScore(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	e := models.LeaderboardEntry{HiveAuthor: "quiet", PostsScore: 42, Points: 0}

	r := calc.Calculate(&e, testNow)

	assert.True(t, r.Breakdown.FloorApplied)
	assert.Equal(t, 42, r.Points, "floor substitution uses posts_score, not zero")
	assert.True(t, r.Changed)
}

func TestCalculate_NFTTiersAreStepFunction(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	tests := []struct {
		balance float64
		want    float64
	}{
		{0, 0},
		{0.5, 0},
		{1, 100},
		{3, 100},
		{4.99, 100},
		{5, 500},
		{7, 500},
		{1000, 500},
	}

	for _, tt := range tests {
		e := activeEntry()
		e.SkatehiveNFTBalance = tt.balance
		r := calc.Calculate(&e, testNow)
		assert.Equal(t, tt.want, r.Breakdown.NFT, "nft balance %v", tt.balance)
	}
}

func TestCalculate_WitnessBonusIsInPreFloorSum(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	voted := models.LeaderboardEntry{HiveAuthor: "voter", HasVotedInWitness: true}
	notVoted := models.LeaderboardEntry{HiveAuthor: "abstainer"}

	rv := calc.Calculate(&voted, testNow)
	rn := calc.Calculate(&notVoted, testNow)

	assert.Equal(t, 1000.0, rv.Breakdown.Witness)
	assert.Equal(t, -3500.0, rn.Breakdown.Witness)
	assert.InDelta(t, 4500.0, rv.Breakdown.RawTotal-rn.Breakdown.RawTotal, 1e-9)
	// Still deeply negative, so both fall back to posts_score.
	assert.Equal(t, 0, rv.Points)
	assert.Equal(t, 0, rn.Points)

	// With enough elsewhere, the bonus decides whether the floor applies.
	e := activeEntry()
	e.HasVotedInWitness = false
	base := calc.Calculate(&e, testNow)
	e.HasVotedInWitness = true
	withVote := calc.Calculate(&e, testNow)
	assert.InDelta(t, base.Breakdown.RawTotal+4500, withVote.Breakdown.RawTotal, 1e-9)
	assert.Equal(t, int(math.Round(withVote.Breakdown.RawTotal)), withVote.Points)
}

func TestCalculate_WalletBonus(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	tests := []struct {
		name   string
		author string
		addr   string
		want   float64
	}{
		{"linked", "skater", "0xabcDEF0000000000000000000000000000000001", 5000},
		{"sentinel", "skater", models.ZeroAddress, 0},
		{"empty", "skater", "", 0},
		{"donator row never earns bonus", "Donator_0xabc", "0xabcDEF0000000000000000000000000000000001", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := activeEntry()
			e.HiveAuthor = tt.author
			e.EthAddress = tt.addr
			assert.Equal(t, tt.want, calc.Calculate(&e, testNow).Breakdown.Wallet)
		})
	}
}

func TestCalculate_DonationsCapInput(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	e := activeEntry()
	e.GivethDonationsUSD = 200
	assert.Equal(t, 1000.0, calc.Calculate(&e, testNow).Breakdown.Donations)

	e.GivethDonationsUSD = 25000
	assert.Equal(t, 5000.0, calc.Calculate(&e, testNow).Breakdown.Donations)
}

func TestCalculate_InactivityTiers(t *testing.T) {
	calc := NewCalculator(DefaultWeights())

	tests := []struct {
		name     string
		lastPost *time.Time
		want     float64
	}{
		{"today", daysAgo(0), 0},
		{"29 days", daysAgo(29), 0},
		{"30 days", daysAgo(30), 100},
		{"59 days", daysAgo(59), 100},
		{"60 days", daysAgo(60), 500},
		{"90 days", daysAgo(90), 1000},
		{"364 days", daysAgo(364), 1000},
		{"365 days", daysAgo(365), 2000},
		{"never posted", nil, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := activeEntry()
			e.LastPost = tt.lastPost
			assert.Equal(t, tt.want, calc.Calculate(&e, testNow).Breakdown.Inactivity)
		})
	}
}

func TestCalculate_TinyValuesSkipZeroPenalty(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	e := activeEntry()
	e.HPBalance = 0.001
	e.HiveBalance = 0.001

	assert.Equal(t, 0.0, calc.Calculate(&e, testNow).Breakdown.ZeroPenalty)
}

func TestCalculate_Idempotent(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	e := activeEntry()
	e.Points = -1

	first := calc.Calculate(&e, testNow)
	require.True(t, first.Changed)
	e.Points = first.Points

	second := calc.Calculate(&e, testNow)
	assert.Equal(t, first.Points, second.Points)
	assert.False(t, second.Changed)
}

func TestScoreAll_ReturnsOnlyChanged(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	a := activeEntry()
	a.Points = calc.Calculate(&a, testNow).Points
	b := activeEntry()
	b.HiveAuthor = "stale"

	changed, all := calc.ScoreAll([]models.LeaderboardEntry{a, b}, testNow)

	assert.Len(t, all, 2)
	require.Len(t, changed, 1)
	assert.Equal(t, "stale", changed[0].Entry.HiveAuthor)
}

func TestCalculateProperties(t *testing.T) {
	calc := NewCalculator(DefaultWeights())
	w := calc.Weights()
	properties := gopter.NewProperties(nil)

	balance := gen.Float64Range(0, 1e7)

	properties.Property("points are never negative", prop.ForAll(
		func(hive, hp, hbd, posts, nft, gnars, votes float64, witness bool, days int) bool {
			e := models.LeaderboardEntry{
				HiveAuthor:          "prop",
				HiveBalance:         hive,
				HPBalance:           hp,
				HBDSavingsBalance:   hbd,
				PostsScore:          posts,
				SkatehiveNFTBalance: nft,
				GnarsBalance:        gnars,
				GnarsVotes:          votes,
				HasVotedInWitness:   witness,
				LastPost:            daysAgo(days),
			}
			return calc.Calculate(&e, testNow).Points >= 0
		},
		balance, balance, balance, gen.Float64Range(-100, 1e5), gen.Float64Range(0, 50),
		balance, balance, gen.Bool(), gen.IntRange(0, 1000),
	))

	properties.Property("capped contributions never exceed cap x multiplier", prop.ForAll(
		func(v float64) bool {
			e := models.LeaderboardEntry{
				HiveBalance:       v,
				HPBalance:         v,
				HBDSavingsBalance: v,
				PostsScore:        v,
				GnarsBalance:      v,
			}
			b := calc.Calculate(&e, testNow).Breakdown
			return b.HiveBalance <= w.HiveBalance.Cap*w.HiveBalance.Multiplier &&
				b.HPBalance <= w.HPBalance.Cap*w.HPBalance.Multiplier &&
				b.HBDSavings <= w.HBDSavings.Cap*w.HBDSavings.Multiplier &&
				b.PostsScore <= w.PostsScore.Cap*w.PostsScore.Multiplier &&
				b.GnarsBalance <= w.GnarsBalance.Cap*w.GnarsBalance.Multiplier &&
				b.NFT <= 500
		},
		gen.Float64Range(0, 1e12),
	))

	properties.Property("scoring a stored result reports unchanged", prop.ForAll(
		func(hp, posts float64) bool {
			e := models.LeaderboardEntry{HPBalance: hp, PostsScore: posts, LastPost: daysAgo(3)}
			e.Points = calc.Calculate(&e, testNow).Points
			return !calc.Calculate(&e, testNow).Changed
		},
		balance, gen.Float64Range(0, 5000),
	))

	properties.TestingRun(t)
}

func TestLoadWeights(t *testing.T) {
	w, err := LoadWeights("v1", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", w.Version)

	_, err = LoadWeights("v3", "")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "weights.yaml")
	override := []byte(`
witness_penalty: -100
posts_score:
  cap: 6000
  multiplier: 2
  zero_penalty: -10
inactivity_tiers:
  - threshold: 365
    amount: 50
  - threshold: 14
    amount: 5
`)
	require.NoError(t, os.WriteFile(path, override, 0o600))

	w, err = LoadWeights("v2", path)
	require.NoError(t, err)
	assert.Equal(t, -100.0, w.WitnessPenalty)
	assert.Equal(t, FieldWeight{Cap: 6000, Multiplier: 2, ZeroPenalty: -10}, w.PostsScore)
	assert.Equal(t, 5000.0, w.WalletBonus, "untouched keys keep the built-in value")
	assert.Equal(t, []Tier{{Threshold: 14, Amount: 5}, {Threshold: 365, Amount: 50}}, w.InactivityTiers)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("hp_balance:\n  zero_penalty: 50\n"), 0o600))
	_, err = LoadWeights("v2", bad)
	assert.Error(t, err)
}
