package scoring

import (
	"math"
	"time"

	"github.com/skatehive-leaderboard/internal/models"
)

// Breakdown lists every term that went into a score.
// Penalties are stored as signed values; Inactivity is the positive amount subtracted.
type Breakdown struct {
	HiveBalance  float64 `json:"hive_balance"`
	HPBalance    float64 `json:"hp_balance"`
	HBDSavings   float64 `json:"hbd_savings_balance"`
	PostsScore   float64 `json:"posts_score"`
	GnarsBalance float64 `json:"gnars_balance"`
	GnarsVotes   float64 `json:"gnars_votes"`
	VotingPower  float64 `json:"max_voting_power_usd"`
	Delegation   float64 `json:"delegated_curator"`
	NFT          float64 `json:"skatehive_nft"`
	Witness      float64 `json:"witness"`
	Wallet       float64 `json:"wallet"`
	Donations    float64 `json:"donations"`
	ZeroPenalty  float64 `json:"zero_penalty"`
	Inactivity   float64 `json:"inactivity"`
	// InactiveDays is -1 when the user never posted.
	InactiveDays int `json:"inactive_days"`

	// RawTotal is the sum before floor substitution.
	RawTotal float64 `json:"raw_total"`
	// FloorApplied is set when RawTotal <= 0 and posts_score was used instead.
	FloorApplied bool `json:"floor_applied"`
}

// Result is the outcome of scoring one row.
type Result struct {
	Points    int
	Changed   bool // Points differs from the stored value
	Breakdown Breakdown
}

// Calculator computes points from a fixed weight table.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator for the given weights.
func NewCalculator(w Weights) *Calculator {
	sortTiers(w.NFTTiers)
	sortTiers(w.InactivityTiers)
	return &Calculator{weights: w}
}

// Weights returns the table in use.
func (c *Calculator) Weights() Weights {
	return c.weights
}

// Calculate scores one row as of now. It does no I/O.
func (c *Calculator) Calculate(e *models.LeaderboardEntry, now time.Time) Result {
	w := c.weights
	var b Breakdown

	b.HiveBalance = w.HiveBalance.Capped(e.HiveBalance) * w.HiveBalance.Multiplier
	b.HPBalance = w.HPBalance.Capped(e.HPBalance) * w.HPBalance.Multiplier
	b.HBDSavings = w.HBDSavings.Capped(e.HBDSavingsBalance) * w.HBDSavings.Multiplier
	b.PostsScore = w.PostsScore.Capped(e.PostsScore) * w.PostsScore.Multiplier
	b.GnarsBalance = w.GnarsBalance.Capped(e.GnarsBalance) * w.GnarsBalance.Multiplier
	b.GnarsVotes = w.GnarsVotes.Capped(e.GnarsVotes) * w.GnarsVotes.Multiplier
	b.VotingPower = w.VotingPower.Capped(e.MaxVotingPowerUSD) * w.VotingPower.Multiplier
	b.Delegation = w.Delegation.Capped(e.DelegatedCurator) * w.Delegation.Multiplier

	// Tiered override, replaces the linear NFT term.
	b.NFT = tierAmount(w.NFTTiers, w.SkatehiveNFT.Capped(e.SkatehiveNFTBalance))

	if e.HasVotedInWitness {
		b.Witness = w.WitnessBonus
	} else {
		b.Witness = w.WitnessPenalty
	}

	if e.HasLinkedWallet() && !e.IsDonator() {
		b.Wallet = w.WalletBonus
	} else {
		b.Wallet = w.WalletPenalty
	}

	b.Donations = math.Min(e.GivethDonationsUSD, w.DonationCapUSD) * w.DonationMultiplier
	if b.Donations < 0 {
		b.Donations = 0
	}

	b.ZeroPenalty = zeroPenalty(w.HiveBalance, e.HiveBalance) +
		zeroPenalty(w.HPBalance, e.HPBalance) +
		zeroPenalty(w.GnarsVotes, e.GnarsVotes) +
		zeroPenalty(w.SkatehiveNFT, e.SkatehiveNFTBalance) +
		zeroPenalty(w.HBDSavings, e.HBDSavingsBalance) +
		zeroPenalty(w.PostsScore, e.PostsScore)

	b.InactiveDays, b.Inactivity = c.inactivity(e.LastPost, now)

	b.RawTotal = b.HiveBalance + b.HPBalance + b.HBDSavings + b.PostsScore +
		b.GnarsBalance + b.GnarsVotes + b.VotingPower + b.Delegation +
		b.NFT + b.Witness + b.Wallet + b.Donations + b.ZeroPenalty - b.Inactivity

	value := b.RawTotal
	if value <= 0 {
		value = e.PostsScore
		b.FloorApplied = true
	}

	points := int(math.Max(math.Round(value), 0))

	return Result{
		Points:    points,
		Changed:   points != e.Points,
		Breakdown: b,
	}
}

// inactivity returns whole days since lastPost and the deduction for it.
func (c *Calculator) inactivity(lastPost *time.Time, now time.Time) (int, float64) {
	if lastPost == nil || lastPost.IsZero() {
		return -1, maxTierAmount(c.weights.InactivityTiers)
	}
	days := int(now.Sub(*lastPost).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, tierAmount(c.weights.InactivityTiers, float64(days))
}

func zeroPenalty(w FieldWeight, raw float64) float64 {
	if raw == 0 {
		return w.ZeroPenalty
	}
	return 0
}

// Scored pairs a row with its result.
type Scored struct {
	Entry  *models.LeaderboardEntry
	Result Result
}

// ScoreAll scores every row and returns only those whose points changed.
func (c *Calculator) ScoreAll(rows []models.LeaderboardEntry, now time.Time) (changed []Scored, all []Scored) {
	all = make([]Scored, 0, len(rows))
	for i := range rows {
		s := Scored{Entry: &rows[i], Result: c.Calculate(&rows[i], now)}
		all = append(all, s)
		if s.Result.Changed {
			changed = append(changed, s)
		}
	}
	return changed, all
}
