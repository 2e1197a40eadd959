package models

import "time"

// AccountFacts are the per-user values read from the Hive account APIs.
// Vest amounts are raw; ChainProps converts them.
type AccountFacts struct {
	Username               string
	HiveBalance            float64
	HBDBalance             float64
	HBDSavingsBalance      float64
	VestingShares          float64
	DelegatedVestingShares float64
	ReceivedVestingShares  float64
	WitnessVotes           []string
	EthAddress             string // ZeroAddress when not linked
	LastPost               *time.Time
}

// EffectiveVests is own vests minus outgoing plus incoming delegations.
func (a *AccountFacts) EffectiveVests() float64 {
	v := a.VestingShares - a.DelegatedVestingShares + a.ReceivedVestingShares
	if v < 0 {
		return 0
	}
	return v
}

// VotedForWitness reports whether witness is among the account's witness votes.
func (a *AccountFacts) VotedForWitness(witness string) bool {
	for _, w := range a.WitnessVotes {
		if NormalizeAuthor(w) == NormalizeAuthor(witness) {
			return true
		}
	}
	return false
}

// ChainProps holds the global values needed to convert vests and voting power.
// Fetched once per cycle.
type ChainProps struct {
	TotalVestingFundHive float64
	TotalVestingShares   float64
	RewardBalance        float64 // reward fund "post", in HIVE
	RecentClaims         float64
	MedianPrice          float64 // USD per HIVE (base / quote of the median feed)
}

// VestsToHP converts vesting shares to Hive Power.
func (p ChainProps) VestsToHP(vests float64) float64 {
	if p.TotalVestingShares == 0 {
		return 0
	}
	return vests * p.TotalVestingFundHive / p.TotalVestingShares
}

// Full-mana upvote: 1e6 rshares per VEST at a 2% vote-power drain.
const (
	rsharesPerVest = 1e6
	fullVoteDrain  = 0.02
)

// VotingPowerUSD estimates the payout value of a 100% upvote cast with vests.
func (p ChainProps) VotingPowerUSD(vests float64) float64 {
	if p.RecentClaims == 0 || vests <= 0 {
		return 0
	}
	rshares := vests * rsharesPerVest * fullVoteDrain
	return rshares / p.RecentClaims * p.RewardBalance * p.MedianPrice
}

// EVMHoldings are the token and NFT balances of one linked address.
type EVMHoldings struct {
	GnarsBalance        float64
	GnarsVotes          float64
	SkatehiveNFTBalance float64
}

// ActivityStats is one author's weekly activity.
type ActivityStats struct {
	PostCount  int
	SnapsCount int
	PostsScore float64
}
