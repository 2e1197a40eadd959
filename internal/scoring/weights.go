// Package scoring turns a leaderboard row into its integer point value.
//
// The calculator is pure: given the same row, weights and clock it always
// returns the same result. All weights live in a single Weights value so the
// table can be swapped (v1/v2) or loaded from YAML without code changes.
package scoring

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldWeight describes how one numeric field contributes.
// A zero Cap means uncapped. ZeroPenalty is applied when the raw value is
// exactly zero and is expected to be negative (or zero to disable).
type FieldWeight struct {
	Cap         float64 `yaml:"cap"`
	Multiplier  float64 `yaml:"multiplier"`
	ZeroPenalty float64 `yaml:"zero_penalty"`
}

// Capped returns v limited to the field's ceiling.
func (w FieldWeight) Capped(v float64) float64 {
	if w.Cap > 0 && v > w.Cap {
		return w.Cap
	}
	return v
}

// Tier maps a threshold to a flat amount.
type Tier struct {
	Threshold float64 `yaml:"threshold"`
	Amount    float64 `yaml:"amount"`
}

// Weights is the complete scoring table.
type Weights struct {
	Version string `yaml:"version"`

	HiveBalance  FieldWeight `yaml:"hive_balance"`
	HPBalance    FieldWeight `yaml:"hp_balance"`
	HBDSavings   FieldWeight `yaml:"hbd_savings_balance"`
	PostsScore   FieldWeight `yaml:"posts_score"`
	SkatehiveNFT FieldWeight `yaml:"skatehive_nft_balance"`
	GnarsBalance FieldWeight `yaml:"gnars_balance"`
	GnarsVotes   FieldWeight `yaml:"gnars_votes"`
	VotingPower  FieldWeight `yaml:"max_voting_power_usd"`
	Delegation   FieldWeight `yaml:"delegated_curator"`

	WitnessBonus   float64 `yaml:"witness_bonus"`
	WitnessPenalty float64 `yaml:"witness_penalty"`

	WalletBonus   float64 `yaml:"wallet_bonus"`
	WalletPenalty float64 `yaml:"wallet_penalty"`

	// NFTTiers replace the linear NFT term; the highest matching threshold wins.
	NFTTiers []Tier `yaml:"nft_tiers"`

	DonationCapUSD     float64 `yaml:"donation_cap_usd"`
	DonationMultiplier float64 `yaml:"donation_multiplier"`

	// InactivityTiers are keyed by days since last post; the highest
	// matching threshold wins and its amount is subtracted.
	InactivityTiers []Tier `yaml:"inactivity_tiers"`
}

// DefaultWeights returns the canonical (v2) table.
func DefaultWeights() Weights {
	return Weights{
		Version:      "v2",
		HiveBalance:  FieldWeight{Cap: 1000, Multiplier: 0.1, ZeroPenalty: -1000},
		HPBalance:    FieldWeight{Cap: 12000, Multiplier: 0.5, ZeroPenalty: -5000},
		HBDSavings:   FieldWeight{Cap: 1000, Multiplier: 0.2, ZeroPenalty: -200},
		PostsScore:   FieldWeight{Cap: 3000, Multiplier: 1.0, ZeroPenalty: -7000},
		SkatehiveNFT: FieldWeight{Cap: 5, ZeroPenalty: -900},
		GnarsBalance: FieldWeight{Cap: 50, Multiplier: 30},
		GnarsVotes:   FieldWeight{Multiplier: 10, ZeroPenalty: -300},
		VotingPower:  FieldWeight{Multiplier: 1000},
		Delegation:   FieldWeight{Multiplier: 0.5},

		WitnessBonus:   1000,
		WitnessPenalty: -3500,
		WalletBonus:    5000,
		WalletPenalty:  0,

		NFTTiers: []Tier{{Threshold: 1, Amount: 100}, {Threshold: 5, Amount: 500}},

		DonationCapUSD:     1000,
		DonationMultiplier: 5,

		InactivityTiers: []Tier{
			{Threshold: 30, Amount: 100},
			{Threshold: 60, Amount: 500},
			{Threshold: 90, Amount: 1000},
			{Threshold: 365, Amount: 2000},
		},
	}
}

// LegacyWeights returns the v1 table used by the per-user refresh route.
// Lower caps, heavier HIVE weighting and milder zero penalties.
func LegacyWeights() Weights {
	return Weights{
		Version:      "v1",
		HiveBalance:  FieldWeight{Cap: 500, Multiplier: 1.0, ZeroPenalty: -500},
		HPBalance:    FieldWeight{Cap: 5000, Multiplier: 0.5, ZeroPenalty: -1000},
		HBDSavings:   FieldWeight{Cap: 500, Multiplier: 0.5, ZeroPenalty: -100},
		PostsScore:   FieldWeight{Cap: 3000, Multiplier: 1.0, ZeroPenalty: -1000},
		SkatehiveNFT: FieldWeight{Cap: 5, ZeroPenalty: -500},
		GnarsBalance: FieldWeight{Cap: 50, Multiplier: 30},
		GnarsVotes:   FieldWeight{Multiplier: 10, ZeroPenalty: -100},
		VotingPower:  FieldWeight{Multiplier: 1000},
		Delegation:   FieldWeight{Multiplier: 0.5},

		WitnessBonus:   1000,
		WitnessPenalty: -1000,
		WalletBonus:    5000,
		WalletPenalty:  0,

		NFTTiers: []Tier{{Threshold: 1, Amount: 100}, {Threshold: 5, Amount: 500}},

		DonationCapUSD:     1000,
		DonationMultiplier: 5,

		InactivityTiers: []Tier{
			{Threshold: 30, Amount: 100},
			{Threshold: 60, Amount: 500},
			{Threshold: 90, Amount: 1000},
			{Threshold: 365, Amount: 2000},
		},
	}
}

// WeightsFor returns the built-in table for a version name.
func WeightsFor(version string) (Weights, error) {
	switch version {
	case "", "v2":
		return DefaultWeights(), nil
	case "v1":
		return LegacyWeights(), nil
	default:
		return Weights{}, fmt.Errorf("unknown weight table %q", version)
	}
}

// LoadWeights starts from the named built-in table and overlays path when set.
// Keys absent from the file keep the built-in value.
func LoadWeights(version, path string) (Weights, error) {
	w, err := WeightsFor(version)
	if err != nil {
		return Weights{}, err
	}
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("parse weights file %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, fmt.Errorf("weights file %s: %w", path, err)
	}
	return w, nil
}

// Validate rejects negative caps and tier amounts and positive zero penalties.
func (w *Weights) Validate() error {
	fields := map[string]FieldWeight{
		"hive_balance":          w.HiveBalance,
		"hp_balance":            w.HPBalance,
		"hbd_savings_balance":   w.HBDSavings,
		"posts_score":           w.PostsScore,
		"skatehive_nft_balance": w.SkatehiveNFT,
		"gnars_balance":         w.GnarsBalance,
		"gnars_votes":           w.GnarsVotes,
		"max_voting_power_usd":  w.VotingPower,
		"delegated_curator":     w.Delegation,
	}
	for name, f := range fields {
		if f.Cap < 0 {
			return fmt.Errorf("%s: cap cannot be negative", name)
		}
		if f.ZeroPenalty > 0 {
			return fmt.Errorf("%s: zero penalty must not be positive", name)
		}
	}
	if w.DonationCapUSD < 0 {
		return fmt.Errorf("donation cap cannot be negative")
	}
	for _, t := range w.InactivityTiers {
		if t.Amount < 0 {
			return fmt.Errorf("inactivity tier %v: amount must be a positive deduction", t.Threshold)
		}
	}
	sortTiers(w.NFTTiers)
	sortTiers(w.InactivityTiers)
	return nil
}

func sortTiers(tiers []Tier) {
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })
}

// tierAmount returns the amount of the highest tier whose threshold v reaches.
func tierAmount(tiers []Tier, v float64) float64 {
	amount := 0.0
	best := -1.0
	for _, t := range tiers {
		if v >= t.Threshold && t.Threshold > best {
			best = t.Threshold
			amount = t.Amount
		}
	}
	return amount
}

// maxTierAmount returns the amount of the highest threshold.
func maxTierAmount(tiers []Tier) float64 {
	amount := 0.0
	best := -1.0
	for _, t := range tiers {
		if t.Threshold > best {
			best = t.Threshold
			amount = t.Amount
		}
	}
	return amount
}
