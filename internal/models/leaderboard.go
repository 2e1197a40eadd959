package models

import (
	"strings"
	"time"
)

// ZeroAddress is stored in eth_address when no wallet is linked.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// DonatorPrefix marks synthetic rows created by the donation import.
const DonatorPrefix = "donator_"

// LeaderboardEntry is one persisted leaderboard row, keyed by HiveAuthor.
type LeaderboardEntry struct {
	HiveAuthor string `json:"hive_author" db:"hive_author"`

	HiveBalance       float64 `json:"hive_balance" db:"hive_balance"`
	HPBalance         float64 `json:"hp_balance" db:"hp_balance"`
	HBDBalance        float64 `json:"hbd_balance" db:"hbd_balance"`
	HBDSavingsBalance float64 `json:"hbd_savings_balance" db:"hbd_savings_balance"`

	HasVotedInWitness bool   `json:"has_voted_in_witness" db:"has_voted_in_witness"`
	EthAddress        string `json:"eth_address" db:"eth_address"`

	GnarsBalance        float64 `json:"gnars_balance" db:"gnars_balance"`
	GnarsVotes          float64 `json:"gnars_votes" db:"gnars_votes"`
	SkatehiveNFTBalance float64 `json:"skatehive_nft_balance" db:"skatehive_nft_balance"`

	MaxVotingPowerUSD float64 `json:"max_voting_power_usd" db:"max_voting_power_usd"`

	PostCount  int     `json:"post_count" db:"post_count"`
	SnapsCount int     `json:"snaps_count" db:"snaps_count"`
	PostsScore float64 `json:"posts_score" db:"posts_score"`

	GivethDonationsUSD float64 `json:"giveth_donations_usd" db:"giveth_donations_usd"`
	DelegatedCurator   float64 `json:"delegated_curator" db:"delegated_curator"`

	Points int `json:"points" db:"points"`

	LastUpdated *time.Time `json:"last_updated,omitempty" db:"last_updated"`
	LastPost    *time.Time `json:"last_post,omitempty" db:"last_post"`
}

// IsDonator reports whether the row is a synthetic donation row.
func (e *LeaderboardEntry) IsDonator() bool {
	return IsDonatorName(e.HiveAuthor)
}

// HasLinkedWallet reports whether a real EVM address is linked.
func (e *LeaderboardEntry) HasLinkedWallet() bool {
	return IsLinkedAddress(e.EthAddress)
}

// IsDonatorName reports whether name carries the donator prefix, ignoring case.
func IsDonatorName(name string) bool {
	return len(name) >= len(DonatorPrefix) && strings.EqualFold(name[:len(DonatorPrefix)], DonatorPrefix)
}

// IsLinkedAddress reports whether addr is a non-empty, non-sentinel address.
func IsLinkedAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr != "" && !strings.EqualFold(addr, ZeroAddress)
}

// NormalizeAuthor is the key used for case-insensitive roster comparisons.
func NormalizeAuthor(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewBareEntry returns the zero-valued row inserted for a first-seen subscriber.
func NewBareEntry(author string) LeaderboardEntry {
	return LeaderboardEntry{HiveAuthor: author, EthAddress: ZeroAddress}
}

// PointsUpdate is one row whose rounded points changed after scoring.
type PointsUpdate struct {
	HiveAuthor string
	Points     int
}
