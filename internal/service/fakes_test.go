package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/scoring"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func at(hoursAgo int) *time.Time {
	t := testNow.Add(-time.Duration(hoursAgo) * time.Hour)
	return &t
}

// memoryStore is an in-memory LeaderboardStore.
type memoryStore struct {
	mu            sync.Mutex
	rows          map[string]models.LeaderboardEntry
	deleteCalls   [][]string
	upserts       int
	pointWrites   []models.PointsUpdate
	failUpsert    bool
	failUpsertFor map[string]bool
	failGetAll    bool
	failPoints    bool
	failDelete    bool
	mergedTotals  map[string]float64
}

func newMemoryStore(rows ...models.LeaderboardEntry) *memoryStore {
	s := &memoryStore{rows: map[string]models.LeaderboardEntry{}}
	for _, r := range rows {
		s.rows[r.HiveAuthor] = r
	}
	return s
}

func (s *memoryStore) GetAll(ctx context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetAll {
		return nil, apperrors.NewPersistenceError("read leaderboard", errors.New("connection refused"))
	}
	out := make([]models.LeaderboardEntry, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HiveAuthor < out[j].HiveAuthor })
	return out, nil
}

func (s *memoryStore) Upsert(ctx context.Context, e *models.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert || s.failUpsertFor[e.HiveAuthor] {
		return apperrors.NewPersistenceError("upsert "+e.HiveAuthor, errors.New("disk full"))
	}
	s.upserts++
	if prev, ok := s.rows[e.HiveAuthor]; ok {
		e.Points = prev.Points
		e.GivethDonationsUSD = prev.GivethDonationsUSD
	}
	s.rows[e.HiveAuthor] = *e
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, authors []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return 0, apperrors.NewPersistenceError("delete", errors.New("locked"))
	}
	s.deleteCalls = append(s.deleteCalls, authors)
	var n int64
	for _, a := range authors {
		if _, ok := s.rows[a]; ok {
			delete(s.rows, a)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) InsertBare(ctx context.Context, authors []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range authors {
		if _, ok := s.rows[a]; !ok {
			s.rows[a] = models.NewBareEntry(a)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) UpdatePoints(ctx context.Context, updates []models.PointsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPoints {
		return apperrors.NewPersistenceError("update points", errors.New("timeout"))
	}
	for _, u := range updates {
		r := s.rows[u.HiveAuthor]
		r.Points = u.Points
		s.rows[u.HiveAuthor] = r
	}
	s.pointWrites = append(s.pointWrites, updates...)
	return nil
}

func (s *memoryStore) MergeDonations(ctx context.Context, totals map[string]float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergedTotals = totals
	var n int64
	for author, r := range s.rows {
		if usd, ok := totals[models.NormalizeAuthor(author)]; ok {
			r.GivethDonationsUSD = usd
			s.rows[author] = r
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) get(author string) models.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[author]
}

// fakeHive serves roster and account reads from tables.
type fakeHive struct {
	mu          sync.Mutex
	roster      []string
	rosterErr   error
	accounts    map[string]*models.AccountFacts
	accountErr  map[string]error
	delegations map[string]float64
	delegErr    error
	props       models.ChainProps
	propsErr    error
	accountHits int
}

func newFakeHive(roster ...string) *fakeHive {
	h := &fakeHive{
		roster:      roster,
		accounts:    map[string]*models.AccountFacts{},
		accountErr:  map[string]error{},
		delegations: map[string]float64{},
		props: models.ChainProps{
			TotalVestingFundHive: 1000,
			TotalVestingShares:   2000000,
			RewardBalance:        800000,
			RecentClaims:         4e17,
			MedianPrice:          0.25,
		},
	}
	for _, name := range roster {
		h.accounts[name] = &models.AccountFacts{Username: name, EthAddress: models.ZeroAddress}
	}
	return h
}

func (h *fakeHive) ListSubscribers(ctx context.Context, community string) ([]string, error) {
	if h.rosterErr != nil {
		return nil, h.rosterErr
	}
	return h.roster, nil
}

func (h *fakeHive) GetAccountInfo(ctx context.Context, username string) (*models.AccountFacts, error) {
	h.mu.Lock()
	h.accountHits++
	h.mu.Unlock()
	if err := h.accountErr[username]; err != nil {
		return nil, err
	}
	f, ok := h.accounts[username]
	if !ok {
		return nil, apperrors.NewNotFoundError("hive account", username)
	}
	cp := *f
	return &cp, nil
}

func (h *fakeHive) GetCuratorDelegation(ctx context.Context, delegator, curator string) (float64, error) {
	if h.delegErr != nil {
		return 0, h.delegErr
	}
	return h.delegations[delegator], nil
}

func (h *fakeHive) GetChainProps(ctx context.Context) (models.ChainProps, error) {
	return h.props, h.propsErr
}

type fakeHoldings struct {
	mu      sync.Mutex
	enabled bool
	byAddr  map[string]models.EVMHoldings
	err     error
	calls   int
}

func (f *fakeHoldings) Enabled() bool { return f.enabled }

func (f *fakeHoldings) GetHoldings(ctx context.Context, ethAddress string) (models.EVMHoldings, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return models.EVMHoldings{}, f.err
	}
	return f.byAddr[ethAddress], nil
}

type fakeActivity struct {
	stats map[string]models.ActivityStats
	err   error
	since time.Time
}

func (f *fakeActivity) WeeklyActivity(ctx context.Context, community string, since time.Time) (map[string]models.ActivityStats, error) {
	f.since = since
	return f.stats, f.err
}

type fakeDonations struct {
	totals map[string]float64
	err    error
}

func (f *fakeDonations) MatchedDonations(ctx context.Context) (map[string]float64, error) {
	return f.totals, f.err
}

type fakeHistory struct {
	cycles []uuid.UUID
	rows   int
}

func (f *fakeHistory) Record(ctx context.Context, cycleID uuid.UUID, recordedAt time.Time, scored []scoring.Scored) error {
	f.cycles = append(f.cycles, cycleID)
	f.rows += len(scored)
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, name string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if f.held {
		return "", false, nil
	}
	f.held = true
	return "token", true, nil
}

func (f *fakeLocker) Release(ctx context.Context, name, token string) error {
	f.held = false
	f.released++
	return nil
}
