package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skatehive-leaderboard/internal/models"
)

func resetLeaderboard(t *testing.T, db *PostgresDB) {
	t.Helper()
	_, err := db.Pool().Exec(testContext(t), `TRUNCATE leaderboard, giveth_donations`)
	require.NoError(t, err)
}

func TestNewPostgresDB(t *testing.T) {
	db := openTestPostgres(t)

	require.NoError(t, db.Ping(testContext(t)))
	assert.NotNil(t, db.Pool())
}

func TestMinConns(t *testing.T) {
	assert.Equal(t, int32(5), minConns(20))
	assert.Equal(t, int32(2), minConns(4))
	assert.Equal(t, int32(0), minConns(1))
}

func TestLeaderboardRepository_BootstrapAndUpsert(t *testing.T) {
	db := openTestPostgres(t)
	resetLeaderboard(t, db)
	repo := NewLeaderboardRepository(db)
	ctx := testContext(t)

	n, err := repo.InsertBare(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Second bootstrap is a no-op.
	n, err = repo.InsertBare(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.Get(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, models.ZeroAddress, got.EthAddress)
	assert.Nil(t, got.LastUpdated)
	assert.Nil(t, got.LastPost)

	require.NoError(t, repo.UpdatePoints(ctx, []models.PointsUpdate{{HiveAuthor: "alice", Points: 77}}))

	posted := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	entry := models.NewBareEntry("alice")
	entry.HiveBalance = 12.5
	entry.PostsScore = 40
	entry.LastPost = &posted
	require.NoError(t, repo.Upsert(ctx, &entry))

	got, err = repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.HiveBalance)
	assert.Equal(t, 77, got.Points, "upsert keeps scored points")
	require.NotNil(t, got.LastUpdated)
	require.NotNil(t, got.LastPost)
	assert.True(t, posted.Equal(*got.LastPost))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[0].HiveAuthor, "never-refreshed rows sort first")
}

func TestLeaderboardRepository_DeleteAndDonations(t *testing.T) {
	db := openTestPostgres(t)
	resetLeaderboard(t, db)
	repo := NewLeaderboardRepository(db)
	donations := NewDonationRepository(db)
	ctx := testContext(t)

	_, err := repo.InsertBare(ctx, []string{"alice", "bob", "donator_0xabc"})
	require.NoError(t, err)

	_, err = db.Pool().Exec(ctx, `
		INSERT INTO giveth_donations (tx_hash, donor_address, hive_author, amount_usd)
		VALUES ('0x1', '0xabc', 'Alice', 10), ('0x2', '0xabc', 'alice', 15.5), ('0x3', '0xdef', NULL, 99)
	`)
	require.NoError(t, err)

	totals, err := donations.MatchedDonations(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"alice": 25.5}, totals)

	n, err := repo.MergeDonations(ctx, totals)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 25.5, got.GivethDonationsUSD)

	deleted, err := repo.Delete(ctx, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Get(ctx, "bob")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	deleted, err = repo.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
