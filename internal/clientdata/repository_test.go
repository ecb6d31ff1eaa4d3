package clientdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	prices := map[string]float64{"AAPL": 150.25, "MSFT": 300.10}
	require.NoError(t, repo.Store("quotes", "AAPL,MSFT", prices, TTLQuote))

	var got map[string]float64
	ok, err := repo.GetIfFresh("quotes", "AAPL,MSFT", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, prices, got)
}

func TestGetIfFresh_MissingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	var got map[string]float64
	ok, err := repo.GetIfFresh("quotes", "NOPE", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetIfFresh_Expired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("market_status", "US", true, -time.Second))

	var open bool
	ok, err := repo.GetIfFresh("market_status", "US", &open)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Overwrites(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("quotes", "AAPL", map[string]float64{"AAPL": 1}, TTLQuote))
	require.NoError(t, repo.Store("quotes", "AAPL", map[string]float64{"AAPL": 2}, TTLQuote))

	var got map[string]float64
	ok, err := repo.GetIfFresh("quotes", "AAPL", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(2), got["AAPL"])
}

func TestInvalidTableRejected(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	err := repo.Store("quotes; DROP TABLE quotes", "k", 1, time.Minute)
	assert.Error(t, err)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.Store("quotes", "stale", 1, -time.Minute))
	require.NoError(t, repo.Store("quotes", "fresh", 2, time.Minute))
	require.NoError(t, repo.Store("market_status", "US", true, -time.Minute))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["quotes"])
	assert.Equal(t, int64(1), results["market_status"])

	var v int
	ok, err := repo.GetIfFresh("quotes", "fresh", &v)
	require.NoError(t, err)
	assert.True(t, ok)
}
