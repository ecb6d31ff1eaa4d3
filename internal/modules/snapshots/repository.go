// Package snapshots persists the full ledger aggregate to SQLite. Every save
// replaces the previous snapshot wholesale inside one transaction, so a
// reader never observes a half-written state.
package snapshots

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/database"
	"github.com/stonksbot/stonks/internal/modules/broker"
)

// Schema defines the snapshot tables. The balance table is constrained to a
// single row; the queue table keeps drain order in an explicit position column.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_balance (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    balance REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_positions (
    ticker TEXT PRIMARY KEY,
    shares INTEGER NOT NULL,
    cost_basis REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_history (
    date TEXT PRIMARY KEY,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_queue (
    position INTEGER PRIMARY KEY,
    order_id TEXT NOT NULL,
    side TEXT NOT NULL,
    items TEXT NOT NULL
);
`

// Repository stores and loads ledger snapshots.
type Repository struct {
	db              *sql.DB
	startingBalance float64
	log             zerolog.Logger
}

// NewRepository creates a snapshot repository. startingBalance seeds the
// default state returned when no usable snapshot exists.
func NewRepository(db *sql.DB, startingBalance float64, log zerolog.Logger) *Repository {
	return &Repository{
		db:              db,
		startingBalance: startingBalance,
		log:             log.With().Str("repo", "snapshots").Logger(),
	}
}

// InitSchema creates the snapshot tables if they do not exist.
func (r *Repository) InitSchema() error {
	if _, err := r.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with the given state.
func (r *Repository) Save(state broker.State) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"ledger_balance", "ledger_positions", "ledger_history", "ledger_queue"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if _, err := tx.Exec("INSERT INTO ledger_balance (id, balance) VALUES (1, ?)", state.Balance); err != nil {
			return fmt.Errorf("failed to save balance: %w", err)
		}

		for ticker, pos := range state.Positions {
			if _, err := tx.Exec(
				"INSERT INTO ledger_positions (ticker, shares, cost_basis) VALUES (?, ?, ?)",
				ticker, pos.Shares, pos.CostBasis,
			); err != nil {
				return fmt.Errorf("failed to save position %s: %w", ticker, err)
			}
		}

		for date, candle := range state.History {
			if _, err := tx.Exec(
				"INSERT INTO ledger_history (date, open, high, low, close) VALUES (?, ?, ?, ?, ?)",
				date, candle.Open, candle.High, candle.Low, candle.Close,
			); err != nil {
				return fmt.Errorf("failed to save history for %s: %w", date, err)
			}
		}

		for i, order := range state.Queue {
			items, err := json.Marshal(order.Items)
			if err != nil {
				return fmt.Errorf("failed to encode queued order %s: %w", order.ID, err)
			}
			if _, err := tx.Exec(
				"INSERT INTO ledger_queue (position, order_id, side, items) VALUES (?, ?, ?, ?)",
				i, order.ID, string(order.Side), string(items),
			); err != nil {
				return fmt.Errorf("failed to save queued order %s: %w", order.ID, err)
			}
		}

		return nil
	})
}

// Load returns the stored snapshot, or the default state when none exists or
// the stored data cannot be read. Load failures are never fatal at startup;
// they are logged and the ledger starts fresh.
func (r *Repository) Load() broker.State {
	state, err := r.load()
	if err != nil {
		r.log.Warn().Err(err).Msg("Could not load ledger snapshot, starting from defaults")
		return broker.DefaultState(r.startingBalance)
	}
	return state
}

func (r *Repository) load() (broker.State, error) {
	state := broker.DefaultState(r.startingBalance)

	err := r.db.QueryRow("SELECT balance FROM ledger_balance WHERE id = 1").Scan(&state.Balance)
	if err == sql.ErrNoRows {
		// First boot, nothing saved yet.
		return state, nil
	}
	if err != nil {
		return broker.State{}, fmt.Errorf("failed to load balance: %w", err)
	}

	rows, err := r.db.Query("SELECT ticker, shares, cost_basis FROM ledger_positions")
	if err != nil {
		return broker.State{}, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticker string
		var pos broker.Position
		if err := rows.Scan(&ticker, &pos.Shares, &pos.CostBasis); err != nil {
			return broker.State{}, fmt.Errorf("failed to scan position: %w", err)
		}
		state.Positions[ticker] = pos
	}
	if err := rows.Err(); err != nil {
		return broker.State{}, fmt.Errorf("error iterating positions: %w", err)
	}

	histRows, err := r.db.Query("SELECT date, open, high, low, close FROM ledger_history")
	if err != nil {
		return broker.State{}, fmt.Errorf("failed to load history: %w", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var date string
		var candle broker.Candle
		if err := histRows.Scan(&date, &candle.Open, &candle.High, &candle.Low, &candle.Close); err != nil {
			return broker.State{}, fmt.Errorf("failed to scan history record: %w", err)
		}
		state.History[date] = candle
	}
	if err := histRows.Err(); err != nil {
		return broker.State{}, fmt.Errorf("error iterating history: %w", err)
	}

	queueRows, err := r.db.Query("SELECT order_id, side, items FROM ledger_queue ORDER BY position ASC")
	if err != nil {
		return broker.State{}, fmt.Errorf("failed to load queue: %w", err)
	}
	defer queueRows.Close()
	for queueRows.Next() {
		var order broker.QueuedOrder
		var side, items string
		if err := queueRows.Scan(&order.ID, &side, &items); err != nil {
			return broker.State{}, fmt.Errorf("failed to scan queued order: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &order.Items); err != nil {
			return broker.State{}, fmt.Errorf("failed to decode queued order %s: %w", order.ID, err)
		}
		order.Side = broker.Side(side)
		state.Queue = append(state.Queue, order)
	}
	if err := queueRows.Err(); err != nil {
		return broker.State{}, fmt.Errorf("error iterating queue: %w", err)
	}

	return state, nil
}
