// Package broker implements the paper-trading ledger: a cash balance and
// share positions mutated by simulated buys and sells at live quotes, a FIFO
// queue of orders deferred while the market is closed, and a daily OHLC
// history of total portfolio value.
package broker

import "errors"

var (
	// ErrEmptyOrder is returned when a trade request names no tickers.
	ErrEmptyOrder = errors.New("order contains no tickers")
	// ErrInvalidQuantity is returned when a requested share count is not a
	// positive integer. Shorting is not supported.
	ErrInvalidQuantity = errors.New("share count must be positive")
	// ErrIndexOutOfRange is returned by queue removal for an invalid position.
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

// Side distinguishes buy orders from sell orders.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a single holding: share count plus the weighted average
// per-share cost paid across all buys that built it up.
type Position struct {
	Shares    int64   `json:"shares"`
	CostBasis float64 `json:"cost_basis"`
}

// QueuedOrder is a deferred trade waiting for the market to open.
type QueuedOrder struct {
	ID    string           `json:"id"`
	Side  Side             `json:"side"`
	Items map[string]int64 `json:"items"`
}

// Candle holds the open/high/low/close of portfolio value for one day.
type Candle struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// State is the full ledger aggregate. It is the unit of persistence: the
// snapshot store saves and loads it wholesale.
type State struct {
	Balance   float64             `json:"balance"`
	Positions map[string]Position `json:"positions"`
	History   History             `json:"history"`
	Queue     OrderQueue          `json:"queue"`
}

// DefaultState returns a fresh ledger with the given starting balance and
// nothing else. Used at first boot and when a stored snapshot is unreadable.
func DefaultState(startingBalance float64) State {
	return State{
		Balance:   startingBalance,
		Positions: make(map[string]Position),
		History:   make(History),
		Queue:     nil,
	}
}

// Clone returns a deep copy of the state, safe to hand to callers or to the
// snapshot store while the ledger keeps mutating.
func (s State) Clone() State {
	out := State{
		Balance:   s.Balance,
		Positions: make(map[string]Position, len(s.Positions)),
		History:   make(History, len(s.History)),
		Queue:     s.Queue.Peek(),
	}
	for ticker, pos := range s.Positions {
		out.Positions[ticker] = pos
	}
	for date, candle := range s.History {
		out.History[date] = candle
	}
	return out
}
