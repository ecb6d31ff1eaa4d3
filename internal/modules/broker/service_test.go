package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuotes struct {
	prices map[string]float64
	err    error
	calls  int
}

func (s *stubQuotes) GetPrices(tickers []string) (map[string]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64)
	for _, t := range tickers {
		if p, ok := s.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

type stubClock struct {
	open bool
	err  error
}

func (s *stubClock) IsOpen() (bool, error) { return s.open, s.err }

type stubStore struct {
	saves []State
	err   error
}

func (s *stubStore) Save(state State) error {
	s.saves = append(s.saves, state)
	return s.err
}

func newTestService(t *testing.T, balance float64, quotes *stubQuotes, clock *stubClock, store *stubStore) *Service {
	t.Helper()
	svc := NewService(DefaultState(balance), quotes, clock, store, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestBuy_FillAndCostBasis(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 150}}
	store := &stubStore{}
	svc := newTestService(t, 1_000_000, quotes, &stubClock{open: true}, store)

	lines, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)
	require.Equal(t, []string{"Bought 10 shares of AAPL at $150.00 each."}, lines)

	assert.Equal(t, 1_000_000-1500.0, svc.Balance())
	assert.Equal(t, Position{Shares: 10, CostBasis: 150}, svc.Positions()["AAPL"])

	// A second buy at a higher price averages the cost basis.
	quotes.prices["AAPL"] = 170
	_, err = svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)

	pos := svc.Positions()["AAPL"]
	assert.Equal(t, int64(20), pos.Shares)
	assert.InDelta(t, 160.0, pos.CostBasis, 1e-9)
	assert.Len(t, store.saves, 2)
}

func TestBuy_InsufficientFundsSkipsTicker(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100, "BRK.A": 600_000}}
	svc := newTestService(t, 1000, quotes, &stubClock{open: true}, &stubStore{})

	lines, err := svc.Buy(map[string]int64{"AAPL": 5, "BRK.A": 1})
	require.NoError(t, err)

	// Tickers fill in lexicographic order; the unaffordable one is reported
	// without touching its sibling.
	require.Equal(t, []string{
		"Bought 5 shares of AAPL at $100.00 each.",
		"Cannot afford 1 shares of BRK.A.",
	}, lines)
	assert.Equal(t, 500.0, svc.Balance())
	_, held := svc.Positions()["BRK.A"]
	assert.False(t, held)
}

func TestBuy_CostEqualToBalanceRejected(t *testing.T) {
	// Affordability is a strict comparison against the running balance.
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 1000, quotes, &stubClock{open: true}, &stubStore{})

	lines, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cannot afford 10 shares of AAPL."}, lines)
	assert.Equal(t, 1000.0, svc.Balance())
}

func TestBuy_RunningBalanceAcrossTickers(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 600, "MSFT": 600}}
	svc := newTestService(t, 1000, quotes, &stubClock{open: true}, &stubStore{})

	lines, err := svc.Buy(map[string]int64{"AAPL": 1, "MSFT": 1})
	require.NoError(t, err)

	// AAPL fills first and drains the balance below MSFT's cost.
	assert.Equal(t, []string{
		"Bought 1 shares of AAPL at $600.00 each.",
		"Cannot afford 1 shares of MSFT.",
	}, lines)
	assert.Equal(t, 400.0, svc.Balance())
}

func TestBuy_MissingQuoteReportedNotFatal(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 10_000, quotes, &stubClock{open: true}, &stubStore{})

	lines, err := svc.Buy(map[string]int64{"AAPL": 1, "NOSUCH": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Bought 1 shares of AAPL at $100.00 each.",
		"No quote available for NOSUCH.",
	}, lines)
}

func TestTrade_InputValidation(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 1000, quotes, &stubClock{open: true}, &stubStore{})

	_, err := svc.Buy(nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = svc.Sell(map[string]int64{"AAPL": 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Buy(map[string]int64{"AAPL": -3})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// Validation failures never reach the quote source.
	assert.Equal(t, 0, quotes.calls)
	assert.Equal(t, 1000.0, svc.Balance())
}

func TestSell_FillOversellAndUnowned(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100, "MSFT": 200, "GME": 50}}
	svc := newTestService(t, 100_000, quotes, &stubClock{open: true}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)
	balanceAfterBuy := svc.Balance()

	lines, err := svc.Sell(map[string]int64{"AAPL": 4, "GME": 1, "MSFT": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Sold 4 shares of AAPL at $100.00 each.",
		"You do not own GME.",
		"You do not own MSFT.",
	}, lines)
	assert.Equal(t, balanceAfterBuy+400, svc.Balance())
	assert.Equal(t, int64(6), svc.Positions()["AAPL"].Shares)

	lines, err = svc.Sell(map[string]int64{"AAPL": 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"You have 6 shares of AAPL but tried to sell 10 shares."}, lines)
	assert.Equal(t, int64(6), svc.Positions()["AAPL"].Shares)
}

func TestSell_ExactSharesDeletesPosition(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 100_000, quotes, &stubClock{open: true}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)

	_, err = svc.Sell(map[string]int64{"AAPL": 10})
	require.NoError(t, err)

	_, held := svc.Positions()["AAPL"]
	assert.False(t, held, "position should be removed entirely at zero shares")
}

func TestTrade_ClosedMarketQueues(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"MSFT": 300}}
	store := &stubStore{}
	svc := newTestService(t, 1_000_000, quotes, &stubClock{open: false}, store)

	lines, err := svc.Buy(map[string]int64{"MSFT": 5})
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, "Market is closed. Order added to the queue for execution at market open.", lines[0])
	assert.Equal(t, "MSFT x5 at approximately $300.00 each.", lines[1])

	// No balance or position change, queue grows by one, snapshot taken.
	assert.Equal(t, 1_000_000.0, svc.Balance())
	assert.Empty(t, svc.Positions())
	require.Len(t, svc.Queue(), 1)
	assert.Equal(t, SideBuy, svc.Queue()[0].Side)
	assert.NotEmpty(t, svc.Queue()[0].ID)
	assert.Len(t, store.saves, 1)
}

func TestExecuteQueue_DrainsFIFO(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"MSFT": 300, "AAPL": 100}}
	clock := &stubClock{open: false}
	svc := newTestService(t, 1_000_000, quotes, clock, &stubStore{})

	_, err := svc.Buy(map[string]int64{"MSFT": 5})
	require.NoError(t, err)
	_, err = svc.Buy(map[string]int64{"AAPL": 2})
	require.NoError(t, err)
	require.Len(t, svc.Queue(), 2)

	clock.open = true
	lines, err := svc.ExecuteQueue()
	require.NoError(t, err)

	// Same effects as submitting both orders while open, in queue order.
	assert.Equal(t, []string{
		"Bought 5 shares of MSFT at $300.00 each.",
		"Bought 2 shares of AAPL at $100.00 each.",
	}, lines)
	assert.Empty(t, svc.Queue())
	assert.Equal(t, 1_000_000-1500.0-200.0, svc.Balance())
}

func TestExecuteQueue_ClosedMarketNoOp(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"MSFT": 300}}
	svc := newTestService(t, 1_000_000, quotes, &stubClock{open: false}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"MSFT": 5})
	require.NoError(t, err)

	lines, err := svc.ExecuteQueue()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Len(t, svc.Queue(), 1)
	assert.Equal(t, 1_000_000.0, svc.Balance())
}

func TestExecuteQueue_QuoteFailureKeepsRemainder(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"MSFT": 300, "AAPL": 100}}
	clock := &stubClock{open: false}
	svc := newTestService(t, 1_000_000, quotes, clock, &stubStore{})

	_, err := svc.Buy(map[string]int64{"MSFT": 5})
	require.NoError(t, err)
	_, err = svc.Buy(map[string]int64{"AAPL": 2})
	require.NoError(t, err)

	clock.open = true
	quotes.err = errors.New("provider down")
	_, err = svc.ExecuteQueue()
	require.Error(t, err)

	// Nothing applied, both orders still queued in order.
	require.Len(t, svc.Queue(), 2)
	assert.Equal(t, 1_000_000.0, svc.Balance())
}

func TestRemoveOrder(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"MSFT": 300, "AAPL": 100}}
	svc := newTestService(t, 1_000_000, quotes, &stubClock{open: false}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"MSFT": 5})
	require.NoError(t, err)
	_, err = svc.Sell(map[string]int64{"AAPL": 2})
	require.NoError(t, err)

	order, err := svc.RemoveOrder(0)
	require.NoError(t, err)
	assert.Equal(t, SideBuy, order.Side)
	assert.Equal(t, int64(5), order.Items["MSFT"])

	require.Len(t, svc.Queue(), 1)
	assert.Equal(t, SideSell, svc.Queue()[0].Side)

	_, err = svc.RemoveOrder(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestGetValue_RecordsHistory(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 100_000, quotes, &stubClock{open: true}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)

	total, err := svc.GetValue()
	require.NoError(t, err)
	// Cash went down by the cost, holdings are worth the same amount back.
	assert.Equal(t, 100_000.0, total)

	candle := svc.HistoryRecords()["2024-03-12"]
	assert.Equal(t, Candle{Open: 100_000, High: 100_000, Low: 100_000, Close: 100_000}, candle)

	// Price moves, second valuation the same day stretches the candle.
	quotes.prices["AAPL"] = 150
	total, err = svc.GetValue()
	require.NoError(t, err)
	assert.Equal(t, 100_500.0, total)

	candle = svc.HistoryRecords()["2024-03-12"]
	assert.Equal(t, 100_000.0, candle.Open)
	assert.Equal(t, 100_500.0, candle.High)
	assert.Equal(t, 100_000.0, candle.Low)
	assert.Equal(t, 100_500.0, candle.Close)
}

func TestGetValue_MissingQuoteIsFatal(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	svc := newTestService(t, 100_000, quotes, &stubClock{open: true}, &stubStore{})

	_, err := svc.Buy(map[string]int64{"AAPL": 10})
	require.NoError(t, err)

	delete(quotes.prices, "AAPL")
	_, err = svc.GetValue()
	require.Error(t, err)
	assert.Empty(t, svc.HistoryRecords())
}

func TestPersist_FailureIsNonFatal(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"AAPL": 100}}
	store := &stubStore{err: errors.New("disk full")}
	svc := newTestService(t, 100_000, quotes, &stubClock{open: true}, store)

	lines, err := svc.Buy(map[string]int64{"AAPL": 1})
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Equal(t, int64(1), svc.Positions()["AAPL"].Shares)
}
