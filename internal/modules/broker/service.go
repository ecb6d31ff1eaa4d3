package broker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QuoteSource supplies current prices for a batch of tickers.
type QuoteSource interface {
	GetPrices(tickers []string) (map[string]float64, error)
}

// MarketClock reports whether trading is currently allowed.
type MarketClock interface {
	IsOpen() (bool, error)
}

// SnapshotStore persists the full ledger aggregate.
type SnapshotStore interface {
	Save(state State) error
}

// Service is the paper-trading ledger. All public operations serialize on a
// single mutex; per-ticker effects are atomic but a multi-ticker order may
// fill partially, with the outcome of every ticker reported as a line.
type Service struct {
	mu     sync.Mutex
	state  State
	quotes QuoteSource
	clock  MarketClock
	store  SnapshotStore
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a ledger from a previously loaded (or default) state.
func NewService(initial State, quotes QuoteSource, clock MarketClock, store SnapshotStore, log zerolog.Logger) *Service {
	if initial.Positions == nil {
		initial.Positions = make(map[string]Position)
	}
	if initial.History == nil {
		initial.History = make(History)
	}
	return &Service{
		state:  initial,
		quotes: quotes,
		clock:  clock,
		store:  store,
		now:    time.Now,
		log:    log.With().Str("service", "broker").Logger(),
	}
}

// Buy fills a buy order at current prices, or queues it if the market is
// closed. Returns one outcome line per ticker; a ticker that cannot be
// afforded is reported and skipped without affecting its siblings.
func (s *Service) Buy(items map[string]int64) ([]string, error) {
	return s.trade(SideBuy, items)
}

// Sell fills a sell order at current prices, or queues it if the market is
// closed. Unowned and over-sold tickers are reported and skipped.
func (s *Service) Sell(items map[string]int64) ([]string, error) {
	return s.trade(SideSell, items)
}

func (s *Service) trade(side Side, items map[string]int64) ([]string, error) {
	if err := validateOrder(items); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prices, err := s.quotes.GetPrices(tickersOf(items))
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}

	open, err := s.clock.IsOpen()
	if err != nil {
		return nil, fmt.Errorf("checking market status: %w", err)
	}

	if !open {
		lines := s.enqueue(side, items, prices)
		s.persist()
		return lines, nil
	}

	lines := s.apply(side, items, prices)
	s.persist()
	return lines, nil
}

// enqueue defers the order and describes it at current quotes. Callers hold
// the mutex.
func (s *Service) enqueue(side Side, items map[string]int64, prices map[string]float64) []string {
	order := QueuedOrder{ID: uuid.New().String(), Side: side, Items: items}
	s.state.Queue.Enqueue(order)

	lines := []string{"Market is closed. Order added to the queue for execution at market open."}
	for _, ticker := range tickersOf(items) {
		qty := items[ticker]
		price, ok := prices[ticker]
		if !ok {
			lines = append(lines, fmt.Sprintf("%s x%d (no quote available).", ticker, qty))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s x%d at approximately $%.2f each.", ticker, qty, price))
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("side", string(side)).
		Int("queue_length", s.state.Queue.Len()).
		Msg("Order queued while market closed")
	return lines
}

// apply executes the order ticker by ticker against the running balance.
// Tickers are processed in lexicographic order so multi-ticker fills are
// deterministic. Callers hold the mutex.
func (s *Service) apply(side Side, items map[string]int64, prices map[string]float64) []string {
	var lines []string
	for _, ticker := range tickersOf(items) {
		qty := items[ticker]
		price, ok := prices[ticker]
		if !ok {
			lines = append(lines, fmt.Sprintf("No quote available for %s.", ticker))
			continue
		}

		switch side {
		case SideBuy:
			lines = append(lines, s.applyBuy(ticker, qty, price))
		case SideSell:
			lines = append(lines, s.applySell(ticker, qty, price))
		}
	}
	return lines
}

func (s *Service) applyBuy(ticker string, qty int64, price float64) string {
	cost := float64(qty) * price
	if cost >= s.state.Balance {
		return fmt.Sprintf("Cannot afford %d shares of %s.", qty, ticker)
	}

	pos := s.state.Positions[ticker]
	total := float64(pos.Shares)*pos.CostBasis + cost
	pos.Shares += qty
	pos.CostBasis = total / float64(pos.Shares)
	s.state.Positions[ticker] = pos
	s.state.Balance -= cost

	s.log.Info().
		Str("ticker", ticker).
		Int64("shares", qty).
		Float64("price", price).
		Float64("balance", s.state.Balance).
		Msg("Buy filled")
	return fmt.Sprintf("Bought %d shares of %s at $%.2f each.", qty, ticker, price)
}

func (s *Service) applySell(ticker string, qty int64, price float64) string {
	pos, owned := s.state.Positions[ticker]
	if !owned {
		return fmt.Sprintf("You do not own %s.", ticker)
	}
	if qty > pos.Shares {
		return fmt.Sprintf("You have %d shares of %s but tried to sell %d shares.", pos.Shares, ticker, qty)
	}

	gain := float64(qty) * price
	pos.Shares -= qty
	s.state.Balance += gain
	if pos.Shares == 0 {
		// Shares and cost basis go together.
		delete(s.state.Positions, ticker)
	} else {
		s.state.Positions[ticker] = pos
	}

	s.log.Info().
		Str("ticker", ticker).
		Int64("shares", qty).
		Float64("price", price).
		Float64("balance", s.state.Balance).
		Msg("Sell filled")
	return fmt.Sprintf("Sold %d shares of %s at $%.2f each.", qty, ticker, price)
}

// GetValue computes balance plus the market value of every position, folds
// the total into today's history candle, and persists. A missing quote for a
// held position is a hard error; nothing is recorded.
func (s *Service) GetValue() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.state.Balance
	if len(s.state.Positions) > 0 {
		tickers := make([]string, 0, len(s.state.Positions))
		for ticker := range s.state.Positions {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)

		prices, err := s.quotes.GetPrices(tickers)
		if err != nil {
			return 0, fmt.Errorf("fetching quotes: %w", err)
		}
		for _, ticker := range tickers {
			price, ok := prices[ticker]
			if !ok {
				return 0, fmt.Errorf("no quote for held position %s", ticker)
			}
			total += price * float64(s.state.Positions[ticker].Shares)
		}
	}

	s.state.History.Record(s.today(), total)
	s.persist()
	return total, nil
}

// ExecuteQueue drains the deferred order queue strictly FIFO, applying each
// order at current prices. The open/closed check is taken once at entry; a
// closed market makes the call a no-op. If a quote fetch fails mid-drain the
// unprocessed orders stay queued and the error is returned alongside the
// lines produced so far.
func (s *Service) ExecuteQueue() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Queue.Len() == 0 {
		return nil, nil
	}

	open, err := s.clock.IsOpen()
	if err != nil {
		return nil, fmt.Errorf("checking market status: %w", err)
	}
	if !open {
		s.log.Debug().Msg("Market closed, queue left untouched")
		return nil, nil
	}

	orders := s.state.Queue.DequeueAll()
	var lines []string
	for i, order := range orders {
		prices, err := s.quotes.GetPrices(tickersOf(order.Items))
		if err != nil {
			s.state.Queue = append(OrderQueue(nil), orders[i:]...)
			s.persist()
			return lines, fmt.Errorf("fetching quotes for queued order %s: %w", order.ID, err)
		}
		lines = append(lines, s.apply(order.Side, order.Items, prices)...)
	}

	s.log.Info().Int("orders", len(orders)).Msg("Order queue drained")
	s.persist()
	return lines, nil
}

// RemoveOrder removes and returns the queued order at the given position.
func (s *Service) RemoveOrder(index int) (QueuedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.state.Queue.RemoveAt(index)
	if err != nil {
		return QueuedOrder{}, err
	}
	s.persist()
	return order, nil
}

// Balance returns the current cash balance.
func (s *Service) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Balance
}

// Positions returns a copy of all current holdings.
func (s *Service) Positions() map[string]Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Position, len(s.state.Positions))
	for ticker, pos := range s.state.Positions {
		out[ticker] = pos
	}
	return out
}

// HistoryRecords returns a copy of the daily value candles keyed by date.
func (s *Service) HistoryRecords() map[string]Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Candle, len(s.state.History))
	for date, candle := range s.state.History {
		out[date] = candle
	}
	return out
}

// Queue returns a copy of the deferred order queue in drain order.
func (s *Service) Queue() []QueuedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Queue.Peek()
}

// persist snapshots the full aggregate. Durability is best effort: a failed
// save is logged and the in-memory state stays authoritative. Callers hold
// the mutex.
func (s *Service) persist() {
	if err := s.store.Save(s.state.Clone()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist ledger snapshot")
	}
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}

func validateOrder(items map[string]int64) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for ticker, qty := range items {
		if qty <= 0 {
			return fmt.Errorf("%w: %s x%d", ErrInvalidQuantity, ticker, qty)
		}
	}
	return nil
}

func tickersOf(items map[string]int64) []string {
	tickers := make([]string, 0, len(items))
	for ticker := range items {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}
