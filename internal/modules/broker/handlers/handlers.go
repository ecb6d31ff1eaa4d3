// Package handlers provides HTTP handlers for trading, portfolio and order
// queue operations.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/events"
	"github.com/stonksbot/stonks/internal/modules/broker"
)

// Handler handles broker HTTP requests.
type Handler struct {
	broker *broker.Service
	quotes broker.QuoteSource
	bus    *events.Bus
	log    zerolog.Logger
}

// NewHandler creates a new broker handler.
func NewHandler(svc *broker.Service, quotes broker.QuoteSource, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		broker: svc,
		quotes: quotes,
		bus:    bus,
		log:    log.With().Str("handler", "broker").Logger(),
	}
}

// tradeRequest is the body of POST /api/trades/{buy,sell}.
type tradeRequest struct {
	Items map[string]int64 `json:"items"`
}

// HandleBuy handles POST /api/trades/buy
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, broker.SideBuy)
}

// HandleSell handles POST /api/trades/sell
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, broker.SideSell)
}

func (h *Handler) handleTrade(w http.ResponseWriter, r *http.Request, side broker.Side) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var lines []string
	var err error
	switch side {
	case broker.SideBuy:
		lines, err = h.broker.Buy(req.Items)
	case broker.SideSell:
		lines, err = h.broker.Sell(req.Items)
	}
	if err != nil {
		if errors.Is(err, broker.ErrEmptyOrder) || errors.Is(err, broker.ErrInvalidQuantity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("side", string(side)).Msg("Trade failed")
		http.Error(w, "Trade failed", http.StatusInternalServerError)
		return
	}

	h.bus.Publish(events.Event{Type: events.TradeExecuted, Lines: lines})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"lines":   lines,
			"balance": h.broker.Balance(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPortfolio handles GET /api/portfolio
// Returns the cash balance and all current positions.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"balance":   h.broker.Balance(),
			"positions": h.broker.Positions(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPortfolioReport handles GET /api/portfolio/report
// Returns per-holding market value and gain relative to cost basis,
// at current quotes.
func (h *Handler) HandleGetPortfolioReport(w http.ResponseWriter, r *http.Request) {
	positions := h.broker.Positions()
	balance := h.broker.Balance()
	total := balance

	holdings := make([]map[string]interface{}, 0, len(positions))
	if len(positions) > 0 {
		tickers := make([]string, 0, len(positions))
		for ticker := range positions {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)

		prices, err := h.quotes.GetPrices(tickers)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to fetch quotes for portfolio report")
			http.Error(w, "Failed to fetch quotes", http.StatusBadGateway)
			return
		}

		for _, ticker := range tickers {
			pos := positions[ticker]
			holding := map[string]interface{}{
				"ticker":     ticker,
				"shares":     pos.Shares,
				"cost_basis": pos.CostBasis,
			}
			if price, ok := prices[ticker]; ok {
				subtotal := price * float64(pos.Shares)
				holding["price"] = price
				holding["value"] = subtotal
				if pos.CostBasis != 0 {
					holding["gain_percent"] = (price - pos.CostBasis) / pos.CostBasis * 100
				}
				total += subtotal
			}
			holdings = append(holdings, holding)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"balance":  balance,
			"holdings": holdings,
			"total":    total,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetValue handles GET /api/portfolio/value
// Computes the current total portfolio value and folds it into today's
// history candle.
func (h *Handler) HandleGetValue(w http.ResponseWriter, r *http.Request) {
	value, err := h.broker.GetValue()
	if err != nil {
		h.log.Error().Err(err).Msg("Valuation failed")
		http.Error(w, "Valuation failed", http.StatusBadGateway)
		return
	}

	h.bus.Publish(events.Event{Type: events.PortfolioValued, Value: value})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"value": value,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetHistory handles GET /api/portfolio/history
// Returns the daily OHLC candles of portfolio value. With ?format=csv the
// candles are exported as CSV ordered by date.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.broker.HistoryRecords()

	if r.URL.Query().Get("format") == "csv" {
		dates := make([]string, 0, len(history))
		for date := range history {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		var sb strings.Builder
		sb.WriteString("date,open,high,low,close\n")
		for _, date := range dates {
			c := history[date]
			sb.WriteString(fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f\n", date, c.Open, c.High, c.Low, c.Close))
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="portfolio_history.csv"`)
		if _, err := w.Write([]byte(sb.String())); err != nil {
			h.log.Error().Err(err).Msg("Failed to write CSV export")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"history": history,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetQueue handles GET /api/queue
// Returns the deferred order queue in drain order.
func (h *Handler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue := h.broker.Queue()
	if queue == nil {
		queue = []broker.QueuedOrder{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"queue": queue,
			"count": len(queue),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleExecuteQueue handles POST /api/queue/execute
// Drains the queue if the market is open.
func (h *Handler) HandleExecuteQueue(w http.ResponseWriter, r *http.Request) {
	lines, err := h.broker.ExecuteQueue()
	if err != nil {
		h.log.Error().Err(err).Msg("Queue drain failed")
		http.Error(w, "Queue drain failed", http.StatusInternalServerError)
		return
	}

	if len(lines) > 0 {
		h.bus.Publish(events.Event{Type: events.QueueDrained, Lines: lines})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"lines":     lines,
			"remaining": len(h.broker.Queue()),
			"balance":   h.broker.Balance(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRemoveOrder handles DELETE /api/queue/{index}
// Removes a queued order by position and returns it.
func (h *Handler) HandleRemoveOrder(w http.ResponseWriter, r *http.Request, index int) {
	order, err := h.broker.RemoveOrder(index)
	if err != nil {
		if errors.Is(err, broker.ErrIndexOutOfRange) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int("index", index).Msg("Failed to remove queued order")
		http.Error(w, "Failed to remove order", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"removed": order,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetQuotes handles GET /api/quotes?symbols=AAPL,MSFT
// Returns current prices for the requested symbols.
func (h *Handler) HandleGetQuotes(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		http.Error(w, "symbols parameter is required", http.StatusBadRequest)
		return
	}

	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	prices, err := h.quotes.GetPrices(symbols)
	if err != nil {
		h.log.Error().Err(err).Strs("symbols", symbols).Msg("Quote lookup failed")
		http.Error(w, "Quote lookup failed", http.StatusBadGateway)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"prices": prices,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
