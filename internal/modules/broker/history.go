package broker

// History maps a calendar date key (YYYY-MM-DD, process-local clock) to the
// OHLC candle of portfolio value observed that day. Records are never deleted.
type History map[string]Candle

// Record folds a valuation into the candle for the given date. The first
// valuation of a day sets all four fields; later ones overwrite close and
// stretch high/low.
func (h History) Record(date string, value float64) {
	candle, ok := h[date]
	if !ok {
		h[date] = Candle{Open: value, High: value, Low: value, Close: value}
		return
	}

	candle.Close = value
	if value > candle.High {
		candle.High = value
	}
	if value < candle.Low {
		candle.Low = value
	}
	h[date] = candle
}
