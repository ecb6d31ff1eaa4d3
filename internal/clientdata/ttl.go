package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Quotes move constantly while the market is open; keep the cache short
	// enough that a drained queue fills at a near-live price.
	TTLQuote = 30 * time.Second

	// Open/closed flips twice a day; a minute of staleness is acceptable.
	TTLMarketStatus = time.Minute
)
