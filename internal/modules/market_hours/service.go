// Package market_hours answers whether the market is currently open for trading.
package market_hours

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrProvider is returned when the live market-status provider is unreachable
// or returns an unusable response.
var ErrProvider = errors.New("market status provider unavailable")

// StatusProvider is the live source of the open/closed flag.
type StatusProvider interface {
	IsMarketOpen() (bool, error)
}

// Service reports market open/closed status. In synthetic mode it applies a
// deterministic rule derived from the local clock so the rest of the system
// can be exercised without a live market. Synthetic mode is an explicit
// configuration choice, never inferred from missing credentials.
type Service struct {
	provider  StatusProvider
	synthetic bool
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a market hours service backed by the given provider.
func NewService(provider StatusProvider, synthetic bool, log zerolog.Logger) *Service {
	return &Service{
		provider:  provider,
		synthetic: synthetic,
		now:       time.Now,
		log:       log.With().Str("service", "market_hours").Logger(),
	}
}

// IsOpen reports whether trading is currently allowed.
func (s *Service) IsOpen() (bool, error) {
	if s.synthetic {
		// Flips every minute: even minutes are open, odd ones closed.
		open := s.now().Minute()%2 == 0
		s.log.Debug().Bool("open", open).Msg("Synthetic market status")
		return open, nil
	}

	open, err := s.provider.IsMarketOpen()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return open, nil
}

// Synthetic reports whether the service runs on the synthetic calendar.
func (s *Service) Synthetic() bool {
	return s.synthetic
}
