// Package handlers provides HTTP handlers for market hours operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/modules/market_hours"
)

// Handler handles market hours HTTP requests
type Handler struct {
	service *market_hours.Service
	log     zerolog.Logger
}

// NewHandler creates a new market hours handler
func NewHandler(service *market_hours.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "market_hours").Logger(),
	}
}

// HandleGetStatus handles GET /api/market/status
// Returns whether the market is currently open for trading.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	open, err := h.service.IsOpen()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get market status")
		http.Error(w, "Failed to get market status", http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"open":      open,
			"synthetic": h.service.Synthetic(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
