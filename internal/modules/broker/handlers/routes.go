package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all broker routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Post("/buy", h.HandleBuy)
		r.Post("/sell", h.HandleSell)
	})

	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Get("/report", h.HandleGetPortfolioReport)
		r.Get("/value", h.HandleGetValue)
		r.Get("/history", h.HandleGetHistory)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.HandleGetQueue)
		r.Post("/execute", h.HandleExecuteQueue)
		r.Delete("/{index}", func(w http.ResponseWriter, r *http.Request) {
			index, err := strconv.Atoi(chi.URLParam(r, "index"))
			if err != nil {
				http.Error(w, "Invalid queue index", http.StatusBadRequest)
				return
			}
			h.HandleRemoveOrder(w, r, index)
		})
	})

	r.Get("/quotes", h.HandleGetQuotes)
}
