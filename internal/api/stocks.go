package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tconn93/Day-trader/internal/marketdata"
)

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	quote, err := s.md.GetQuote(r.Context(), symbol)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, quote)
}

type quotesRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	var req quotesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if len(req.Symbols) == 0 {
		s.badRequest(w, "symbols is required")
		return
	}
	for i, sym := range req.Symbols {
		req.Symbols[i] = strings.ToUpper(sym)
	}
	s.respond(w, http.StatusOK, s.md.GetMultipleQuotes(r.Context(), req.Symbols))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "1mo"
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1d"
	}
	if !marketdata.ValidRange(rng) {
		s.badRequest(w, "unsupported range")
		return
	}
	if !marketdata.ValidInterval(interval) {
		s.badRequest(w, "unsupported interval")
		return
	}

	bars, err := s.md.GetHistorical(r.Context(), symbol, rng, interval)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, bars)
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListWatchlist(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

type watchlistRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := decodeJSON(r, &req); err != nil || req.Symbol == "" {
		s.badRequest(w, "symbol is required")
		return
	}
	if err := s.store.AddToWatchlist(r.Context(), userID(r), strings.ToUpper(req.Symbol)); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{"symbol": strings.ToUpper(req.Symbol)})
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if err := s.store.RemoveFromWatchlist(r.Context(), userID(r), symbol); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "removed"})
}
