package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tconn93/Day-trader/internal/backtest"
	"github.com/tconn93/Day-trader/internal/engine"
	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/internal/portfolio"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Errorf("encode response: %v", err)
		}
	}
}

// respondError maps domain errors onto the API status codes.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		s.respond(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, portfolio.ErrInsufficientFunds),
		errors.Is(err, portfolio.ErrInsufficientShares),
		errors.Is(err, portfolio.ErrInvalidQuantity),
		errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrNotActive),
		errors.Is(err, engine.ErrNoRules),
		errors.Is(err, backtest.ErrBadDateRange):
		s.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, marketdata.ErrUpstreamUnavailable),
		errors.Is(err, backtest.ErrNoBars):
		s.respond(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Errorf("internal error: %v", err)
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.respond(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
