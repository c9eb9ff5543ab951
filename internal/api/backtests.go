package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tconn93/Day-trader/internal/backtest"
)

type backtestRequest struct {
	AlgorithmID    string `json:"algorithmId"`
	Symbol         string `json:"symbol"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	InitialCapital string `json:"initialCapital"`
	Interval       string `json:"interval"`
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.AlgorithmID == "" || req.Symbol == "" {
		s.badRequest(w, "algorithmId and symbol are required")
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		s.badRequest(w, "startDate must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		s.badRequest(w, "endDate must be YYYY-MM-DD")
		return
	}

	var capital decimal.Decimal
	if req.InitialCapital != "" {
		capital, err = decimal.NewFromString(req.InitialCapital)
		if err != nil || capital.IsNegative() {
			s.badRequest(w, "initialCapital must be a non-negative decimal")
			return
		}
	}

	record, err := s.backtests.Submit(r.Context(), backtest.Request{
		AlgorithmID:    req.AlgorithmID,
		UserID:         userID(r),
		Symbol:         req.Symbol,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: capital,
		Interval:       req.Interval,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, record)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid backtest id")
		return
	}
	record, err := s.store.GetBacktest(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, record)
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListBacktests(r.Context(), mux.Vars(r)["algorithmId"], userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, records)
}
