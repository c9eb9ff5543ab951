package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tconn93/Day-trader/internal/engine"
	"github.com/tconn93/Day-trader/internal/ledger"
)

func (s *Server) account(r *http.Request) (*ledger.Account, error) {
	return s.store.GetOrCreateAccount(r.Context(), userID(r))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, account)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	positions, err := s.book.RecomputeMarketValues(r.Context(), account, s.md)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if positions == nil {
		positions = []ledger.Position{}
	}
	s.respond(w, http.StatusOK, positions)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	positions, err := s.book.RecomputeMarketValues(r.Context(), account, s.md)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if positions == nil {
		positions = []ledger.Position{}
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"account":   account,
		"positions": positions,
	})
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	orders, err := s.store.ListOrders(r.Context(), account.ID, queryLimit(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if orders == nil {
		orders = []ledger.Order{}
	}
	s.respond(w, http.StatusOK, orders)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	txns, err := s.store.ListTransactions(r.Context(), account.ID, queryLimit(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	s.respond(w, http.StatusOK, txns)
}

type orderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
	Type     string `json:"type"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Symbol == "" {
		s.badRequest(w, "symbol is required")
		return
	}
	if req.Side != ledger.SideBuy && req.Side != ledger.SideSell {
		s.badRequest(w, "side must be buy or sell")
		return
	}
	if req.Quantity <= 0 {
		s.badRequest(w, "quantity must be positive")
		return
	}
	if req.Type != "" && req.Type != ledger.OrderTypeMarket {
		s.badRequest(w, "only market orders are supported")
		return
	}

	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	// Market orders fill at the latest quote.
	quote, err := s.md.GetQuote(r.Context(), req.Symbol)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if req.Side == ledger.SideBuy {
		err = s.book.ApplyBuy(r.Context(), account.ID, req.Symbol, req.Quantity, quote.Price, "")
	} else {
		err = s.book.ApplySell(r.Context(), account.ID, req.Symbol, req.Quantity, quote.Price, "")
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	account, err = s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"quantity": req.Quantity,
		"price":    quote.Price,
		"balance":  account.Balance,
	})
}

func (s *Server) handleResetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.book.Reset(r.Context(), account.ID); err != nil {
		s.respondError(w, err)
		return
	}
	account, err = s.account(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, account)
}

type startRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleStartAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.badRequest(w, "invalid JSON body")
			return
		}
	}

	id := mux.Vars(r)["id"]
	if err := s.engine.Start(r.Context(), id, userID(r), req.Symbols); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "running", "algorithm_id": id})
}

func (s *Server) handleStopAlgorithm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Stop(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "stopped", "algorithm_id": id})
}

func (s *Server) handleRunningAlgorithms(w http.ResponseWriter, r *http.Request) {
	running, err := s.engine.Running(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if running == nil {
		running = []engine.Running{}
	}
	s.respond(w, http.StatusOK, running)
}
