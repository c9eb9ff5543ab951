// Package api exposes the platform over HTTP JSON. All core routes sit
// behind bearer-token auth; users are provisioned automatically from the
// token subject.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/tconn93/Day-trader/internal/backtest"
	"github.com/tconn93/Day-trader/internal/engine"
	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/internal/portfolio"
)

type Server struct {
	store     *ledger.Store
	md        marketdata.Provider
	book      *portfolio.Bookkeeper
	engine    *engine.Engine
	backtests *backtest.Manager
	secret    []byte
	logger    *logrus.Entry
	handler   http.Handler
}

func NewServer(store *ledger.Store, md marketdata.Provider, book *portfolio.Bookkeeper, eng *engine.Engine, backtests *backtest.Manager, jwtSecret string) *Server {
	s := &Server{
		store:     store,
		md:        md,
		book:      book,
		engine:    eng,
		backtests: backtests,
		secret:    []byte(jwtSecret),
		logger:    logrus.WithField("component", "api"),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	authed := r.PathPrefix("/").Subrouter()
	authed.Use(s.authenticate)

	// Algorithms and their rules.
	authed.HandleFunc("/algorithms", s.handleListAlgorithms).Methods(http.MethodGet)
	authed.HandleFunc("/algorithms", s.handleCreateAlgorithm).Methods(http.MethodPost)
	authed.HandleFunc("/algorithms/{id}", s.handleGetAlgorithm).Methods(http.MethodGet)
	authed.HandleFunc("/algorithms/{id}", s.handleUpdateAlgorithm).Methods(http.MethodPut)
	authed.HandleFunc("/algorithms/{id}", s.handleDeleteAlgorithm).Methods(http.MethodDelete)
	authed.HandleFunc("/algorithms/{id}/toggle", s.handleToggleAlgorithm).Methods(http.MethodPatch)
	authed.HandleFunc("/algorithms/{id}/rules", s.handleCreateRule).Methods(http.MethodPost)
	authed.HandleFunc("/algorithms/{aid}/rules/{rid}", s.handleUpdateRule).Methods(http.MethodPut)
	authed.HandleFunc("/algorithms/{aid}/rules/{rid}", s.handleDeleteRule).Methods(http.MethodDelete)

	// Paper trading.
	authed.HandleFunc("/paper-trading/account", s.handleGetAccount).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/positions", s.handleGetPositions).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/orders", s.handleListOrders).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	authed.HandleFunc("/paper-trading/transactions", s.handleListTransactions).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/portfolio", s.handleGetPortfolio).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/account/reset", s.handleResetAccount).Methods(http.MethodPost)
	authed.HandleFunc("/paper-trading/algorithms/running", s.handleRunningAlgorithms).Methods(http.MethodGet)
	authed.HandleFunc("/paper-trading/algorithms/{id}/start", s.handleStartAlgorithm).Methods(http.MethodPost)
	authed.HandleFunc("/paper-trading/algorithms/{id}/stop", s.handleStopAlgorithm).Methods(http.MethodPost)

	// Market data.
	authed.HandleFunc("/stocks/quote/{symbol}", s.handleQuote).Methods(http.MethodGet)
	authed.HandleFunc("/stocks/quotes", s.handleQuotes).Methods(http.MethodPost)
	authed.HandleFunc("/stocks/history/{symbol}", s.handleHistory).Methods(http.MethodGet)

	// Watchlist.
	authed.HandleFunc("/watchlist", s.handleListWatchlist).Methods(http.MethodGet)
	authed.HandleFunc("/watchlist", s.handleAddWatchlist).Methods(http.MethodPost)
	authed.HandleFunc("/watchlist/{symbol}", s.handleRemoveWatchlist).Methods(http.MethodDelete)

	// Backtests.
	authed.HandleFunc("/backtest/run", s.handleRunBacktest).Methods(http.MethodPost)
	authed.HandleFunc("/backtest/algorithm/{algorithmId}", s.handleListBacktests).Methods(http.MethodGet)
	authed.HandleFunc("/backtest/{id}", s.handleGetBacktest).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
