package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tconn93/Day-trader/internal/ledger"
)

type algorithmRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	algos, err := s.store.ListAlgorithms(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, algos)
}

func (s *Server) handleCreateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req algorithmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}

	algo, err := s.store.CreateAlgorithm(r.Context(), userID(r), req.Name, req.Description)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, algo)
}

func (s *Server) handleGetAlgorithm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	algo, err := s.store.GetAlgorithm(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	rules, err := s.store.ListRules(r.Context(), algo.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	algo.Rules = rules
	s.respond(w, http.StatusOK, algo)
}

func (s *Server) handleUpdateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req algorithmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}

	algo, err := s.store.UpdateAlgorithm(r.Context(), mux.Vars(r)["id"], userID(r), req.Name, req.Description)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, algo)
}

func (s *Server) handleDeleteAlgorithm(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAlgorithm(r.Context(), mux.Vars(r)["id"], userID(r)); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleToggleAlgorithm(w http.ResponseWriter, r *http.Request) {
	algo, err := s.store.ToggleAlgorithm(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, algo)
}

type ruleRequest struct {
	RuleType          string `json:"rule_type"`
	ConditionField    string `json:"condition_field"`
	ConditionOperator string `json:"condition_operator"`
	ConditionValue    string `json:"condition_value"`
	Action            string `json:"action"`
	OrderIndex        *int   `json:"order_index"`
}

var validRuleTypes = map[string]bool{
	ledger.RuleTypeEntry:      true,
	ledger.RuleTypeExit:       true,
	ledger.RuleTypeStopLoss:   true,
	ledger.RuleTypeTakeProfit: true,
	ledger.RuleTypeCondition:  true,
}

var validOperators = map[string]bool{
	">": true, "<": true, ">=": true, "<=": true, "==": true, "!=": true,
}

func (req *ruleRequest) validate() string {
	if !validRuleTypes[req.RuleType] {
		return "invalid rule_type"
	}
	if req.ConditionField == "" {
		return "condition_field is required"
	}
	if !validOperators[req.ConditionOperator] {
		return "invalid condition_operator"
	}
	if req.ConditionValue == "" {
		return "condition_value is required"
	}
	if req.Action == "" {
		return "action is required"
	}
	return ""
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	algoID := mux.Vars(r)["id"]
	if _, err := s.store.GetAlgorithm(r.Context(), algoID, userID(r)); err != nil {
		s.respondError(w, err)
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.badRequest(w, msg)
		return
	}

	orderIndex := -1
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	}
	rule, err := s.store.CreateRule(r.Context(), &ledger.Rule{
		AlgorithmID:       algoID,
		RuleType:          req.RuleType,
		ConditionField:    req.ConditionField,
		ConditionOperator: req.ConditionOperator,
		ConditionValue:    req.ConditionValue,
		Action:            req.Action,
		OrderIndex:        orderIndex,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	algoID := vars["aid"]
	ruleID, err := strconv.ParseInt(vars["rid"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid rule id")
		return
	}
	if _, err := s.store.GetAlgorithm(r.Context(), algoID, userID(r)); err != nil {
		s.respondError(w, err)
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.badRequest(w, msg)
		return
	}

	orderIndex := 0
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	}
	rule, err := s.store.UpdateRule(r.Context(), &ledger.Rule{
		ID:                ruleID,
		AlgorithmID:       algoID,
		RuleType:          req.RuleType,
		ConditionField:    req.ConditionField,
		ConditionOperator: req.ConditionOperator,
		ConditionValue:    req.ConditionValue,
		Action:            req.Action,
		OrderIndex:        orderIndex,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleID, err := strconv.ParseInt(vars["rid"], 10, 64)
	if err != nil {
		s.badRequest(w, "invalid rule id")
		return
	}
	if _, err := s.store.GetAlgorithm(r.Context(), vars["aid"], userID(r)); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.DeleteRule(r.Context(), ruleID, vars["aid"]); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
