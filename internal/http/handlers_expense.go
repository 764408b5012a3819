package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"harvester/internal/core"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"expenses": s.ledger.Store().Expenses()})
}

func (s *Server) handleSaveExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}

	saved, err := s.ledger.SaveExpense(r.Context(), expenseForm(p, id))
	if err != nil && !core.IsWarning(err) {
		fail(w, r, err)
		return
	}
	warn(w, r, err)
	writeJSON(w, status, saved)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.DeleteExpense(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !core.IsWarning(err) {
		fail(w, r, err)
		return
	}
	warn(w, r, err)
	w.WriteHeader(http.StatusNoContent)
}
