package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"harvester/internal/core"
	"harvester/internal/log"
	"harvester/internal/receipt"
	"harvester/internal/share"
)

// farmerView is a reconciled record plus what the list shows next to it.
type farmerView struct {
	core.FarmerRecord
	Balance core.Decimal        `json:"balance"`
	Overdue *core.OverdueNotice `json:"overdue,omitempty"`
}

func (s *Server) farmerView(r core.FarmerRecord) farmerView {
	v := farmerView{FarmerRecord: r, Balance: r.Balance()}
	if n, ok := core.Overdue(r, s.now()); ok {
		v.Overdue = &n
	}
	return v
}

func (s *Server) farmerViews(records []core.FarmerRecord) []farmerView {
	out := make([]farmerView, len(records))
	for i, r := range records {
		out[i] = s.farmerView(r)
	}
	return out
}

func (s *Server) handleListFarmers(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query(), s.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"farmers": s.farmerViews(s.ledger.Store().Farmers(f)),
	})
}

func (s *Server) handleGetFarmer(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Store().Farmer(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.farmerView(rec))
}

// handleSaveFarmer creates on POST and edits on PUT /{id}.
func (s *Server) handleSaveFarmer(w http.ResponseWriter, r *http.Request) {
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

	saved, err := s.ledger.SaveFarmer(r.Context(), farmerForm(p, id))
	if err != nil && !core.IsWarning(err) {
		fail(w, r, err)
		return
	}
	warn(w, r, err)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Bill saved",
		log.FieldRecordID, saved.ID,
		log.FieldBillNo, int64(saved.BillNo))
	writeJSON(w, status, s.farmerView(saved))
}

func (s *Server) handleDeleteFarmer(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.DeleteFarmer(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !core.IsWarning(err) {
		fail(w, r, err)
		return
	}
	warn(w, r, err)
	w.WriteHeader(http.StatusNoContent)
}

type shareResponse struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

func (s *Server) handleShareText(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Store().Farmer(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	text := share.Text(rec)
	writeJSON(w, http.StatusOK, shareResponse{Text: text, Link: share.WhatsAppLink(text)})
}

// handleShareSend delivers the bill through the WhatsApp Cloud API.
func (s *Server) handleShareSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "WhatsApp delivery is not configured", "")
		return
	}
	rec, err := s.ledger.Store().Farmer(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.sender.SendBill(r.Context(), rec)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "WhatsApp delivery failed",
			log.FieldRecordID, rec.ID,
			log.FieldError, err)
		writeError(w, http.StatusBadGateway, "WhatsApp delivery failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": id})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Store().Farmer(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := receipt.Encode(&buf, rec); err != nil {
		fail(w, r, fmt.Errorf("render receipt: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.FileName(rec)))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	places, crops := core.Suggestions(s.ledger.Store().Farmers(core.Filter{}))
	writeJSON(w, http.StatusOK, map[string][]string{"places": places, "crops": crops})
}
