package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"harvester/internal/core"
	"harvester/internal/dbfile"
	"harvester/internal/export"
	"harvester/internal/log"
	"harvester/internal/reminder"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) summary(f core.Filter) (core.Summary, bool) {
	sum, hit := s.summaries.Get(f, s.ledger.Summary)
	s.metrics.cacheResult(hit)
	return sum, hit
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query(), s.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	sum, hit := s.summary(f)
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Charts())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteFarmersXLSX(&buf, s.ledger.Store().Farmers(core.Filter{})); err != nil {
		fail(w, r, fmt.Errorf("export farmers: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	_, _ = w.Write(buf.Bytes())
}

// handleDownloadDatabase sends the whole document as a dated backup file
// and stamps the backup time.
func (s *Server) handleDownloadDatabase(w http.ResponseWriter, r *http.Request) {
	data, err := core.EncodeDocument(s.ledger.Store().Snapshot())
	if err != nil {
		fail(w, r, fmt.Errorf("encode database: %w", err))
		return
	}
	warn(w, r, s.ledger.MarkBackup(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dbfile.BackupName(s.now())))
	_, _ = w.Write(data)
}

// handleImportDatabase replaces all records with the uploaded document.
func (s *Server) handleImportDatabase(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	doc, err := core.DecodeDocument(data)
	if err != nil {
		if core.IsWarning(err) {
			writeError(w, http.StatusBadRequest, "not a harvester database file", err.Error())
			return
		}
		fail(w, r, err)
		return
	}

	err = s.ledger.ImportDocument(r.Context(), doc)
	if err != nil && !core.IsWarning(err) {
		fail(w, r, err)
		return
	}
	warn(w, r, err)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Database imported",
		log.FieldOperation, log.OpImport,
		log.FieldFarmers, len(doc.Farmers),
		log.FieldExpenses, len(doc.Expenses))
	writeJSON(w, http.StatusOK, map[string]int{
		"farmers":  len(doc.Farmers),
		"expenses": len(doc.Expenses),
	})
}

type backupResponse struct {
	reminder.Status
	Message string `json:"message,omitempty"`
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.BackupStatus(r.Context(), s.reminderDays)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backupResponse{Status: st, Message: st.Message()})
}
