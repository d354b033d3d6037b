package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"taxcalc/internal/core"
	"taxcalc/internal/log"
	"taxcalc/internal/report"
)

const (
	maxBodyBytes    = 1 << 16
	defaultLimit    = 20
	maxLimit        = 100
	readinessBudget = 2 * time.Second
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessBudget)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.logger.WarnContext(ctx, "Readiness check failed", "failures", failures)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]int{"years": s.calc.Years()})
}

// handleTax computes without recording.
//
// GET /api/tax/{year}?gross=£43,500
func (s *Server) handleTax(w http.ResponseWriter, r *http.Request) {
	year, gross, ok := parseTaxQuery(w, r)
	if !ok {
		return
	}

	calc, err := s.calc.Compute(r.Context(), year, gross)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report.NewView(calc))
}

// handleTaxPDF renders the same calculation as a PDF download.
//
// GET /api/tax/{year}/pdf?gross=£43,500
func (s *Server) handleTaxPDF(w http.ResponseWriter, r *http.Request) {
	year, gross, ok := parseTaxQuery(w, r)
	if !ok {
		return
	}

	calc, err := s.calc.Compute(r.Context(), year, gross)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	data, err := report.PDF(calc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="income-tax-%s.pdf"`, report.TaxYear(year)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type calculationRequest struct {
	Year  int    `json:"year"`
	Gross string `json:"gross"`
}

// handleCreateCalculation computes and records a calculation.
//
// POST /api/calculations {"year":2018,"gross":"43500"}
func (s *Server) handleCreateCalculation(w http.ResponseWriter, r *http.Request) {
	year, gross, ok := decodeCalculationRequest(w, r)
	if !ok {
		return
	}

	calc, err := s.calc.Calculate(r.Context(), year, gross)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Calculation created",
		log.NewFields().
			WithOperation(log.OpCalculate).
			WithCalculation(year, gross, calc.TotalTax).
			ToSlice()...)
	writeJSON(w, r, http.StatusCreated, report.NewView(calc))
}

// handleEnqueueCalculation queues a calculation for the worker.
//
// POST /api/calculations/queue {"year":2018,"gross":"43500"}
func (s *Server) handleEnqueueCalculation(w http.ResponseWriter, r *http.Request) {
	year, gross, ok := decodeCalculationRequest(w, r)
	if !ok {
		return
	}

	id, err := s.calc.Enqueue(r.Context(), year, gross)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"request_id": id})
}

// handleListCalculations lists recorded calculations, newest first.
//
// GET /api/calculations?limit=N
func (s *Server) handleListCalculations(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	calcs, err := s.calc.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]report.View, 0, len(calcs))
	for _, c := range calcs {
		views = append(views, report.NewView(c))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"calculations": views})
}

func parseTaxQuery(w http.ResponseWriter, r *http.Request) (int, core.Money, bool) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid year")
		return 0, core.Money{}, false
	}

	raw := r.URL.Query().Get("gross")
	if strings.TrimSpace(raw) == "" {
		writeError(w, r, http.StatusBadRequest, "gross is required")
		return 0, core.Money{}, false
	}
	gross, err := core.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, core.Money{}, false
	}
	return year, gross, true
}

func decodeCalculationRequest(w http.ResponseWriter, r *http.Request) (int, core.Money, bool) {
	var req calculationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		msg := "invalid request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, r, http.StatusBadRequest, msg)
		return 0, core.Money{}, false
	}

	if req.Year <= 0 {
		writeError(w, r, http.StatusBadRequest, "year is required")
		return 0, core.Money{}, false
	}
	if strings.TrimSpace(req.Gross) == "" {
		writeError(w, r, http.StatusBadRequest, "gross is required")
		return 0, core.Money{}, false
	}
	gross, err := core.Parse(req.Gross)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, core.Money{}, false
	}
	return req.Year, gross, true
}
