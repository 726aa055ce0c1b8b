package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/cookies"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
	"github.com/haukened/cookiegate/internal/consent/services/gate"
	"github.com/haukened/cookiegate/internal/consent/services/report"
	"github.com/haukened/cookiegate/internal/consent/services/scanner"
)

// HeaderScanID carries the archive id of a stored scan.
const HeaderScanID = "X-Scan-Id"

// HeaderBlocked carries the number of scripts the gate endpoint blocked.
const HeaderBlocked = "X-Blocked-Scripts"

var errArchiveDisabled = errors.New("scan archive is disabled")

type historyItem struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Summary   domain.ScanSummary `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.opts.Clock.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Catalog.Presets())
}

// declared resolves the declared services of a scan request: the
// comma-separated "declared" parameter when present, the configured
// services otherwise.
func (s *Server) declared(r *http.Request) ([]domain.ServicePreset, error) {
	ids := s.opts.Declared
	if q := r.URL.Query(); q.Has("declared") {
		ids = splitList(q.Get("declared"))
	}
	found, missing := s.opts.Catalog.Subset(ids)
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown service ids: %s", strings.Join(missing, ", "))
	}
	return found, nil
}

// scanner builds a scanner over the request's own cookies together with
// the declared services of the request.
func (s *Server) scanner(r *http.Request) (*scanner.Scanner, []domain.ServicePreset, error) {
	declared, err := s.declared(r)
	if err != nil {
		return nil, nil, err
	}
	sc := scanner.NewScanner(scanner.ScannerOptions{
		Source: cookies.Request{Req: r},
		Clock:  s.opts.Clock,
		Logger: s.opts.Logger,
	})
	return sc, declared, nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "text" && format != "csv" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}

	sc, declared, err := s.scanner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result := sc.Scan(declared, s.opts.Catalog, s.opts.Scan)

	if s.opts.Archive != nil {
		id, err := s.opts.Archive.Put(result)
		if err != nil {
			s.logger.Error(map[string]any{"error": err.Error()}, "scan_archive_failed")
		} else {
			w.Header().Set(HeaderScanID, id)
		}
	}

	switch format {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.FormatText(result, s.locale(r))))
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(report.CSV(result))
	default:
		body, err := report.JSON(result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (s *Server) handleQuickScan(w http.ResponseWriter, r *http.Request) {
	sc, declared, err := s.scanner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, sc.QuickCheck(declared, s.opts.Catalog, s.opts.Scan))
}

// locale prefers the "locale" parameter, then Accept-Language, then the
// configured default.
func (s *Server) locale(r *http.Request) string {
	if l := r.URL.Query().Get("locale"); l != "" {
		return l
	}
	if l := r.Header.Get("Accept-Language"); l != "" {
		return l
	}
	return s.opts.Locale
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	consent := s.opts.Consent
	if q := r.URL.Query(); q.Has("consent") {
		state, err := domain.ParseConsentState(splitList(q.Get("consent")))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		consent = state
	}

	doc, err := document.Parse(http.MaxBytesReader(w, r.Body, maxPageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	g := gate.New(gate.Options{Document: doc, Resolver: s.opts.Catalog, Logger: s.opts.Logger})
	n := g.GateExisting(consent.Allows)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(HeaderBlocked, strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if err := doc.Render(w); err != nil {
		s.logger.Warn(map[string]any{"error": err.Error()}, "gate_render_failed")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	records, err := s.opts.Archive.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:        rec.ID,
			Timestamp: rec.Result.Timestamp,
			Summary:   rec.Result.Summary,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}
	id := mux.Vars(r)["id"]
	result, ok, err := s.opts.Archive.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("scan %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
