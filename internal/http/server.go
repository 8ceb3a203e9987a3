package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/aggregate"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/export"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/prospect"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

// ProspectService is what the API needs from the query pipeline.
type ProspectService interface {
	Query(ctx context.Context, req prospect.Request) (prospect.Response, error)
	Columns(ctx context.Context, source string) (schema.Probed, error)
}

type Server struct {
	Prospects ProspectService
	Leads     LeadsRepo
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// AccessLog receives combined-format request lines; nil discards them.
	AccessLog io.Writer
}

func NewServer(prospects ProspectService, leads LeadsRepo, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Prospects: prospects, Leads: leads, Metrics: m, Logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/prospects", s.handleProspects).Methods(http.MethodGet)
	r.HandleFunc("/prospects.csv", s.handleProspectsCSV).Methods(http.MethodGet)
	r.HandleFunc("/columns", s.handleColumns).Methods(http.MethodGet)
	r.HandleFunc("/leads", s.handleLeadsList).Methods(http.MethodGet)
	r.HandleFunc("/leads", s.handleLeadsCreate).Methods(http.MethodPost)
	r.HandleFunc("/leads/{id}", s.handleLeadGet).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}", s.handleLeadDelete).Methods(http.MethodDelete)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})

	access := s.AccessLog
	if access == nil {
		access = io.Discard
	}
	var h http.Handler = handlers.CombinedLoggingHandler(access, r)
	h = handlers.CompressHandler(h)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.Logger}))(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- prospects ----

type ProspectItem struct {
	domain.DerivedRecord
	Name        string `json:"name"`
	Description string `json:"description"`
	export.Links
}

type ProspectsMeta struct {
	ResourceID string            `json:"resource_id"`
	Mode       string            `json:"mode"`
	Page       int               `json:"page"`
	Top        int               `json:"top"`
	MinKW      *float64          `json:"min_kw,omitempty"`
	SortKey    string            `json:"sort_key"`
	Cached     bool              `json:"cached"`
	Mapping    map[string]string `json:"mapping"`
	Returned   int               `json:"returned"`
	Matched    int               `json:"matched"`
}

type ProspectsResponse struct {
	Meta        ProspectsMeta   `json:"meta"`
	State       aggregate.State `json:"state"`
	Stats       aggregate.Stats `json:"stats"`
	Diagnostics []string        `json:"diagnostics"`
	Items       []ProspectItem  `json:"items"`
}

func (s *Server) handleProspects(w http.ResponseWriter, r *http.Request) {
	req, err := parseProspectRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp, ok := s.runQuery(w, r, req)
	if !ok {
		return
	}

	items := make([]ProspectItem, 0, len(resp.Items))
	for _, rec := range resp.Items {
		items = append(items, ProspectItem{
			DerivedRecord: rec,
			Name:          export.Name(rec),
			Description:   export.Description(rec),
			Links:         export.LinksFor(rec),
		})
	}
	diags := resp.Result.Diagnostics
	if diags == nil {
		diags = []string{}
	}
	writeJSON(w, http.StatusOK, ProspectsResponse{
		Meta: ProspectsMeta{
			ResourceID: resp.ResourceID,
			Mode:       resp.Mode,
			Page:       resp.Page,
			Top:        req.TopN,
			MinKW:      req.MinDemand,
			SortKey:    resp.Result.SortKey,
			Cached:     resp.Cached,
			Mapping:    resp.Mapping.AsMap(),
			Returned:   len(resp.Result.Records),
			Matched:    len(items),
		},
		State:       resp.Result.State,
		Stats:       resp.Result.Stats,
		Diagnostics: diags,
		Items:       items,
	})
}

func (s *Server) handleProspectsCSV(w http.ResponseWriter, r *http.Request) {
	req, err := parseProspectRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp, ok := s.runQuery(w, r, req)
	if !ok {
		return
	}

	scored := resp.Result.SortKey == aggregate.SortByScore || hasScore(resp.Items)
	name := fmt.Sprintf("prospects_%s_%s.csv", resp.Mode, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, resp.Items, scored); err != nil {
		s.Logger.Error("csv_write_failed", "error", err.Error())
	}
}

// runQuery executes the query and writes the error response itself when
// there is nothing to render.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, req prospect.Request) (prospect.Response, bool) {
	resp, err := s.Prospects.Query(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, prospect.ErrInvalidMode):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_mode"})
		return resp, false
	case errors.Is(err, schema.ErrNoColumns):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "no_columns_detected"})
		return resp, false
	case errors.Is(err, schema.ErrRoleUnmapped):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "role_unmapped", "detail": err.Error()})
		return resp, false
	default:
		s.Logger.Error("prospect_query_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return resp, false
	}

	// nothing came back and the source reported failures: not an empty result
	if resp.Result.Failed() {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":       "query_failed",
			"diagnostics": resp.Result.Diagnostics,
		})
		return resp, false
	}
	return resp, true
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	pr, err := s.Prospects.Columns(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		if errors.Is(err, schema.ErrNoColumns) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "no_columns_detected"})
			return
		}
		s.Logger.Error("columns_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	missing := make([]string, 0)
	for _, role := range pr.Mapping.Missing(domain.AllRoles...) {
		missing = append(missing, string(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": pr.ResourceID,
		"columns":     pr.Columns,
		"mapping":     pr.Mapping.AsMap(),
		"unmapped":    missing,
		"probed_at":   pr.ProbedAt,
	})
}

func parseProspectRequest(r *http.Request) (prospect.Request, error) {
	q := r.URL.Query()
	req := prospect.Request{
		Source:     q.Get("source"),
		Mode:       q.Get("mode"),
		Descending: !strings.EqualFold(q.Get("order"), "asc"),
		Filter: prospect.Filter{
			Regions: listParam(q["region"]),
			Sectors: listParam(q["sector"]),
			Text:    q.Get("q"),
		},
	}
	for _, t := range listParam(q["tier"]) {
		req.Filter.Tiers = append(req.Filter.Tiers, domain.Tier(strings.ToUpper(t)))
	}

	if v := q.Get("min_kw"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return req, errors.New("invalid_min_kw")
		}
		req.MinDemand = &f
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return req, errors.New("invalid_top")
		}
		// safety cap
		if n > 5000 {
			n = 5000
		}
		req.TopN = n
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, errors.New("invalid_page")
		}
		req.Page = n
	}
	return req, nil
}

// listParam accepts repeated parameters and comma separated values.
func listParam(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func hasScore(recs []domain.DerivedRecord) bool {
	for _, r := range recs {
		if r.Score != nil {
			return true
		}
	}
	return false
}

// ---- helpers ----

func parseLimitOffset(r *http.Request, defLimit, defOffset int) (int, int) {
	q := r.URL.Query()

	limit := defLimit
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = defLimit
	}
	// safety cap
	if limit > 200 {
		limit = 200
	}

	offset := defOffset
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = defOffset
	}

	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type recoveryLogger struct{ l *slog.Logger }

func (r recoveryLogger) Println(v ...interface{}) {
	r.l.Error("http_panic", "error", fmt.Sprint(v...))
}
