package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/storage"
)

type LeadsListResponse struct {
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Total  int           `json:"total"`
	Items  []domain.Lead `json:"items"`
}

func (s *Server) handleLeadsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 20, 0)
	q := r.URL.Query()

	var minKW float64
	if v := q.Get("min_kw"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_min_kw"})
			return
		}
		minKW = f
	}
	sort := q.Get("sort")
	switch sort {
	case "", "demand_desc", "demand_asc", "score_desc":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_sort"})
		return
	}

	items, total, err := s.Leads.List(r.Context(), LeadListParams{
		Limit:  limit,
		Offset: offset,
		Region: q.Get("region"),
		Tier:   q.Get("tier"),
		MinKW:  minKW,
		Sort:   sort,
	})
	if err != nil {
		s.Logger.Error("leads_list_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	if items == nil {
		items = []domain.Lead{}
	}
	writeJSON(w, http.StatusOK, LeadsListResponse{Limit: limit, Offset: offset, Total: total, Items: items})
}

func (s *Server) handleLeadGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	l, ok, err := s.Leads.Get(r.Context(), id)
	if err != nil {
		s.Logger.Error("lead_get_failed", "id", id, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLeadDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := s.Leads.Delete(r.Context(), id)
	if err != nil {
		s.Logger.Error("lead_delete_failed", "id", id, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type CreateLeadRequest struct {
	ResourceID       string   `json:"resource_id"`
	ConsumerID       string   `json:"consumer_id"`
	Region           string   `json:"region"`
	Tier             string   `json:"tier"`
	Sector           string   `json:"sector"`
	DemandKW         float64  `json:"demand_kw"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	MunicipalityCode *int     `json:"municipality_code"`
	Address          string   `json:"address"`
	PostalCode       string   `json:"postal_code"`
	Score            *float64 `json:"score"`
	Note             string   `json:"note"`
}

func (s *Server) handleLeadsCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return
	}

	// minimal validation
	if strings.TrimSpace(req.ResourceID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resource_id_required"})
		return
	}
	if req.DemandKW < 0 || req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "out_of_range"})
		return
	}

	tier := domain.Tier(strings.ToUpper(strings.TrimSpace(req.Tier)))
	if tier == "" {
		tier = derive.TierFor(req.DemandKW)
	} else if !validTier(tier) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_tier"})
		return
	}
	region := strings.ToUpper(strings.TrimSpace(req.Region))
	if region == "" {
		region = derive.Region(req.MunicipalityCode)
	}

	l, err := s.Leads.Create(r.Context(), domain.Lead{
		ResourceID:       strings.TrimSpace(req.ResourceID),
		ConsumerID:       strings.TrimSpace(req.ConsumerID),
		Region:           region,
		Tier:             tier,
		Sector:           req.Sector,
		DemandKW:         req.DemandKW,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		MunicipalityCode: req.MunicipalityCode,
		Address:          req.Address,
		PostalCode:       req.PostalCode,
		Score:            req.Score,
		Note:             req.Note,
	})
	if errors.Is(err, storage.ErrDuplicateLead) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate"})
		return
	}
	if err != nil {
		s.Logger.Error("lead_create_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func validTier(t domain.Tier) bool {
	for _, v := range domain.Tiers {
		if v == t {
			return true
		}
	}
	return false
}
