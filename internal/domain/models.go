package domain

import (
	"strings"
	"time"
)

// RawRecord is one row as returned by the datastore: column name -> scalar
// (string, json.Number, float64, bool or nil).
type RawRecord map[string]any

type Role string

const (
	RoleDemand           Role = "demand"
	RoleLatitude         Role = "latitude"
	RoleLongitude        Role = "longitude"
	RoleMunicipalityCode Role = "municipality_code"

	RoleActivityCode Role = "activity_code"
	RoleStreet       Role = "street"
	RoleDistrict     Role = "district"
	RolePostalCode   Role = "postal_code"
	RoleConsumerID   Role = "consumer_id"
	RoleDistributor  Role = "distributor"
)

// CoreRoles must all be mapped before records can be normalized.
var CoreRoles = []Role{RoleDemand, RoleLatitude, RoleLongitude}

// AllRoles is the resolution order used when building a ColumnMapping.
var AllRoles = []Role{
	RoleDemand, RoleLatitude, RoleLongitude, RoleMunicipalityCode,
	RoleActivityCode, RoleStreet, RoleDistrict, RolePostalCode, RoleConsumerID, RoleDistributor,
}

// ColumnMapping associates canonical roles with the source's column names.
// The zero value maps nothing. It is never mutated after construction.
type ColumnMapping struct {
	cols map[Role]string
}

func NewColumnMapping(m map[Role]string) ColumnMapping {
	cols := make(map[Role]string, len(m))
	for r, c := range m {
		if strings.TrimSpace(c) != "" {
			cols[r] = c
		}
	}
	return ColumnMapping{cols: cols}
}

func (m ColumnMapping) Column(r Role) (string, bool) {
	c, ok := m.cols[r]
	return c, ok
}

// Columns returns the mapped source columns in AllRoles order.
func (m ColumnMapping) Columns() []string {
	out := make([]string, 0, len(m.cols))
	for _, r := range AllRoles {
		if c, ok := m.cols[r]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Missing lists the given roles that have no column.
func (m ColumnMapping) Missing(roles ...Role) []Role {
	var out []Role
	for _, r := range roles {
		if _, ok := m.cols[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

func (m ColumnMapping) AsMap() map[string]string {
	out := make(map[string]string, len(m.cols))
	for r, c := range m.cols {
		out[string(r)] = c
	}
	return out
}

type NormalizedRecord struct {
	DemandKW         float64 `json:"demand_kw"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	MunicipalityCode *int    `json:"municipality_code,omitempty"`

	ActivityCode string `json:"activity_code,omitempty"`
	Street       string `json:"street,omitempty"`
	District     string `json:"district,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	ConsumerID   string `json:"consumer_id,omitempty"`
	Distributor  string `json:"distributor,omitempty"`

	Raw RawRecord `json:"-"`
}

// Address joins street, district and postal code, skipping blanks.
func (r NormalizedRecord) Address() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Street, r.District, r.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Tier string

const (
	TierAAA Tier = "AAA"
	TierAA  Tier = "AA"
	TierA   Tier = "A"
	TierB   Tier = "B"
	TierC   Tier = "C"
)

var Tiers = []Tier{TierAAA, TierAA, TierA, TierB, TierC}

type ScoreBreakdown struct {
	Demand  float64 `json:"demand"`
	Tier    float64 `json:"tier"`
	Address float64 `json:"address"`
	Total   float64 `json:"total"`
}

type DerivedRecord struct {
	NormalizedRecord
	Region string          `json:"region"`
	Tier   Tier            `json:"tier"`
	Sector string          `json:"sector"`
	Score  *ScoreBreakdown `json:"score,omitempty"`
}

// PriorityScore returns the total score, or -1 when the record was not scored.
func (d DerivedRecord) PriorityScore() float64 {
	if d.Score == nil {
		return -1
	}
	return d.Score.Total
}

// Lead is a prospect an operator saved for follow-up.
type Lead struct {
	ID               string    `json:"id"`
	ResourceID       string    `json:"resource_id"`
	ConsumerID       string    `json:"consumer_id"`
	Region           string    `json:"region"`
	Tier             Tier      `json:"tier"`
	Sector           string    `json:"sector"`
	DemandKW         float64   `json:"demand_kw"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	MunicipalityCode *int      `json:"municipality_code,omitempty"`
	Address          string    `json:"address"`
	PostalCode       string    `json:"postal_code"`
	Score            *float64  `json:"score,omitempty"`
	Note             string    `json:"note"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewLead snapshots a derived record for saving.
func NewLead(resourceID string, r DerivedRecord, note string) Lead {
	l := Lead{
		ResourceID:       resourceID,
		ConsumerID:       r.ConsumerID,
		Region:           r.Region,
		Tier:             r.Tier,
		Sector:           r.Sector,
		DemandKW:         r.DemandKW,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		MunicipalityCode: r.MunicipalityCode,
		Address:          r.Address(),
		PostalCode:       r.PostalCode,
		Note:             note,
	}
	if r.Score != nil {
		s := r.Score.Total
		l.Score = &s
	}
	return l
}
