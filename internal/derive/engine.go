package derive

import (
	"math"
	"strings"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

type Engine struct {
	params  ScoreParams
	scoring bool
}

// NewEngine builds a derivation engine. With scoring off, derived records
// carry no priority score and sort by demand.
func NewEngine(p ScoreParams, scoring bool) *Engine {
	return &Engine{params: p, scoring: scoring}
}

func (e *Engine) Scoring() bool { return e.scoring }

// Derive computes region, tier, sector and, when enabled, the priority score.
// It has no side effects.
func (e *Engine) Derive(rec domain.NormalizedRecord) domain.DerivedRecord {
	d := domain.DerivedRecord{
		NormalizedRecord: rec,
		Region:           Region(rec.MunicipalityCode),
		Tier:             TierFor(rec.DemandKW),
		Sector:           SectorFor(rec.ActivityCode),
	}
	if e.scoring {
		s := e.Score(rec, d.Tier)
		d.Score = &s
	}
	return d
}

func (e *Engine) DeriveAll(recs []domain.NormalizedRecord) []domain.DerivedRecord {
	out := make([]domain.DerivedRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, e.Derive(r))
	}
	return out
}

// Score sums the demand (log-compressed), tier and address components. Each
// component is rounded to 0.1 before summing; the total is clamped to 0..100.
func (e *Engine) Score(rec domain.NormalizedRecord, tier domain.Tier) domain.ScoreBreakdown {
	sd := round1(demandScore(rec.DemandKW, e.params))
	st := round1(clamp(e.params.TierPoints[tier], 0, 100))
	sa := round1(addressScore(rec.Street, rec.PostalCode) / 10 * e.params.AddressMax)
	return domain.ScoreBreakdown{
		Demand:  sd,
		Tier:    st,
		Address: sa,
		Total:   round1(clamp(sd+st+sa, 0, 100)),
	}
}

// Region maps floor(code/100000) to the state abbreviation.
func Region(code *int) string {
	if code == nil || *code <= 0 {
		return UnknownRegion
	}
	if uf, ok := ufByIBGECode[*code/100000]; ok {
		return uf
	}
	return UnknownRegion
}

// TierFor buckets demand; each lower bound is inclusive.
func TierFor(demandKW float64) domain.Tier {
	switch {
	case demandKW >= 5000:
		return domain.TierAAA
	case demandKW >= 2000:
		return domain.TierAA
	case demandKW >= 500:
		return domain.TierA
	case demandKW >= 100:
		return domain.TierB
	default:
		return domain.TierC
	}
}

// SectorFor classifies a CNAE code by its division prefix.
func SectorFor(activityCode string) string {
	s := strings.TrimSpace(activityCode)
	if s == "" {
		return SectorUnknown
	}
	// numeric feeds drop the leading zero of divisions 01..09
	if len(s) == 6 && isDigits(s) {
		s = "0" + s
	}
	if len(s) < 2 {
		return SectorOther
	}
	if sector, ok := sectorByCNAEDivision[s[:2]]; ok {
		return sector
	}
	return SectorOther
}

func demandScore(demandKW float64, p ScoreParams) float64 {
	if demandKW < 0 {
		demandKW = 0
	}
	lo := math.Log10(p.DemandFloorKW + 1)
	hi := math.Log10(p.DemandCeilKW + 1)
	if hi <= lo {
		return 0
	}
	v := p.DemandWeight * (math.Log10(demandKW+1) - lo) / (hi - lo)
	return clamp(v, 0, p.DemandWeight)
}

var streetTypes = map[string]bool{
	"R": true, "RUA": true, "AV": true, "AVENIDA": true, "ROD": true, "RODOVIA": true,
	"EST": true, "ESTRADA": true, "AL": true, "ALAMEDA": true, "TV": true, "TRAV": true,
	"TRAVESSA": true, "PC": true, "PCA": true, "PRACA": true, "PRAÇA": true, "LARGO": true,
	"VIA": true, "BR": true, "SP": true, "LINHA": true, "QUADRA": true, "QD": true,
}

// addressScore awards up to 10 points for structured address signals:
// a postal code (4), separator punctuation (3) and a street-type token or
// house number (3).
func addressScore(street, postalCode string) float64 {
	var s float64
	upper := strings.ToUpper(street)

	if countDigits(postalCode) == 8 || strings.Contains(upper, "CEP") {
		s += 4
	}
	if strings.ContainsAny(street, ",-/") {
		s += 3
	}
	if hasStreetType(upper) || countDigits(street) > 0 {
		s += 3
	}
	return math.Min(s, 10)
}

func hasStreetType(upper string) bool {
	for _, tok := range strings.FieldsFunc(upper, func(r rune) bool {
		return r == ' ' || r == '.' || r == ','
	}) {
		if streetTypes[tok] {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func isDigits(s string) bool {
	return s != "" && countDigits(s) == len(s)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
