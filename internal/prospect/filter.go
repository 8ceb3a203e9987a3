package prospect

import (
	"strconv"
	"strings"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// Filter narrows an already aggregated result. Empty sets match everything.
type Filter struct {
	Regions []string
	Tiers   []domain.Tier
	Sectors []string
	Text    string
}

func (f Filter) Empty() bool {
	return len(f.Regions) == 0 && len(f.Tiers) == 0 && len(f.Sectors) == 0 && strings.TrimSpace(f.Text) == ""
}

func (f Filter) Apply(recs []domain.DerivedRecord) []domain.DerivedRecord {
	if f.Empty() {
		return recs
	}
	out := make([]domain.DerivedRecord, 0, len(recs))
	for _, r := range recs {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) Match(r domain.DerivedRecord) bool {
	if len(f.Regions) > 0 && !containsFold(f.Regions, r.Region) {
		return false
	}
	if len(f.Tiers) > 0 {
		ok := false
		for _, t := range f.Tiers {
			if strings.EqualFold(string(t), string(r.Tier)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Sectors) > 0 && !containsFold(f.Sectors, r.Sector) {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(f.Text))
	if q == "" {
		return true
	}
	fields := []string{r.ActivityCode, r.Street, r.District, r.PostalCode, r.Distributor}
	if r.MunicipalityCode != nil {
		fields = append(fields, strconv.Itoa(*r.MunicipalityCode))
	}
	for _, s := range fields {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
