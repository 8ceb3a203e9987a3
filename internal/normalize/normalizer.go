package normalize

import (
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// Stats counts what Normalize kept and why it dropped the rest.
type Stats struct {
	Input            int `json:"input"`
	Kept             int `json:"kept"`
	DroppedDemand    int `json:"dropped_demand"`
	DroppedLatitude  int `json:"dropped_latitude"`
	DroppedLongitude int `json:"dropped_longitude"`
	BadMunicipality  int `json:"bad_municipality"`
}

func (s Stats) Dropped() int {
	return s.DroppedDemand + s.DroppedLatitude + s.DroppedLongitude
}

func (s *Stats) Add(o Stats) {
	s.Input += o.Input
	s.Kept += o.Kept
	s.DroppedDemand += o.DroppedDemand
	s.DroppedLatitude += o.DroppedLatitude
	s.DroppedLongitude += o.DroppedLongitude
	s.BadMunicipality += o.BadMunicipality
}

// Normalize converts raw rows into canonical records. Rows whose demand,
// latitude or longitude do not coerce to an in-range number are dropped and
// counted; an invalid municipality code only clears that field.
func Normalize(raw []domain.RawRecord, m domain.ColumnMapping) ([]domain.NormalizedRecord, Stats) {
	st := Stats{Input: len(raw)}
	out := make([]domain.NormalizedRecord, 0, len(raw))

	for _, r := range raw {
		demand, ok := number(r, m, domain.RoleDemand)
		if !ok || demand < 0 {
			st.DroppedDemand++
			continue
		}
		lat, ok := number(r, m, domain.RoleLatitude)
		if !ok || lat < -90 || lat > 90 {
			st.DroppedLatitude++
			continue
		}
		lon, ok := number(r, m, domain.RoleLongitude)
		if !ok || lon < -180 || lon > 180 {
			st.DroppedLongitude++
			continue
		}

		rec := domain.NormalizedRecord{
			DemandKW:     demand,
			Latitude:     lat,
			Longitude:    lon,
			ActivityCode: text(r, m, domain.RoleActivityCode),
			Street:       text(r, m, domain.RoleStreet),
			District:     text(r, m, domain.RoleDistrict),
			PostalCode:   text(r, m, domain.RolePostalCode),
			ConsumerID:   text(r, m, domain.RoleConsumerID),
			Distributor:  text(r, m, domain.RoleDistributor),
			Raw:          r,
		}
		if col, ok := m.Column(domain.RoleMunicipalityCode); ok {
			if v, present := r[col]; present && v != nil {
				if code, ok := ParseCode(v); ok {
					rec.MunicipalityCode = &code
				} else {
					st.BadMunicipality++
				}
			}
		}
		out = append(out, rec)
	}
	st.Kept = len(out)
	return out, st
}

func number(r domain.RawRecord, m domain.ColumnMapping, role domain.Role) (float64, bool) {
	col, ok := m.Column(role)
	if !ok {
		return 0, false
	}
	return ParseNumber(r[col])
}

func text(r domain.RawRecord, m domain.ColumnMapping, role domain.Role) string {
	col, ok := m.Column(role)
	if !ok {
		return ""
	}
	return Text(r[col])
}
