package schema

import "github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"

// Candidates lists, per role, the column aliases the feeds have used over
// time, highest priority first.
type Candidates map[domain.Role][]string

func DefaultCandidates() Candidates {
	return Candidates{
		domain.RoleDemand:           {"dem_cont", "demanda", "dem_kw", "demanda_kw", "dem_cont_kw", "demanda_contratada"},
		domain.RoleLatitude:         {"point_y", "latitude", "lat", "coord_y", "y"},
		domain.RoleLongitude:        {"point_x", "longitude", "lon", "lng", "long", "coord_x", "x"},
		domain.RoleMunicipalityCode: {"mun", "cod_mun", "cod_ibge", "cd_mun", "cod_municipio", "municipio"},
		domain.RoleActivityCode:     {"cnae", "cod_cnae", "cnae_principal"},
		domain.RoleStreet:           {"lgrd", "logradouro", "endereco"},
		domain.RoleDistrict:         {"brr", "bairro"},
		domain.RolePostalCode:       {"cep"},
		domain.RoleConsumerID:       {"cod_id_encr", "cod_id", "id_uc"},
		domain.RoleDistributor:      {"dist", "distribuidora", "sig_agente"},
	}
}

// Merge returns a copy of c where every role present in override has the
// override's aliases placed ahead of the defaults.
func (c Candidates) Merge(override map[string][]string) Candidates {
	out := make(Candidates, len(c))
	for r, list := range c {
		out[r] = append([]string(nil), list...)
	}
	for name, list := range override {
		r := domain.Role(name)
		seen := make(map[string]bool, len(list))
		merged := make([]string, 0, len(list)+len(out[r]))
		for _, a := range append(append([]string(nil), list...), out[r]...) {
			if seen[a] {
				continue
			}
			seen[a] = true
			merged = append(merged, a)
		}
		out[r] = merged
	}
	return out
}
