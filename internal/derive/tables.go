package derive

import "sort"

// UnknownRegion is reported when a municipality code is absent or unmapped.
const UnknownRegion = "??"

// ufByIBGECode maps the 2-digit IBGE state prefix of a municipality code to
// the state abbreviation.
var ufByIBGECode = map[int]string{
	11: "RO", 12: "AC", 13: "AM", 14: "RR", 15: "PA", 16: "AP", 17: "TO",
	21: "MA", 22: "PI", 23: "CE", 24: "RN", 25: "PB", 26: "PE", 27: "AL", 28: "SE", 29: "BA",
	31: "MG", 32: "ES", 33: "RJ", 35: "SP",
	41: "PR", 42: "SC", 43: "RS",
	50: "MS", 51: "MT", 52: "GO", 53: "DF",
}

const (
	SectorUnknown = "Desconhecido"
	SectorOther   = "Outros"
)

// sectorByCNAEDivision maps a CNAE division (first two digits) to a sector.
var sectorByCNAEDivision = map[string]string{
	"10": "Alimentos",
	"17": "Papel e celulose",
	"19": "Combustíveis",
	"20": "Químico",
	"21": "Farmacêutico",
	"22": "Plástico",
	"23": "Minerais não metálicos",
	"24": "Metalurgia",
	"25": "Metal mecânico",
	"26": "Eletrônico",
	"27": "Equipamentos elétricos",
	"28": "Máquinas",
	"29": "Automotivo",
	"30": "Transporte",
	"35": "Energia",
	"46": "Atacado",
	"47": "Varejo",
	"52": "Logística",
	"68": "Imobiliário",
	"84": "Administração pública",
}

// Regions returns every known state abbreviation, sorted.
func Regions() []string {
	out := make([]string, 0, len(ufByIBGECode))
	for _, uf := range ufByIBGECode {
		out = append(out, uf)
	}
	sort.Strings(out)
	return out
}
