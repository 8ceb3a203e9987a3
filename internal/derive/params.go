package derive

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// ScoreParams holds the priority score tuning. The demand bounds are
// heuristics; the defaults reproduce log10(101)..log10(500001).
type ScoreParams struct {
	DemandFloorKW float64                 `json:"demand_floor_kw" yaml:"demand_floor_kw"`
	DemandCeilKW  float64                 `json:"demand_ceil_kw" yaml:"demand_ceil_kw"`
	DemandWeight  float64                 `json:"demand_weight" yaml:"demand_weight"`
	TierPoints    map[domain.Tier]float64 `json:"tier_points" yaml:"tier_points"`
	AddressMax    float64                 `json:"address_max" yaml:"address_max"`
}

func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		DemandFloorKW: 100,
		DemandCeilKW:  500000,
		DemandWeight:  70,
		TierPoints: map[domain.Tier]float64{
			domain.TierAAA: 20,
			domain.TierAA:  16,
			domain.TierA:   12,
			domain.TierB:   6,
			domain.TierC:   2,
		},
		AddressMax: 10,
	}
}

func (p ScoreParams) Validate() error {
	if p.DemandFloorKW < 0 {
		return errors.New("demand_floor_kw must be >= 0")
	}
	if p.DemandCeilKW <= p.DemandFloorKW {
		return errors.New("demand_ceil_kw must be greater than demand_floor_kw")
	}
	if p.DemandWeight < 0 || p.AddressMax < 0 {
		return errors.New("weights must be >= 0")
	}
	for t, v := range p.TierPoints {
		if v < 0 {
			return fmt.Errorf("tier_points[%s] must be >= 0", t)
		}
	}
	return nil
}

// LoadScoreParamsFromFile reads YAML (or JSON) over the defaults. On any
// error the defaults are returned along with it.
func LoadScoreParamsFromFile(path string) (ScoreParams, error) {
	p := DefaultScoreParams()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read score params file: %w", err)
	}
	loaded := DefaultScoreParams()
	if err := yaml.Unmarshal(b, &loaded); err != nil {
		return p, fmt.Errorf("unmarshal score params: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return p, fmt.Errorf("invalid score params: %w", err)
	}
	return loaded, nil
}
