package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// LoadLeadsFromFile reads the JSON array used to seed an empty store.
// Tiers are upper-cased; a lead without a resource or with an unknown tier
// rejects the whole file.
func LoadLeadsFromFile(path string) ([]domain.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	var leads []domain.Lead
	if err := dec.Decode(&leads); err != nil {
		return nil, fmt.Errorf("decode seed leads %s: %w", path, err)
	}

	for i := range leads {
		l := &leads[i]
		l.ResourceID = strings.TrimSpace(l.ResourceID)
		l.Tier = domain.Tier(strings.ToUpper(strings.TrimSpace(string(l.Tier))))
		if l.ResourceID == "" {
			return nil, fmt.Errorf("seed lead %d: missing resource_id", i)
		}
		if !knownTier(l.Tier) {
			return nil, fmt.Errorf("seed lead %d: unknown tier %q", i, l.Tier)
		}
	}
	return leads, nil
}

func knownTier(t domain.Tier) bool {
	for _, v := range domain.Tiers {
		if t == v {
			return true
		}
	}
	return false
}
