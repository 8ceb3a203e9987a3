package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/cache"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

var (
	ErrNoColumns    = errors.New("no columns detected")
	ErrRoleUnmapped = errors.New("required column role unmapped")
)

// Fetcher is the part of the datastore client the prober needs.
type Fetcher interface {
	Fetch(ctx context.Context, q ckan.Query) ckan.Result
}

// Probe issues a single-row fetch and returns the resource's column names.
// Server field order wins; without a field list the first record's keys are
// returned sorted.
func Probe(ctx context.Context, f Fetcher, resourceID string) ([]string, error) {
	res := f.Fetch(ctx, ckan.Query{ResourceID: resourceID, Limit: 1})
	if res.Failed() {
		return nil, fmt.Errorf("probe %s: %w (%s)", resourceID, ErrNoColumns, res.Diagnostic)
	}

	var cols []string
	for _, fd := range res.Fields {
		if isInternal(fd.ID) {
			continue
		}
		cols = append(cols, fd.ID)
	}
	if len(cols) == 0 && len(res.Records) > 0 {
		for k := range res.Records[0] {
			if isInternal(k) {
				continue
			}
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("probe %s: %w", resourceID, ErrNoColumns)
	}
	return cols, nil
}

// ResolveRole returns the first candidate, in priority order, that matches a
// column case-insensitively. The column's own spelling is returned.
func ResolveRole(columns, candidates []string) (string, bool) {
	byLower := make(map[string]string, len(columns))
	for _, c := range columns {
		k := strings.ToLower(strings.TrimSpace(c))
		if _, dup := byLower[k]; !dup {
			byLower[k] = c
		}
	}
	for _, cand := range candidates {
		if c, ok := byLower[strings.ToLower(strings.TrimSpace(cand))]; ok {
			return c, true
		}
	}
	return "", false
}

// Resolve maps every known role against the probed columns. A column is
// claimed by at most one role; earlier roles in domain.AllRoles win.
func Resolve(columns []string, cands Candidates) domain.ColumnMapping {
	m := make(map[domain.Role]string)
	used := make(map[string]bool)
	for _, role := range domain.AllRoles {
		var free []string
		for _, c := range columns {
			if !used[c] {
				free = append(free, c)
			}
		}
		if col, ok := ResolveRole(free, cands[role]); ok {
			m[role] = col
			used[col] = true
		}
	}
	return domain.NewColumnMapping(m)
}

// RequireCore fails when demand, latitude or longitude has no column.
func RequireCore(m domain.ColumnMapping) error {
	missing := m.Missing(domain.CoreRoles...)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, r := range missing {
		names = append(names, string(r))
	}
	return fmt.Errorf("%w: %s", ErrRoleUnmapped, strings.Join(names, ", "))
}

func isInternal(col string) bool {
	return col == "_id" || col == "_full_text"
}

// Probed is the outcome of probing one resource.
type Probed struct {
	ResourceID string
	Columns    []string
	Mapping    domain.ColumnMapping
	ProbedAt   time.Time
}

// Prober resolves column mappings per resource and keeps them for a TTL.
// Failed probes are never cached, so an expired or missing entry just
// probes again.
type Prober struct {
	f      Fetcher
	cands  Candidates
	cache  *cache.Cache[Probed]
	logger *slog.Logger
}

func NewProber(f Fetcher, cands Candidates, ttl time.Duration, obs cache.Observer, logger *slog.Logger) *Prober {
	if cands == nil {
		cands = DefaultCandidates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		f:      f,
		cands:  cands,
		cache:  cache.New[Probed](64, ttl, obs),
		logger: logger,
	}
}

func (p *Prober) Mapping(ctx context.Context, resourceID string) (Probed, error) {
	key := cache.SchemaKey(resourceID)
	if pr, ok := p.cache.Get(key); ok {
		return pr, nil
	}

	cols, err := Probe(ctx, p.f, resourceID)
	if err != nil {
		p.logger.Error("schema_probe_failed", "resource", resourceID, "error", err.Error())
		return Probed{}, err
	}
	pr := Probed{
		ResourceID: resourceID,
		Columns:    cols,
		Mapping:    Resolve(cols, p.cands),
		ProbedAt:   time.Now(),
	}
	p.logger.Info("schema_probed",
		"resource", resourceID,
		"columns", len(cols),
		"mapping", pr.Mapping.AsMap())
	p.cache.Set(key, pr)
	return pr, nil
}

func (p *Prober) Invalidate(resourceID string) {
	p.cache.Delete(cache.SchemaKey(resourceID))
}
