package prospect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/aggregate"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/cache"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

const (
	ModeSQL    = "sql"
	ModeSearch = "search"
)

var ErrInvalidMode = errors.New("invalid query mode")

// Options are the service defaults a Request falls back to.
type Options struct {
	DefaultSource string
	DefaultMode   string
	MinDemand     float64
	TopN          int
	PageSize      int
	MaxPages      int
	OverFetch     int
	CleanDemand   bool
	CacheTTL      time.Duration
	CacheObserver cache.Observer
	// Resources overrides source aliases ("ucat", "mt", ...) to resource ids.
	Resources map[string]string
}

func DefaultOptions() Options {
	return Options{
		DefaultSource: "ucmt",
		DefaultMode:   ModeSearch,
		MinDemand:     0,
		TopN:          aggregate.DefaultTopN,
		PageSize:      aggregate.DefaultPageSize,
		MaxPages:      aggregate.DefaultMaxPages,
		OverFetch:     aggregate.DefaultOverFetch,
		CleanDemand:   true,
		CacheTTL:      30 * time.Minute,
	}
}

// Request is one prospect query. Zero fields take the service defaults,
// except Descending which callers set explicitly.
type Request struct {
	Source     string
	Mode       string
	MinDemand  *float64
	TopN       int
	Page       int
	Descending bool
	Filter     Filter
}

type Response struct {
	ResourceID string
	Mode       string
	Page       int
	Columns    []string
	Mapping    domain.ColumnMapping
	Result     aggregate.Result
	Items      []domain.DerivedRecord
	Cached     bool
}

type Service struct {
	prober    *schema.Prober
	collector *aggregate.Collector
	results   *cache.Cache[aggregate.Result]
	opts      Options
	scored    bool
	logger    *slog.Logger
}

func NewService(prober *schema.Prober, collector *aggregate.Collector, scored bool, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.DefaultSource == "" {
		opts.DefaultSource = def.DefaultSource
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = def.DefaultMode
	}
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		prober:    prober,
		collector: collector,
		results:   cache.New[aggregate.Result](128, opts.CacheTTL, opts.CacheObserver),
		opts:      opts,
		scored:    scored,
		logger:    logger,
	}
}

func (s *Service) Options() Options { return s.opts }

// Columns probes a source and returns its columns and resolved mapping.
func (s *Service) Columns(ctx context.Context, source string) (schema.Probed, error) {
	res := s.resolve(source)
	pr, err := s.prober.Mapping(ctx, res)
	if err != nil {
		return schema.Probed{}, fmt.Errorf("resolve schema %s: %w", res, err)
	}
	return pr, nil
}

// Query resolves the source schema, runs (or reuses) the aggregation, then
// applies the local filter. Only runs without diagnostics are cached.
func (s *Service) Query(ctx context.Context, req Request) (Response, error) {
	mode, err := s.mode(req.Mode)
	if err != nil {
		return Response{}, err
	}
	resID := s.resolve(req.Source)
	top := req.TopN
	if top <= 0 {
		top = s.opts.TopN
	}
	minDemand := s.opts.MinDemand
	if req.MinDemand != nil {
		minDemand = *req.MinDemand
	}
	page := req.Page
	if page < 0 || mode == ModeSearch {
		page = 0
	}

	pr, err := s.prober.Mapping(ctx, resID)
	if err != nil {
		return Response{}, fmt.Errorf("resolve schema %s: %w", resID, err)
	}

	params := aggregate.Params{
		ResourceID:  resID,
		Mapping:     pr.Mapping,
		MinDemand:   minDemand,
		TopN:        top,
		PageSize:    s.opts.PageSize,
		MaxPages:    s.opts.MaxPages,
		OverFetch:   s.opts.OverFetch,
		Offset:      page * top,
		Descending:  req.Descending,
		CleanDemand: s.opts.CleanDemand,
	}
	key := cache.QueryKey{
		ResourceID: resID,
		Mode:       mode,
		MinDemand:  minDemand,
		Limit:      top,
		Offset:     params.Offset,
		Descending: req.Descending,
		Scored:     s.scored,
	}.String()

	resp := Response{
		ResourceID: resID,
		Mode:       mode,
		Page:       page,
		Columns:    pr.Columns,
		Mapping:    pr.Mapping,
	}

	if cached, ok := s.results.Get(key); ok {
		resp.Result = cached
		resp.Cached = true
	} else {
		var res aggregate.Result
		if mode == ModeSQL {
			res, err = s.collector.CollectSinglePage(ctx, params)
		} else {
			res, err = s.collector.CollectTopN(ctx, params)
		}
		if err != nil {
			return Response{}, fmt.Errorf("collect %s: %w", resID, err)
		}
		if len(res.Diagnostics) == 0 {
			s.results.Set(key, res)
		}
		resp.Result = res
	}

	resp.Items = req.Filter.Apply(resp.Result.Records)
	s.logger.Info("prospect_query",
		"resource", resID,
		"mode", mode,
		"min_kw", minDemand,
		"top", top,
		"page", page,
		"cached", resp.Cached,
		"state", string(resp.Result.State),
		"records", len(resp.Result.Records),
		"items", len(resp.Items))
	return resp, nil
}

func (s *Service) resolve(src string) string {
	if strings.TrimSpace(src) == "" {
		src = s.opts.DefaultSource
	}
	if id := s.opts.Resources[strings.ToLower(strings.TrimSpace(src))]; id != "" {
		return id
	}
	return ckan.ResourceFor(src)
}

func (s *Service) mode(m string) (string, error) {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		m = s.opts.DefaultMode
	}
	switch m {
	case ModeSQL, ModeSearch:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
}
