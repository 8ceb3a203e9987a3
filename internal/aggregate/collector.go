package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/normalize"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

const (
	DefaultTopN      = 200
	DefaultPageSize  = 1000
	DefaultMaxPages  = 10
	DefaultOverFetch = 10
)

type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateFiltering    State = "filtering"
	StateAccumulating State = "accumulating"
	StoppedComplete   State = "complete"
	StoppedEmpty      State = "empty"
)

func (s State) Terminal() bool { return s == StoppedComplete || s == StoppedEmpty }

const (
	SortByDemand = "demand_kw"
	SortByScore  = "priority_score"
)

// Source is the datastore surface the collector drives.
type Source interface {
	Fetch(ctx context.Context, q ckan.Query) ckan.Result
}

type Params struct {
	ResourceID string
	Mapping    domain.ColumnMapping
	MinDemand  float64
	TopN       int

	// paged mode
	PageSize  int
	MaxPages  int
	OverFetch int

	// single-page mode
	Offset      int
	Descending  bool
	CleanDemand bool
}

func (p Params) withDefaults() Params {
	if p.TopN <= 0 {
		p.TopN = DefaultTopN
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	if p.OverFetch <= 0 {
		p.OverFetch = DefaultOverFetch
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type Stats struct {
	Pages          int             `json:"pages"`
	Fetched        int             `json:"fetched"`
	BelowThreshold int             `json:"below_threshold"`
	Normalize      normalize.Stats `json:"normalize"`
}

// Result is one aggregation run's ordered output. It is built per request
// and never persisted.
type Result struct {
	Records     []domain.DerivedRecord `json:"records"`
	State       State                  `json:"state"`
	SortKey     string                 `json:"sort_key"`
	Stats       Stats                  `json:"stats"`
	Diagnostics []string               `json:"diagnostics,omitempty"`
}

// Failed reports a run that produced nothing because the source kept failing,
// as opposed to a legitimately empty result.
func (r Result) Failed() bool {
	return len(r.Records) == 0 && len(r.Diagnostics) > 0
}

type Collector struct {
	src     Source
	engine  *derive.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(src Source, engine *derive.Engine, logger *slog.Logger, m *metrics.Metrics) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{src: src, engine: engine, logger: logger, metrics: m}
}

type run struct {
	state  State
	logger *slog.Logger
}

// to moves the run to s. A stopped run stays stopped.
func (r *run) to(s State, attrs ...any) {
	if r.state.Terminal() {
		return
	}
	r.state = s
	r.logger.Debug("aggregation_state", append([]any{"state", string(s)}, attrs...)...)
}

// CollectTopN pages through the resource without server-side filtering,
// keeping records with demand >= MinDemand until TopN*OverFetch candidates
// are pooled, a page comes back empty, or MaxPages is spent. The pool is
// then stably sorted descending and cut to TopN.
func (c *Collector) CollectTopN(ctx context.Context, p Params) (Result, error) {
	if err := validateMapping(p.Mapping); err != nil {
		return Result{State: StoppedEmpty}, err
	}
	p = p.withDefaults()
	start := time.Now()
	r := &run{state: StateIdle, logger: c.logger.With("resource", p.ResourceID)}

	var res Result
	target := p.TopN * p.OverFetch
	var pool []domain.DerivedRecord

	for page := 0; page < p.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			res.Diagnostics = append(res.Diagnostics, "EXC: "+err.Error())
			break
		}

		r.to(StateFetching, "page", page)
		fr := c.src.Fetch(ctx, ckan.Query{ResourceID: p.ResourceID, Limit: p.PageSize, Offset: page * p.PageSize})
		res.Stats.Pages++
		if fr.Failed() {
			res.Diagnostics = append(res.Diagnostics, fr.Diagnostic)
		}
		if len(fr.Records) == 0 {
			break
		}
		res.Stats.Fetched += len(fr.Records)

		r.to(StateFiltering, "page", page, "records", len(fr.Records))
		kept := c.filterDerive(fr.Records, p, &res.Stats)

		r.to(StateAccumulating, "page", page, "kept", len(kept))
		pool = append(pool, kept...)
		if len(pool) >= target {
			break
		}
	}

	res.SortKey = c.sortPool(pool)
	if len(pool) > p.TopN {
		pool = pool[:p.TopN]
	}
	res.Records = pool
	c.finish(r, &res, start)
	return res, nil
}

// CollectSinglePage embeds threshold, order, limit and offset in one SQL
// statement and derives whatever the server returns. No client paging.
func (c *Collector) CollectSinglePage(ctx context.Context, p Params) (Result, error) {
	if err := validateMapping(p.Mapping); err != nil {
		return Result{State: StoppedEmpty}, err
	}
	p = p.withDefaults()
	start := time.Now()
	r := &run{state: StateIdle, logger: c.logger.With("resource", p.ResourceID, "mode", "sql")}

	demandCol, _ := p.Mapping.Column(domain.RoleDemand)
	latCol, _ := p.Mapping.Column(domain.RoleLatitude)
	lonCol, _ := p.Mapping.Column(domain.RoleLongitude)
	stmt, err := ckan.BuildSQL(ckan.SQLSpec{
		ResourceID:      p.ResourceID,
		Columns:         p.Mapping.Columns(),
		DemandColumn:    demandCol,
		LatitudeColumn:  latCol,
		LongitudeColumn: lonCol,
		CleanDemand:     p.CleanDemand,
		MinDemand:       p.MinDemand,
		Descending:      p.Descending,
		Limit:           p.TopN,
		Offset:          p.Offset,
	})
	if err != nil {
		return Result{State: StoppedEmpty}, fmt.Errorf("collect %s: %w", p.ResourceID, err)
	}

	var res Result
	r.to(StateFetching, "offset", p.Offset)
	fr := c.src.Fetch(ctx, ckan.Query{ResourceID: p.ResourceID, SQL: stmt})
	res.Stats.Pages = 1
	res.Stats.Fetched = len(fr.Records)
	if fr.Failed() {
		res.Diagnostics = append(res.Diagnostics, fr.Diagnostic)
	}

	r.to(StateFiltering, "records", len(fr.Records))
	recs := c.filterDerive(fr.Records, p, &res.Stats)

	r.to(StateAccumulating, "kept", len(recs))
	res.SortKey = SortByDemand
	if p.Descending {
		res.SortKey = c.sortPool(recs)
	}
	if len(recs) > p.TopN {
		recs = recs[:p.TopN]
	}
	res.Records = recs
	c.finish(r, &res, start)
	return res, nil
}

func (c *Collector) filterDerive(raw []domain.RawRecord, p Params, st *Stats) []domain.DerivedRecord {
	norm, ns := normalize.Normalize(raw, p.Mapping)
	st.Normalize.Add(ns)
	c.metrics.RowsDropped("demand", ns.DroppedDemand)
	c.metrics.RowsDropped("latitude", ns.DroppedLatitude)
	c.metrics.RowsDropped("longitude", ns.DroppedLongitude)

	kept := norm[:0]
	for _, n := range norm {
		if n.DemandKW < p.MinDemand {
			st.BelowThreshold++
			continue
		}
		kept = append(kept, n)
	}
	return c.engine.DeriveAll(kept)
}

// sortPool orders by priority score when the engine scores, otherwise by
// demand. Ties keep arrival order.
func (c *Collector) sortPool(pool []domain.DerivedRecord) string {
	if c.engine.Scoring() {
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].PriorityScore() > pool[j].PriorityScore() })
		return SortByScore
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].DemandKW > pool[j].DemandKW })
	return SortByDemand
}

func (c *Collector) finish(r *run, res *Result, start time.Time) {
	if len(res.Records) == 0 {
		r.to(StoppedEmpty)
	} else {
		r.to(StoppedComplete)
	}
	res.State = r.state
	took := time.Since(start)
	c.metrics.Run(string(res.State), took)
	r.logger.Info("aggregation_done",
		"state", string(res.State),
		"pages", res.Stats.Pages,
		"fetched", res.Stats.Fetched,
		"dropped", res.Stats.Normalize.Dropped(),
		"below_threshold", res.Stats.BelowThreshold,
		"returned", len(res.Records),
		"diagnostics", len(res.Diagnostics),
		"took", took.String())
}

func validateMapping(m domain.ColumnMapping) error {
	if len(m.Columns()) == 0 {
		return schema.ErrNoColumns
	}
	return schema.RequireCore(m)
}
