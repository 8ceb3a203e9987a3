package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/derive"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/logging"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/metrics"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/schema"
)

// pagedSource serves rows in datastore_search pages and records every query.
type pagedSource struct {
	rows    []domain.RawRecord
	queries []ckan.Query
	failAt  int // page index that fails, -1 never
	sqlRows []domain.RawRecord
}

func (s *pagedSource) Fetch(_ context.Context, q ckan.Query) ckan.Result {
	s.queries = append(s.queries, q)
	if q.SQL != "" {
		return ckan.Result{Records: s.sqlRows, Attempts: 1}
	}
	if s.failAt >= 0 && q.Offset/q.Limit == s.failAt {
		return ckan.Result{Attempts: 4, Diagnostic: "HTTP 503: busy"}
	}
	if q.Offset >= len(s.rows) {
		return ckan.Result{Attempts: 1}
	}
	end := q.Offset + q.Limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return ckan.Result{Records: s.rows[q.Offset:end], Attempts: 1}
}

func mapping() domain.ColumnMapping {
	return domain.NewColumnMapping(map[domain.Role]string{
		domain.RoleDemand:           "dem_cont",
		domain.RoleLatitude:         "point_y",
		domain.RoleLongitude:        "point_x",
		domain.RoleMunicipalityCode: "mun",
		domain.RoleConsumerID:       "cod_id_encr",
	})
}

func row(id int, demand any) domain.RawRecord {
	return domain.RawRecord{
		"cod_id_encr": fmt.Sprintf("id-%04d", id),
		"dem_cont":    demand,
		"point_y":     "-25.43",
		"point_x":     "-49.27",
		"mun":         "4106902",
	}
}

// rows builds n records with demand (i*37)%n*10 so values are scattered.
func rows(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, row(i, float64((i*37)%n*10)))
	}
	return out
}

func newCollector(src Source, scoring bool) *Collector {
	return New(src, derive.NewEngine(derive.DefaultScoreParams(), scoring), logging.Discard(), metrics.New())
}

func TestCollectTopN_ReturnsLargestDemandsDescending(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: rows(1000), failAt: -1}
	c := newCollector(src, false)

	res, err := c.CollectTopN(context.Background(), Params{
		ResourceID: "r1",
		Mapping:    mapping(),
		MinDemand:  500,
		TopN:       50,
		PageSize:   100,
		MaxPages:   20,
		OverFetch:  100,
	})
	if err != nil {
		t.Fatalf("CollectTopN: %v", err)
	}
	if res.State != StoppedComplete {
		t.Fatalf("state=%s want=%s", res.State, StoppedComplete)
	}
	if len(res.Records) != 50 {
		t.Fatalf("records=%d want=50", len(res.Records))
	}
	// all 1000 rows are read: target 5000 is never reached
	if res.Stats.Pages != 11 || res.Stats.Fetched != 1000 {
		t.Fatalf("pages=%d fetched=%d want 11/1000", res.Stats.Pages, res.Stats.Fetched)
	}
	// demands are 0..9990 step 10, the top 50 are 9990 down to 9500
	for i, r := range res.Records {
		want := float64(9990 - i*10)
		if r.DemandKW != want {
			t.Fatalf("record %d demand=%v want=%v", i, r.DemandKW, want)
		}
		if r.DemandKW < 500 {
			t.Fatalf("record %d below threshold: %v", i, r.DemandKW)
		}
	}
	if res.SortKey != SortByDemand {
		t.Fatalf("sort key=%s", res.SortKey)
	}
}

func TestCollectTopN_IsDeterministic(t *testing.T) {
	t.Parallel()

	data := rows(300)
	p := Params{ResourceID: "r1", Mapping: mapping(), MinDemand: 100, TopN: 20, PageSize: 50, MaxPages: 10, OverFetch: 10}

	a, err := newCollector(&pagedSource{rows: data, failAt: -1}, true).CollectTopN(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newCollector(&pagedSource{rows: data, failAt: -1}, true).CollectTopN(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Records) != len(b.Records) {
		t.Fatalf("len %d != %d", len(a.Records), len(b.Records))
	}
	for i := range a.Records {
		if a.Records[i].ConsumerID != b.Records[i].ConsumerID {
			t.Fatalf("record %d differs: %s vs %s", i, a.Records[i].ConsumerID, b.Records[i].ConsumerID)
		}
	}
	if a.SortKey != SortByScore {
		t.Fatalf("sort key=%s want=%s", a.SortKey, SortByScore)
	}
}

func TestCollectTopN_StopsOnceOverFetchTargetReached(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: rows(1000), failAt: -1}
	c := newCollector(src, false)

	// 2*10 = 20 kept rows are enough; every row passes min 0
	res, err := c.CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 2, PageSize: 10, MaxPages: 50, OverFetch: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(src.queries) != 2 {
		t.Fatalf("queries=%d want=2", len(src.queries))
	}
	if len(res.Records) != 2 {
		t.Fatalf("records=%d want=2", len(res.Records))
	}
}

func TestCollectTopN_EndOfDataAndPageBudget(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: rows(25), failAt: -1}
	res, err := newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 100, PageSize: 10, MaxPages: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	// pages at offsets 0, 10, 20 return data, 30 is empty
	if len(src.queries) != 4 {
		t.Fatalf("queries=%d want=4", len(src.queries))
	}
	for i, q := range src.queries {
		if q.Offset != i*10 || q.Limit != 10 || q.SQL != "" {
			t.Fatalf("query %d = %+v", i, q)
		}
	}
	if len(res.Records) != 25 {
		t.Fatalf("records=%d want=25", len(res.Records))
	}

	src = &pagedSource{rows: rows(1000), failAt: -1}
	if _, err := newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 1000, PageSize: 10, MaxPages: 3,
	}); err != nil {
		t.Fatal(err)
	}
	if len(src.queries) != 3 {
		t.Fatalf("queries=%d want=3 (page budget)", len(src.queries))
	}
}

func TestCollectTopN_EmptyWhenNothingQualifies(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: []domain.RawRecord{row(1, "50"), row(2, "n/a"), row(3, 80.0)}, failAt: -1}
	res, err := newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), MinDemand: 100, TopN: 10, PageSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StoppedEmpty {
		t.Fatalf("state=%s want=%s", res.State, StoppedEmpty)
	}
	if len(res.Records) != 0 {
		t.Fatalf("records=%d want=0", len(res.Records))
	}
	if res.Failed() {
		t.Fatalf("empty result must not read as a failure: %v", res.Diagnostics)
	}
	if res.Stats.BelowThreshold != 2 || res.Stats.Normalize.DroppedDemand != 1 {
		t.Fatalf("stats=%+v", res.Stats)
	}
}

func TestCollectTopN_FailedPageKeepsWhatWasGathered(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: rows(100), failAt: 1}
	res, err := newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 100, PageSize: 10, MaxPages: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 10 {
		t.Fatalf("records=%d want=10", len(res.Records))
	}
	if len(res.Diagnostics) != 1 || !strings.Contains(res.Diagnostics[0], "503") {
		t.Fatalf("diagnostics=%v", res.Diagnostics)
	}
	if res.Failed() {
		t.Fatal("partial result reported as failure")
	}

	src = &pagedSource{rows: rows(100), failAt: 0}
	res, _ = newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 100, PageSize: 10,
	})
	if !res.Failed() || res.State != StoppedEmpty {
		t.Fatalf("want failed empty run, got state=%s diags=%v", res.State, res.Diagnostics)
	}
}

func TestCollectTopN_SchemaErrorsAreFatal(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: rows(10), failAt: -1}
	c := newCollector(src, false)

	_, err := c.CollectTopN(context.Background(), Params{ResourceID: "r1", Mapping: domain.ColumnMapping{}})
	if !errors.Is(err, schema.ErrNoColumns) {
		t.Fatalf("err=%v want ErrNoColumns", err)
	}

	noLat := domain.NewColumnMapping(map[domain.Role]string{
		domain.RoleDemand:    "dem_cont",
		domain.RoleLongitude: "point_x",
	})
	_, err = c.CollectTopN(context.Background(), Params{ResourceID: "r1", Mapping: noLat})
	if !errors.Is(err, schema.ErrRoleUnmapped) {
		t.Fatalf("err=%v want ErrRoleUnmapped", err)
	}
	if len(src.queries) != 0 {
		t.Fatalf("no page may be fetched on schema error, got %d", len(src.queries))
	}
}

func TestCollectTopN_TiesKeepArrivalOrder(t *testing.T) {
	t.Parallel()

	src := &pagedSource{rows: []domain.RawRecord{row(1, 700.0), row(2, 900.0), row(3, 700.0), row(4, 700.0)}, failAt: -1}
	res, err := newCollector(src, false).CollectTopN(context.Background(), Params{
		ResourceID: "r1", Mapping: mapping(), TopN: 4, PageSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range res.Records {
		got = append(got, r.ConsumerID)
	}
	want := "id-0002,id-0001,id-0003,id-0004"
	if strings.Join(got, ",") != want {
		t.Fatalf("order=%v want=%s", got, want)
	}
}

func TestCollectSinglePage_BuildsSQLAndPassesThrough(t *testing.T) {
	t.Parallel()

	src := &pagedSource{
		failAt:  -1,
		sqlRows: []domain.RawRecord{row(1, "8.000,5"), row(2, "2500"), row(3, "bad")},
	}
	res, err := newCollector(src, false).CollectSinglePage(context.Background(), Params{
		ResourceID:  "res-1",
		Mapping:     mapping(),
		MinDemand:   500,
		TopN:        3,
		Offset:      6,
		Descending:  true,
		CleanDemand: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(src.queries) != 1 {
		t.Fatalf("queries=%d want=1", len(src.queries))
	}
	sql := src.queries[0].SQL
	for _, frag := range []string{`FROM "res-1"`, ">= 500", "DESC", "LIMIT 3", "OFFSET 6", "regexp_replace"} {
		if !strings.Contains(sql, frag) {
			t.Fatalf("sql %q missing %q", sql, frag)
		}
	}
	if len(res.Records) != 2 {
		t.Fatalf("records=%d want=2", len(res.Records))
	}
	if res.Records[0].DemandKW != 8000.5 || res.Records[0].Tier != domain.TierAAA {
		t.Fatalf("first=%+v", res.Records[0])
	}
	if res.Records[0].Region != "PR" {
		t.Fatalf("region=%s want=PR", res.Records[0].Region)
	}
	if res.Stats.Normalize.DroppedDemand != 1 {
		t.Fatalf("dropped=%d want=1", res.Stats.Normalize.DroppedDemand)
	}
}
