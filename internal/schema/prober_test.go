package schema

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/ckan"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/logging"
)

type fakeFetcher struct {
	res   ckan.Result
	calls int
	last  ckan.Query
}

func (f *fakeFetcher) Fetch(_ context.Context, q ckan.Query) ckan.Result {
	f.calls++
	f.last = q
	return f.res
}

func TestResolveRole_PriorityAndCase(t *testing.T) {
	cols := []string{"DEMANDA", "Dem_Cont", "point_x"}

	got, ok := ResolveRole(cols, []string{"dem_cont", "demanda"})
	if !ok || got != "Dem_Cont" {
		t.Fatalf("got %q,%v want Dem_Cont,true", got, ok)
	}

	got, ok = ResolveRole(cols, []string{"dem_kw", "demanda"})
	if !ok || got != "DEMANDA" {
		t.Fatalf("got %q,%v want DEMANDA,true", got, ok)
	}

	if _, ok := ResolveRole(cols, []string{"lat"}); ok {
		t.Fatalf("expected no match")
	}
}

func TestResolve_BDGDColumns(t *testing.T) {
	cols := []string{"cod_id_encr", "cnae", "dem_cont", "lgrd", "brr", "cep", "point_y", "point_x", "mun", "dist"}
	m := Resolve(cols, DefaultCandidates())

	want := map[domain.Role]string{
		domain.RoleDemand:           "dem_cont",
		domain.RoleLatitude:         "point_y",
		domain.RoleLongitude:        "point_x",
		domain.RoleMunicipalityCode: "mun",
		domain.RoleActivityCode:     "cnae",
		domain.RoleStreet:           "lgrd",
		domain.RoleDistrict:         "brr",
		domain.RolePostalCode:       "cep",
		domain.RoleConsumerID:       "cod_id_encr",
		domain.RoleDistributor:      "dist",
	}
	for role, col := range want {
		got, ok := m.Column(role)
		if !ok || got != col {
			t.Fatalf("role %s -> %q,%v want %q", role, got, ok, col)
		}
	}
	if err := RequireCore(m); err != nil {
		t.Fatalf("RequireCore: %v", err)
	}
}

func TestResolve_UnmappedRoleDegrades(t *testing.T) {
	m := Resolve([]string{"demanda", "lat", "lon"}, DefaultCandidates())
	if _, ok := m.Column(domain.RoleMunicipalityCode); ok {
		t.Fatalf("municipality should be unmapped")
	}
	if err := RequireCore(m); err != nil {
		t.Fatalf("core roles should be mapped: %v", err)
	}

	m = Resolve([]string{"demanda", "lat"}, DefaultCandidates())
	if err := RequireCore(m); !errors.Is(err, ErrRoleUnmapped) {
		t.Fatalf("err=%v want ErrRoleUnmapped", err)
	}
}

func TestCandidatesMerge(t *testing.T) {
	c := DefaultCandidates().Merge(map[string][]string{"demand": {"dem_x", "demanda"}})
	want := []string{"dem_x", "demanda", "dem_cont", "dem_kw", "demanda_kw", "dem_cont_kw", "demanda_contratada"}
	if got := c[domain.RoleDemand]; !reflect.DeepEqual(got, want) {
		t.Fatalf("merged=%v want %v", got, want)
	}
	if len(DefaultCandidates()[domain.RoleDemand]) != 6 {
		t.Fatalf("merge mutated the defaults")
	}
}

func TestProbe_UsesFieldOrderAndSkipsInternal(t *testing.T) {
	f := &fakeFetcher{res: ckan.Result{Fields: []ckan.Field{{ID: "_id"}, {ID: "mun"}, {ID: "dem_cont"}, {ID: "_full_text"}}}}
	cols, err := Probe(context.Background(), f, "r1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !reflect.DeepEqual(cols, []string{"mun", "dem_cont"}) {
		t.Fatalf("cols=%v", cols)
	}
	if f.last.Limit != 1 || f.last.ResourceID != "r1" || f.last.SQL != "" {
		t.Fatalf("probe query=%+v want single-row search", f.last)
	}
}

func TestProbe_FallsBackToRecordKeys(t *testing.T) {
	f := &fakeFetcher{res: ckan.Result{Records: []domain.RawRecord{{"point_y": "1", "dem_cont": "2", "_id": 1}}}}
	cols, err := Probe(context.Background(), f, "r1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !reflect.DeepEqual(cols, []string{"dem_cont", "point_y"}) {
		t.Fatalf("cols=%v", cols)
	}
}

func TestProbe_NoColumns(t *testing.T) {
	for name, res := range map[string]ckan.Result{
		"failed": {Diagnostic: "HTTP 503: busy"},
		"empty":  {},
	} {
		f := &fakeFetcher{res: res}
		if _, err := Probe(context.Background(), f, "r1"); !errors.Is(err, ErrNoColumns) {
			t.Fatalf("%s: err=%v want ErrNoColumns", name, err)
		}
	}
}

func TestProber_CachesUntilExpiry(t *testing.T) {
	f := &fakeFetcher{res: ckan.Result{Fields: []ckan.Field{{ID: "dem_cont"}, {ID: "point_y"}, {ID: "point_x"}}}}
	p := NewProber(f, nil, 30*time.Millisecond, nil, logging.Discard())

	for i := 0; i < 3; i++ {
		pr, err := p.Mapping(context.Background(), "r1")
		if err != nil {
			t.Fatalf("Mapping: %v", err)
		}
		if col, _ := pr.Mapping.Column(domain.RoleDemand); col != "dem_cont" {
			t.Fatalf("demand column=%q", col)
		}
	}
	if f.calls != 1 {
		t.Fatalf("calls=%d want=1 while cached", f.calls)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := p.Mapping(context.Background(), "r1"); err != nil {
		t.Fatalf("Mapping after expiry: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("calls=%d want=2 after expiry", f.calls)
	}

	p.Invalidate("r1")
	if _, err := p.Mapping(context.Background(), "r1"); err != nil {
		t.Fatalf("Mapping after invalidate: %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("calls=%d want=3 after invalidate", f.calls)
	}
}

func TestProber_DoesNotCacheFailures(t *testing.T) {
	f := &fakeFetcher{res: ckan.Result{Diagnostic: "EXC: dial tcp"}}
	p := NewProber(f, nil, time.Hour, nil, logging.Discard())

	if _, err := p.Mapping(context.Background(), "r1"); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("err=%v want ErrNoColumns", err)
	}
	f.res = ckan.Result{Fields: []ckan.Field{{ID: "dem_cont"}}}
	if _, err := p.Mapping(context.Background(), "r1"); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("calls=%d want=2", f.calls)
	}
}
