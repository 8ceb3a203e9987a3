package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return st
}

func ptr[T any](v T) *T { return &v }

func TestCreateGetDeleteLead(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	in := domain.Lead{
		ResourceID:       "res",
		ConsumerID:       "c-1",
		Region:           "PR",
		Tier:             domain.TierAAA,
		Sector:           "Indústria",
		DemandKW:         6200,
		Latitude:         -25.43,
		Longitude:        -49.27,
		MunicipalityCode: ptr(4106902),
		Score:            ptr(71.3),
		Note:             "ligar segunda",
	}
	created, err := st.CreateLead(in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not assigned: %+v", created)
	}

	got, ok, err := st.GetLead(created.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ConsumerID != "c-1" || got.Tier != domain.TierAAA || *got.MunicipalityCode != 4106902 || *got.Score != 71.3 {
		t.Fatalf("got=%+v", got)
	}

	if _, err := st.CreateLead(domain.Lead{ResourceID: "res", ConsumerID: "c-1", Tier: domain.TierA}); !errors.Is(err, ErrDuplicateLead) {
		t.Fatalf("err=%v want ErrDuplicateLead", err)
	}

	deleted, err := st.DeleteLead(created.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, ok, _ := st.GetLead(created.ID); ok {
		t.Fatal("lead still present after delete")
	}
	if deleted, _ := st.DeleteLead(created.ID); deleted {
		t.Fatal("second delete reported success")
	}
}

func TestListLeadsFiltered_FiltersAndSort(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	seed := []domain.Lead{
		{ID: "1", ResourceID: "r", ConsumerID: "a", Region: "PR", Tier: domain.TierAA, DemandKW: 2500, Score: ptr(40.0)},
		{ID: "2", ResourceID: "r", ConsumerID: "b", Region: "pr", Tier: domain.TierAAA, DemandKW: 9000},
		{ID: "3", ResourceID: "r", ConsumerID: "c", Region: "SP", Tier: domain.TierAAA, DemandKW: 12000, Score: ptr(80.0)},
		{ID: "4", ResourceID: "r", ConsumerID: "d", Region: "PR", Tier: domain.TierB, DemandKW: 150, Score: ptr(55.0)},
	}
	if err := st.UpsertMany(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// повторный сид не дублирует
	if err := st.UpsertMany(seed); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n, _ := st.CountLeads(); n != 4 {
		t.Fatalf("count=%d want=4", n)
	}

	items, total, err := st.ListLeadsFiltered(LeadFilter{Region: "PR", MinDemand: 200, Sort: "demand_desc"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total=%d items=%d want 2/2", total, len(items))
	}
	if items[0].ID != "2" || items[1].ID != "1" {
		t.Fatalf("order=%s,%s want 2,1", items[0].ID, items[1].ID)
	}

	items, _, err = st.ListLeadsFiltered(LeadFilter{Sort: "score_desc"})
	if err != nil {
		t.Fatal(err)
	}
	var ids string
	for _, l := range items {
		ids += l.ID
	}
	if ids != "3412" {
		t.Fatalf("score order=%s want=3412", ids)
	}

	items, total, err = st.ListLeadsFiltered(LeadFilter{Tier: "aaa", Sort: "demand_asc", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 1 || items[0].ID != "3" {
		t.Fatalf("total=%d items=%+v", total, items)
	}
}

func TestLoadLeadsFromFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "leads.json")
	if err := os.WriteFile(good, []byte(`[{"id":"x","resource_id":"r","consumer_id":"k","region":"SC","tier":" aa","demand_kw":3000,"latitude":-27.6,"longitude":-48.5}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	leads, err := LoadLeadsFromFile(good)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(leads) != 1 || leads[0].Tier != domain.TierAA || leads[0].DemandKW != 3000 {
		t.Fatalf("leads=%+v", leads)
	}

	for name, body := range map[string]string{
		"no tier":       `[{"id":"y","resource_id":"r"}]`,
		"bad tier":      `[{"id":"y","resource_id":"r","tier":"Z"}]`,
		"no resource":   `[{"id":"y","tier":"A"}]`,
		"unknown field": `[{"id":"y","resource_id":"r","tier":"A","price":1}]`,
	} {
		bad := filepath.Join(dir, "bad.json")
		_ = os.WriteFile(bad, []byte(body), 0o644)
		if _, err := LoadLeadsFromFile(bad); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
	if _, err := LoadLeadsFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestPrepareCreatesDirAndIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "leads.db")

	st, err := Prepare(path)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := st.CreateLead(domain.Lead{ResourceID: "r", ConsumerID: "x", Tier: domain.TierB, DemandKW: 150}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = st.Close()

	st, err = Prepare(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	n, err := st.CountLeads()
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v want 1", n, err)
	}
}
