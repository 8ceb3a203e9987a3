package httpapi

import (
	"context"
	"errors"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
	"github.com/denisok6893-rgb/grupoa-prospecting/internal/storage"
)

var errNoStore = errors.New("lead store not configured")

type LeadListParams struct {
	Limit  int
	Offset int
	Region string
	Tier   string
	MinKW  float64
	Sort   string
}

type LeadsRepo interface {
	List(ctx context.Context, p LeadListParams) ([]domain.Lead, int, error)
	Get(ctx context.Context, id string) (domain.Lead, bool, error)
	Create(ctx context.Context, l domain.Lead) (domain.Lead, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type SQLiteLeadsRepo struct {
	Store *storage.SQLiteStore
}

func (r *SQLiteLeadsRepo) List(_ context.Context, p LeadListParams) ([]domain.Lead, int, error) {
	if r == nil || r.Store == nil {
		return nil, 0, errNoStore
	}
	return r.Store.ListLeadsFiltered(storage.LeadFilter{
		Limit:     p.Limit,
		Offset:    p.Offset,
		Region:    p.Region,
		Tier:      p.Tier,
		MinDemand: p.MinKW,
		Sort:      p.Sort,
	})
}

func (r *SQLiteLeadsRepo) Get(_ context.Context, id string) (domain.Lead, bool, error) {
	if r == nil || r.Store == nil {
		return domain.Lead{}, false, errNoStore
	}
	return r.Store.GetLead(id)
}

func (r *SQLiteLeadsRepo) Create(_ context.Context, l domain.Lead) (domain.Lead, error) {
	if r == nil || r.Store == nil {
		return domain.Lead{}, errNoStore
	}
	return r.Store.CreateLead(l)
}

func (r *SQLiteLeadsRepo) Delete(_ context.Context, id string) (bool, error) {
	if r == nil || r.Store == nil {
		return false, errNoStore
	}
	return r.Store.DeleteLead(id)
}
