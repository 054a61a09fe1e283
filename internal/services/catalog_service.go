package services

import (
	"context"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/upstream"
)

// ProductSearcher runs the ERP product search.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, branchID int64, q string) ([]domain.Product, error)
}

type SearchResult struct {
	Products []domain.Product `json:"products"`
	Offline  bool             `json:"offline"`
}

type CatalogService struct {
	Prods    *repos.ProductRepo
	Remote   ProductSearcher
	Net      OnlineChecker
	BranchID int64
}

func NewCatalogService(prods *repos.ProductRepo, searcher ProductSearcher, net OnlineChecker, branchID int64) *CatalogService {
	return &CatalogService{Prods: prods, Remote: searcher, Net: net, BranchID: branchID}
}

// Search queries the ERP and snapshots what it returns. Offline, or when the
// ERP cannot be reached, it answers from the local snapshots instead.
func (s *CatalogService) Search(ctx context.Context, q string) (SearchResult, error) {
	if s.Net.Online() {
		prods, err := s.Remote.SearchProducts(ctx, s.BranchID, q)
		if err == nil {
			if uerr := s.Prods.Upsert(s.BranchID, prods); uerr != nil {
				applog.Error(nil, "catalog.snapshot", uerr, map[string]any{"component": "catalog"})
			}
			if prods == nil {
				prods = []domain.Product{}
			}
			return SearchResult{Products: prods}, nil
		}
		if k := upstream.KindOf(err); k != upstream.KindNetwork && k != upstream.KindTimeout && k != upstream.KindServer {
			return SearchResult{}, err
		}
		applog.Warn(nil, "catalog.search.fallback", err, map[string]any{"component": "catalog"})
	}
	prods, err := s.Prods.Search(s.BranchID, q, 20)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Products: prods, Offline: true}, nil
}

// Product returns a snapshot by id.
func (s *CatalogService) Product(id int64) (domain.Product, error) {
	return s.Prods.Get(s.BranchID, id)
}
