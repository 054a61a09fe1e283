package handlers

import (
	"tillsync/internal/agent"
)

type Deps struct {
	CartHandler     *CartHandler
	CheckoutHandler *CheckoutHandler
	SyncHandler     *SyncHandler
	SearchHandler   *SearchHandler
	StatusHandler   *StatusHandler
	WorkerHandler   *WorkerHandler
	ProxyHandler    *ProxyHandler
}

func NewDeps(a *agent.Agent) *Deps {
	return &Deps{
		CartHandler:     &CartHandler{Cart: a.Cart, Catalog: a.Catalog, P: a.Printer},
		CheckoutHandler: &CheckoutHandler{Checkout: a.Checkout},
		SyncHandler:     &SyncHandler{Engine: a.SalesSync, Sales: a.Sales, BranchID: a.Cfg.BranchID, P: a.Printer},
		SearchHandler:   &SearchHandler{Catalog: a.Catalog},
		StatusHandler: &StatusHandler{
			Monitor: a.Monitor, Worker: a.Worker, Sales: a.Sales, SyncItems: a.SyncItems,
			Engine: a.SalesSync, BranchID: a.Cfg.BranchID,
		},
		WorkerHandler: &WorkerHandler{Worker: a.Worker, PinHash: a.Cfg.AdminPinHash},
		ProxyHandler:  &ProxyHandler{Worker: a.Worker, Upstream: a.Cfg.UpstreamURL},
	}
}
