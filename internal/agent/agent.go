// Package agent assembles the till agent from its configuration.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	html "github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"

	"tillsync/internal/cache"
	"tillsync/internal/config"
	"tillsync/internal/connectivity"
	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/services"
	"tillsync/internal/upstream"
	"tillsync/internal/worker"
)

// pushStores are the offline stores whose records are sent to the ERP.
var pushStores = []string{"customers"}

type Agent struct {
	Cfg     config.Config
	DB      *sqlx.DB
	Storage cache.Storage
	Views   *html.Engine
	Printer *i18n.Printer

	Upstream *upstream.Client
	Monitor  *connectivity.Monitor
	Worker   *worker.Worker

	Sales      *repos.SaleQueueRepo
	SyncItems  *repos.SyncQueueRepo
	Records    *repos.RecordRepo
	Cart       *services.CartService
	Checkout   *services.CheckoutService
	SalesSync  *services.SyncEngine
	DataSync   *services.DataSyncService
	Catalog    *services.CatalogService
	closeFuncs []func() error
}

// Option adjusts an Agent before it is wired.
type Option func(*options)

type options struct {
	httpClient *http.Client
	storage    cache.Storage
}

// WithHTTPClient sets the client used for ERP calls and worker fetches.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithStorage overrides the cache backend chosen by CACHE_BACKEND.
func WithStorage(s cache.Storage) Option { return func(o *options) { o.storage = s } }

func New(cfg config.Config, opts ...Option) (*Agent, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a := &Agent{Cfg: cfg, DB: db, Printer: i18n.New(cfg.Locale)}
	a.closeFuncs = append(a.closeFuncs, db.Close)

	a.Storage = o.storage
	if a.Storage == nil {
		if a.Storage, err = openStorage(cfg, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		if rs, ok := a.Storage.(*cache.RedisStorage); ok {
			a.closeFuncs = append(a.closeFuncs, rs.Close)
		}
	}

	a.Views = html.New(cfg.TemplatesDir, ".html")

	a.Upstream = upstream.New(upstream.Options{
		BaseURL:         cfg.UpstreamURL,
		HealthPath:      cfg.HealthPath,
		SearchTimeout:   cfg.SearchTimeout,
		CheckoutTimeout: cfg.CheckoutTimeout,
		SyncTimeout:     cfg.SyncTimeout,
		HTTPClient:      o.httpClient,
	})
	a.Monitor = connectivity.New(a.Upstream, cfg.ProbeInterval)

	a.Sales = repos.NewSaleQueueRepo(db)
	a.SyncItems = repos.NewSyncQueueRepo(db)
	a.Records = repos.NewRecordRepo(db)

	a.Cart, err = services.NewCartService(repos.NewCartRepo(db), cfg.BranchID, services.Limits{
		MaxQuantity: cfg.MaxQuantity,
		MaxPrice:    cfg.MaxPrice,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Checkout = services.NewCheckoutService(a.Cart, a.Sales, a.Upstream, a.Monitor, a.Printer)
	a.SalesSync = services.NewSyncEngine(a.Sales, a.Upstream, cfg.BranchID, cfg.MaxSyncAttempts)
	a.DataSync = services.NewDataSyncService(a.SyncItems, a.Records, a.Upstream, pushStores...)
	a.Catalog = services.NewCatalogService(repos.NewProductRepo(db), a.Upstream, a.Monitor, cfg.BranchID)

	a.Worker, err = worker.New(worker.Options{
		Origin:      cfg.UpstreamURL,
		Version:     cfg.CacheVersion,
		Precache:    cfg.Precache,
		SkipWaiting: cfg.SkipWaiting,
		OfflinePage: a.offlinePage(),
	}, o.httpClient, a.Storage, a.Records, a.SyncItems, a.DataSync)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.SalesSync.OnComplete = func(res domain.SyncResult) {
		a.Worker.Post(worker.MsgSyncComplete, res)
	}
	a.Monitor.Subscribe(a.onConnectivity)
	return a, nil
}

func openStorage(cfg config.Config, db *sqlx.DB) (cache.Storage, error) {
	switch cfg.CacheBackend {
	case "", "sqlite":
		return repos.NewCacheRepo(db), nil
	case "redis":
		return cache.OpenRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// offlinePage renders the offline placeholder once. A missing template
// leaves the worker's built-in page in place.
func (a *Agent) offlinePage() []byte {
	var buf bytes.Buffer
	err := a.Views.Render(&buf, "offline", fiber.Map{
		"Title":   "Offline",
		"Message": a.Printer.Sprintf(i18n.NetworkDown),
	})
	if err != nil {
		applog.Warn(nil, "agent.offline_page", err, map[string]any{"component": "agent", "dir": a.Cfg.TemplatesDir})
		return nil
	}
	return buf.Bytes()
}

// onConnectivity tells pages about the change and, when the ERP comes back,
// schedules both background syncs.
func (a *Agent) onConnectivity(online bool) {
	a.Worker.Post(worker.MsgConnectivity, map[string]bool{"online": online})
	if !online {
		return
	}
	for _, tag := range []string{worker.TagOfflineSales, worker.TagOfflineData} {
		_ = a.Worker.RegisterSync(tag)
	}
	if err := a.Worker.FireSync(context.Background()); err != nil {
		applog.Warn(nil, "agent.fire_sync", err, map[string]any{"component": "agent"})
	}
}

// Run starts the worker, the in-process sync listener and the connectivity
// probe loop. It blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	_, msgs, cancel := a.Worker.Clients().Subscribe(64)
	defer cancel()
	// drain whatever a previous run left queued
	a.onConnectivity(a.Monitor.Online())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		services.Listen(ctx, msgs, a.SalesSync, a.DataSync)
	}()
	go func() {
		defer wg.Done()
		a.Monitor.Run(ctx)
	}()
	<-ctx.Done()
	wg.Wait()
	a.Worker.Wait()
	return nil
}

func (a *Agent) Close() error {
	var first error
	for i := len(a.closeFuncs) - 1; i >= 0; i-- {
		if err := a.closeFuncs[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closeFuncs = nil
	return first
}
