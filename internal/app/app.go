package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PropertyScanner/internal/classify"
	"PropertyScanner/internal/config"
	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/companies"
	"PropertyScanner/internal/infrastructure/epc"
	"PropertyScanner/internal/infrastructure/geocoding"
	"PropertyScanner/internal/infrastructure/licensing"
	"PropertyScanner/internal/infrastructure/listings"
	"PropertyScanner/internal/infrastructure/metrics"
	"PropertyScanner/internal/infrastructure/parser"
	"PropertyScanner/internal/infrastructure/planning"
	"PropertyScanner/internal/infrastructure/scheduler"
	"PropertyScanner/internal/infrastructure/storage"
	"PropertyScanner/internal/infrastructure/telegram"
	"PropertyScanner/internal/infrastructure/titles"
	"PropertyScanner/internal/infrastructure/valuation"
	"PropertyScanner/internal/listingmatch"
	"PropertyScanner/internal/logging"
	"PropertyScanner/internal/ports"
	"PropertyScanner/internal/scanner"
	"PropertyScanner/internal/usecase"
)

const defaultScanner = "table"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	db          *sql.DB
	store       ports.RecordStore
	metrics     *metrics.Prometheus
	manager     *usecase.Manager
	maintenance *usecase.Maintenance
	overlap     *usecase.Overlap
	matcher     *listingmatch.Matcher
	scheduler   *usecase.Scheduler
}

// New builds the store, every adapter and the use cases on top of them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.NewPrometheus()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	queries := make([]domain.SourceQuery, 0, len(cfg.Areas))
	for _, area := range cfg.Areas {
		queries = append(queries, domain.SourceQuery{
			Postcode:    area.Postcode,
			Area:        area.Name,
			RadiusMiles: cfg.Ingestion.RadiusMiles,
			PageSize:    cfg.Ingestion.PageSize,
			ListingType: domain.ListingType(area.ListingType),
		})
	}

	a.manager = usecase.NewManager(usecase.ManagerDeps{
		Store:   a.store,
		Metrics: a.metrics,
		Logger:  baseLogger.With("component", "ingestion"),
		Options: usecase.ManagerOptions{
			Queries:      queries,
			RequestDelay: cfg.Ingestion.RequestDelay,
			RefreshAfter: cfg.Ingestion.RefreshAfter,
			BatchLimit:   cfg.Ingestion.BatchLimit,
		},
	})
	if err := a.registerAdapters(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.maintenance = usecase.NewMaintenance(a.store, cfg.Ingestion.StaleAfter, baseLogger.With("component", "maintenance"), nil)
	a.overlap = usecase.NewOverlap(a.store, []string{parser.SourceName}, []string{listings.SourceName}, baseLogger.With("component", "overlap"))

	var notifier ports.Notifier
	tg := cfg.Notifications.Telegram
	if bot := telegram.NewNotifier(tg.BotToken, tg.ChatID, telegram.WithAPIBase(tg.APIBase)); bot.Configured() {
		notifier = bot
	}

	a.scheduler = usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:      scheduler.NewCronScheduler(baseLogger.With("component", "cron"), cfg.Scheduler.Location()),
		Manager:     a.manager,
		Maintenance: a.maintenance,
		Notifier:    notifier,
		IngestSpec:  cfg.Scheduler.CronExpression,
		SweepSpec:   cfg.Scheduler.SweepExpression,
		RunTimeout:  cfg.Ingestion.RunTimeout,
		Logger:      baseLogger.With("component", "scheduler"),
	})
	return a, nil
}

func (a *Application) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == "memory" {
		a.logger.Warn("using in-memory record store, records are lost on exit")
		a.store = storage.NewMemoryStore()
		return nil
	}

	db, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	store := storage.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	a.store = store
	return nil
}

func (a *Application) registerAdapters() error {
	cfg := a.cfg
	p := cfg.Providers
	log := a.logger

	// Phase 1
	registry := scanner.NewRegistry(parser.NewTableScanner(nil), parser.NewListScanner(nil))
	registers := make([]parser.RegisterConfig, 0, len(cfg.Registers))
	for _, r := range cfg.Registers {
		name := r.Scanner
		if name == "" {
			name = defaultScanner
		}
		registers = append(registers, parser.RegisterConfig{
			Register: scanner.Register{Name: r.Name, Council: r.Council, URL: r.URL, Options: r.Options},
			Scanner:  name,
		})
	}
	registerSource := parser.NewRegisterSource(registry, registers, 0, log.With("component", "source.register"))
	a.manager.RegisterPhase1Adapter(registerSource)

	listingsClient := listings.New(listings.Config{
		BaseURL:      p.Listings.BaseURL,
		APIKey:       p.Listings.APIKey,
		RadiusMiles:  cfg.Ingestion.RadiusMiles,
		PageSize:     cfg.Ingestion.PageSize,
		RequestDelay: p.Listings.RequestDelay,
	}, log.With("component", "source.listings"))
	a.manager.RegisterPhase1Adapter(listingsClient)

	// Phase 2
	geocoder, err := geocoding.New(geocoding.Config{
		APIKey:       p.Geocoding.APIKey,
		BaseURL:      p.Geocoding.BaseURL,
		RequestDelay: p.Geocoding.RequestDelay,
	}, log.With("component", "enrich.geocoding"))
	if err != nil {
		return fmt.Errorf("geocoder: %w", err)
	}
	a.manager.RegisterPhase2Adapter(geocoder)

	a.manager.RegisterPhase2Adapter(valuation.New(valuation.Config{
		BaseURL:      p.Valuation.BaseURL,
		APIKey:       p.Valuation.APIKey,
		CacheTTL:     p.Valuation.CacheTTL,
		RequestDelay: p.Valuation.RequestDelay,
	}, log.With("component", "enrich.valuation")))

	var searcher ports.ListingSearcher
	if listingsClient.Configured() {
		searcher = listingsClient
	}
	a.matcher = listingmatch.NewMatcher(searcher, listingmatch.Config{
		SearchBaseURL: p.Maps.SearchBaseURL,
		MapsAPIKey:    p.Maps.APIKey,
		StaticMapURL:  p.Maps.StaticMapURL,
		Placeholder:   p.Maps.Placeholder,
		PageSize:      cfg.Ingestion.PageSize,
		CacheTTL:      p.Maps.CacheTTL,
	}, log.With("component", "listingmatch"))
	a.manager.RegisterPhase2Adapter(listingmatch.NewEnricher(a.matcher, p.Listings.RequestDelay))

	// Phase 3
	a.manager.RegisterPhase3Adapter(licensing.NewLookup(registerSource, parser.SourceName, log.With("component", "enrich.licensing"), nil))
	a.manager.RegisterPhase3Adapter(companies.New(companies.Config{
		BaseURL:      p.Companies.BaseURL,
		APIKey:       p.Companies.APIKey,
		RequestDelay: p.Companies.RequestDelay,
	}, log.With("component", "enrich.companies")))
	a.manager.RegisterPhase3Adapter(titles.New(titles.Config{
		BaseURL:      p.Titles.BaseURL,
		APIKey:       p.Titles.APIKey,
		RequestDelay: p.Titles.RequestDelay,
	}, log.With("component", "enrich.titles")))
	a.manager.RegisterPhase3Adapter(epc.New(epc.Config{
		BaseURL:        p.EPC.BaseURL,
		Email:          p.EPC.Email,
		APIKey:         p.EPC.APIKey,
		CertificateURL: p.EPC.CertificateURL,
		RequestDelay:   p.EPC.RequestDelay,
	}, log.With("component", "enrich.epc")))
	a.manager.RegisterPhase3Adapter(planning.New(planning.Config{
		BaseURL:      p.Planning.BaseURL,
		Datasets:     p.Planning.Datasets,
		RequestDelay: p.Planning.RequestDelay,
	}, log.With("component", "enrich.planning")))

	// Phase 4
	a.manager.RegisterPhase4Adapter(classify.Classifier{})

	for phase, names := range a.manager.Sources() {
		log.Debug("adapters registered", "phase", phase, "adapters", names)
	}
	return nil
}

// Ingest runs every phase once. A non-empty source restricts the run to one adapter.
func (a *Application) Ingest(ctx context.Context, source string) ([]domain.IngestionResult, error) {
	if source == "" {
		return a.scheduler.RunIngestion(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Ingestion.RunTimeout)
	defer cancel()
	return a.manager.RunIngestion(ctx, source)
}

// Sweep marks records that were not re-ingested recently as stale.
func (a *Application) Sweep(ctx context.Context) (int, error) {
	return a.maintenance.Sweep(ctx)
}

// Repair fixes listing type and price inconsistencies in stored records.
func (a *Application) Repair(ctx context.Context) (int, error) {
	return a.maintenance.RepairListings(ctx)
}

// Match looks up the live listing for one property.
func (a *Application) Match(ctx context.Context, q listingmatch.Query) (listingmatch.Match, error) {
	return a.matcher.Find(ctx, q)
}

// Overlap reports how many register HMOs are advertised on the marketplace.
func (a *Application) Overlap(ctx context.Context) (usecase.OverlapReport, error) {
	return a.overlap.Run(ctx)
}

// Serve runs the scheduler and the metrics endpoint until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "ingest", a.cfg.Scheduler.CronExpression, "sweep", a.cfg.Scheduler.SweepExpression, "timezone", a.cfg.Scheduler.Location().String())

	var serveErr error
	if a.cfg.Metrics.Addr != "" {
		serveErr = a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger.With("component", "metrics"))
	} else {
		<-ctx.Done()
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return errors.Join(serveErr, a.scheduler.Stop(stopCtx))
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
