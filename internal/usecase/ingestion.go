package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
	"PropertyScanner/internal/throttle"
)

const lastPhase = 4

// ManagerOptions tunes a run.
type ManagerOptions struct {
	// Queries are issued to every Phase-1 adapter. An empty list sends one zero query.
	Queries      []domain.SourceQuery
	RequestDelay time.Duration
	RefreshAfter time.Duration
	BatchLimit   int
}

// ManagerDeps wires the driven collaborators into the manager.
type ManagerDeps struct {
	Store      ports.RecordStore
	Metrics    ports.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
	NewLimiter func(delay time.Duration) throttle.Limiter
	Options    ManagerOptions
}

// Manager runs the ingestion phases in order: Phase 1 creates records, phases
// 2 to 4 enrich them. Adapters inside one phase run concurrently; each adapter
// walks its records sequentially behind its own limiter.
type Manager struct {
	store      ports.RecordStore
	metrics    ports.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newLimiter func(delay time.Duration) throttle.Limiter
	opts       ManagerOptions

	mu     sync.Mutex
	phase1 []ports.SourceAdapter
	enrich [lastPhase + 1][]ports.EnrichmentAdapter
}

// NewManager constructs the orchestrator.
func NewManager(deps ManagerDeps) *Manager {
	m := &Manager{
		store:      deps.Store,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		newLimiter: deps.NewLimiter,
		opts:       deps.Options,
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newLimiter == nil {
		m.newLimiter = func(d time.Duration) throttle.Limiter { return throttle.NewFixedDelay(d) }
	}
	if m.opts.BatchLimit <= 0 {
		m.opts.BatchLimit = 200
	}
	return m
}

// RegisterPhase1Adapter adds a record-creating source.
func (m *Manager) RegisterPhase1Adapter(a ports.SourceAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase1 = append(m.phase1, a)
}

// RegisterPhase2Adapter adds a valuation or market enrichment.
func (m *Manager) RegisterPhase2Adapter(a ports.EnrichmentAdapter) {
	m.registerEnrichment(2, a)
}

// RegisterPhase3Adapter adds an ownership, EPC or planning enrichment.
func (m *Manager) RegisterPhase3Adapter(a ports.EnrichmentAdapter) {
	m.registerEnrichment(3, a)
}

// RegisterPhase4Adapter adds a derived classification.
func (m *Manager) RegisterPhase4Adapter(a ports.EnrichmentAdapter) {
	m.registerEnrichment(4, a)
}

func (m *Manager) registerEnrichment(phase int, a ports.EnrichmentAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrich[phase] = append(m.enrich[phase], a)
}

// Sources lists registered adapter names per phase.
func (m *Manager) Sources() map[int][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[int][]string{}
	for _, a := range m.phase1 {
		out[1] = append(out[1], a.Name())
	}
	for phase := 2; phase <= lastPhase; phase++ {
		for _, a := range m.enrich[phase] {
			out[phase] = append(out[phase], a.Name())
		}
	}
	return out
}

type job struct {
	name string
	run  func(ctx context.Context) domain.IngestionResult
}

// RunIngestion executes every phase and returns one summary per adapter that
// ran. sourceFilter, when not empty, restricts the run to adapters with that
// name. Adapter and store failures are reported inside the summaries; only
// orchestration defects come back as an error.
func (m *Manager) RunIngestion(ctx context.Context, sourceFilter string) ([]domain.IngestionResult, error) {
	if m.store == nil {
		return nil, fmt.Errorf("record store is not configured")
	}

	started := m.now()
	phases := m.plan(sourceFilter)
	if sourceFilter != "" && countJobs(phases) == 0 {
		return nil, fmt.Errorf("no adapter named %q is registered", sourceFilter)
	}

	var results []domain.IngestionResult
	for phase := 1; phase <= lastPhase; phase++ {
		jobs := phases[phase]
		if len(jobs) == 0 {
			continue
		}
		m.logger.Info("phase started", "phase", phase, "adapters", len(jobs))
		phaseResults := m.runPhase(ctx, phase, jobs)
		for _, r := range phaseResults {
			m.logger.Info("source finished",
				"phase", phase,
				"source", r.Source,
				"created", r.Created,
				"updated", r.Updated,
				"skipped", r.Skipped,
				"errors", len(r.Errors))
			if m.metrics != nil {
				m.metrics.ObserveResult(r)
			}
		}
		results = append(results, phaseResults...)
	}

	if m.metrics != nil {
		m.metrics.ObserveRun(m.now().Sub(started))
	}
	return results, nil
}

func (m *Manager) plan(sourceFilter string) map[int][]job {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := func(name string) bool {
		return sourceFilter == "" || strings.EqualFold(name, sourceFilter)
	}

	phases := map[int][]job{}
	for _, a := range m.phase1 {
		if !keep(a.Name()) {
			continue
		}
		a := a
		phases[1] = append(phases[1], job{name: a.Name(), run: func(ctx context.Context) domain.IngestionResult {
			return m.runSource(ctx, a)
		}})
	}
	for phase := 2; phase <= lastPhase; phase++ {
		for _, a := range m.enrich[phase] {
			if !keep(a.Name()) {
				continue
			}
			a, phase := a, phase
			phases[phase] = append(phases[phase], job{name: a.Name(), run: func(ctx context.Context) domain.IngestionResult {
				return m.runEnrichment(ctx, phase, a)
			}})
		}
	}
	return phases
}

func countJobs(phases map[int][]job) int {
	n := 0
	for _, jobs := range phases {
		n += len(jobs)
	}
	return n
}

// runPhase starts every job and waits for all of them. A panicking adapter is
// reported as an error on its own summary.
func (m *Manager) runPhase(ctx context.Context, phase int, jobs []job) []domain.IngestionResult {
	results := make([]domain.IngestionResult, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Error("adapter panicked", "source", j.name, "panic", rec, "stack", string(debug.Stack()))
					results[i].Source = j.name
					results[i].Phase = phase
					results[i].Errors = append(results[i].Errors, fmt.Sprintf("panic: %v", rec))
				}
			}()
			results[i] = j.run(ctx)
		}(i, j)
	}
	wg.Wait()
	return results
}

func (m *Manager) limiterFor(a ports.SourceAdapter) throttle.Limiter {
	delay := m.opts.RequestDelay
	if t, ok := a.(ports.Throttled); ok {
		delay = t.RequestDelay()
	}
	return m.newLimiter(delay)
}

func configured(a ports.SourceAdapter) bool {
	c, ok := a.(ports.Configurable)
	return !ok || c.Configured()
}

func (m *Manager) runSource(ctx context.Context, a ports.SourceAdapter) domain.IngestionResult {
	res := domain.IngestionResult{Source: a.Name(), Phase: 1}
	log := m.logger.With("source", a.Name())

	if !configured(a) {
		log.Info("adapter not configured, skipping")
		res.Skipped = 1
		return res
	}

	queries := m.opts.Queries
	if len(queries) == 0 {
		queries = []domain.SourceQuery{{}}
	}

	limiter := m.limiterFor(a)
	for _, q := range queries {
		if err := limiter.Wait(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("interrupted: %v", err))
			break
		}

		records, err := safeFetch(ctx, a, q)
		if err != nil {
			log.Warn("fetch failed", "query", describeQuery(q), "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("fetch %s: %v", describeQuery(q), err))
			continue
		}
		log.Debug("fetched records", "query", describeQuery(q), "count", len(records))

		for _, rec := range records {
			if ctx.Err() != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("interrupted: %v", ctx.Err()))
				return res
			}
			m.ingestRecord(ctx, a.Name(), rec, &res)
		}
	}
	return res
}

func (m *Manager) ingestRecord(ctx context.Context, source string, rec domain.PropertyRecord, res *domain.IngestionResult) {
	rec.ExternalID = strings.TrimSpace(rec.ExternalID)
	if rec.ExternalID == "" {
		res.Skipped++
		return
	}
	if rec.Source == "" {
		rec.Source = source
	}
	domain.RepairListingType(&rec)

	now := m.now()
	rec.LastIngestedAt = &now
	rec.LastSynced = &now
	rec.IsStale = false
	rec.SourceHash = domain.Fingerprint(rec)

	outcome, err := m.store.Upsert(ctx, rec)
	if err != nil {
		m.logger.Warn("upsert failed", "source", source, "external_id", rec.ExternalID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("upsert %s: %v", rec.ExternalID, err))
		return
	}

	switch outcome {
	case domain.OutcomeCreated:
		res.Created++
	case domain.OutcomeUpdated:
		res.Updated++
	default:
		res.Skipped++
	}
}

func (m *Manager) runEnrichment(ctx context.Context, phase int, a ports.EnrichmentAdapter) domain.IngestionResult {
	res := domain.IngestionResult{Source: a.Name(), Phase: phase}
	log := m.logger.With("source", a.Name(), "phase", phase)

	now := m.now()
	filter := ports.Filter{
		CursorField:  a.Cursor(),
		CursorBefore: now.Add(-m.opts.RefreshAfter),
		Limit:        m.opts.BatchLimit,
	}
	if p, ok := a.(ports.Prerequisite); ok {
		filter.Present, filter.Missing = p.Requires()
	}
	records, err := m.store.Select(ctx, filter)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("select candidates: %v", err))
		return res
	}

	var candidates, ineligible []domain.PropertyRecord
	for _, rec := range records {
		if a.Eligible(rec) {
			candidates = append(candidates, rec)
		} else {
			ineligible = append(ineligible, rec)
		}
	}

	if !configured(a) {
		log.Info("adapter not configured, skipping", "candidates", len(candidates))
		res.Skipped = len(candidates)
		return res
	}
	m.parkIneligible(ctx, a, ineligible, &res)

	tier := domain.TierForPhase(phase)
	limiter := m.limiterFor(a)
	for _, rec := range candidates {
		if err := limiter.Wait(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("interrupted: %v", err))
			break
		}

		patch, err := safeEnrich(ctx, a, rec)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrMalformed) {
				log.Debug("no usable match", "id", rec.ID, "error", err)
				patch = nil
			} else {
				log.Warn("enrich failed", "id", rec.ID, "error", err)
				res.Errors = append(res.Errors, fmt.Sprintf("enrich %s: %v", recordLabel(rec), err))
				continue
			}
		}

		changes, mergeErr := domain.Merge(rec, patch, tier)
		if mergeErr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("merge %s: %v", recordLabel(rec), mergeErr))
		}

		write := changes.Clone()
		if cursor := a.Cursor(); cursor != "" {
			write[cursor] = m.now()
		}
		if !write.IsEmpty() {
			if err := m.store.Update(ctx, rec.ID, write); err != nil {
				log.Warn("update failed", "id", rec.ID, "error", err)
				res.Errors = append(res.Errors, fmt.Sprintf("update %s: %v", recordLabel(rec), err))
				continue
			}
		}

		if changes.IsEmpty() {
			res.Skipped++
		} else {
			res.Updated++
		}
	}
	return res
}

// parkIneligible stamps the cursor on selected records the adapter cannot use,
// so they leave the head of the batch until the refresh window passes.
func (m *Manager) parkIneligible(ctx context.Context, a ports.EnrichmentAdapter, records []domain.PropertyRecord, res *domain.IngestionResult) {
	cursor := a.Cursor()
	if cursor == "" || len(records) == 0 {
		return
	}
	for _, rec := range records {
		if err := m.store.Update(ctx, rec.ID, domain.Patch{cursor: m.now()}); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("park %s: %v", recordLabel(rec), err))
		}
	}
	m.logger.Debug("parked ineligible records", "source", a.Name(), "count", len(records))
}

func safeFetch(ctx context.Context, a ports.SourceAdapter, q domain.SourceQuery) (records []domain.PropertyRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return a.Fetch(ctx, q)
}

func safeEnrich(ctx context.Context, a ports.EnrichmentAdapter, rec domain.PropertyRecord) (patch domain.Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Enrich(ctx, rec)
}

func describeQuery(q domain.SourceQuery) string {
	parts := make([]string, 0, 3)
	if q.Area != "" {
		parts = append(parts, "area="+q.Area)
	}
	if q.Postcode != "" {
		parts = append(parts, "postcode="+q.Postcode)
	}
	if q.ListingType != "" {
		parts = append(parts, "type="+string(q.ListingType))
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, ",")
}

func recordLabel(rec domain.PropertyRecord) string {
	if rec.ExternalID != "" {
		return rec.ExternalID
	}
	return rec.ID
}
