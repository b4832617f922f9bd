package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flowboard/internal/aggregate"
	"flowboard/internal/api"
	"flowboard/internal/cache"
	"flowboard/internal/log"
	"flowboard/internal/projection"
	"flowboard/internal/tenant"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// ErrNoTenant is returned when no tenant with credentials is active.
var ErrNoTenant = errors.New("no active tenant with credentials")

// DefaultConcurrency bounds parallel instance lookups.
const DefaultConcurrency = 6

// Upstream is the subset of the API client the dashboard needs.
type Upstream interface {
	Report(ctx context.Context, creds api.Credentials, dateRange string) ([]types.ExecutionRecord, error)
	Instance(ctx context.Context, creds api.Credentials, instanceID string) (*types.WorkflowInstanceDetail, error)
	Workflows(ctx context.Context, creds api.Credentials) ([]types.WorkflowDefinition, error)
	Worker(ctx context.Context, creds api.Credentials, workerID int) (*types.Worker, error)
}

// Publisher receives every refreshed snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// Options tune a Service.
type Options struct {
	Concurrency int
	Location    *time.Location
	Now         func() time.Time
	Logger      log.Logger
	Publisher   Publisher
}

// Service loads execution data for the active tenant and derives every view
// from it.
type Service struct {
	upstream    Upstream
	session     *tenant.Session
	cache       *cache.Cache
	concurrency int
	loc         *time.Location
	now         func() time.Time
	logger      log.Logger
	publisher   Publisher

	latestMutex sync.RWMutex
	latest      map[latestKey]*Snapshot
}

type latestKey struct {
	tenant string
	r      timerange.Range
}

// NewService wires a Service to the upstream client and tenant session.
func NewService(up Upstream, session *tenant.Session, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Global()
	}
	return &Service{
		upstream:    up,
		session:     session,
		cache:       session.Cache(),
		concurrency: opts.Concurrency,
		loc:         opts.Location,
		now:         opts.Now,
		logger:      opts.Logger,
		publisher:   opts.Publisher,
		latest:      make(map[latestKey]*Snapshot),
	}
}

// Session returns the tenant session the service reads credentials from.
func (s *Service) Session() *tenant.Session {
	return s.session
}

// Now returns the current time in the display location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// begin snapshots the active scope and ties ctx to it so a tenant switch
// aborts the work.
func (s *Service) begin(ctx context.Context) (*tenant.Scope, context.Context, context.CancelFunc, error) {
	scope := s.session.Current()
	if !scope.Valid() {
		return nil, nil, nil, ErrNoTenant
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(scope.Context(), cancel)
	return scope, ctx, func() {
		stop()
		cancel()
	}, nil
}

func (s *Service) records(ctx context.Context, scope *tenant.Scope, r timerange.Range) ([]types.ExecutionRecord, timerange.Range, error) {
	apiRange := timerange.APIRange(r)
	key := cache.Key{Tenant: scope.Tenant.ID, Kind: cache.KindReport, ID: string(apiRange)}
	raw, err := cache.Fetch(ctx, s.cache, key, cache.KindReport.TTL(), func(ctx context.Context) ([]types.ExecutionRecord, error) {
		s.logger.Debug("fetching workflow report", "tenant", scope.Tenant.ID, "date_range", apiRange)
		return s.upstream.Report(ctx, scope.Creds, string(apiRange))
	})
	if err != nil {
		return nil, apiRange, err
	}
	return timerange.Filter(raw, r, s.Now()), apiRange, nil
}

// Records returns the executions of the active tenant inside r's local window.
func (s *Service) Records(ctx context.Context, r timerange.Range) ([]types.ExecutionRecord, error) {
	scope, ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	records, _, err := s.records(ctx, scope, r)
	return records, err
}

// Snapshot computes every aggregate view for r.
func (s *Service) Snapshot(ctx context.Context, r timerange.Range) (*Snapshot, error) {
	scope, ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	records, apiRange, err := s.records(ctx, scope, r)
	if err != nil {
		return nil, err
	}
	snap := BuildSnapshot(scope.Tenant, r, apiRange, records, s.Now())

	s.latestMutex.Lock()
	s.latest[latestKey{tenant: scope.Tenant.ID, r: r}] = snap
	s.latestMutex.Unlock()
	return snap, nil
}

// Latest returns the last snapshot computed for the active tenant and r.
func (s *Service) Latest(r timerange.Range) (*Snapshot, bool) {
	id := s.session.Current().Tenant.ID
	s.latestMutex.RLock()
	defer s.latestMutex.RUnlock()
	snap, ok := s.latest[latestKey{tenant: id, r: r}]
	return snap, ok
}

// BuildSnapshot runs the reducers over records already narrowed to r.
func BuildSnapshot(t types.TenantConfig, r, apiRange timerange.Range, records []types.ExecutionRecord, now time.Time) *Snapshot {
	return &Snapshot{
		TenantID:     t.ID,
		TenantName:   t.DisplayName,
		Range:        r,
		RangeLabel:   r.Label(),
		APIRange:     apiRange,
		RecordCount:  len(records),
		Metrics:      aggregate.ComputeMetrics(records),
		Volume:       aggregate.ComputeVolumeData(records, r, now.Location()),
		Status:       aggregate.ComputeStatusData(records),
		Distribution: aggregate.ComputeDistributionData(records),
		RecentErrors: executionRows(aggregate.RecentErrors(records, RecentErrorLimit), now),
		FetchedAt:    now,
	}
}

// Executions returns one sorted page of the executions table.
func (s *Service) Executions(ctx context.Context, r timerange.Range, key aggregate.SortKey, dir aggregate.SortDir, page int) (*ExecutionsPage, error) {
	records, err := s.Records(ctx, r)
	if err != nil {
		return nil, err
	}
	p := aggregate.Paginate(aggregate.SortExecutions(records, key, dir), page, aggregate.DefaultPageSize)
	return &ExecutionsPage{
		Range:      r,
		Sort:       key,
		Dir:        dir,
		Items:      executionRows(p.Items, s.Now()),
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		Total:      p.Total,
	}, nil
}

type detailResult struct {
	id     string
	detail *types.WorkflowInstanceDetail
	err    error
}

// Certificates resolves the detail of every certificate execution in r with
// bounded concurrency. emit, when set, receives the growing progress after
// every completion. A failed lookup is counted and does not stop the others.
func (s *Service) Certificates(ctx context.Context, r timerange.Range, emit func(projection.Progress)) (projection.Progress, error) {
	scope, ctx, done, err := s.begin(ctx)
	if err != nil {
		return projection.Progress{}, err
	}
	defer done()

	records, _, err := s.records(ctx, scope, r)
	if err != nil {
		return projection.Progress{}, err
	}
	qualifying := projection.Qualifying(records)
	progress := projection.NewProgress(len(qualifying))
	if emit != nil {
		emit(progress)
	}
	if len(qualifying) == 0 {
		return progress, nil
	}

	results := make(chan detailResult)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	go func() {
		for _, rec := range qualifying {
			id := rec.InstanceID
			g.Go(func() error {
				key := cache.Key{Tenant: scope.Tenant.ID, Kind: cache.KindInstance, ID: id}
				detail, err := cache.Fetch(gctx, s.cache, key, cache.KindInstance.TTL(), func(ctx context.Context) (*types.WorkflowInstanceDetail, error) {
					return s.upstream.Instance(ctx, scope.Creds, id)
				})
				select {
				case results <- detailResult{id: id, detail: detail, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for res := range results {
		// the scope is cancelled synchronously on a tenant switch
		if scope.Context().Err() != nil {
			continue
		}
		if res.err != nil {
			s.logger.Warn("instance lookup failed", "tenant", scope.Tenant.ID, "instance_id", res.id, "error", res.err)
			progress = progress.Fail()
		} else {
			progress = progress.Add(projection.Project(res.detail))
		}
		if emit != nil {
			emit(progress)
		}
	}
	if err := scope.Context().Err(); err != nil {
		return progress, fmt.Errorf("certificate lookup interrupted by tenant switch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return progress, fmt.Errorf("certificate lookup interrupted: %w", err)
	}
	return progress, nil
}

// Worker returns the worker profile of the active tenant.
func (s *Service) Worker(ctx context.Context) (*types.Worker, error) {
	scope, ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	id := scope.Tenant.WorkerID
	key := cache.Key{Tenant: scope.Tenant.ID, Kind: cache.KindWorker, ID: strconv.Itoa(id)}
	return cache.Fetch(ctx, s.cache, key, cache.KindWorker.TTL(), func(ctx context.Context) (*types.Worker, error) {
		return s.upstream.Worker(ctx, scope.Creds, id)
	})
}

// Workflows returns the workflow catalog of the active tenant.
func (s *Service) Workflows(ctx context.Context) ([]types.WorkflowDefinition, error) {
	scope, ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	key := cache.Key{Tenant: scope.Tenant.ID, Kind: cache.KindWorkflows}
	return cache.Fetch(ctx, s.cache, key, cache.KindWorkflows.TTL(), func(ctx context.Context) ([]types.WorkflowDefinition, error) {
		return s.upstream.Workflows(ctx, scope.Creds)
	})
}

// Refresh recomputes the snapshot of each range and hands it to the
// publisher. Failures are logged per range.
func (s *Service) Refresh(ctx context.Context, ranges []timerange.Range) map[timerange.Range]*Snapshot {
	out := make(map[timerange.Range]*Snapshot, len(ranges))
	seen := make(map[timerange.Range]bool, len(ranges))
	for _, r := range ranges {
		if seen[r] {
			continue
		}
		seen[r] = true
		snap, err := s.Snapshot(ctx, r)
		if err != nil {
			s.logger.Warn("snapshot refresh failed", "range", r, "error", err)
			continue
		}
		out[r] = snap
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, snap); err != nil {
				s.logger.Warn("snapshot export failed", "range", r, "error", err)
			}
		}
	}
	return out
}
