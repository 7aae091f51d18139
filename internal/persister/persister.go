package persister

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/events"
	"github.com/phrazzld/studycache/internal/quota"
	"github.com/phrazzld/studycache/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/phrazzld/studycache/internal/persister"

// PersistResult describes what a Persist call did. It is informational;
// Persist never fails the caller.
type PersistResult struct {
	// Candidates is the number of queries that passed the family and status filters.
	Candidates int `json:"candidates"`
	// Written is the number of entries inserted or replaced.
	Written int `json:"written"`
	// Skipped counts candidates not written: an equal or newer entry was
	// stored, they were already expired, or they could not be encoded.
	Skipped int `json:"skipped"`
	// Deleted is the number of dead entries removed by the sweep.
	Deleted int `json:"deleted"`
	// QuotaExceeded is set when the call was aborted by the quota check.
	QuotaExceeded bool `json:"quota_exceeded"`
	// Usage is the storage estimate taken before writing, when available.
	Usage quota.Usage `json:"-"`
	// Err holds the first storage error, for observability only.
	Err error `json:"-"`
}

// Persister owns the durable query cache. It is safe for concurrent use;
// operations are serialised so the store sees one writer at a time.
type Persister struct {
	mu        sync.Mutex
	store     store.EntryStore
	cfg       Config
	families  map[string]struct{}
	estimator quota.Estimator
	emitter   events.EventEmitter
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option customises a Persister.
type Option func(*Persister)

// WithEstimator sets the storage quota estimator. Without one, quota checks
// always pass.
func WithEstimator(e quota.Estimator) Option {
	return func(p *Persister) { p.estimator = e }
}

// WithEmitter sets where quota warnings are emitted.
func WithEmitter(e events.EventEmitter) Option {
	return func(p *Persister) { p.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTracerProvider sets the provider used for spans instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Persister) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// New constructs a Persister over s.
func New(s store.EntryStore, cfg Config, opts ...Option) (*Persister, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Persister{
		store:    s,
		cfg:      cfg,
		families: make(map[string]struct{}, len(cfg.Families)),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, f := range cfg.Families {
		p.families[f] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "persister", "cache_version", cfg.Version)
	return p, nil
}

// Version returns the running cache version.
func (p *Persister) Version() string {
	return p.cfg.Version
}

// TTL returns the retention window.
func (p *Persister) TTL() time.Duration {
	return p.cfg.TTL
}

// Persist writes the cacheable subset of queries to the store and sweeps
// dead entries.
func (p *Persister) Persist(ctx context.Context, queries []domain.QueryState) PersistResult {
	ctx, span := p.tracer.Start(ctx, "persister.Persist",
		trace.WithAttributes(attribute.Int("queries.total", len(queries))))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var res PersistResult

	candidates := p.filter(queries)
	res.Candidates = len(candidates)

	// The quota is only consulted when there is something to write.
	if usage, near := p.nearQuota(ctx, len(candidates)); near {
		res.QuotaExceeded = true
		res.Usage = usage
		res.Err = ErrQuotaExceeded
		p.logger.WarnContext(ctx, "storage near quota, skipping persist",
			"usage", usage.String(),
			"ratio", usage.Ratio(),
			"threshold", p.cfg.QuotaThreshold,
			"candidates", res.Candidates)
		p.warnQuota(ctx, usage)
		span.SetAttributes(attribute.Bool("quota.exceeded", true))
		return res
	}

	for _, q := range candidates {
		entry, err := p.encode(q, now)
		if err != nil {
			res.Skipped++
			p.logger.WarnContext(ctx, "skipping unencodable query", "family", q.Key.Family(), "error", err)
			continue
		}
		if !entry.IsLive(p.cfg.Version, p.cfg.TTL, now) {
			res.Skipped++
			continue
		}

		written, err := p.store.PutIfNewer(ctx, entry)
		if err != nil {
			res.Skipped++
			res.Err = firstErr(res.Err, err)
			p.logger.ErrorContext(ctx, "failed to write cache entry", "key", entry.Key, "error", err)
			continue
		}
		if written {
			res.Written++
		} else {
			res.Skipped++
		}
	}

	deleted, err := p.sweep(ctx, now)
	res.Deleted = deleted
	res.Err = firstErr(res.Err, err)

	span.SetAttributes(
		attribute.Int("queries.candidates", res.Candidates),
		attribute.Int("entries.written", res.Written),
		attribute.Int("entries.deleted", res.Deleted),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "persist incomplete")
	}

	p.logger.DebugContext(ctx, "persisted query cache",
		"candidates", res.Candidates,
		"written", res.Written,
		"skipped", res.Skipped,
		"deleted", res.Deleted)
	return res
}

// Restore returns every live entry as a snapshot. Storage errors yield an
// empty snapshot.
func (p *Persister) Restore(ctx context.Context) *domain.Snapshot {
	ctx, span := p.tracer.Start(ctx, "persister.Restore")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	snapshot := domain.NewEmptySnapshot(p.cfg.Version, now)

	entries, err := p.store.GetAll(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to read cache entries, starting cold", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "restore failed")
		return snapshot
	}

	excluded := 0
	for _, e := range entries {
		if !e.IsLive(p.cfg.Version, p.cfg.TTL, now) {
			excluded++
			continue
		}
		var q domain.QueryState
		if err := json.Unmarshal(e.Payload, &q); err != nil {
			excluded++
			p.logger.WarnContext(ctx, "ignoring undecodable cache entry", "key", e.Key, "error", err)
			continue
		}
		snapshot.Queries = append(snapshot.Queries, q)
	}

	span.SetAttributes(
		attribute.Int("entries.restored", len(snapshot.Queries)),
		attribute.Int("entries.excluded", excluded))
	p.logger.InfoContext(ctx, "restored query cache",
		"restored", len(snapshot.Queries),
		"excluded", excluded)
	return snapshot
}

// Clear deletes every entry. Errors are logged.
func (p *Persister) Clear(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "persister.Clear")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.store.Clear(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to clear query cache", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		return
	}
	span.SetAttributes(attribute.Int("entries.deleted", n))
	p.logger.InfoContext(ctx, "cleared query cache", "deleted", n)
}

// Stats describes the store's current contents.
type Stats struct {
	Entries int         `json:"entries"`
	Live    int         `json:"live"`
	Bytes   int64       `json:"bytes"`
	Usage   quota.Usage `json:"-"`
	// UsageKnown is false when no quota estimate was available.
	UsageKnown bool `json:"usage_known"`
}

// Stats reports entry counts and storage usage.
func (p *Persister) Stats(ctx context.Context) (Stats, error) {
	ctx, span := p.tracer.Start(ctx, "persister.Stats")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	entries, err := p.store.GetAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list cache entries: %w", err)
	}
	size, err := p.store.Size(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache size: %w", err)
	}

	st := Stats{Entries: len(entries), Bytes: size}
	for _, e := range entries {
		if e.IsLive(p.cfg.Version, p.cfg.TTL, now) {
			st.Live++
		}
	}
	if p.estimator != nil {
		if usage, err := p.estimator.Estimate(ctx); err == nil {
			st.Usage = usage
			st.UsageKnown = true
		}
	}
	return st, nil
}

func (p *Persister) filter(queries []domain.QueryState) []domain.QueryState {
	out := make([]domain.QueryState, 0, len(queries))
	for _, q := range queries {
		if _, ok := p.families[q.Key.Family()]; !ok {
			continue
		}
		if q.Status != domain.QueryStatusSuccess || !q.HasData() {
			continue
		}
		out = append(out, q)
	}
	return out
}

// nearQuota reports whether usage is above the threshold. An unavailable
// estimate counts as not near quota.
func (p *Persister) nearQuota(ctx context.Context, pending int) (quota.Usage, bool) {
	if p.estimator == nil || pending == 0 {
		return quota.Usage{}, false
	}
	usage, err := p.estimator.Estimate(ctx)
	if err != nil {
		if !errors.Is(err, quota.ErrUnknown) {
			p.logger.WarnContext(ctx, "quota estimate failed", "error", err)
		}
		return quota.Usage{}, false
	}
	return usage, usage.Exceeds(p.cfg.QuotaThreshold)
}

func (p *Persister) warnQuota(ctx context.Context, usage quota.Usage) {
	if p.emitter == nil {
		return
	}
	event, err := events.NewEvent(events.TypeQuotaWarning, events.QuotaWarning{
		UsageBytes: usage.Used,
		QuotaBytes: usage.Quota,
		Ratio:      usage.Ratio(),
		Threshold:  p.cfg.QuotaThreshold,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build quota warning", "error", err)
		return
	}
	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to emit quota warning", "error", err)
	}
}

// encode builds the durable entry for q. The write timestamp is the
// query's fetch time so that out-of-order persists of the same fetch are
// rejected by the store. It never lies after now, otherwise the entry would
// outlive the TTL and block every later write of its key.
func (p *Persister) encode(q domain.QueryState, now time.Time) (*domain.CacheEntry, error) {
	key, err := q.Key.Hash()
	if err != nil {
		return nil, err
	}
	written := q.UpdatedAt
	if written.IsZero() || written.After(now) {
		written = now
		q.UpdatedAt = now
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query state: %w", err)
	}
	return &domain.CacheEntry{
		Key:       key,
		Version:   p.cfg.Version,
		Payload:   payload,
		Timestamp: written.UnixMilli(),
	}, nil
}

func (p *Persister) sweep(ctx context.Context, now time.Time) (int, error) {
	entries, err := p.store.GetAll(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to list entries for sweep", "error", err)
		return 0, err
	}

	var dead []string
	for _, e := range entries {
		if !e.IsLive(p.cfg.Version, p.cfg.TTL, now) {
			dead = append(dead, e.Key)
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}

	n, err := p.store.Delete(ctx, dead...)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to purge dead entries", "count", len(dead), "error", err)
		return 0, err
	}
	p.logger.DebugContext(ctx, "purged dead cache entries", "deleted", n)
	return n, nil
}

func firstErr(current, next error) error {
	if current != nil {
		return current
	}
	return next
}
