package persister

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/events"
	"github.com/phrazzld/studycache/internal/platform/logger"
	"github.com/phrazzld/studycache/internal/quota"
	"github.com/phrazzld/studycache/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: baseTime} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingEmitter captures emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingEmitter) EmitEvent(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func success(updatedAt time.Time, data string, key ...any) domain.QueryState {
	return domain.QueryState{
		Key:       domain.QueryKey(key),
		Status:    domain.QueryStatusSuccess,
		Data:      json.RawMessage(data),
		UpdatedAt: updatedAt,
	}
}

func newPersister(t *testing.T, s *memstore.Store, version string, clk *clock, opts ...Option) *Persister {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	opts = append([]Option{WithClock(clk.Now), WithLogger(log)}, opts...)
	p, err := New(s, NewConfig(version), opts...)
	require.NoError(t, err)
	return p
}

func byKey(qs []domain.QueryState) []domain.QueryState {
	out := append([]domain.QueryState(nil), qs...)
	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i].Key.Hash()
		b, _ := out[j].Key.Hash()
		return a < b
	})
	return out
}

func storedKeys(t *testing.T, s *memstore.Store) []string {
	t.Helper()
	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	keys := make([]string, 0, len(all))
	for _, e := range all {
		keys = append(keys, e.Key)
	}
	return keys
}

func TestNewValidatesConfig(t *testing.T) {
	s := memstore.New()

	_, err := New(nil, NewConfig("1.0.0"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty version", func(c *Config) { c.Version = "" }},
		{"zero ttl", func(c *Config) { c.TTL = 0 }},
		{"no families", func(c *Config) { c.Families = nil }},
		{"zero threshold", func(c *Config) { c.QuotaThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.QuotaThreshold = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("1.0.0")
			tt.mutate(&cfg)
			_, err := New(s, cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRestoreEmptyStore(t *testing.T) {
	clk := newClock()
	p := newPersister(t, memstore.New(), "1.0.0", clk)

	snap := p.Restore(context.Background())
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, "1.0.0", snap.Version)
	assert.True(t, snap.Timestamp.Equal(baseTime))
}

func TestRestoreThenPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	p := newPersister(t, memstore.New(), "1.0.0", clk)

	require.True(t, p.Restore(ctx).IsEmpty())

	fetched := baseTime.Add(-time.Minute)
	queries := []domain.QueryState{
		success(fetched, `[{"id":1}]`, "topics", map[string]any{"page": "2", "limit": "35"}),
		success(fetched, `{"id":7,"title":"Cells"}`, "topic", "7"),
		success(fetched, `{"topics":12}`, "counts"),
	}

	res := p.Persist(ctx, queries)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 3, res.Written)

	snap := p.Restore(ctx)
	if diff := cmp.Diff(byKey(queries), byKey(snap.Queries)); diff != "" {
		t.Errorf("restored queries mismatch (-want +got):\n%s", diff)
	}

	// Persisting the same fetches again changes nothing.
	res = p.Persist(ctx, snap.Queries)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, p.Restore(ctx).Queries, 3)
}

func TestPersistMonotonicity(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	t1 := baseTime.Add(-time.Minute)
	t0 := t1.Add(-time.Second)

	res := p.Persist(ctx, []domain.QueryState{success(t1, `{"v":"new"}`, "topic", "1")})
	require.Equal(t, 1, res.Written)

	res = p.Persist(ctx, []domain.QueryState{success(t0, `{"v":"old"}`, "topic", "1")})
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.Skipped)

	key, err := domain.QueryKey{"topic", "1"}.Hash()
	require.NoError(t, err)
	entry, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, t1.UnixMilli(), entry.Timestamp)
	assert.Contains(t, string(entry.Payload), `"new"`)
}

func TestPersistAllowList(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	res := p.Persist(ctx, []domain.QueryState{
		success(baseTime, `{"me":true}`, "profile"),
		success(baseTime, `[1,2]`, "flashcards", "3"),
		success(baseTime, `[]`, "groups"),
	})

	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, []string{`["groups"]`}, storedKeys(t, s))
}

func TestPersistCustomFamilies(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	cfg := NewConfig("1.0.0")
	cfg.Families = []string{"flashcards"}
	p, err := New(s, cfg, WithClock(newClock().Now))
	require.NoError(t, err)

	p.Persist(ctx, []domain.QueryState{
		success(baseTime, `[1]`, "flashcards", "3"),
		success(baseTime, `[]`, "topics"),
	})
	assert.Equal(t, []string{`["flashcards","3"]`}, storedKeys(t, s))
}

func TestPersistStatusFiltering(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	res := p.Persist(ctx, []domain.QueryState{
		{Key: domain.QueryKey{"topics"}, Status: domain.QueryStatusError, Error: "boom", UpdatedAt: baseTime},
		{Key: domain.QueryKey{"topic", "1"}, Status: domain.QueryStatusPending, UpdatedAt: baseTime},
		{Key: domain.QueryKey{"topic", "2"}, Status: domain.QueryStatusSuccess, Data: json.RawMessage("null"), UpdatedAt: baseTime},
		{Key: domain.QueryKey{"topic", "3"}, Status: domain.QueryStatusSuccess, UpdatedAt: baseTime},
	})

	assert.Equal(t, 0, res.Candidates)
	assert.Equal(t, 0, res.Written)
	assert.Empty(t, storedKeys(t, s))
}

func TestPersistZeroUpdatedAtUsesClock(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	p.Persist(ctx, []domain.QueryState{success(time.Time{}, `{}`, "counts")})

	entry, err := s.Get(ctx, `["counts"]`)
	require.NoError(t, err)
	assert.Equal(t, baseTime.UnixMilli(), entry.Timestamp)
}

func TestPersistClampsFutureUpdatedAt(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	res := p.Persist(ctx, []domain.QueryState{
		success(baseTime.Add(365*24*time.Hour), `{"v":"future"}`, "topic", "1"),
	})
	require.Equal(t, 1, res.Written)

	entry, err := s.Get(ctx, `["topic","1"]`)
	require.NoError(t, err)
	assert.Equal(t, baseTime.UnixMilli(), entry.Timestamp)

	clk.Advance(48 * time.Hour)
	assert.True(t, p.Restore(ctx).IsEmpty())

	res = p.Persist(ctx, []domain.QueryState{success(clk.Now(), `{"v":"fresh"}`, "topic", "1")})
	assert.Equal(t, 1, res.Written)

	snap := p.Restore(ctx)
	require.Len(t, snap.Queries, 1)
	assert.JSONEq(t, `{"v":"fresh"}`, string(snap.Queries[0].Data))
	assert.True(t, snap.Queries[0].UpdatedAt.Equal(clk.Now()))
}

func TestVersionPurge(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()

	old := newPersister(t, s, "1.0.0", clk)
	res := old.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topic", "1")})
	require.Equal(t, 1, res.Written)

	current := newPersister(t, s, "1.0.1", clk)
	assert.True(t, current.Restore(ctx).IsEmpty())
	// Restore excludes without deleting.
	assert.Len(t, storedKeys(t, s), 1)

	res = current.Persist(ctx, nil)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, storedKeys(t, s))
}

func TestTTLPurge(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	p.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topic", "old")})
	clk.Advance(2 * time.Hour)
	p.Persist(ctx, []domain.QueryState{success(clk.Now(), `{}`, "topic", "fresh")})
	require.Len(t, storedKeys(t, s), 2)

	clk.Advance(23 * time.Hour)

	snap := p.Restore(ctx)
	require.Len(t, snap.Queries, 1)
	assert.Equal(t, domain.QueryKey{"topic", "fresh"}, snap.Queries[0].Key)
	assert.Len(t, storedKeys(t, s), 2)

	res := p.Persist(ctx, nil)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{`["topic","fresh"]`}, storedKeys(t, s))
}

func TestPersistSkipsExpiredCandidates(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	res := p.Persist(ctx, []domain.QueryState{success(baseTime.Add(-48*time.Hour), `{}`, "topics")})
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, storedKeys(t, s))
}

func TestQuotaAbort(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()

	// A dead entry the sweep would normally remove.
	stale := newPersister(t, s, "0.9.0", clk)
	stale.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topic", "stale")})
	require.Len(t, storedKeys(t, s), 1)

	emitter := &recordingEmitter{}
	estimator := quota.EstimatorFunc(func(context.Context) (quota.Usage, error) {
		return quota.Usage{Used: 85, Quota: 100}, nil
	})
	log, buf := logger.NewTestLogger(t)
	p, err := New(s, NewConfig("1.0.0"),
		WithClock(clk.Now), WithEstimator(estimator), WithEmitter(emitter), WithLogger(log))
	require.NoError(t, err)

	res := p.Persist(ctx, []domain.QueryState{
		success(baseTime, `{}`, "topic", "1"),
		success(baseTime, `{}`, "topics"),
	})

	assert.True(t, res.QuotaExceeded)
	assert.ErrorIs(t, res.Err, ErrQuotaExceeded)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, []string{`["topic","stale"]`}, storedKeys(t, s))

	require.Equal(t, 1, emitter.count())
	event := emitter.events[0]
	assert.Equal(t, events.TypeQuotaWarning, event.Type)
	var warning events.QuotaWarning
	require.NoError(t, event.UnmarshalPayload(&warning))
	assert.InDelta(t, 0.85, warning.Ratio, 1e-9)
	assert.Equal(t, int64(100), warning.QuotaBytes)

	logger.AssertLogContains(t, buf, "storage near quota")
}

func TestQuotaNotCheckedWithoutCandidates(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()

	stale := newPersister(t, s, "0.9.0", clk)
	stale.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topic", "stale")})

	var estimates int
	emitter := &recordingEmitter{}
	estimator := quota.EstimatorFunc(func(context.Context) (quota.Usage, error) {
		estimates++
		return quota.Usage{Used: 95, Quota: 100}, nil
	})
	p := newPersister(t, s, "1.0.0", clk, WithEstimator(estimator), WithEmitter(emitter))

	failed := domain.QueryState{Key: domain.QueryKey{"topics"}, Status: domain.QueryStatusError, Error: "502"}
	for i := 0; i < 3; i++ {
		res := p.Persist(ctx, []domain.QueryState{failed})
		assert.False(t, res.QuotaExceeded)
		assert.NoError(t, res.Err)
	}

	assert.Zero(t, estimates)
	assert.Zero(t, emitter.count())
	assert.Empty(t, storedKeys(t, s))
}

func TestQuotaCheckPermissive(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		estimator quota.Estimator
	}{
		{"no estimator", nil},
		{"unknown usage", quota.EstimatorFunc(func(context.Context) (quota.Usage, error) {
			return quota.Usage{}, quota.ErrUnknown
		})},
		{"estimator failure", quota.EstimatorFunc(func(context.Context) (quota.Usage, error) {
			return quota.Usage{}, errors.New("unavailable")
		})},
		{"at threshold", quota.EstimatorFunc(func(context.Context) (quota.Usage, error) {
			return quota.Usage{Used: 80, Quota: 100}, nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memstore.New()
			emitter := &recordingEmitter{}
			opts := []Option{WithEmitter(emitter)}
			if tt.estimator != nil {
				opts = append(opts, WithEstimator(tt.estimator))
			}
			p := newPersister(t, s, "1.0.0", newClock(), opts...)

			res := p.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topics")})
			assert.False(t, res.QuotaExceeded)
			assert.Equal(t, 1, res.Written)
			assert.Zero(t, emitter.count())
		})
	}
}

func TestStorageFailuresAreAbsorbed(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", clk)

	p.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topics")})

	boom := errors.New("disk unplugged")
	s.SetFailure(boom)

	var res PersistResult
	require.NotPanics(t, func() {
		res = p.Persist(ctx, []domain.QueryState{success(baseTime.Add(time.Second), `{}`, "topics")})
	})
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 0, res.Written)

	snap := p.Restore(ctx)
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, "1.0.0", snap.Version)

	require.NotPanics(t, func() { p.Clear(ctx) })

	_, err := p.Stats(ctx)
	assert.ErrorIs(t, err, boom)

	s.SetFailure(nil)
	assert.Len(t, p.Restore(ctx).Queries, 1)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", newClock())

	p.Persist(ctx, []domain.QueryState{
		success(baseTime, `{}`, "topics"),
		success(baseTime, `{}`, "counts"),
	})
	require.Len(t, storedKeys(t, s), 2)

	p.Clear(ctx)
	assert.Empty(t, storedKeys(t, s))
	assert.True(t, p.Restore(ctx).IsEmpty())
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()

	newPersister(t, s, "0.1.0", clk).Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topic", "x")})

	p := newPersister(t, s, "1.0.0", clk, WithEstimator(quota.NewStoreEstimator(s, 1<<20)))
	p.Persist(ctx, []domain.QueryState{success(baseTime, `{}`, "topics")})
	// The sweep removed the foreign entry.
	st, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, 1, st.Live)
	assert.Positive(t, st.Bytes)
	assert.True(t, st.UsageKnown)
	assert.Equal(t, int64(1<<20), st.Usage.Quota)
}

func TestConcurrentPersistKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newPersister(t, s, "1.0.0", newClock())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := baseTime.Add(-time.Hour).Add(time.Duration(i) * time.Second)
			p.Persist(ctx, []domain.QueryState{success(at, `{}`, "topics")})
		}(i)
	}
	wg.Wait()

	entry, err := s.Get(ctx, `["topics"]`)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(-time.Hour).Add(15*time.Second).UnixMilli(), entry.Timestamp)
}

func TestEndToEndVersionBump(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	s := memstore.New()

	// Boot with empty storage.
	p := newPersister(t, s, "1.0.0", clk)
	snap := p.Restore(ctx)
	require.True(t, snap.IsEmpty())

	// Fetches complete; three succeed, one fails.
	fetched := baseTime.Add(time.Second)
	clk.Advance(2 * time.Second)
	p.Persist(ctx, []domain.QueryState{
		success(fetched, `[{"id":1}]`, "topics"),
		success(fetched, `{"id":1}`, "topic", "1"),
		success(fetched, `{"topics":1}`, "counts"),
		{Key: domain.QueryKey{"groups"}, Status: domain.QueryStatusError, Error: "502", UpdatedAt: fetched},
	})
	require.Len(t, storedKeys(t, s), 3)

	// Next release bumps the version.
	bumped := newPersister(t, s, "1.0.1", clk)
	assert.Empty(t, bumped.Restore(ctx).Queries)

	clk.Advance(time.Minute)
	refetched := clk.Now()
	res := bumped.Persist(ctx, []domain.QueryState{success(refetched, `[]`, "groups")})
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 3, res.Deleted)
	assert.Equal(t, []string{`["groups"]`}, storedKeys(t, s))

	restored := bumped.Restore(ctx)
	require.Len(t, restored.Queries, 1)
	assert.Equal(t, "groups", restored.Queries[0].Key.Family())
}

func TestOperationsOpenSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	clk := newClock()
	p := newPersister(t, memstore.New(), "1.0.0", clk, WithTracerProvider(tp))

	p.Persist(ctx, []domain.QueryState{success(clk.Now(), `[1]`, "topics")})
	p.Restore(ctx)
	_, err := p.Stats(ctx)
	require.NoError(t, err)
	p.Clear(ctx)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"persister.Persist",
		"persister.Restore",
		"persister.Stats",
		"persister.Clear",
	}, names)
}
