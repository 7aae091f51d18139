package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long a successful result is served without refetching.
	DefaultStaleTime = 5 * time.Minute

	// DefaultFetchTimeout bounds one shared backend fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher loads the data for a query key.
type Fetcher interface {
	Fetch(ctx context.Context, key domain.QueryKey) (json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key domain.QueryKey) (json.RawMessage, error)

// Fetch calls f(ctx, key).
func (f FetcherFunc) Fetch(ctx context.Context, key domain.QueryKey) (json.RawMessage, error) {
	return f(ctx, key)
}

// Change describes one state transition of a tracked query.
type Change struct {
	Key    domain.QueryKey
	Hash   string
	Status domain.QueryStatus
}

// Listener is called synchronously after every change.
type Listener func(Change)

type tracked struct {
	state domain.QueryState
	stale bool
}

// Client tracks query state per serialized key. It is safe for concurrent use.
type Client struct {
	mu        sync.RWMutex
	queries   map[string]*tracked
	listeners map[uint64]Listener
	nextID    uint64

	group        singleflight.Group
	fetcher      Fetcher
	staleTime    time.Duration
	fetchTimeout time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithStaleTime sets how long successful results stay fresh.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.staleTime = d
		}
	}
}

// WithFetchTimeout sets the deadline of a shared fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client that loads data through fetcher.
func NewClient(fetcher Fetcher, opts ...Option) *Client {
	c := &Client{
		queries:   make(map[string]*tracked),
		listeners: make(map[uint64]Listener),
		fetcher:   fetcher,
		staleTime:    DefaultStaleTime,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "query_client")
	return c
}

// Fetch returns the state for key, serving a fresh successful result from
// memory or fetching it. Concurrent fetches of one key share a single
// request. A failed fetch returns the error together with the error state.
//
// The shared request is detached from ctx and bounded by the fetch timeout,
// so a caller that gives up returns ctx.Err() without failing the others.
func (c *Client) Fetch(ctx context.Context, key domain.QueryKey) (domain.QueryState, error) {
	if err := key.Validate(); err != nil {
		return domain.QueryState{}, err
	}
	hash, err := key.Hash()
	if err != nil {
		return domain.QueryState{}, err
	}

	if state, ok := c.fresh(hash); ok {
		return state, nil
	}

	ch := c.group.DoChan(hash, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.load(fetchCtx, key, hash)
	})
	select {
	case res := <-ch:
		state, _ := res.Val.(domain.QueryState)
		if res.Shared {
			c.logger.DebugContext(ctx, "shared in-flight fetch", "key", hash)
		}
		return state, res.Err
	case <-ctx.Done():
		return domain.QueryState{}, ctx.Err()
	}
}

func (c *Client) load(ctx context.Context, key domain.QueryKey, hash string) (domain.QueryState, error) {
	c.mu.Lock()
	t, ok := c.queries[hash]
	if !ok {
		t = &tracked{state: domain.QueryState{Key: key}}
		c.queries[hash] = t
	}
	// Data keeps the last successful payload until a fetch replaces it.
	t.state.Status = domain.QueryStatusPending
	t.state.Error = ""
	c.mu.Unlock()
	c.notify(Change{Key: key, Hash: hash, Status: domain.QueryStatusPending})

	data, fetchErr := c.fetcher.Fetch(ctx, key)

	c.mu.Lock()
	t.stale = false
	t.state.UpdatedAt = c.now()
	if fetchErr != nil {
		t.state.Status = domain.QueryStatusError
		t.state.Error = fetchErr.Error()
	} else {
		t.state.Status = domain.QueryStatusSuccess
		t.state.Data = data
	}
	state := cloneState(t.state)
	c.mu.Unlock()

	c.notify(Change{Key: key, Hash: hash, Status: state.Status})

	if fetchErr != nil {
		c.logger.WarnContext(ctx, "query fetch failed", "key", hash, "error", fetchErr)
		return state, fmt.Errorf("fetch %s: %w", hash, fetchErr)
	}
	return state, nil
}

func (c *Client) fresh(hash string) (domain.QueryState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.queries[hash]
	if !ok || t.stale || t.state.Status != domain.QueryStatusSuccess {
		return domain.QueryState{}, false
	}
	if c.now().Sub(t.state.UpdatedAt) >= c.staleTime {
		return domain.QueryState{}, false
	}
	return cloneState(t.state), true
}

// Get returns the tracked state for key without fetching.
func (c *Client) Get(key domain.QueryKey) (domain.QueryState, bool) {
	hash, err := key.Hash()
	if err != nil {
		return domain.QueryState{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.queries[hash]
	if !ok {
		return domain.QueryState{}, false
	}
	return cloneState(t.state), true
}

// Seed loads restored queries. A seeded query never replaces a tracked one
// with a newer result. Listeners are not notified.
func (c *Client) Seed(snapshot *domain.Snapshot) int {
	if snapshot.IsEmpty() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seeded := 0
	for _, q := range snapshot.Queries {
		hash, err := q.Key.Hash()
		if err != nil {
			continue
		}
		if existing, ok := c.queries[hash]; ok && !existing.state.UpdatedAt.Before(q.UpdatedAt) {
			continue
		}
		c.queries[hash] = &tracked{state: cloneState(q)}
		seeded++
	}
	c.logger.Info("seeded query cache", "seeded", seeded, "snapshot_version", snapshot.Version)
	return seeded
}

// Snapshot returns every tracked query, in any status, ordered by key.
func (c *Client) Snapshot() []domain.QueryState {
	c.mu.RLock()
	hashes := make([]string, 0, len(c.queries))
	for h := range c.queries {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	out := make([]domain.QueryState, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, cloneState(c.queries[h].state))
	}
	c.mu.RUnlock()
	return out
}

// Invalidate marks every query of family stale so the next Fetch reloads
// it. It returns the number of queries marked.
func (c *Client) Invalidate(family string) int {
	c.mu.Lock()
	marked := 0
	for _, t := range c.queries {
		if t.state.Key.Family() == family && !t.stale {
			t.stale = true
			marked++
		}
	}
	c.mu.Unlock()

	if marked > 0 {
		c.logger.Debug("invalidated query family", "family", family, "count", marked)
	}
	return marked
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (c *Client) Subscribe(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) notify(change Change) {
	c.mu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.RUnlock()

	for _, l := range listeners {
		l(change)
	}
}

func cloneState(s domain.QueryState) domain.QueryState {
	if s.Data != nil {
		s.Data = append(json.RawMessage(nil), s.Data...)
	}
	return s
}
