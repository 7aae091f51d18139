package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{BaseURL: baseURL, Timeout: 5 * time.Second, RequestsPerSecond: 100, Burst: 10}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, nil, nil)
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "/relative"}, nil, nil)
	assert.Error(t, err)
}

func TestURLFor(t *testing.T) {
	c := newTestClient(t, "https://api.example.com/v1/", nil)

	tests := []struct {
		name    string
		key     domain.QueryKey
		want    string
		wantErr error
	}{
		{"family only", domain.QueryKey{"topics"}, "https://api.example.com/v1/topics", nil},
		{"path segment", domain.QueryKey{"topic", "7"}, "https://api.example.com/v1/topic/7", nil},
		{"numeric segment", domain.QueryKey{"topic", float64(7)}, "https://api.example.com/v1/topic/7", nil},
		{"escaped segment", domain.QueryKey{"topic", "a b/c"}, "https://api.example.com/v1/topic/a%20b%2Fc", nil},
		{
			"params sorted",
			domain.QueryKey{"topics", map[string]any{"page": 2, "limit": 35, "q": nil}},
			"https://api.example.com/v1/topics?limit=35&page=2",
			nil,
		},
		{"nil element skipped", domain.QueryKey{"groups", nil}, "https://api.example.com/v1/groups", nil},
		{"array element", domain.QueryKey{"topics", []any{1}}, "", ErrUnsupportedKey},
		{"nested object", domain.QueryKey{"topics", map[string]any{"f": map[string]any{}}}, "", ErrUnsupportedKey},
		{"empty key", domain.QueryKey{}, "", domain.ErrEmptyQueryKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.URLFor(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"title":"Cells"}]`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL+"/api", func(cfg *Config) { cfg.Token = "secret-token" })

	body, err := c.Fetch(context.Background(), domain.QueryKey{"topics", map[string]any{"page": 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"title":"Cells"}]`, string(body))
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/api/topics", gotPath)
	assert.Equal(t, "page=2", gotQuery)
}

func TestFetchWithoutToken(t *testing.T) {
	var hadAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(t, srv.URL, nil).Fetch(context.Background(), domain.QueryKey{"counts"})
	require.NoError(t, err)
	assert.False(t, hadAuth)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, "no such thing", http.StatusNotFound)
		case "/html":
			_, _ = w.Write([]byte("<html></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL, nil)

	_, err := c.Fetch(context.Background(), domain.QueryKey{"missing"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "no such thing")

	_, err = c.Fetch(context.Background(), domain.QueryKey{"html"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestFetchHonoursRateLimitCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestsPerSecond = 0.001
		cfg.Burst = 1
	})

	_, err := c.Fetch(context.Background(), domain.QueryKey{"counts"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, domain.QueryKey{"counts"})
	assert.Error(t, err)
}
