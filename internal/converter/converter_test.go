package converter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"promolink/internal/retry"
)

var fastRetry = &retry.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemCache() *memCache { return &memCache{m: map[string]string{}} }

func (c *memCache) Get(_ context.Context, url string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[url]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, url, aff string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[url] = aff
	return nil
}

// affiliateBackend maps https://shopee.co.id/<path> to https://aff.example/<path>.
func affiliateBackend(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		if r.Method != http.MethodPost || r.URL.Path != convertPath || r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		atomic.AddInt32(calls, 1)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"affiliate_url": "https://aff.example/" + strings.TrimPrefix(req.URL, "https://shopee.co.id/"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConvert_SuccessAndCache(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := affiliateBackend(t, &calls)
	c := New(Options{BaseURL: srv.URL + "/", APIKey: "secret", Cache: newMemCache(), Retry: fastRetry})

	res, err := c.Convert(context.Background(), "https://shopee.co.id/p1")
	require.NoError(t, err)
	require.Equal(t, "https://aff.example/p1", res.Affiliate)
	require.Equal(t, "shopee", res.Marketplace)
	require.False(t, res.Cached)

	res, err = c.Convert(context.Background(), "https://shopee.co.id/p1")
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestConvert_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"short_link":"https://s.shopee.co.id/abc"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Retry: fastRetry})
	res, err := c.Convert(context.Background(), "https://shopee.co.id/p1")
	require.NoError(t, err)
	require.Equal(t, "https://s.shopee.co.id/abc", res.Affiliate)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestConvert_RejectedIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"not a product link"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Retry: fastRetry})
	res, err := c.Convert(context.Background(), "https://shopee.co.id/shop/1")
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "not a product link")
	require.Equal(t, err.Error(), res.Error)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestConvert_EmptyResult(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Retry: fastRetry})
	_, err := c.Convert(context.Background(), "https://shopee.co.id/p1")
	require.ErrorIs(t, err, ErrEmptyResult)
}

func TestConvertText_ReplacesInPlace(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := affiliateBackend(t, &calls)
	c := New(Options{BaseURL: srv.URL, APIKey: "secret", Retry: fastRetry})

	in := "Promo! https://shopee.co.id/a and https://amazon.com/x then https://shopee.co.id/a again https://shopee.co.id/b"
	out := c.ConvertText(context.Background(), in)

	require.Equal(t, "Promo! https://aff.example/a and https://amazon.com/x then https://aff.example/a again https://aff.example/b", out.Text)
	require.Len(t, out.Links, 2)
	require.Len(t, out.Converted(), 2)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestConvertText_FailedLinkKept(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.HasSuffix(req.URL, "/bad") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"affiliate_url":"https://aff.example/ok"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Retry: fastRetry})
	out := c.ConvertText(context.Background(), "https://shopee.co.id/bad https://shopee.co.id/good")

	require.Equal(t, "https://shopee.co.id/bad https://aff.example/ok", out.Text)
	require.Len(t, out.Links, 2)
	require.Error(t, out.Links[0].Err)
	require.Len(t, out.Converted(), 1)
}

func TestConvertTextFunc_LeavesRejectedLinksAsPosted(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := affiliateBackend(t, &calls)
	c := New(Options{BaseURL: srv.URL, APIKey: "secret", Retry: fastRetry})

	in := "https://shopee.co.id/ab then https://shopee.co.id/a"
	out := c.ConvertTextFunc(context.Background(), in, func(u string) bool {
		return u == "https://shopee.co.id/a"
	})

	require.Equal(t, "https://shopee.co.id/ab then https://aff.example/a", out.Text)
	require.Len(t, out.Links, 1)
	require.Equal(t, "https://shopee.co.id/a", out.Links[0].Original)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestConvertText_NoLinks(t *testing.T) {
	t.Parallel()

	c := New(Options{BaseURL: "http://127.0.0.1:1"})
	out := c.ConvertText(context.Background(), "nothing to see")
	require.Equal(t, "nothing to see", out.Text)
	require.Empty(t, out.Links)
	require.NotNil(t, out.Links)
}

func TestStatusError_Is(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, &StatusError{Code: 404}, ErrRejected)
	require.NotErrorIs(t, &StatusError{Code: 429}, ErrRejected)
	require.NotErrorIs(t, &StatusError{Code: 500}, ErrRejected)
	require.True(t, isRetryable(&StatusError{Code: 429}))
	require.False(t, isRetryable(&StatusError{Code: 401}))
}
