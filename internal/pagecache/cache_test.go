/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pagecache_test

import (
	"context"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/oysterpack/ecoshop/internal/pagecache"
	"github.com/oysterpack/ecoshop/pkg/fxapptest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	sync.Mutex
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.t = c.t.Add(d)
}

// countingHandler responds with the number of times it was called
type countingHandler struct {
	calls        int32
	cacheControl string
	status       int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&h.calls, 1)
	if h.cacheControl != "" {
		w.Header().Set("Cache-Control", h.cacheControl)
	}
	w.Header().Set("Content-Type", "text/plain")
	if h.status != 0 {
		w.WriteHeader(h.status)
	}
	fmt.Fprintf(w, "%s %d", r.URL.Path, n)
}

func (h *countingHandler) Calls() int {
	return int(atomic.LoadInt32(&h.calls))
}

func newCache(t *testing.T, clock *clock) (*pagecache.Cache, *pagecache.MemoryStore, *fxapptest.SyncLog) {
	buf := fxapptest.NewSyncLog()
	logger := zerolog.New(buf)
	store := pagecache.NewMemoryStore(100, clock.Now)
	cache := pagecache.New(store, prometheus.NewRegistry(), &logger, pagecache.Clock(clock.Now))
	t.Cleanup(cache.Close)
	return cache, store, buf
}

func get(handler http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestParseCacheControl(t *testing.T) {
	policy := pagecache.ParseCacheControl("public, s-maxage=3600, stale-while-revalidate=60")
	assert.True(t, policy.Cacheable())
	assert.Equal(t, time.Hour, policy.TTL())
	assert.Equal(t, time.Minute, policy.StaleWhileRevalidate)

	policy = pagecache.ParseCacheControl("Public, Max-Age=30")
	assert.True(t, policy.Cacheable())
	assert.Equal(t, 30*time.Second, policy.TTL(), "max-age is used when s-maxage is missing")

	for _, value := range []string{
		"",
		"no-store",
		"private, no-store",
		"public, s-maxage=60, no-store",
		"public, s-maxage=60, private",
		"public",
		"public, s-maxage=abc",
		"s-maxage=60",
	} {
		assert.False(t, pagecache.ParseCacheControl(value).Cacheable(), value)
	}

	assert.Equal(t, "public, s-maxage=3600, stale-while-revalidate=60", pagecache.PublicCacheControl(time.Hour, time.Minute))
	assert.Equal(t, "public, s-maxage=60", pagecache.PublicCacheControl(time.Minute, 0))
}

func TestCache_Revalidation(t *testing.T) {
	clock := newClock()
	cache, _, _ := newCache(t, clock)
	origin := &countingHandler{cacheControl: "public, s-maxage=60, stale-while-revalidate=30"}
	handler := cache.Middleware(origin)

	w := get(handler, "/products")
	assert.Equal(t, pagecache.Miss, w.Header().Get(pagecache.Header))
	assert.Equal(t, "/products 1", w.Body.String())

	clock.Advance(10 * time.Second)
	w = get(handler, "/products")
	assert.Equal(t, pagecache.Hit, w.Header().Get(pagecache.Header))
	assert.Equal(t, "10", w.Header().Get("Age"))
	assert.Equal(t, "/products 1", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, origin.Calls())

	// past s-maxage, within the stale-while-revalidate window
	clock.Advance(60 * time.Second)
	w = get(handler, "/products")
	assert.Equal(t, pagecache.Stale, w.Header().Get(pagecache.Header))
	assert.Equal(t, "/products 1", w.Body.String())
	assert.Eventually(t, func() bool {
		return origin.Calls() == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		w := get(handler, "/products")
		return w.Header().Get(pagecache.Header) == pagecache.Hit && w.Body.String() != "/products 1"
	}, 5*time.Second, 10*time.Millisecond)
	revalidated := get(handler, "/products").Body.String()

	// past the stale-while-revalidate window
	clock.Advance(2 * time.Minute)
	w = get(handler, "/products")
	assert.Equal(t, pagecache.Miss, w.Header().Get(pagecache.Header))
	assert.NotEqual(t, revalidated, w.Body.String())
}

func TestCache_RevalidationKeepsRouteVars(t *testing.T) {
	clock := newClock()
	cache, _, _ := newCache(t, clock)
	var calls int32
	router := mux.NewRouter()
	router.Use(cache.Middleware)
	router.HandleFunc("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		id := mux.Vars(r)["id"]
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "public, s-maxage=60, stale-while-revalidate=30")
		fmt.Fprintf(w, "product %s %d", id, n)
	})

	assert.Equal(t, "product 5 1", get(router, "/products/5").Body.String())
	clock.Advance(70 * time.Second)
	w := get(router, "/products/5")
	assert.Equal(t, pagecache.Stale, w.Header().Get(pagecache.Header))
	assert.Eventually(t, func() bool {
		w := get(router, "/products/5")
		return w.Header().Get(pagecache.Header) == pagecache.Hit && w.Body.String() == "product 5 2"
	}, 5*time.Second, 10*time.Millisecond, "the refresh should see the route vars and replace the entry")
}

func TestCache_RevalidationPanicKeepsStaleEntry(t *testing.T) {
	clock := newClock()
	cache, _, buf := newCache(t, clock)
	var calls int32
	handler := cache.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			panic("render failed")
		}
		w.Header().Set("Cache-Control", "public, s-maxage=1, stale-while-revalidate=60")
		w.Write([]byte("ok"))
	}))

	get(handler, "/")
	clock.Advance(2 * time.Second)
	assert.Equal(t, pagecache.Stale, get(handler, "/").Header().Get(pagecache.Header))
	assert.Eventually(t, func() bool {
		return buf.HasEvent(pagecache.RevalidateFailedEvent.String())
	}, 5*time.Second, 10*time.Millisecond)
	cache.Close()

	w := get(handler, "/")
	assert.Equal(t, pagecache.Stale, w.Header().Get(pagecache.Header))
	assert.Equal(t, "ok", w.Body.String())
	assert.Contains(t, buf.String(), "render failed")
}

func TestCache_StaleRevalidationIsCollapsed(t *testing.T) {
	clock := newClock()
	cache, _, _ := newCache(t, clock)
	release := make(chan struct{})
	var calls int32
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-release
		}
		w.Header().Set("Cache-Control", "public, s-maxage=1, stale-while-revalidate=60")
		w.Write([]byte("ok"))
	})
	handler := cache.Middleware(origin)

	get(handler, "/")
	clock.Advance(2 * time.Second)
	for i := 0; i < 10; i++ {
		assert.Equal(t, pagecache.Stale, get(handler, "/").Header().Get(pagecache.Header))
	}
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, 5*time.Second, 10*time.Millisecond)
	close(release)
	// the remaining revalidations join the in flight one or find the page fresh
	assert.Eventually(t, func() bool {
		return get(handler, "/").Header().Get(pagecache.Header) == pagecache.Hit
	}, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(11))
}

func TestCache_Bypass(t *testing.T) {
	clock := newClock()
	cache, store, _ := newCache(t, clock)

	tests := []struct {
		name    string
		handler http.Handler
		method  string
	}{
		{"no cache control", &countingHandler{}, http.MethodGet},
		{"private", &countingHandler{cacheControl: "private, no-store"}, http.MethodGet},
		{"no-store", &countingHandler{cacheControl: "no-store"}, http.MethodGet},
		{"not found", &countingHandler{cacheControl: "public, s-maxage=60", status: http.StatusNotFound}, http.MethodGet},
		{"post", &countingHandler{cacheControl: "public, s-maxage=60"}, http.MethodPost},
		{"set cookie", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, s-maxage=60")
			http.SetCookie(w, &http.Cookie{Name: "a", Value: "b"})
		}), http.MethodGet},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			handler := cache.Middleware(test.handler)
			for i := 0; i < 2; i++ {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(test.method, "/bypass", nil))
				assert.Equal(t, pagecache.Bypass, w.Header().Get(pagecache.Header))
				assert.Empty(t, w.Header().Get("Age"))
			}
		})
	}
	assert.Zero(t, store.Len())
}

func TestCache_KeyIgnoresQueryOrder(t *testing.T) {
	cache, _, _ := newCache(t, newClock())
	origin := &countingHandler{cacheControl: "public, s-maxage=60"}
	handler := cache.Middleware(origin)

	assert.Equal(t, pagecache.Miss, get(handler, "/api/products?page=2&limit=12").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Hit, get(handler, "/api/products?limit=12&page=2").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Miss, get(handler, "/api/products?limit=12&page=3").Header().Get(pagecache.Header))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/api/products?page=2&limit=12", nil))
	assert.Equal(t, pagecache.Miss, w.Header().Get(pagecache.Header), "HEAD is cached separately")
}

func TestCache_RequestIDIsNotCached(t *testing.T) {
	cache, _, _ := newCache(t, newClock())
	handler := cache.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, s-maxage=60")
		w.Header().Set("X-Request-Id", "first")
		w.Write([]byte("ok"))
	}))
	get(handler, "/")
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "second")
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, pagecache.Hit, w.Header().Get(pagecache.Header))
	assert.Equal(t, "second", w.Header().Get("X-Request-Id"))
}

func TestCache_Purge(t *testing.T) {
	cache, store, buf := newCache(t, newClock())
	handler := cache.Middleware(&countingHandler{cacheControl: "public, s-maxage=60"})
	ctx := context.Background()

	for _, target := range []string{"/", "/products", "/products?page=2", "/products/1"} {
		get(handler, target)
	}
	require.Equal(t, 4, store.Len())

	require.NoError(t, cache.PurgePaths(ctx, "/products"))
	assert.Equal(t, 2, store.Len(), "all query variants of the path are purged")
	assert.Equal(t, pagecache.Hit, get(handler, "/products/1").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Miss, get(handler, "/products?page=2").Header().Get(pagecache.Header))

	require.NoError(t, cache.Purge(ctx))
	assert.Zero(t, store.Len())
	assert.True(t, buf.HasEvent(pagecache.PurgedEvent.String()))
}

func TestCache_Prerender(t *testing.T) {
	cache, _, _ := newCache(t, newClock())
	origin := http.NewServeMux()
	origin.Handle("/", &countingHandler{cacheControl: "public, s-maxage=60"})
	origin.Handle("/cart", &countingHandler{cacheControl: "private, no-store"})

	handler := cache.Middleware(origin)
	result, err := cache.Prerender(context.Background(), handler, "/", "/products/1", "/products?page=1", "/cart")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Cached)
	assert.Len(t, result.Paths, 4)

	assert.Equal(t, pagecache.Hit, get(handler, "/products/1").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Hit, get(handler, "/products?page=1").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Bypass, get(handler, "/cart").Header().Get(pagecache.Header))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cache.Prerender(ctx, handler, "/")
	assert.Error(t, err)
}

func TestCache_Metrics(t *testing.T) {
	clock := newClock()
	registry := prometheus.NewRegistry()
	logger := zerolog.Nop()
	cache := pagecache.New(pagecache.NewMemoryStore(10, clock.Now), registry, &logger, pagecache.Clock(clock.Now))
	defer cache.Close()
	handler := cache.Middleware(&countingHandler{cacheControl: "public, s-maxage=60"})

	get(handler, "/")
	get(handler, "/")
	get(handler, "/")

	// the counter is shared when another cache registers with the same registry
	other := pagecache.New(nil, registry, &logger)
	defer other.Close()
	get(other.Middleware(&countingHandler{}), "/")

	count, err := testutil.GatherAndCount(registry, "pagecache_results_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP pagecache_results_total Page cache lookups partitioned by result: HIT, STALE, MISS, BYPASS
# TYPE pagecache_results_total counter
pagecache_results_total{result="BYPASS"} 1
pagecache_results_total{result="HIT"} 2
pagecache_results_total{result="MISS"} 1
`), "pagecache_results_total"))
}

func TestCache_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	cache := pagecache.New(nil, prometheus.NewRegistry(), &logger)
	defer cache.Close()
	assert.False(t, cache.Enabled())
	handler := cache.Middleware(&countingHandler{cacheControl: "public, s-maxage=60"})
	assert.Equal(t, pagecache.Bypass, get(handler, "/").Header().Get(pagecache.Header))
	assert.Equal(t, pagecache.Bypass, get(handler, "/").Header().Get(pagecache.Header))
	assert.NoError(t, cache.Purge(context.Background()))
	assert.NoError(t, cache.PurgePaths(context.Background(), "/"))
}

func TestCache_CloseCancelsRevalidation(t *testing.T) {
	clock := newClock()
	logger := zerolog.Nop()
	cache := pagecache.New(pagecache.NewMemoryStore(10, clock.Now), prometheus.NewRegistry(), &logger, pagecache.Clock(clock.Now))
	var calls int32
	revalidating := make(chan struct{})
	handler := cache.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			close(revalidating)
			<-r.Context().Done()
		}
		w.Header().Set("Cache-Control", "public, s-maxage=1, stale-while-revalidate=60")
	}))
	get(handler, "/")
	clock.Advance(2 * time.Second)
	assert.Equal(t, pagecache.Stale, get(handler, "/").Header().Get(pagecache.Header))
	<-revalidating

	done := make(chan struct{})
	go func() {
		cache.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("*** Close should cancel the in flight revalidation")
	}
}

func TestMemoryStore(t *testing.T) {
	clock := newClock()
	store := pagecache.NewMemoryStore(2, clock.Now)
	ctx := context.Background()
	entry := pagecache.Entry{Status: http.StatusOK, StoredAt: clock.Now(), MaxAge: time.Minute, StaleWhileRevalidate: time.Minute}

	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/a", ""), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/b", ""), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/c", ""), entry))
	assert.Equal(t, 2, store.Len(), "the store is capped")

	found, err := store.Get(ctx, pagecache.Key("GET", "/c", ""))
	require.NoError(t, err)
	require.NotNil(t, found)

	clock.Advance(2 * time.Minute)
	found, err = store.Get(ctx, pagecache.Key("GET", "/c", ""))
	require.NoError(t, err)
	assert.Nil(t, found, "entries expire after max age + stale-while-revalidate")
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := newClock()
	store := pagecache.NewMemoryStore(2, clock.Now)
	ctx := context.Background()
	entry := pagecache.Entry{Status: http.StatusOK, StoredAt: clock.Now(), MaxAge: time.Minute}

	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/a", ""), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/b", ""), entry))
	found, err := store.Get(ctx, pagecache.Key("GET", "/a", ""))
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/c", ""), entry))

	for path, cached := range map[string]bool{"/a": true, "/b": false, "/c": true} {
		found, err := store.Get(ctx, pagecache.Key("GET", path, ""))
		require.NoError(t, err)
		assert.Equal(t, cached, found != nil, path)
	}

	require.NoError(t, store.Purge(ctx))
	assert.Zero(t, store.Len())
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/a", "page=2"), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/c", ""), entry))
	require.NoError(t, store.DeletePaths(ctx, "/a"))
	assert.Equal(t, 1, store.Len())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ECOSHOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ECOSHOP_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	store, err := pagecache.NewRedisStore(ctx, addr, "ecoshop-test:"+time.Now().Format("150405.000000")+":")
	require.NoError(t, err)
	defer store.Close()
	defer store.Purge(ctx)

	entry := pagecache.Entry{
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/html"}},
		Body:     []byte("<h1>home</h1>"),
		StoredAt: time.Now().UTC().Truncate(time.Millisecond),
		MaxAge:   time.Minute,
	}
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/", ""), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/products", "page=1"), entry))
	require.NoError(t, store.Set(ctx, pagecache.Key("GET", "/products/1", ""), entry))

	found, err := store.Get(ctx, pagecache.Key("GET", "/", ""))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.Body, found.Body)
	assert.True(t, entry.StoredAt.Equal(found.StoredAt))

	require.NoError(t, store.DeletePaths(ctx, "/products"))
	found, err = store.Get(ctx, pagecache.Key("GET", "/products", "page=1"))
	require.NoError(t, err)
	assert.Nil(t, found)
	found, err = store.Get(ctx, pagecache.Key("GET", "/products/1", ""))
	require.NoError(t, err)
	assert.NotNil(t, found)

	require.NoError(t, store.Purge(ctx))
	found, err = store.Get(ctx, pagecache.Key("GET", "/", ""))
	require.NoError(t, err)
	assert.Nil(t, found)
}
