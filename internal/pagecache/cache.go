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

// Package pagecache implements a shared HTTP response cache that honors the handler's Cache-Control header, i.e., pages are
// incrementally revalidated: a cached page is served until s-maxage expires, then served stale while a single background
// request refreshes it, for up to stale-while-revalidate.
package pagecache

import (
	"bytes"
	"context"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Header reports how the response was served
const Header = "X-Cache"

// X-Cache values
const (
	Hit    = "HIT"
	Stale  = "STALE"
	Miss   = "MISS"
	Bypass = "BYPASS"
)

// page cache events
const (
	StoreErrorEvent       fxapp.EventTypeID = "01JNTH82F7AG3BCKKDJWBHP1G2"
	RevalidateFailedEvent fxapp.EventTypeID = "01JVGS9ZM5H3BV4H15G5E4G7X0"
	PurgedEvent           fxapp.EventTypeID = "01JVA35RJFJ2XBAHW0GQNMF2KD"
	PrerenderedEvent      fxapp.EventTypeID = "01J01CYFW6VZSKDENC8SP3804G"
)

// RevalidateTimeout bounds background revalidation requests
const RevalidateTimeout = 30 * time.Second

// headers that are never stored
var unstoredHeaders = map[string]bool{
	"Set-Cookie":          true,
	"Connection":          true,
	"Transfer-Encoding":   true,
	"Age":                 true,
	Header:                true,
	fxapp.RequestIDHeader: true,
}

// Cache is the page cache
type Cache struct {
	store   Store
	now     func() time.Time
	results *prometheus.CounterVec

	logStoreError       fxapp.LogEvent
	logRevalidateFailed fxapp.LogEvent
	logPurged           fxapp.LogEvent

	revalidations singleflight.Group
	pending       sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Option configures the Cache
type Option func(*Cache)

// Clock overrides time.Now
func Clock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a new Cache backed by the store. The cache result counter is registered with the registerer.
// If the store is nil, then caching is disabled, i.e., every request bypasses the cache.
func New(store Store, registerer prometheus.Registerer, logger *zerolog.Logger, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		store: store,
		now:   time.Now,
		results: fxapp.RegisterCounterVec(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagecache_results_total",
				Help: "Page cache lookups partitioned by result: HIT, STALE, MISS, BYPASS",
			},
			[]string{"result"},
		)),
		logStoreError:       StoreErrorEvent.NewLogEvent(logger, zerolog.WarnLevel),
		logRevalidateFailed: RevalidateFailedEvent.NewLogEvent(logger, zerolog.WarnLevel),
		logPurged:           PurgedEvent.NewLogEvent(logger, zerolog.InfoLevel),
		ctx:                 ctx,
		cancel:              cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled returns false if the cache has no store
func (c *Cache) Enabled() bool {
	return c.store != nil
}

// Close cancels background revalidations and waits for them to finish
func (c *Cache) Close() {
	c.cancel()
	c.pending.Wait()
}

// RequestKey builds the cache key for the request
func RequestKey(r *http.Request) string {
	// Encode sorts by key
	return Key(r.Method, r.URL.Path, r.URL.Query().Encode())
}

// Middleware serves GET and HEAD requests from the cache.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.store == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			w.Header().Set(Header, Bypass)
			c.results.WithLabelValues(Bypass).Inc()
			next.ServeHTTP(w, r)
			return
		}

		key := RequestKey(r)
		now := c.now()
		entry, err := c.store.Get(r.Context(), key)
		if err != nil {
			c.logStoreError(storeError{key, "get", err}, "page cache lookup failed")
		}
		if entry != nil && entry.Servable(now) {
			result := Hit
			if !entry.Fresh(now) {
				result = Stale
				c.revalidate(key, next, r)
			}
			c.results.WithLabelValues(result).Inc()
			c.write(w, r, *entry, result, now)
			return
		}

		buf := newResponseBuffer()
		next.ServeHTTP(buf, r)
		result := Bypass
		if entry, ok := c.entry(buf, now); ok {
			result = Miss
			if err := c.store.Set(r.Context(), key, entry); err != nil {
				c.logStoreError(storeError{key, "set", err}, "page cache store failed")
			}
		}
		c.results.WithLabelValues(result).Inc()
		buf.writeTo(w, result)
	})
}

// entry returns false if the response is not cacheable
func (c *Cache) entry(buf *responseBuffer, now time.Time) (Entry, bool) {
	if buf.status == 0 {
		buf.status = http.StatusOK
	}
	if buf.status != http.StatusOK || len(buf.header.Values("Set-Cookie")) > 0 {
		return Entry{}, false
	}
	policy := ParseCacheControl(buf.header.Get("Cache-Control"))
	if !policy.Cacheable() {
		return Entry{}, false
	}
	header := make(http.Header, len(buf.header))
	for name, values := range buf.header {
		if !unstoredHeaders[name] {
			header[name] = append([]string(nil), values...)
		}
	}
	return Entry{
		Status:               buf.status,
		Header:               header,
		Body:                 buf.body.Bytes(),
		StoredAt:             now,
		MaxAge:               policy.TTL(),
		StaleWhileRevalidate: policy.StaleWhileRevalidate,
	}, true
}

func (c *Cache) write(w http.ResponseWriter, r *http.Request, entry Entry, result string, now time.Time) {
	header := w.Header()
	for name, values := range entry.Header {
		header[name] = append([]string(nil), values...)
	}
	header.Set(Header, result)
	header.Set("Age", strconv.Itoa(int(entry.Age(now)/time.Second)))
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	w.WriteHeader(entry.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}
}

// revalidate refreshes the entry in the background. Concurrent revalidations for the same key are collapsed into one.
//
// The request context values, e.g., route variables, are carried over, but the refresh outlives the request. It is
// cancelled when the cache is closed.
func (c *Cache) revalidate(key string, next http.Handler, r *http.Request) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	req := r.Clone(context.WithoutCancel(r.Context()))
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		_, _, _ = c.revalidations.Do(key, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(req.Context(), RevalidateTimeout)
			defer cancel()
			stop := context.AfterFunc(c.ctx, cancel)
			defer stop()

			buf, recovered := serveRecovered(next, req.WithContext(ctx))
			if recovered != nil {
				// the stale entry is kept until it expires
				c.logRevalidateFailed(revalidation{key, http.StatusInternalServerError, recovered}, "page revalidation panicked")
				return nil, nil
			}
			entry, ok := c.entry(buf, c.now())
			if !ok {
				// the page is no longer cacheable, e.g., it was deleted
				c.logRevalidateFailed(revalidation{key, buf.status, nil}, "page revalidation did not produce a cacheable response")
				return nil, c.store.DeletePaths(ctx, req.URL.Path)
			}
			if err := c.store.Set(ctx, key, entry); err != nil {
				c.logStoreError(storeError{key, "set", err}, "page cache store failed")
				return nil, err
			}
			return nil, nil
		})
	}()
}

func serveRecovered(next http.Handler, r *http.Request) (buf *responseBuffer, recovered interface{}) {
	buf = newResponseBuffer()
	defer func() {
		recovered = recover()
	}()
	next.ServeHTTP(buf, r)
	return buf, nil
}

// Purge deletes all cached pages
func (c *Cache) Purge(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Purge(ctx); err != nil {
		return err
	}
	c.logPurged(purged(nil), "page cache purged")
	return nil
}

// PurgePaths deletes the cached pages for the URL paths, regardless of the query string
func (c *Cache) PurgePaths(ctx context.Context, paths ...string) error {
	if c.store == nil || len(paths) == 0 {
		return nil
	}
	if err := c.store.DeletePaths(ctx, paths...); err != nil {
		return err
	}
	c.logPurged(purged(paths), "page cache paths purged")
	return nil
}

// responseBuffer records the response
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (b *responseBuffer) Header() http.Header {
	return b.header
}

func (b *responseBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *responseBuffer) writeTo(w http.ResponseWriter, result string) {
	header := w.Header()
	for name, values := range b.header {
		header[name] = values
	}
	header.Set(Header, result)
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}

type storeError struct {
	key string
	op  string
	err error
}

func (e storeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("key", e.key).Str("op", e.op).Err(e.err)
}

type revalidation struct {
	key    string
	status int
	panic  interface{}
}

func (r revalidation) MarshalZerologObject(e *zerolog.Event) {
	e.Str("key", r.key).Int("status", r.status)
	if r.panic != nil {
		e.Interface("panic", r.panic)
	}
}

type purged []string

func (p purged) MarshalZerologObject(e *zerolog.Event) {
	if len(p) == 0 {
		e.Bool("all", true)
		return
	}
	e.Strs("paths", p)
}

// escapePath escapes glob meta characters for redis MATCH patterns
func escapePath(path string) string {
	var b bytes.Buffer
	for _, r := range path {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
