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

package pagecache

import (
	"context"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"net/http"
	"time"
)

// PrerenderConcurrency is the max number of pages rendered concurrently
const PrerenderConcurrency = 4

// PrerenderResult reports the outcome of a Prerender run
type PrerenderResult struct {
	Paths    []string
	Cached   int
	Duration time.Duration
}

func (r PrerenderResult) MarshalZerologObject(e *zerolog.Event) {
	e.Int("paths", len(r.Paths)).
		Int("cached", r.Cached).
		Dur("duration", r.Duration)
}

// Prerender warms the cache by requesting the pages in process through the handler, which must serve requests through the
// cache Middleware, e.g., the app's HTTP router. Pages that are already cached and fresh are left as is.
//
// An error is returned if a path is not a valid URL or the context is done.
func (c *Cache) Prerender(ctx context.Context, handler http.Handler, paths ...string) (PrerenderResult, error) {
	start := time.Now()
	result := PrerenderResult{Paths: paths}
	cached := make([]bool, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(PrerenderConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
			if err != nil {
				return errors.Wrapf(err, "invalid prerender path: %q", path)
			}
			buf := newResponseBuffer()
			handler.ServeHTTP(buf, req)
			switch buf.header.Get(Header) {
			case Miss, Hit, Stale:
				cached[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	for _, ok := range cached {
		if ok {
			result.Cached++
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}
