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

package web

import (
	"context"
	"github.com/oysterpack/ecoshop/internal/cart"
	"github.com/oysterpack/ecoshop/internal/config"
	"github.com/oysterpack/ecoshop/internal/pagecache"
	"github.com/oysterpack/ecoshop/internal/seed"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"
)

// PrerenderTimeout bounds the startup prerendering
const PrerenderTimeout = time.Minute

var prerenderTimeout = PrerenderTimeout

// Module registers the storefront endpoints with the app's HTTP server.
//
// When the app starts:
//	1. if enabled via config, the store is seeded if it has no products
//	2. the home page, the product listing, and the most popular product pages are rendered into the page cache. The app
//	   reports ready once prerendering is done.
var Module = fx.Options(
	fx.Provide(
		fx.Annotated{Name: "http.Server", Target: newHTTPServer},
		newCartCodec,
		newServer,
		endpoints,
		notFoundHandler,
	),
	fx.Invoke(seedOnStart, prerenderOnStart),
)

func newHTTPServer(cfg config.Config) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       time.Minute,
		MaxHeaderBytes:    8 << 10,
	}
}

func newCartCodec(cfg config.Config) (*cart.Codec, error) {
	return cart.NewCodec(cfg.CartKey)
}

func newServer(cfg config.Config, s *store.Store, cache *pagecache.Cache, carts *cart.Codec, logger *zerolog.Logger) (*Server, error) {
	return NewServer(s, cache, carts, Opts{
		SeedSecret:                cfg.SeedSecret,
		CacheMaxAge:               cfg.CacheMaxAge,
		CacheStaleWhileRevalidate: cfg.CacheStaleWhileRevalidate,
	}, logger)
}

func endpoints(cfg config.Config, server *Server) fxapp.HTTPHandlers {
	handlers := fxapp.HTTPHandlers{Endpoints: server.Endpoints()}
	if cfg.Profiling {
		handlers.Endpoints = append(handlers.Endpoints, profilingEndpoints()...)
	}
	return handlers
}

// profilingEndpoints mounts net/http/pprof. Named profiles, e.g., heap, are served by the index handler.
func profilingEndpoints() []fxapp.HTTPEndpoint {
	return []fxapp.HTTPEndpoint{
		{Path: "/debug/pprof/", Handler: pprof.Index},
		{Path: "/debug/pprof/cmdline", Handler: pprof.Cmdline},
		{Path: "/debug/pprof/profile", Handler: pprof.Profile},
		{Path: "/debug/pprof/symbol", Handler: pprof.Symbol},
		{Path: "/debug/pprof/trace", Handler: pprof.Trace},
		{Path: "/debug/pprof/{profile}", Handler: pprof.Index},
	}
}

func notFoundHandler(server *Server) *fxapp.NotFoundHandler {
	return &fxapp.NotFoundHandler{Handler: server.NotFound()}
}

func seedOnStart(cfg config.Config, s *store.Store, server *Server, lc fx.Lifecycle) {
	if !cfg.SeedOnStart {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			counts, err := s.Counts(ctx)
			if err != nil {
				return err
			}
			if counts.Products > 0 {
				return nil
			}
			_, err = server.Seed(ctx, seed.DefaultOpts())
			return err
		},
	})
}

// prerenderOnStart warms the page cache in the background. The app is not ready until prerendering completes.
func prerenderOnStart(
	cfg config.Config,
	s *store.Store,
	cache *pagecache.Cache,
	router fxapp.HTTPRouter,
	readiness fxapp.ReadinessWaitGroup,
	lc fx.Lifecycle,
	logger *zerolog.Logger,
) {
	if !cache.Enabled() || router.Router == nil {
		return
	}
	readiness.Inc()
	logPrerendered := pagecache.PrerenderedEvent.NewLogEvent(logger, zerolog.InfoLevel)
	logFailed := pagecache.PrerenderedEvent.NewLogEvent(logger, zerolog.WarnLevel)

	var (
		cancel context.CancelFunc = func() {}
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the timeout starts when the app starts
			var ctx context.Context
			ctx, cancel = context.WithTimeout(context.Background(), prerenderTimeout)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer readiness.Done()
				paths, err := prerenderPaths(ctx, s, cfg.PrerenderCount)
				if err != nil {
					logFailed(prerenderFailed{err}, "failed to prerender pages")
					return
				}
				result, err := cache.Prerender(ctx, router.Router, paths...)
				if err != nil {
					logFailed(prerenderFailed{err}, "failed to prerender pages")
					return
				}
				logPrerendered(result, "pages prerendered")
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

// prerenderPaths are the home page, the first product listing page, and the top n product pages by units sold
func prerenderPaths(ctx context.Context, s *store.Store, n int) ([]string, error) {
	ids, err := s.PopularProductIDs(ctx, n)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(ids)+2)
	paths = append(paths, "/", "/products")
	for _, id := range ids {
		paths = append(paths, "/products/"+strconv.FormatInt(id, 10))
	}
	return paths, nil
}

type prerenderFailed struct {
	err error
}

func (p prerenderFailed) MarshalZerologObject(e *zerolog.Event) {
	e.Err(p.err)
}
