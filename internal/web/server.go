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

// Package web serves the storefront: server rendered pages, the cart, and the JSON API.
//
// Catalog pages and public API responses declare a shared cache policy via Cache-Control, which the page cache uses to
// incrementally revalidate them. Per visitor responses, i.e., the cart and orders, are never cached.
package web

import (
	"embed"
	"github.com/oysterpack/ecoshop/internal/cart"
	"github.com/oysterpack/ecoshop/internal/pagecache"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"html/template"
	"io/fs"
	"net/http"
	"time"
)

// web events
const (
	SeededEvent       fxapp.EventTypeID = "01J9RMZ9J92V81E5128Q6RW31F"
	SeedFailedEvent   fxapp.EventTypeID = "01JZG0X454YG4GFDEXZR4YJ2C4"
	OrderPlacedEvent  fxapp.EventTypeID = "01J9NGK80Y3ZH6DZJJXXX7CK5Y"
	RequestErrorEvent fxapp.EventTypeID = "01J1JX4WHRDD459GQ8H7QEZZS1"
	PurgeFailedEvent  fxapp.EventTypeID = "01JK31CZT5GEVQEZ2NTQSC0J4D"
)

// page sizes
const (
	HomeProductCount    = 12
	RelatedProductCount = 4
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Opts configures the Server
type Opts struct {
	// SeedSecret is the bearer token required by POST /api/seed. If blank, seeding via the API is disabled.
	SeedSecret string
	// CacheMaxAge is the s-maxage for public pages
	CacheMaxAge time.Duration
	// CacheStaleWhileRevalidate is the stale-while-revalidate window for public pages
	CacheStaleWhileRevalidate time.Duration
}

// Server implements the storefront HTTP endpoints
type Server struct {
	store *store.Store
	cache *pagecache.Cache
	carts *cart.Codec
	opts  Opts

	publicCacheControl string
	pages              map[string]*template.Template
	now                func() time.Time

	logSeeded       fxapp.LogEvent
	logSeedFailed   fxapp.LogEvent
	logOrderPlaced  fxapp.LogEvent
	logRequestError fxapp.LogEvent
	logPurgeFailed  fxapp.LogEvent
}

// NewServer parses the page templates
func NewServer(s *store.Store, cache *pagecache.Cache, carts *cart.Codec, opts Opts, logger *zerolog.Logger) (*Server, error) {
	if opts.CacheMaxAge <= 0 {
		return nil, errors.New("cache max age must be greater than 0")
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Server{
		store:              s,
		cache:              cache,
		carts:              carts,
		opts:               opts,
		publicCacheControl: pagecache.PublicCacheControl(opts.CacheMaxAge, opts.CacheStaleWhileRevalidate),
		pages:              pages,
		now:                time.Now,

		logSeeded:       SeededEvent.NewLogEvent(logger, zerolog.InfoLevel),
		logSeedFailed:   SeedFailedEvent.NewLogEvent(logger, zerolog.ErrorLevel),
		logOrderPlaced:  OrderPlacedEvent.NewLogEvent(logger, zerolog.InfoLevel),
		logRequestError: RequestErrorEvent.NewLogEvent(logger, zerolog.ErrorLevel),
		logPurgeFailed:  PurgeFailedEvent.NewLogEvent(logger, zerolog.WarnLevel),
	}, nil
}

// Endpoints lists the storefront routes
func (s *Server) Endpoints() []fxapp.HTTPEndpoint {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	staticFiles := http.StripPrefix("/static/", http.FileServer(http.FS(static)))

	return []fxapp.HTTPEndpoint{
		{Path: "/", Methods: []string{http.MethodGet, http.MethodHead}, Handler: s.homePage},
		{Path: "/products", Methods: []string{http.MethodGet, http.MethodHead}, Handler: s.productsPage},
		{Path: "/products/{id}", Methods: []string{http.MethodGet, http.MethodHead}, Handler: s.productPage},
		{Path: "/cart", Methods: []string{http.MethodGet}, Handler: s.cartPage},
		{Path: "/cart/add", Methods: []string{http.MethodPost}, Handler: s.addToCart},
		{Path: "/cart/update", Methods: []string{http.MethodPost}, Handler: s.updateCart},
		{Path: "/cart/remove", Methods: []string{http.MethodPost}, Handler: s.removeFromCart},
		{Path: "/cart/clear", Methods: []string{http.MethodPost}, Handler: s.clearCart},
		{Path: "/cart/checkout", Methods: []string{http.MethodPost}, Handler: s.checkout},
		{Path: "/static/{file}", Methods: []string{http.MethodGet, http.MethodHead}, Handler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", pagecache.PublicCacheControl(24*time.Hour, 0)+", max-age=86400")
			staticFiles.ServeHTTP(w, r)
		}},

		{Path: "/api/products", Methods: []string{http.MethodGet}, Handler: s.listProducts},
		{Path: "/api/categories", Methods: []string{http.MethodGet}, Handler: s.listCategories},
		{Path: "/api/orders", Methods: []string{http.MethodGet}, Handler: s.listOrders},
		{Path: "/api/orders", Methods: []string{http.MethodPost}, Handler: s.createOrder},
		{Path: "/api/seed", Methods: []string{http.MethodPost}, Handler: s.seed},
		{Path: "/api/cache/purge", Methods: []string{http.MethodPost}, Handler: s.purgeCache},
	}
}

// NotFound renders the 404 page
func (s *Server) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderNotFound(w, r)
	})
}
