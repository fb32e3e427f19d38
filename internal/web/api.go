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
	"crypto/subtle"
	"encoding/json"
	"github.com/oysterpack/ecoshop/internal/seed"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SeedTimeout bounds POST /api/seed
const SeedTimeout = 2 * time.Minute

// maxOrderBodySize caps POST /api/orders request bodies
const maxOrderBodySize = 1 << 20

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListProducts(r.Context(), productQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", s.publicCacheControl)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", s.publicCacheControl)
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.ListOrders(r.Context(), orderQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	var req store.NewOrder
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}
	if req.UserID <= 0 || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing fields"})
		return
	}
	order, err := s.placeOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// placeOrder creates the order and then purges the cached pages that display the ordered products' stock
func (s *Server) placeOrder(ctx context.Context, req store.NewOrder) (store.Order, error) {
	order, err := s.store.CreateOrder(ctx, req)
	if err != nil {
		return order, err
	}
	s.logOrderPlaced(orderPlaced(order), "order placed")

	paths := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		paths = append(paths, "/products/"+strconv.FormatInt(item.ProductID, 10))
	}
	if err := s.cache.PurgePaths(ctx, paths...); err != nil {
		s.logPurgeFailed(purgeFailed{paths, err}, "failed to purge ordered product pages")
	}
	return order, nil
}

type seedResponse struct {
	Message string `json:"message"`
	seed.Result
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if !s.authorized(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), SeedTimeout)
	defer cancel()
	result, err := s.Seed(ctx, seed.DefaultOpts())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Seed failed", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, seedResponse{Message: "Database seeded successfully", Result: result})
}

// Seed replaces the store data and then purges the page cache
func (s *Server) Seed(ctx context.Context, opts seed.Opts) (seed.Result, error) {
	start := time.Now()
	result, err := seed.Seed(ctx, s.store, opts)
	if err != nil {
		s.logSeedFailed(seedFailed{err}, "seeding failed")
		return result, err
	}
	s.logSeeded(seeded{result, time.Since(start)}, "store seeded")
	if err := s.cache.Purge(ctx); err != nil {
		s.logPurgeFailed(purgeFailed{nil, err}, "failed to purge the page cache")
	}
	return result, nil
}

func (s *Server) purgeCache(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if !s.authorized(w, r) {
		return
	}
	paths := r.URL.Query()["path"]
	var err error
	if len(paths) == 0 {
		err = s.cache.Purge(r.Context())
	} else {
		err = s.cache.PurgePaths(r.Context(), paths...)
	}
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, "cache purge failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purged": true, "paths": paths})
}

// authorized checks the bearer token against the seed secret.
// If no secret is configured, then the request fails with 500 since the endpoint is not usable.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.SeedSecret == "" {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Seed secret is not configured"})
		return false
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) ||
		subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, prefix)), []byte(s.opts.SeedSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return false
	}
	return true
}

type orderPlaced store.Order

func (o orderPlaced) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("id", o.ID).
		Int64("user", o.UserID).
		Int("items", len(o.Items)).
		Str("total", o.Total.String())
}

type seeded struct {
	result   seed.Result
	duration time.Duration
}

func (s seeded) MarshalZerologObject(e *zerolog.Event) {
	e.Int("categories", s.result.Categories).
		Int("products", s.result.Products).
		Int("users", s.result.Users).
		Int("orders", s.result.Orders).
		Dur("duration", s.duration)
}

type seedFailed struct {
	err error
}

func (s seedFailed) MarshalZerologObject(e *zerolog.Event) {
	e.Err(s.err)
}

type purgeFailed struct {
	paths []string
	err   error
}

func (p purgeFailed) MarshalZerologObject(e *zerolog.Event) {
	if len(p.paths) > 0 {
		e.Strs("paths", p.paths)
	}
	e.Err(p.err)
}
