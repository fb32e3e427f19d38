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

package loadtest

import (
	"fmt"
	"github.com/oysterpack/ecoshop/internal/pagecache"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// the journey picks products and categories from the seeded catalog ranges
const (
	MaxProductID  = 20
	MaxCategoryID = 8
)

// Response is what the checks inspect
type Response struct {
	Status int
	Header http.Header
}

// Check is a named assertion on a step response
type Check struct {
	Name string
	Pass func(Response) bool
}

// Step is a single request within the user journey
type Step struct {
	Name string
	// PageLoad steps render HTML pages and feed the page load latency
	PageLoad bool
	// Uncached steps are never served from the page cache and are left out of the cache hit rate
	Uncached bool
	Checks   []Check
	path     func(r *rand.Rand) string
}

// journey step names
const (
	StepHome             = "home"
	StepProducts         = "products"
	StepAPIProducts      = "api-products"
	StepAPICategories    = "api-categories"
	StepProductDetail    = "product-detail"
	StepProductsFiltered = "products-filtered"
	StepAPIOrders        = "api-orders"
)

func statusIs(codes ...int) func(Response) bool {
	return func(resp Response) bool {
		for _, code := range codes {
			if resp.Status == code {
				return true
			}
		}
		return false
	}
}

func cacheControlContains(directive string) func(Response) bool {
	return func(resp Response) bool {
		return strings.Contains(resp.Header.Get("Cache-Control"), directive)
	}
}

func fixedPath(path string) func(*rand.Rand) string {
	return func(*rand.Rand) string { return path }
}

// Journey is the browsing session every virtual visitor runs through, in order
func Journey() []Step {
	return []Step{
		{
			Name:     StepHome,
			PageLoad: true,
			Checks:   []Check{{"homepage status is 200", statusIs(http.StatusOK)}},
			path:     fixedPath("/"),
		},
		{
			Name:     StepProducts,
			PageLoad: true,
			Checks:   []Check{{"products page status is 200", statusIs(http.StatusOK)}},
			path:     fixedPath("/products"),
		},
		{
			Name: StepAPIProducts,
			Checks: []Check{
				{"api products status is 200", statusIs(http.StatusOK)},
				{"api products is publicly cacheable", cacheControlContains("public")},
				{"api products has cache status", func(resp Response) bool {
					return resp.Header.Get(pagecache.Header) != ""
				}},
			},
			path: fixedPath("/api/products?page=1&limit=12"),
		},
		{
			Name: StepAPICategories,
			Checks: []Check{
				{"api categories status is 200", statusIs(http.StatusOK)},
				{"api categories is publicly cacheable", cacheControlContains("public")},
			},
			path: fixedPath("/api/categories"),
		},
		{
			Name:     StepProductDetail,
			PageLoad: true,
			Checks:   []Check{{"product page status is 200 or 404", statusIs(http.StatusOK, http.StatusNotFound)}},
			path: func(r *rand.Rand) string {
				return fmt.Sprintf("/products/%d", r.Intn(MaxProductID)+1)
			},
		},
		{
			Name:   StepProductsFiltered,
			Checks: []Check{{"filtered products status is 200", statusIs(http.StatusOK)}},
			path: func(r *rand.Rand) string {
				return fmt.Sprintf("/products?category=%d", r.Intn(MaxCategoryID)+1)
			},
		},
		{
			Name:     StepAPIOrders,
			Uncached: true,
			Checks: []Check{
				{"api orders is not stored", cacheControlContains("no-store")},
				{"api orders is never a cache hit", func(resp Response) bool {
					return resp.Header.Get(pagecache.Header) != pagecache.Hit
				}},
			},
			path: fixedPath("/api/orders"),
		},
	}
}

// StepName maps a request URL back to its journey step. Blank is returned for URLs that are not part of the journey.
func StepName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch path := u.Path; {
	case path == "" || path == "/":
		return StepHome
	case path == "/products":
		if u.Query().Get("category") != "" {
			return StepProductsFiltered
		}
		return StepProducts
	case strings.HasPrefix(path, "/products/"):
		return StepProductDetail
	case path == "/api/products":
		return StepAPIProducts
	case path == "/api/categories":
		return StepAPICategories
	case path == "/api/orders":
		return StepAPIOrders
	}
	return ""
}

// journeyTargeter cycles through the journey steps. Each full cycle is 1 journey iteration.
type journeyTargeter struct {
	sync.Mutex
	baseURL string
	steps   []Step
	rand    *rand.Rand
	next    int
}

func newJourneyTargeter(baseURL string, steps []Step, seed int64) *journeyTargeter {
	return &journeyTargeter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		steps:   steps,
		rand:    rand.New(rand.NewSource(seed)),
	}
}

func (t *journeyTargeter) Targeter() vegeta.Targeter {
	return func(target *vegeta.Target) error {
		if target == nil {
			return vegeta.ErrNilTarget
		}
		t.Lock()
		step := t.steps[t.next]
		t.next = (t.next + 1) % len(t.steps)
		path := step.path(t.rand)
		t.Unlock()

		target.Method = http.MethodGet
		target.URL = t.baseURL + path
		target.Header = http.Header{"Accept-Encoding": []string{"identity"}}
		return nil
	}
}
