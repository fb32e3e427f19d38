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
	"github.com/gorilla/mux"
	"github.com/oysterpack/ecoshop/internal/cart"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"net/http"
	"net/url"
	"strconv"
)

type homePage struct {
	Title                 string
	Categories            []store.Category
	Products              []store.Product
	FreeShippingThreshold store.Money
}

// homePage is rendered server side, i.e., the category grid and the newest products are queried concurrently
func (s *Server) homePage(w http.ResponseWriter, r *http.Request) {
	page := homePage{Title: "Accueil", FreeShippingThreshold: cart.FreeShippingThreshold}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		page.Categories, err = s.store.ListCategories(ctx)
		return
	})
	g.Go(func() error {
		products, err := s.store.ListProducts(ctx, store.ProductQuery{Page: 1, Limit: HomeProductCount})
		page.Products = products.Products
		return err
	})
	if err := g.Wait(); err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", s.publicCacheControl)
	s.render(w, r, http.StatusOK, "home", page)
}

type productsPage struct {
	Title      string
	Categories []store.Category
	Category   *store.Category
	Page       store.ProductPage
}

// PageURL links to another page of the same listing
func (p productsPage) PageURL(page int) string {
	query := url.Values{}
	if p.Category != nil {
		query.Set("category", strconv.FormatInt(p.Category.ID, 10))
	}
	query.Set("page", strconv.Itoa(page))
	return "/products?" + query.Encode()
}

// productsPage filters by category and paginates server side
func (s *Server) productsPage(w http.ResponseWriter, r *http.Request) {
	query := productQuery(r.URL.Query())
	query.Limit = store.DefaultProductLimit

	page := productsPage{Title: "Tous nos produits"}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		page.Categories, err = s.store.ListCategories(ctx)
		return
	})
	g.Go(func() (err error) {
		page.Page, err = s.store.ListProducts(ctx, query)
		return
	})
	if err := g.Wait(); err != nil {
		s.renderError(w, r, err)
		return
	}
	for i := range page.Categories {
		if page.Categories[i].ID == query.CategoryID {
			page.Category = &page.Categories[i]
			page.Title = page.Category.Name
		}
	}
	w.Header().Set("Cache-Control", s.publicCacheControl)
	s.render(w, r, http.StatusOK, "products", page)
}

type productPage struct {
	Title   string
	Product store.Product
	Related []store.Product
}

func (s *Server) productPage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		s.renderNotFound(w, r)
		return
	}
	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			s.renderNotFound(w, r)
			return
		}
		s.renderError(w, r, err)
		return
	}
	related, err := s.store.RelatedProducts(r.Context(), product, RelatedProductCount)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", s.publicCacheControl)
	s.render(w, r, http.StatusOK, "product", productPage{
		Title:   product.Name,
		Product: product,
		Related: related,
	})
}
