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
	"github.com/oysterpack/ecoshop/internal/cart"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// cart page notices, passed via the "msg" query param on redirects
var cartMessages = map[string]string{
	"full":    "Votre panier est plein.",
	"unknown": "Ce produit n'existe plus.",
}

const privateCacheControl = "private, no-store"

type cartPage struct {
	Title   string
	Cart    cart.Cart
	Items   []cart.Item
	Message string
}

// loadCart reads the cart cookie and refreshes the lines from the catalog with a single query.
// If lines were dropped, then the cookie is rewritten.
func (s *Server) loadCart(w http.ResponseWriter, r *http.Request) (cart.Cart, error) {
	c := s.carts.Load(r)
	if c.IsEmpty() {
		return c, nil
	}
	products, err := s.store.GetProducts(r.Context(), c.ProductIDs())
	if err != nil {
		return c, err
	}
	count := len(c.Items)
	c.Refresh(products)
	if len(c.Items) != count {
		if err := s.carts.Save(w, c); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *Server) cartPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", privateCacheControl)
	c, err := s.loadCart(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderCart(w, r, http.StatusOK, c, cartMessages[r.URL.Query().Get("msg")])
}

func (s *Server) renderCart(w http.ResponseWriter, r *http.Request, status int, c cart.Cart, message string) {
	w.Header().Set("Cache-Control", privateCacheControl)
	s.render(w, r, status, "cart", cartPage{
		Title:   "Panier",
		Cart:    c,
		Items:   c.Sorted(),
		Message: message,
	})
}

func formInt64(r *http.Request, name string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue(name)), 10, 64)
	if err != nil {
		return 0
	}
	return i
}

func redirectToCart(w http.ResponseWriter, r *http.Request, msg string) {
	target := "/cart"
	if msg != "" {
		target += "?msg=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// addToCart redirects back to the product page the form was posted from, otherwise to the cart
func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", privateCacheControl)
	product, err := s.store.GetProduct(r.Context(), formInt64(r, "productId"))
	if err != nil {
		if errors.Cause(err) == store.ErrNotFound {
			redirectToCart(w, r, "unknown")
			return
		}
		s.renderError(w, r, err)
		return
	}
	c := s.carts.Load(r)
	if !c.Add(product, s.now()) {
		redirectToCart(w, r, "full")
		return
	}
	if err := s.carts.Save(w, c); err != nil {
		s.renderError(w, r, err)
		return
	}
	if referer, err := url.Parse(r.Referer()); err == nil && strings.HasPrefix(referer.Path, "/products/") {
		http.Redirect(w, r, referer.Path, http.StatusSeeOther)
		return
	}
	redirectToCart(w, r, "")
}

func (s *Server) updateCart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", privateCacheControl)
	quantity, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	if err != nil {
		redirectToCart(w, r, "")
		return
	}
	s.mutateCart(w, r, func(c *cart.Cart) {
		c.UpdateQuantity(formInt64(r, "productId"), quantity)
	})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	s.mutateCart(w, r, func(c *cart.Cart) {
		c.Remove(formInt64(r, "productId"))
	})
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mutateCart(w, r, (*cart.Cart).Clear)
}

func (s *Server) mutateCart(w http.ResponseWriter, r *http.Request, mutate func(c *cart.Cart)) {
	w.Header().Set("Cache-Control", privateCacheControl)
	c := s.carts.Load(r)
	mutate(&c)
	if err := s.carts.Save(w, c); err != nil {
		s.renderError(w, r, err)
		return
	}
	redirectToCart(w, r, "")
}

type orderPage struct {
	Title string
	Order store.Order
}

// checkout places the order through the same path as POST /api/orders. On success, the cart is cleared.
func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", privateCacheControl)
	c, err := s.loadCart(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if c.IsEmpty() {
		redirectToCart(w, r, "")
		return
	}
	userID := formInt64(r, "userId")
	if userID <= 0 {
		s.renderCart(w, r, http.StatusBadRequest, c, "Veuillez saisir votre numéro client.")
		return
	}

	order, err := s.placeOrder(r.Context(), c.NewOrder(userID))
	if err != nil {
		switch status := errorStatus(err); status {
		case http.StatusBadRequest, http.StatusConflict:
			s.renderCart(w, r, status, c, checkoutMessage(err))
		default:
			s.renderError(w, r, err)
		}
		return
	}

	c.Clear()
	if err := s.carts.Save(w, c); err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "order", orderPage{Title: "Commande confirmée", Order: order})
}

func checkoutMessage(err error) string {
	switch errors.Cause(err) {
	case store.ErrUnknownUser:
		return "Numéro client inconnu."
	case store.ErrUnknownProduct:
		return "Un produit de votre panier n'existe plus."
	case store.ErrInsufficientStock:
		return "Stock insuffisant pour un produit de votre panier."
	default:
		return "Commande invalide."
	}
}
