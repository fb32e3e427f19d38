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

// Package seed fills the store with a demo catalog, users, and order history.
package seed

import (
	"context"
	"fmt"
	"github.com/Pallinder/go-randomdata"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Store is the subset of the store used for seeding
type Store interface {
	Reset(ctx context.Context) error
	InsertCategories(ctx context.Context, categories []store.Category) ([]store.Category, error)
	InsertProducts(ctx context.Context, products []store.Product) ([]store.Product, error)
	InsertUsers(ctx context.Context, users []store.User) ([]store.User, error)
	InsertSeedOrders(ctx context.Context, orders []store.Order) ([]store.Order, error)
}

// Categories is the fixed category catalog
var Categories = []store.Category{
	{Name: "Électronique", Description: "Smartphones, tablettes, accessoires et gadgets électroniques", Image: "https://picsum.photos/seed/electronics/800/800"},
	{Name: "Vêtements", Description: "Mode homme et femme, vêtements tendance", Image: "https://picsum.photos/seed/clothing/800/800"},
	{Name: "Maison & Jardin", Description: "Décoration, mobilier et accessoires pour la maison", Image: "https://picsum.photos/seed/home/800/800"},
	{Name: "Sports", Description: "Équipements sportifs et accessoires de fitness", Image: "https://picsum.photos/seed/sports/800/800"},
	{Name: "Livres", Description: "Romans, essais, bandes dessinées et manuels", Image: "https://picsum.photos/seed/books/800/800"},
	{Name: "Beauté", Description: "Cosmétiques, soins et produits de beauté", Image: "https://picsum.photos/seed/beauty/800/800"},
	{Name: "Alimentation", Description: "Produits gourmands, épicerie fine et boissons", Image: "https://picsum.photos/seed/food/800/800"},
	{Name: "Jouets", Description: "Jeux, jouets et loisirs créatifs pour tous les âges", Image: "https://picsum.photos/seed/toys/800/800"},
}

// Opts controls the generated volume. The zero value is not valid, use DefaultOpts.
type Opts struct {
	Products int
	Users    int
	Orders   int
	// RandSeed makes the generated data reproducible. 0 means seed from the clock.
	RandSeed int64
	// Now is the reference time, i.e., data is created within the year before Now. Zero means time.Now().
	Now time.Time
}

// DefaultOpts generates 200 products, 50 users, and 100 orders
func DefaultOpts() Opts {
	return Opts{
		Products: 200,
		Users:    50,
		Orders:   100,
	}
}

// Validate aggregates all option errors
func (o Opts) Validate() error {
	var err error
	if o.Products < 1 {
		err = multierr.Append(err, errors.New("at least 1 product is required"))
	}
	if o.Users < 1 {
		err = multierr.Append(err, errors.New("at least 1 user is required"))
	}
	if o.Orders < 0 {
		err = multierr.Append(err, errors.New("orders must not be negative"))
	}
	return err
}

// Result reports how many rows were created per table
type Result struct {
	Categories int `json:"categories"`
	Products   int `json:"products"`
	Users      int `json:"users"`
	Orders     int `json:"orders"`
}

// go-randomdata uses a package level random source
var randomdataLock sync.Mutex

// Seed resets the store and then creates the fixed categories, followed by random products, users, and orders.
// Seeded orders reference existing users and products, but do not touch stock.
func Seed(ctx context.Context, s Store, opts Opts) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if opts.RandSeed == 0 {
		opts.RandSeed = time.Now().UnixNano()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	randomdataLock.Lock()
	defer randomdataLock.Unlock()
	gen := newGenerator(opts)

	if err := s.Reset(ctx); err != nil {
		return Result{}, errors.Wrap(err, "failed to reset the store")
	}

	categories, err := s.InsertCategories(ctx, Categories)
	if err != nil {
		return Result{}, err
	}
	products, err := s.InsertProducts(ctx, gen.products(opts.Products, categories))
	if err != nil {
		return Result{}, err
	}
	users, err := s.InsertUsers(ctx, gen.users(opts.Users))
	if err != nil {
		return Result{}, err
	}
	orders, err := s.InsertSeedOrders(ctx, gen.orders(opts.Orders, users, products))
	if err != nil {
		return Result{}, err
	}

	return Result{
		Categories: len(categories),
		Products:   len(products),
		Users:      len(users),
		Orders:     len(orders),
	}, nil
}

type generator struct {
	rand *rand.Rand
	now  time.Time
}

func newGenerator(opts Opts) *generator {
	r := rand.New(rand.NewSource(opts.RandSeed))
	randomdata.CustomRand(r)
	return &generator{rand: r, now: opts.Now}
}

// between returns a random int in [min, max]
func (g *generator) between(min, max int) int {
	return min + g.rand.Intn(max-min+1)
}

// pastYear returns a random time within the year before now
func (g *generator) pastYear() time.Time {
	year := int64(365 * 24 * time.Hour)
	return g.now.Add(-time.Duration(g.rand.Int63n(year))).UTC().Truncate(time.Millisecond)
}

func (g *generator) products(n int, categories []store.Category) []store.Product {
	products := make([]store.Product, n)
	for i := range products {
		category := categories[g.rand.Intn(len(categories))]
		products[i] = store.Product{
			Name:        fmt.Sprintf("%s %s", capitalize(randomdata.Adjective()), capitalize(randomdata.Noun())),
			Description: randomdata.Paragraph() + " " + randomdata.Paragraph(),
			// 5.00 - 500.00
			Price:      store.Money(g.between(500, 50000)),
			Image:      fmt.Sprintf("https://picsum.photos/seed/product%d/800/800", i),
			Stock:      g.between(0, 100),
			CategoryID: category.ID,
			CreatedAt:  g.pastYear(),
		}
	}
	return products
}

func (g *generator) users(n int) []store.User {
	users := make([]store.User, n)
	for i := range users {
		first := randomdata.FirstName(randomdata.RandomGender)
		last := randomdata.LastName()
		users[i] = store.User{
			// the index keeps emails unique
			Email:     fmt.Sprintf("%s.%s%d@%s", emailPart(first), emailPart(last), i, emailDomain(randomdata.Email())),
			Name:      first + " " + last,
			CreatedAt: g.pastYear(),
		}
	}
	return users
}

func (g *generator) orders(n int, users []store.User, products []store.Product) []store.Order {
	orders := make([]store.Order, n)
	for i := range orders {
		user := users[g.rand.Intn(len(users))]
		count := g.between(1, 5)
		if count > len(products) {
			count = len(products)
		}
		items := make([]store.OrderItem, 0, count)
		for _, j := range g.rand.Perm(len(products))[:count] {
			items = append(items, store.OrderItem{
				ProductID: products[j].ID,
				Quantity:  g.between(1, 3),
				Price:     products[j].Price,
			})
		}
		orders[i] = store.Order{
			UserID:    user.ID,
			Total:     store.OrderTotal(items),
			Status:    store.OrderStatuses[g.rand.Intn(len(store.OrderStatuses))],
			CreatedAt: g.pastYear(),
			Items:     items,
		}
	}
	return orders
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

func emailPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "example.com"
}
