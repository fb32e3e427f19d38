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

package seed_test

import (
	"context"
	"github.com/oysterpack/ecoshop/internal/seed"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "seed.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := seed.Seed(ctx, s, seed.Opts{Products: 200, Users: 50, Orders: 100, RandSeed: 42, Now: now})
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Categories: 8, Products: 200, Users: 50, Orders: 100}, result)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Categories: 8, Products: 200, Users: 50, Orders: 100}, counts)

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 8)
	assert.Equal(t, int64(1), categories[0].ID)
	assert.Equal(t, "Électronique", categories[0].Name)
	assert.Equal(t, "Jouets", categories[7].Name)

	page, err := s.ListProducts(ctx, store.ProductQuery{Limit: store.MaxLimit})
	require.NoError(t, err)
	for _, p := range page.Products {
		assert.True(t, p.Price >= 500 && p.Price <= 50000, "price out of range: %v", p.Price)
		assert.True(t, p.Stock >= 0 && p.Stock <= 100)
		assert.True(t, strings.HasPrefix(p.Image, "https://picsum.photos/seed/product"))
		assert.NotEmpty(t, p.Name)
		assert.False(t, p.CreatedAt.After(now))
		assert.True(t, p.CreatedAt.After(now.AddDate(-1, 0, -1)))
	}

	orders, err := s.ListOrders(ctx, store.OrderQuery{Limit: store.MaxLimit})
	require.NoError(t, err)
	assert.Equal(t, 100, orders.Total)
	for _, o := range orders.Orders {
		require.NotEmpty(t, o.Items)
		assert.True(t, len(o.Items) <= 5)
		assert.Equal(t, store.OrderTotal(o.Items), o.Total)
		assert.Contains(t, store.OrderStatuses, o.Status)
		seen := map[int64]bool{}
		for _, item := range o.Items {
			assert.False(t, seen[item.ProductID], "order items must reference distinct products")
			seen[item.ProductID] = true
			assert.True(t, item.Quantity >= 1 && item.Quantity <= 3)
			require.NotNil(t, item.Product)
			assert.Equal(t, item.Product.Price, item.Price)
		}
	}

	// reseeding replaces the data and restarts ids
	result, err = seed.Seed(ctx, s, seed.Opts{Products: 20, Users: 5, Orders: 3, RandSeed: 7})
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Categories: 8, Products: 20, Users: 5, Orders: 3}, result)
	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://picsum.photos/seed/product0/800/800", p.Image)
}

func TestSeed_IsReproducible(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := seed.Opts{Products: 10, Users: 3, Orders: 5, RandSeed: 99, Now: now}

	first, second := openStore(t), openStore(t)
	_, err := seed.Seed(ctx, first, opts)
	require.NoError(t, err)
	_, err = seed.Seed(ctx, second, opts)
	require.NoError(t, err)

	a, err := first.ListProducts(ctx, store.ProductQuery{})
	require.NoError(t, err)
	b, err := second.ListProducts(ctx, store.ProductQuery{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOpts_Validate(t *testing.T) {
	assert.NoError(t, seed.DefaultOpts().Validate())
	err := seed.Opts{Orders: -1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product")
	assert.Contains(t, err.Error(), "user")
	assert.Contains(t, err.Error(), "orders")
}
