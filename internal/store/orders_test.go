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

package store_test

import (
	"context"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"testing"
	"time"
)

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := loadFixture(t, s)

	// D: price 40.00, stock 3 | E: price 50.00, stock 4
	order, err := s.CreateOrder(ctx, store.NewOrder{
		UserID: f.users[0].ID,
		Items: []store.NewOrderItem{
			{ProductID: f.products[3].ID, Quantity: 2},
			{ProductID: f.products[4].ID, Quantity: 1},
			{ProductID: f.products[3].ID, Quantity: 1}, // merged with the first line
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, store.StatusPending, order.Status)
	assert.Equal(t, store.Money(3*4000+5000), order.Total)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, store.Money(4000), order.Items[0].Price, "the unit price is taken from the catalog")
	assert.Equal(t, order.ID, order.Items[0].OrderID)
	require.NotNil(t, order.User)
	assert.Equal(t, "Alice", order.User.Name)

	// stock is decremented
	d, err := s.GetProduct(ctx, f.products[3].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Stock)
	e, err := s.GetProduct(ctx, f.products[4].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Stock)
}

func TestCreateOrder_Errors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := loadFixture(t, s)

	cases := []struct {
		name  string
		order store.NewOrder
		err   error
	}{
		{"missing user", store.NewOrder{Items: []store.NewOrderItem{{ProductID: f.products[1].ID, Quantity: 1}}}, store.ErrInvalidOrder},
		{"no items", store.NewOrder{UserID: f.users[0].ID}, store.ErrInvalidOrder},
		{"zero quantity", store.NewOrder{UserID: f.users[0].ID, Items: []store.NewOrderItem{{ProductID: f.products[1].ID}}}, store.ErrInvalidOrder},
		{"negative quantity", store.NewOrder{UserID: f.users[0].ID, Items: []store.NewOrderItem{{ProductID: f.products[1].ID, Quantity: -1}}}, store.ErrInvalidOrder},
		{"unknown user", store.NewOrder{UserID: 999, Items: []store.NewOrderItem{{ProductID: f.products[1].ID, Quantity: 1}}}, store.ErrUnknownUser},
		{"unknown product", store.NewOrder{UserID: f.users[0].ID, Items: []store.NewOrderItem{{ProductID: 999, Quantity: 1}}}, store.ErrUnknownProduct},
		{"out of stock", store.NewOrder{UserID: f.users[0].ID, Items: []store.NewOrderItem{{ProductID: f.products[0].ID, Quantity: 1}}}, store.ErrInsufficientStock},
		{"not enough stock", store.NewOrder{UserID: f.users[0].ID, Items: []store.NewOrderItem{{ProductID: f.products[2].ID, Quantity: 3}}}, store.ErrInsufficientStock},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := s.CreateOrder(ctx, c.order)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.err), "unexpected error: %v", err)
		})
	}

	t.Run("the transaction is rolled back", func(t *testing.T) {
		// the first line is valid, the second is not
		_, err := s.CreateOrder(ctx, store.NewOrder{
			UserID: f.users[0].ID,
			Items: []store.NewOrderItem{
				{ProductID: f.products[4].ID, Quantity: 1},
				{ProductID: f.products[0].ID, Quantity: 1},
			},
		})
		require.True(t, errors.Is(err, store.ErrInsufficientStock))
		e, err := s.GetProduct(ctx, f.products[4].ID)
		require.NoError(t, err)
		assert.Equal(t, 4, e.Stock)

		counts, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Zero(t, counts.Orders)
	})
}

func TestCreateOrder_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := loadFixture(t, s)
	const orders = 20
	products, err := s.InsertProducts(ctx, []store.Product{{
		Name:       "F",
		Price:      store.Money(500),
		Stock:      orders,
		CategoryID: f.categories[0].ID,
		CreatedAt:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	product := products[0]

	var group errgroup.Group
	for i := 0; i < orders; i++ {
		user := f.users[i%2].ID
		group.Go(func() error {
			_, err := s.CreateOrder(ctx, store.NewOrder{
				UserID: user,
				Items:  []store.NewOrderItem{{ProductID: product.ID, Quantity: 1}},
			})
			return err
		})
	}
	require.NoError(t, group.Wait(), "concurrent orders should wait for the write lock")

	found, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Zero(t, found.Stock)
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders, counts.Orders)

	_, err = s.CreateOrder(ctx, store.NewOrder{
		UserID: f.users[0].ID,
		Items:  []store.NewOrderItem{{ProductID: product.ID, Quantity: 1}},
	})
	assert.True(t, errors.Is(err, store.ErrInsufficientStock), "unexpected error: %v", err)
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := loadFixture(t, s)

	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	var seeded []store.Order
	for i := 0; i < 5; i++ {
		items := []store.OrderItem{
			{ProductID: f.products[i].ID, Quantity: 1, Price: f.products[i].Price},
			{ProductID: f.products[(i+1)%5].ID, Quantity: 2, Price: f.products[(i+1)%5].Price},
		}
		seeded = append(seeded, store.Order{
			UserID:    f.users[i%2].ID,
			Total:     store.OrderTotal(items),
			Status:    store.OrderStatuses[i%len(store.OrderStatuses)],
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Items:     items,
		})
	}
	seeded, err := s.InsertSeedOrders(ctx, seeded)
	require.NoError(t, err)

	// seed orders do not touch stock
	a, err := s.GetProduct(ctx, f.products[1].ID)
	require.NoError(t, err)
	assert.Equal(t, f.products[1].Stock, a.Stock)

	page, err := s.ListOrders(ctx, store.OrderQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Orders, 2)

	newest := page.Orders[0]
	assert.Equal(t, seeded[4].ID, newest.ID)
	assert.Equal(t, seeded[4].Total, newest.Total)
	assert.Equal(t, seeded[4].Status, newest.Status)
	require.NotNil(t, newest.User)
	assert.Equal(t, f.users[0].Email, newest.User.Email)
	require.Len(t, newest.Items, 2)
	for _, item := range newest.Items {
		assert.Equal(t, newest.ID, item.OrderID)
		require.NotNil(t, item.Product)
		assert.Equal(t, item.ProductID, item.Product.ID)
	}
	assert.Equal(t, seeded[3].ID, page.Orders[1].ID)

	page, err = s.ListOrders(ctx, store.OrderQuery{Page: 4, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
	assert.NotNil(t, page.Orders)

	page, err = s.ListOrders(ctx, store.OrderQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 5)
}
