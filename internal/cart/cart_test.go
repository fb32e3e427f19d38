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

package cart_test

import (
	"github.com/oysterpack/ecoshop/internal/cart"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func product(id int64, name string, price store.Money) store.Product {
	return store.Product{ID: id, Name: name, Price: price, Image: "https://picsum.photos/seed/p/800/800"}
}

func TestCart(t *testing.T) {
	var c cart.Cart
	assert.True(t, c.IsEmpty())
	assert.Equal(t, cart.ShippingFee, c.Shipping())

	require.True(t, c.Add(product(1, "Zèbre", 1000), now))
	require.True(t, c.Add(product(2, "abeille", 250), now))
	require.True(t, c.Add(product(1, "Zèbre", 1000), now))

	assert.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.ItemCount())
	assert.Equal(t, store.Money(2250), c.Total())
	assert.Equal(t, cart.ShippingFee, c.Shipping())
	assert.Equal(t, store.Money(2250+499), c.GrandTotal())

	sorted := c.Sorted()
	assert.Equal(t, "abeille", sorted[0].Name)
	assert.Equal(t, "Zèbre", sorted[1].Name)
	assert.Equal(t, int64(1), c.Items[0].ProductID, "sorting does not modify the cart")

	c.UpdateQuantity(2, 12)
	assert.Equal(t, store.Money(5000), c.Total())
	assert.Equal(t, store.Money(0), c.Shipping(), "shipping is free starting at 50.00")
	assert.Equal(t, store.Money(5000), c.GrandTotal())

	c.UpdateQuantity(2, 0)
	assert.Len(t, c.Items, 1)
	c.UpdateQuantity(99, 3) // unknown products are ignored
	assert.Len(t, c.Items, 1)

	order := c.NewOrder(7)
	assert.Equal(t, store.NewOrder{UserID: 7, Items: []store.NewOrderItem{{ProductID: 1, Quantity: 2}}}, order)

	c.Remove(1)
	assert.True(t, c.IsEmpty())

	c.Add(product(3, "x", 1), now)
	c.Clear()
	assert.True(t, c.IsEmpty())
}

func TestCart_MaxItems(t *testing.T) {
	var c cart.Cart
	for i := 1; i <= cart.MaxItems; i++ {
		require.True(t, c.Add(product(int64(i), "p", 100), now))
	}
	assert.False(t, c.Add(product(cart.MaxItems+1, "p", 100), now))
	assert.True(t, c.Add(product(1, "p", 100), now), "existing lines can still be incremented")
	assert.Len(t, c.Items, cart.MaxItems)
}

func TestCart_MaxQuantity(t *testing.T) {
	var c cart.Cart
	c.Add(product(1, "p", 100), now)
	c.UpdateQuantity(1, 1<<62)
	assert.Equal(t, cart.MaxQuantity, c.Items[0].Quantity)
	assert.Equal(t, store.Money(100*cart.MaxQuantity), c.Total())

	require.True(t, c.Add(product(1, "p", 100), now))
	assert.Equal(t, cart.MaxQuantity, c.Items[0].Quantity, "adding to a full line keeps the cap")

	c.Items[0].Quantity = 1000
	c.Items = append(c.Items, cart.Item{ProductID: 2, Quantity: -5})
	c.Refresh(map[int64]store.Product{1: product(1, "p", 100), 2: product(2, "q", 100)})
	require.Len(t, c.Items, 1, "lines without a positive quantity are dropped")
	assert.Equal(t, cart.MaxQuantity, c.Items[0].Quantity)
}

func TestCart_Refresh(t *testing.T) {
	var c cart.Cart
	c.Add(product(1, "old name", 100), now)
	c.Add(product(2, "gone", 100), now)

	c.Refresh(map[int64]store.Product{1: product(1, "new name", 150)})
	require.Len(t, c.Items, 1)
	assert.Equal(t, "new name", c.Items[0].Name)
	assert.Equal(t, store.Money(150), c.Items[0].Price)
}

func TestCodec(t *testing.T) {
	codec, err := cart.NewCodec(nil)
	require.NoError(t, err)

	var c cart.Cart
	c.Add(product(1, "a", 100), now)
	c.Add(product(2, "b", 200), now)
	c.UpdateQuantity(2, 3)

	value, err := codec.Seal(c)
	require.NoError(t, err)
	other, err := codec.Seal(c)
	require.NoError(t, err)
	assert.NotEqual(t, value, other, "every seal uses a new nonce")

	opened := codec.Open(value)
	require.Len(t, opened.Items, 2)
	assert.Equal(t, int64(2), opened.Items[1].ProductID)
	assert.Equal(t, 3, opened.Items[1].Quantity)
	assert.Equal(t, now, opened.Items[1].AddedAt)
	assert.Empty(t, opened.Items[1].Name, "catalog fields are not sealed")

	t.Run("tampered", func(t *testing.T) {
		b := []byte(value)
		i := len(b) / 2
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		assert.True(t, codec.Open(string(b)).IsEmpty())
		assert.True(t, codec.Open("not base64!").IsEmpty())
		assert.True(t, codec.Open("").IsEmpty())
	})

	t.Run("different key", func(t *testing.T) {
		otherCodec, err := cart.NewCodec([]byte(strings.Repeat("k", 32)))
		require.NoError(t, err)
		assert.True(t, otherCodec.Open(value).IsEmpty())
	})

	t.Run("invalid key size", func(t *testing.T) {
		_, err := cart.NewCodec([]byte("short"))
		assert.Error(t, err)
	})

	t.Run("a full cart fits in a cookie", func(t *testing.T) {
		var full cart.Cart
		for i := 1; i <= cart.MaxItems; i++ {
			full.Add(product(int64(i*1000), "p", 100), now)
			full.UpdateQuantity(int64(i*1000), 99)
		}
		value, err := codec.Seal(full)
		require.NoError(t, err)
		assert.Less(t, len(value), 4000)
	})
}

func TestCodec_Cookie(t *testing.T) {
	codec, err := cart.NewCodec(nil)
	require.NoError(t, err)

	var c cart.Cart
	c.Add(product(5, "e", 100), now)
	w := httptest.NewRecorder()
	require.NoError(t, codec.Save(w, c))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cart.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r := httptest.NewRequest(http.MethodGet, "/cart", nil)
	r.AddCookie(cookies[0])
	loaded := codec.Load(r)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, int64(5), loaded.Items[0].ProductID)

	assert.True(t, codec.Load(httptest.NewRequest(http.MethodGet, "/cart", nil)).IsEmpty())

	// saving an empty cart expires the cookie
	w = httptest.NewRecorder()
	require.NoError(t, codec.Save(w, cart.Cart{}))
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)
}
