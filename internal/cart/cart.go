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

// Package cart implements the shopping cart, which is kept client side in a sealed cookie.
package cart

import (
	"github.com/oysterpack/ecoshop/internal/store"
	"sort"
	"strings"
	"time"
)

// MaxItems caps the number of cart lines
const MaxItems = 50

// MaxQuantity caps the quantity per line
const MaxQuantity = 99

// shipping is free starting at 50.00, otherwise 4.99
const (
	FreeShippingThreshold store.Money = 5000
	ShippingFee           store.Money = 499
)

// Item is a cart line. Name, Price, and Image are refreshed from the catalog when the cart is loaded.
type Item struct {
	ProductID int64       `json:"productId"`
	Name      string      `json:"name"`
	Price     store.Money `json:"price"`
	Image     string      `json:"image"`
	Quantity  int         `json:"quantity"`
	AddedAt   time.Time   `json:"addedAt"`
}

// Subtotal = price x quantity
func (i Item) Subtotal() store.Money {
	return i.Price * store.Money(i.Quantity)
}

type Cart struct {
	Items []Item `json:"items"`
}

// Add adds 1 unit of the product. If the product is already in the cart, its quantity is incremented, up to MaxQuantity.
// Returns false if the cart is full.
func (c *Cart) Add(product store.Product, now time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == product.ID {
			c.Items[i].Quantity = min(c.Items[i].Quantity+1, MaxQuantity)
			c.Items[i].AddedAt = now
			c.Items[i].refresh(product)
			return true
		}
	}
	if len(c.Items) >= MaxItems {
		return false
	}
	item := Item{ProductID: product.ID, Quantity: 1, AddedAt: now}
	item.refresh(product)
	c.Items = append(c.Items, item)
	return true
}

func (i *Item) refresh(product store.Product) {
	i.Name = product.Name
	i.Price = product.Price
	i.Image = product.Image
}

// Remove removes the product line
func (c *Cart) Remove(productID int64) {
	items := c.Items[:0]
	for _, item := range c.Items {
		if item.ProductID != productID {
			items = append(items, item)
		}
	}
	c.Items = items
}

// UpdateQuantity sets the product line quantity, capped at MaxQuantity. A quantity <= 0 removes the line.
func (c *Cart) UpdateQuantity(productID int64, quantity int) {
	if quantity <= 0 {
		c.Remove(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = min(quantity, MaxQuantity)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Items = nil
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Total is the sum of the line subtotals, excluding shipping
func (c Cart) Total() store.Money {
	var total store.Money
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

// ItemCount is the total number of units
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Shipping is free when the total reaches the free shipping threshold
func (c Cart) Shipping() store.Money {
	if c.Total() >= FreeShippingThreshold {
		return 0
	}
	return ShippingFee
}

func (c Cart) GrandTotal() store.Money {
	return c.Total() + c.Shipping()
}

// Sorted returns the items sorted by name
func (c Cart) Sorted() []Item {
	items := append([]Item(nil), c.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}

// ProductIDs returns the product id per line
func (c Cart) ProductIDs() []int64 {
	ids := make([]int64, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// Refresh updates the lines from the catalog. Lines for products that no longer exist are dropped.
func (c *Cart) Refresh(products map[int64]store.Product) {
	items := c.Items[:0]
	for _, item := range c.Items {
		if product, ok := products[item.ProductID]; ok && item.Quantity > 0 {
			item.refresh(product)
			item.Quantity = min(item.Quantity, MaxQuantity)
			items = append(items, item)
		}
	}
	c.Items = items
}

// NewOrder converts the cart into an order request for the user
func (c Cart) NewOrder(userID int64) store.NewOrder {
	order := store.NewOrder{UserID: userID}
	for _, item := range c.Items {
		order.Items = append(order.Items, store.NewOrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return order
}
