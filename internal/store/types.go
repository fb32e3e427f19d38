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

package store

import (
	"fmt"
	"github.com/pkg/errors"
	"math"
	"strconv"
	"time"
)

// Money is an amount in cents. It is serialized in JSON as a decimal number, e.g., 12.5 -> 12.50
type Money int64

// Euros converts a decimal amount to Money, rounding to the nearest cent
func Euros(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// Float64 returns the decimal amount
func (m Money) Float64() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 1 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid money amount: %s", data)
	}
	*m = Euros(f)
	return nil
}

// Order status values
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
)

// OrderStatuses lists all valid order statuses
var OrderStatuses = []string{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       Money     `json:"price"`
	Image       string    `json:"image"`
	Stock       int       `json:"stock"`
	CategoryID  int64     `json:"categoryId"`
	Category    *Category `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InStock returns true if at least 1 unit is available
func (p Product) InStock() bool {
	return p.Stock > 0
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"userId"`
	User      *User       `json:"user,omitempty"`
	Total     Money       `json:"total"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	Items     []OrderItem `json:"items"`
}

type OrderItem struct {
	ID        int64    `json:"id"`
	OrderID   int64    `json:"orderId"`
	ProductID int64    `json:"productId"`
	Product   *Product `json:"product,omitempty"`
	Quantity  int      `json:"quantity"`
	// Price is the unit price at the time the order was placed
	Price Money `json:"price"`
}

// OrderTotal sums price x quantity over the items
func OrderTotal(items []OrderItem) Money {
	var total Money
	for _, item := range items {
		total += item.Price * Money(item.Quantity)
	}
	return total
}

// ProductQuery selects a page of products, newest first.
// A zero CategoryID selects all categories.
type ProductQuery struct {
	Page       int
	Limit      int
	CategoryID int64
}

// product page defaults
const (
	DefaultProductLimit = 12
	MaxLimit            = 100
	DefaultOrderLimit   = 20
)

// Normalize applies the paging defaults: page >= 1, 1 <= limit <= 100
func (q ProductQuery) Normalize() ProductQuery {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit, DefaultProductLimit)
	if q.CategoryID < 0 {
		q.CategoryID = 0
	}
	return q
}

type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

type OrderQuery struct {
	Page  int
	Limit int
}

func (q OrderQuery) Normalize() OrderQuery {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit, DefaultOrderLimit)
	return q
}

type OrderPage struct {
	Orders     []Order `json:"orders"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit == 0:
		limit = defaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return page, limit
}

// TotalPages = ceil(total / limit)
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// NewOrder is an order request. Prices are always taken from the catalog.
type NewOrder struct {
	UserID int64          `json:"userId"`
	Items  []NewOrderItem `json:"items"`
}

type NewOrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Counts reports the number of rows per table
type Counts struct {
	Categories int `json:"categories"`
	Products   int `json:"products"`
	Users      int `json:"users"`
	Orders     int `json:"orders"`
}
