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
	"context"
	"database/sql"
	"github.com/pkg/errors"
	"strings"
	"time"
)

// Validate checks the order request shape
func (o NewOrder) Validate() error {
	if o.UserID <= 0 || len(o.Items) == 0 {
		return errors.Wrap(ErrInvalidOrder, "missing fields")
	}
	for _, item := range o.Items {
		if item.ProductID <= 0 {
			return errors.Wrap(ErrInvalidOrder, "missing product id")
		}
		if item.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidOrder, "invalid quantity for product %d: %d", item.ProductID, item.Quantity)
		}
	}
	return nil
}

// merged combines duplicate product lines, preserving first-seen order
func (o NewOrder) merged() []NewOrderItem {
	index := make(map[int64]int, len(o.Items))
	items := make([]NewOrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if i, ok := index[item.ProductID]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(items)
		items = append(items, item)
	}
	return items
}

// CreateOrder places a pending order in a single transaction:
//	- the user must exist
//	- every product must exist and have enough stock
//	- unit prices are taken from the catalog
//	- stock is decremented
func (s *Store) CreateOrder(ctx context.Context, req NewOrder) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	var order Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var user User
		var userCreatedAt int64
		err := tx.QueryRowContext(ctx, `SELECT id, email, name, created_at FROM users WHERE id = ?`, req.UserID).
			Scan(&user.ID, &user.Email, &user.Name, &userCreatedAt)
		switch {
		case err == sql.ErrNoRows:
			return errors.Wrapf(ErrUnknownUser, "user %d", req.UserID)
		case err != nil:
			return errors.Wrapf(err, "failed to get user %d", req.UserID)
		}
		user.CreatedAt = fromDB(userCreatedAt)

		order = Order{
			UserID:    user.ID,
			User:      &user,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		for _, item := range req.merged() {
			product, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = ?`, item.ProductID))
			switch {
			case err == sql.ErrNoRows:
				return errors.Wrapf(ErrUnknownProduct, "product %d", item.ProductID)
			case err != nil:
				return errors.Wrapf(err, "failed to get product %d", item.ProductID)
			}
			if product.Stock < item.Quantity {
				return errors.Wrapf(ErrInsufficientStock, "product %d: requested %d, available %d", product.ID, item.Quantity, product.Stock)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - ? WHERE id = ?`, item.Quantity, product.ID); err != nil {
				return errors.Wrapf(err, "failed to decrement stock for product %d", product.ID)
			}
			product.Stock -= item.Quantity
			order.Items = append(order.Items, OrderItem{
				ProductID: product.ID,
				Product:   &product,
				Quantity:  item.Quantity,
				Price:     product.Price,
			})
		}
		order.Total = OrderTotal(order.Items)

		result, err := tx.ExecContext(ctx, `INSERT INTO orders (user_id, total, status, created_at) VALUES (?, ?, ?, ?)`,
			order.UserID, order.Total, order.Status, toDB(order.CreatedAt))
		if err != nil {
			return errors.Wrap(err, "failed to insert order")
		}
		if order.ID, err = result.LastInsertId(); err != nil {
			return errors.Wrap(err, "failed to get order id")
		}
		return insertOrderItems(ctx, tx, order.ID, order.Items)
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []OrderItem) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare order item insert")
	}
	defer stmt.Close()
	for i := range items {
		result, err := stmt.ExecContext(ctx, orderID, items[i].ProductID, items[i].Quantity, items[i].Price)
		if err != nil {
			return errors.Wrapf(err, "failed to insert order item for product %d", items[i].ProductID)
		}
		if items[i].ID, err = result.LastInsertId(); err != nil {
			return errors.Wrap(err, "failed to get order item id")
		}
		items[i].OrderID = orderID
	}
	return nil
}

// ListOrders returns a page of orders, newest first, with their users, items, and item products.
// Related rows are loaded in batches, i.e., the number of queries does not grow with the page size.
func (s *Store) ListOrders(ctx context.Context, query OrderQuery) (OrderPage, error) {
	query = query.Normalize()
	page := OrderPage{Page: query.Page, Orders: []Order{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&page.Total); err != nil {
		return page, errors.Wrap(err, "failed to count orders")
	}
	page.TotalPages = TotalPages(page.Total, query.Limit)

	orders, err := s.queryOrders(ctx, query)
	if err != nil {
		return page, err
	}
	if len(orders) == 0 {
		return page, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}
	items, err := s.queryOrderItems(ctx, ids)
	if err != nil {
		return page, err
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	page.Orders = orders
	return page, nil
}

func (s *Store) queryOrders(ctx context.Context, query OrderQuery) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT o.id, o.user_id, o.total, o.status, o.created_at,
			u.id, u.email, u.name, u.created_at
		FROM orders o JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT ? OFFSET ?`, query.Limit, (query.Page-1)*query.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query orders")
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		var u User
		var orderCreatedAt, userCreatedAt int64
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &orderCreatedAt,
			&u.ID, &u.Email, &u.Name, &userCreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		o.CreatedAt = fromDB(orderCreatedAt)
		u.CreatedAt = fromDB(userCreatedAt)
		o.User = &u
		o.Items = []OrderItem{}
		orders = append(orders, o)
	}
	return orders, errors.Wrap(rows.Err(), "failed to read orders")
}

func (s *Store) queryOrderItems(ctx context.Context, orderIDs []int64) ([]OrderItem, error) {
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	rows, err := s.db.QueryContext(ctx, `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, `+productColumns+`
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE oi.order_id IN (`+placeholders+`)
		ORDER BY oi.order_id, oi.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query order items")
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		var p Product
		var c Category
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Stock, &p.CategoryID, &createdAt,
			&c.ID, &c.Name, &c.Description, &c.Image); err != nil {
			return nil, errors.Wrap(err, "failed to scan order item")
		}
		p.CreatedAt = fromDB(createdAt)
		p.Category = &c
		item.Product = &p
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read order items")
	}
	return items, nil
}
