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
)

// InsertCategories inserts the categories in a single transaction. The assigned ids are set on the returned categories.
func (s *Store) InsertCategories(ctx context.Context, categories []Category) ([]Category, error) {
	inserted := make([]Category, len(categories))
	copy(inserted, categories)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEach(ctx, tx, `INSERT INTO categories (name, description, image) VALUES (?, ?, ?)`, len(inserted),
			func(i int) []interface{} {
				c := inserted[i]
				return []interface{}{c.Name, c.Description, c.Image}
			},
			func(i int, id int64) { inserted[i].ID = id },
		)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert categories")
	}
	return inserted, nil
}

// InsertProducts inserts the products in a single transaction. The assigned ids are set on the returned products.
func (s *Store) InsertProducts(ctx context.Context, products []Product) ([]Product, error) {
	inserted := make([]Product, len(products))
	copy(inserted, products)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEach(ctx, tx, `INSERT INTO products (name, description, price, image, stock, category_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`, len(inserted),
			func(i int) []interface{} {
				p := inserted[i]
				return []interface{}{p.Name, p.Description, p.Price, p.Image, p.Stock, p.CategoryID, toDB(p.CreatedAt)}
			},
			func(i int, id int64) { inserted[i].ID = id },
		)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert products")
	}
	return inserted, nil
}

// InsertUsers inserts the users in a single transaction. Emails must be unique.
func (s *Store) InsertUsers(ctx context.Context, users []User) ([]User, error) {
	inserted := make([]User, len(users))
	copy(inserted, users)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEach(ctx, tx, `INSERT INTO users (email, name, created_at) VALUES (?, ?, ?)`, len(inserted),
			func(i int) []interface{} {
				u := inserted[i]
				return []interface{}{u.Email, u.Name, toDB(u.CreatedAt)}
			},
			func(i int, id int64) { inserted[i].ID = id },
		)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert users")
	}
	return inserted, nil
}

// InsertSeedOrders inserts historical orders with their items as is, i.e., prices, totals, and statuses are not
// derived from the catalog and stock is not touched.
func (s *Store) InsertSeedOrders(ctx context.Context, orders []Order) ([]Order, error) {
	inserted := make([]Order, len(orders))
	copy(inserted, orders)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders (user_id, total, status, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range inserted {
			o := &inserted[i]
			result, err := stmt.ExecContext(ctx, o.UserID, o.Total, o.Status, toDB(o.CreatedAt))
			if err != nil {
				return errors.Wrapf(err, "order #%d", i)
			}
			if o.ID, err = result.LastInsertId(); err != nil {
				return err
			}
			o.Items = append([]OrderItem(nil), o.Items...)
			if err := insertOrderItems(ctx, tx, o.ID, o.Items); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert orders")
	}
	return inserted, nil
}

func insertEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []interface{}, setID func(i int, id int64)) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		result, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return errors.Wrapf(err, "row #%d", i)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		setID(i, id)
	}
	return nil
}
