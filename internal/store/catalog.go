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
	"golang.org/x/sync/errgroup"
	"strings"
)

// ListCategories returns all categories ordered by id
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, image FROM categories ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query categories")
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Image); err != nil {
			return nil, errors.Wrap(err, "failed to scan category")
		}
		categories = append(categories, c)
	}
	return categories, errors.Wrap(rows.Err(), "failed to read categories")
}

// GetCategory returns ErrNotFound if the category does not exist
func (s *Store) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, image FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.Image)
	switch {
	case err == sql.ErrNoRows:
		return c, errors.Wrapf(ErrNotFound, "category %d", id)
	case err != nil:
		return c, errors.Wrapf(err, "failed to get category %d", id)
	}
	return c, nil
}

// the category is joined in, i.e., products and their categories are loaded with a single query
const productColumns = `p.id, p.name, p.description, p.price, p.image, p.stock, p.category_id, p.created_at,
	c.id, c.name, c.description, c.image`

const productFrom = ` FROM products p JOIN categories c ON c.id = p.category_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	var c Category
	var createdAt int64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Stock, &p.CategoryID, &createdAt,
		&c.ID, &c.Name, &c.Description, &c.Image)
	if err != nil {
		return p, err
	}
	p.CreatedAt = fromDB(createdAt)
	p.Category = &c
	return p, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...interface{}) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query products")
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		products = append(products, p)
	}
	return products, errors.Wrap(rows.Err(), "failed to read products")
}

// ListProducts returns a page of products, newest first, with their categories.
// The page and the total count are queried concurrently.
func (s *Store) ListProducts(ctx context.Context, query ProductQuery) (ProductPage, error) {
	query = query.Normalize()
	where := ""
	var args []interface{}
	if query.CategoryID > 0 {
		where = " WHERE p.category_id = ?"
		args = append(args, query.CategoryID)
	}

	page := ProductPage{Page: query.Page}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		products, err := s.queryProducts(ctx,
			`SELECT `+productColumns+productFrom+where+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`,
			append(args, query.Limit, (query.Page-1)*query.Limit)...,
		)
		page.Products = products
		return err
	})
	group.Go(func() error {
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&page.Total)
		return errors.Wrap(err, "failed to count products")
	})
	if err := group.Wait(); err != nil {
		return ProductPage{}, err
	}
	page.TotalPages = TotalPages(page.Total, query.Limit)
	return page, nil
}

// GetProduct returns the product with its category. ErrNotFound is returned if the product does not exist.
func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = ?`, id))
	switch {
	case err == sql.ErrNoRows:
		return p, errors.Wrapf(ErrNotFound, "product %d", id)
	case err != nil:
		return p, errors.Wrapf(err, "failed to get product %d", id)
	}
	return p, nil
}

// RelatedProducts returns up to limit of the newest products in the same category, excluding the product itself
func (s *Store) RelatedProducts(ctx context.Context, product Product, limit int) ([]Product, error) {
	if limit <= 0 {
		return []Product{}, nil
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+productFrom+` WHERE p.category_id = ? AND p.id <> ? ORDER BY p.created_at DESC, p.id DESC LIMIT ?`,
		product.CategoryID, product.ID, limit,
	)
}

// PopularProductIDs returns up to n product ids ordered by units sold, then newest first
func (s *Store) PopularProductIDs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT p.id FROM products p
		LEFT JOIN order_items oi ON oi.product_id = p.id
		GROUP BY p.id
		ORDER BY COALESCE(SUM(oi.quantity), 0) DESC, p.created_at DESC, p.id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query popular products")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan product id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to read popular products")
}

// GetProducts loads the products with a single query. Unknown ids are omitted from the result.
func (s *Store) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	products := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	list, err := s.queryProducts(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		products[p.ID] = p
	}
	return products, nil
}
