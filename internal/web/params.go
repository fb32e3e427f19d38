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
	"github.com/oysterpack/ecoshop/internal/store"
	"net/url"
	"strconv"
	"strings"
)

// intParam returns def if the param is missing or malformed
func intParam(query url.Values, name string, def int) int {
	value := strings.TrimSpace(query.Get(name))
	if value == "" {
		return def
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return i
}

func int64Param(query url.Values, name string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(query.Get(name)), 10, 64)
	if err != nil || i < 0 {
		return 0
	}
	return i
}

// productQuery parses page, limit, and category.
// Missing or malformed values use the defaults. Explicit values are clamped, i.e., page >= 1 and 1 <= limit <= 100.
func productQuery(query url.Values) store.ProductQuery {
	q := store.ProductQuery{
		Page:       intParam(query, "page", 1),
		Limit:      intParam(query, "limit", store.DefaultProductLimit),
		CategoryID: int64Param(query, "category"),
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	return q.Normalize()
}

func orderQuery(query url.Values) store.OrderQuery {
	q := store.OrderQuery{
		Page:  intParam(query, "page", 1),
		Limit: intParam(query, "limit", store.DefaultOrderLimit),
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	return q.Normalize()
}
