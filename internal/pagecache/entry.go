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

package pagecache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Entry is a cached response
type Entry struct {
	Status   int           `json:"status"`
	Header   http.Header   `json:"header"`
	Body     []byte        `json:"body"`
	StoredAt time.Time     `json:"storedAt"`
	MaxAge   time.Duration `json:"maxAge"`
	// StaleWhileRevalidate is how long past MaxAge the entry may still be served while it is revalidated
	StaleWhileRevalidate time.Duration `json:"swr"`
}

// Age is how long ago the entry was stored
func (e Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age
}

// Fresh means the entry can be served as is
func (e Entry) Fresh(now time.Time) bool {
	return e.Age(now) < e.MaxAge
}

// Servable means the entry is either fresh or within the stale-while-revalidate window
func (e Entry) Servable(now time.Time) bool {
	return e.Age(now) < e.MaxAge+e.StaleWhileRevalidate
}

// TTL is how long a store needs to keep the entry
func (e Entry) TTL() time.Duration {
	return e.MaxAge + e.StaleWhileRevalidate
}

// Policy is the shared cache policy parsed from a Cache-Control response header
type Policy struct {
	Public               bool
	Private              bool
	NoStore              bool
	NoCache              bool
	MaxAge               time.Duration
	SharedMaxAge         time.Duration
	StaleWhileRevalidate time.Duration
}

// ParseCacheControl parses the Cache-Control directives that are relevant to a shared cache
func ParseCacheControl(value string) Policy {
	var policy Policy
	for _, directive := range strings.Split(value, ",") {
		name, arg := strings.TrimSpace(directive), ""
		if i := strings.IndexByte(name, '='); i >= 0 {
			name, arg = strings.TrimSpace(name[:i]), strings.Trim(strings.TrimSpace(name[i+1:]), `"`)
		}
		switch strings.ToLower(name) {
		case "public":
			policy.Public = true
		case "private":
			policy.Private = true
		case "no-store":
			policy.NoStore = true
		case "no-cache":
			policy.NoCache = true
		case "max-age":
			policy.MaxAge = seconds(arg)
		case "s-maxage":
			policy.SharedMaxAge = seconds(arg)
		case "stale-while-revalidate":
			policy.StaleWhileRevalidate = seconds(arg)
		}
	}
	return policy
}

func seconds(arg string) time.Duration {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// TTL is s-maxage, falling back to max-age
func (p Policy) TTL() time.Duration {
	if p.SharedMaxAge > 0 {
		return p.SharedMaxAge
	}
	return p.MaxAge
}

// Cacheable means a shared cache may store the response: public with a positive TTL, and neither private nor no-store
func (p Policy) Cacheable() bool {
	return p.Public && !p.Private && !p.NoStore && !p.NoCache && p.TTL() > 0
}

// PublicCacheControl renders the header value used for pages that are served from the shared cache
func PublicCacheControl(maxAge, staleWhileRevalidate time.Duration) string {
	value := "public, s-maxage=" + strconv.Itoa(int(maxAge/time.Second))
	if staleWhileRevalidate > 0 {
		value += ", stale-while-revalidate=" + strconv.Itoa(int(staleWhileRevalidate/time.Second))
	}
	return value
}
