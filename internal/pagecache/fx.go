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
	"context"
	"github.com/oysterpack/ecoshop/internal/config"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/oysterpack/ecoshop/pkg/fxapp/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"time"
)

// MiddlewareOrder runs the page cache after the builtin middleware, i.e., cache hits are logged and measured
const MiddlewareOrder = 100

// Module provides the *Cache using the configured backend and registers its middleware with the HTTP router
var Module = fx.Options(
	fx.Provide(newCache, middleware),
)

// CacheOpenedEvent is logged when the cache backend is ready
const CacheOpenedEvent fxapp.EventTypeID = "01JPB0NR5YHCF05G59S2S1KKE5"

// RedisHealthCheckID identifies the redis ping health check, which is only registered for the redis backend
const RedisHealthCheckID = "01JH5PT7DRPKV53YCQWCMQY1TF"

func newCache(cfg config.Config, lc fx.Lifecycle, registerer prometheus.Registerer, registry health.Registry, logger *zerolog.Logger) (*Cache, error) {
	var store Store
	var closeStore func() error
	switch cfg.CacheBackend {
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisStore, err := NewRedisStore(ctx, cfg.RedisAddr, DefaultRedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		store, closeStore = redisStore, redisStore.Close
		if err := registry.Register(redisHealthCheck(redisStore)); err != nil {
			_ = redisStore.Close()
			return nil, err
		}
	case config.CacheMemory:
		store = NewMemoryStore(DefaultMaxEntries, nil)
	}

	cache := New(store, registerer, logger)
	CacheOpenedEvent.NewLogEvent(logger, zerolog.InfoLevel)(backend(cfg.CacheBackend), "page cache opened")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cache.Close()
			if closeStore != nil {
				return closeStore()
			}
			return nil
		},
	})
	return cache, nil
}

// store errors are logged and the page is rendered by the origin, hence the yellow failure
func redisHealthCheck(store *RedisStore) health.Check {
	return health.NewBuilder(RedisHealthCheckID).
		Description("Pings the redis page cache").
		YellowImpact("Every page is rendered on every request").
		RedImpact("Every page is rendered on every request, which may overload the database").
		Timeout(2 * time.Second).
		RunInterval(15 * time.Second).
		Checker(func(ctx context.Context) health.Failure {
			if err := store.Ping(ctx); err != nil {
				return health.YellowFailure(err)
			}
			return nil
		}).
		MustBuild()
}

func middleware(cache *Cache) fxapp.HTTPMiddleware {
	return fxapp.HTTPMiddleware{
		Middleware: fxapp.Middleware{
			Name:  "pagecache",
			Order: MiddlewareOrder,
			Wrap:  cache.Middleware,
		},
	}
}

type backend string

func (b backend) MarshalZerologObject(e *zerolog.Event) {
	e.Str("backend", string(b))
}
