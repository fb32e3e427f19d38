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
	"github.com/oysterpack/ecoshop/internal/config"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/oysterpack/ecoshop/pkg/fxapp/health"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"time"
)

// DatabaseOpenedEvent is logged once the schema has been migrated
const DatabaseOpenedEvent fxapp.EventTypeID = "01JPM5Q1NXW1RNJ47E65GH2BH8"

// DatabaseHealthCheckID identifies the database ping health check
const DatabaseHealthCheckID = "01JV4DK79Q9G8XE6SZAEAVSNTC"

// Module provides the *Store and registers the database health check.
// The schema is migrated when the app starts, and the database is closed when the app stops.
var Module = fx.Options(
	fx.Provide(newStore),
	fx.Invoke(registerHealthCheck),
)

func newStore(cfg config.Config, lc fx.Lifecycle, logger *zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Open(ctx, cfg.DatabasePath, 10*time.Second)
	if err != nil {
		return nil, err
	}

	logOpened := DatabaseOpenedEvent.NewLogEvent(logger, zerolog.InfoLevel)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			counts, err := store.Counts(ctx)
			if err != nil {
				return err
			}
			logOpened(databaseInfo{cfg.DatabasePath, counts}, "database opened")
			return nil
		},
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func registerHealthCheck(registry health.Registry, store *Store) error {
	check, err := health.NewBuilder(DatabaseHealthCheckID).
		Description("Pings the SQLite database").
		RedImpact("Catalog pages and the order API cannot be served").
		Timeout(2 * time.Second).
		RunInterval(15 * time.Second).
		Checker(func(ctx context.Context) health.Failure {
			if err := store.Ping(ctx); err != nil {
				return health.RedFailure(err)
			}
			return nil
		}).
		Build()
	if err != nil {
		return err
	}
	return registry.Register(check)
}

type databaseInfo struct {
	path   string
	counts Counts
}

func (info databaseInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", info.path).
		Int("categories", info.counts.Categories).
		Int("products", info.counts.Products).
		Int("users", info.counts.Users).
		Int("orders", info.counts.Orders)
}
