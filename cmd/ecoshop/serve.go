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

package main

import (
	"github.com/oysterpack/ecoshop/internal/config"
	"github.com/oysterpack/ecoshop/internal/pagecache"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/oysterpack/ecoshop/internal/web"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"io"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront",
		Long: `Runs the storefront HTTP server. Liveness and readiness probes, Prometheus metrics, and health checks are
exposed alongside the storefront routes. The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			app, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}

func newApp(cfg config.Config, logWriter io.Writer) (fxapp.App, error) {
	return fxapp.NewAppBuilder(desc()).
		LogWriter(logWriter).
		LogLevel(zerolog.Level(cfg.LogLevel)).
		Provide(func() config.Config { return cfg }).
		Options(store.Module, pagecache.Module, web.Module).
		ExposeProbesViaHTTP().
		ExposeMetricsViaHTTP().
		ExposeHealthChecksViaHTTP().
		Build()
}
