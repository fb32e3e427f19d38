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
	"context"
	"encoding/json"
	"fmt"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/oysterpack/ecoshop/internal/config"
	"github.com/oysterpack/ecoshop/internal/seed"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/oysterpack/ecoshop/internal/web"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type seedFlags struct {
	remote   string
	secret   string
	products int
	users    int
	orders   int
	randSeed int64
}

func newSeedCmd() *cobra.Command {
	var flags seedFlags
	defaults := seed.DefaultOpts()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Reset and seed the database",
		Long: `Resets the database and seeds it with the demo catalog, users, and order history.

By default the database configured via ECOSHOP_DATABASE_PATH is seeded directly. A running server keeps serving its
cached pages until they are revalidated. Use --remote to seed a running server via POST /api/seed instead, which also
purges its page cache. The secret defaults to ECOSHOP_SEED_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.remote != "" {
				return seedRemote(cmd.Context(), cmd.OutOrStdout(), flags)
			}
			return seedLocal(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.remote, "remote", "", "base URL of a running server, e.g., http://localhost:8008")
	cmd.Flags().StringVar(&flags.secret, "secret", os.Getenv(config.EnvPrefix+"_SEED_SECRET"), "seed secret used with --remote")
	cmd.Flags().IntVar(&flags.products, "products", defaults.Products, "number of products")
	cmd.Flags().IntVar(&flags.users, "users", defaults.Users, "number of users")
	cmd.Flags().IntVar(&flags.orders, "orders", defaults.Orders, "number of orders")
	cmd.Flags().Int64Var(&flags.randSeed, "rand-seed", 0, "random seed, 0 seeds from the clock")
	return cmd
}

func seedLocal(ctx context.Context, out io.Writer, flags seedFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := store.Open(ctx, cfg.DatabasePath, 10*time.Second)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	logger := fxapp.NewLogger(os.Stderr, zerolog.Level(cfg.LogLevel), desc(), fxapp.NewInstanceID())
	logSeeded := web.SeededEvent.NewLogEvent(logger, zerolog.InfoLevel)
	start := time.Now()
	result, err := seed.Seed(ctx, s, seed.Opts{
		Products: flags.products,
		Users:    flags.users,
		Orders:   flags.orders,
		RandSeed: flags.randSeed,
	})
	if err != nil {
		return err
	}
	logSeeded(seedSummary{result, time.Since(start)}, "store seeded")
	return writeIndentedJSON(out, result)
}

// seedRemote never retries a seed that failed server side, i.e., a 500 response
func seedRemote(ctx context.Context, out io.Writer, flags seedFlags) error {
	if strings.TrimSpace(flags.secret) == "" {
		return errors.New("--secret is required with --remote")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := fxapp.NewLogger(os.Stderr, zerolog.InfoLevel, desc(), fxapp.NewInstanceID())

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = web.SeedTimeout + 10*time.Second
	client.Logger = retryLogger{logger}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp.StatusCode == http.StatusInternalServerError {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(flags.remote, "/")+"/api/seed", nil)
	if err != nil {
		return errors.Wrap(err, "invalid seed request")
	}
	req.Header.Set("Authorization", "Bearer "+flags.secret)
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "seed request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read seed response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("seed failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	_, err = fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return err
}

func writeIndentedJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

type seedSummary struct {
	seed.Result
	duration time.Duration
}

func (s seedSummary) MarshalZerologObject(e *zerolog.Event) {
	e.Int("categories", s.Categories).
		Int("products", s.Products).
		Int("users", s.Users).
		Int("orders", s.Orders).
		Dur("duration", s.duration)
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger
type retryLogger struct {
	*zerolog.Logger
}

func (l retryLogger) log(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		event = event.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	event.Msg(msg)
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(l.Logger.Error(), msg, keysAndValues)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(l.Logger.Info(), msg, keysAndValues)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(l.Logger.Debug(), msg, keysAndValues)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(l.Logger.Warn(), msg, keysAndValues)
}
