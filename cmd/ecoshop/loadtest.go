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
	"github.com/oysterpack/ecoshop/internal/loadtest"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

type loadTestFlags struct {
	config          string
	url             string
	stages          []string
	workers         uint64
	timeout         time.Duration
	report          string
	seed            int64
	p95             time.Duration
	maxErrorRate    float64
	minCacheHitRate float64
}

func newLoadTestCmd() *cobra.Command {
	var flags loadTestFlags
	defaults := loadtest.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Load test a running storefront",
		Long: `Simulates visitors browsing the storefront at a staged request rate, then reports latency, errors, cache
effectiveness, and the estimated CPU time saved by the page cache.

Options are loaded from the --config YAML file when set. Flags that are explicitly set override the file.
The command fails when any threshold is breached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadTestOptions(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoadTest(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "YAML options file")
	f.StringVar(&flags.url, "url", defaults.BaseURL, "storefront base URL")
	f.StringSliceVar(&flags.stages, "stage", nil, "stage as duration:target req/s, e.g., 30s:10 (repeatable)")
	f.Uint64Var(&flags.workers, "workers", defaults.Workers, "initial number of workers")
	f.DurationVar(&flags.timeout, "timeout", defaults.Timeout, "request timeout")
	f.StringVar(&flags.report, "report", defaults.ReportPath, "JSON report file, blank to skip")
	f.Int64Var(&flags.seed, "seed", 0, "random seed for product and category picks")
	f.DurationVar(&flags.p95, "p95", defaults.Thresholds.P95, "p95 latency threshold")
	f.Float64Var(&flags.maxErrorRate, "max-error-rate", defaults.Thresholds.MaxErrorRate, "error rate threshold")
	f.Float64Var(&flags.minCacheHitRate, "min-hit-rate", defaults.Thresholds.MinCacheHitRate, "cache hit rate threshold")
	return cmd
}

func loadTestOptions(cmd *cobra.Command, flags loadTestFlags) (loadtest.Options, error) {
	opts := loadtest.DefaultOptions()
	if flags.config != "" {
		var err error
		if opts, err = loadtest.LoadOptions(flags.config); err != nil {
			return opts, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("url") {
		opts.BaseURL = flags.url
	}
	if changed("stage") {
		stages, err := parseStages(flags.stages)
		if err != nil {
			return opts, err
		}
		opts.Stages = stages
	}
	if changed("workers") {
		opts.Workers = flags.workers
		if opts.MaxWorkers < opts.Workers {
			opts.MaxWorkers = opts.Workers
		}
	}
	if changed("timeout") {
		opts.Timeout = flags.timeout
	}
	if changed("report") {
		opts.ReportPath = flags.report
	}
	if changed("seed") {
		opts.Seed = flags.seed
	}
	if changed("p95") {
		opts.Thresholds.P95 = flags.p95
	}
	if changed("max-error-rate") {
		opts.Thresholds.MaxErrorRate = flags.maxErrorRate
	}
	if changed("min-hit-rate") {
		opts.Thresholds.MinCacheHitRate = flags.minCacheHitRate
	}
	return opts, opts.Validate()
}

// parseStages parses "duration:target" pairs
func parseStages(values []string) ([]loadtest.Stage, error) {
	stages := make([]loadtest.Stage, 0, len(values))
	for _, value := range values {
		duration, target, ok := strings.Cut(value, ":")
		if !ok {
			return nil, errors.Errorf("stage must be formatted as duration:target: %q", value)
		}
		d, err := time.ParseDuration(strings.TrimSpace(duration))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stage duration: %q", value)
		}
		n, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stage target: %q", value)
		}
		stages = append(stages, loadtest.Stage{Duration: d, Target: n})
	}
	return stages, nil
}

func runLoadTest(ctx context.Context, cmd *cobra.Command, opts loadtest.Options) error {
	logger := fxapp.NewLogger(cmd.ErrOrStderr(), zerolog.InfoLevel, desc(), fxapp.NewInstanceID())
	report, err := loadtest.Run(ctx, opts, logger)
	if err != nil {
		return err
	}
	if err := report.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if !report.Passed() {
		return errors.Errorf("thresholds failed: %s", strings.Join(report.FailedThresholds(), ", "))
	}
	return nil
}
