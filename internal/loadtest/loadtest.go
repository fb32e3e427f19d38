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

// Package loadtest drives the storefront with a staged request rate while simulating visitor journeys, and reports
// latency, errors, and cache effectiveness against pass/fail thresholds.
package loadtest

import (
	"context"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/rs/zerolog"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"time"
)

// load test events
const (
	AttackStartedEvent  fxapp.EventTypeID = "01JZCKCEXEGJ6ZBEZT39S3D19T"
	AttackFinishedEvent fxapp.EventTypeID = "01J33BSWM75ANCBX2KRQNWA605"
)

// AttackName tags the vegeta results
const AttackName = "ecoshop-journey"

// Run attacks opts.BaseURL until all stages are done or the context is cancelled, and returns the report with the
// thresholds evaluated. The JSON report is written when opts.ReportPath is set.
func Run(ctx context.Context, opts Options, logger *zerolog.Logger) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	steps := Journey()
	targeter := newJourneyTargeter(opts.BaseURL, steps, opts.Seed)
	pacer := StagedPacer{Stages: opts.Stages}
	attacker := vegeta.NewAttacker(
		vegeta.Timeout(opts.Timeout),
		vegeta.Workers(opts.Workers),
		vegeta.MaxWorkers(opts.MaxWorkers),
		vegeta.KeepAlive(true),
		vegeta.Redirects(vegeta.NoFollow),
	)

	logStarted := AttackStartedEvent.NewLogEvent(logger, zerolog.InfoLevel)
	logFinished := AttackFinishedEvent.NewLogEvent(logger, zerolog.InfoLevel)
	logStarted(attackStarted{opts}, "load test started")

	collector := newCollector(steps)
	start := time.Now()
	results := attacker.Attack(targeter.Targeter(), pacer, opts.Duration(), AttackName)
	stopped := false
	done := ctx.Done()
	for {
		select {
		case result, ok := <-results:
			if !ok {
				report := collector.close(time.Since(start))
				report.BaseURL = opts.BaseURL
				report.evaluate(opts.Thresholds)
				logFinished(attackFinished{&report, stopped}, "load test finished")
				if opts.ReportPath != "" {
					if err := report.WriteJSONFile(opts.ReportPath); err != nil {
						return report, err
					}
				}
				return report, nil
			}
			collector.add(result)
		case <-done:
			// in flight requests still deliver their results before the channel is closed
			attacker.Stop()
			stopped = true
			done = nil
		}
	}
}

type attackStarted struct {
	Options
}

func (e attackStarted) MarshalZerologObject(event *zerolog.Event) {
	event.Str("url", e.BaseURL).
		Dur("duration", e.Duration()).
		Int("stages", len(e.Stages)).
		Uint64("workers", e.Workers).
		Int64("seed", e.Seed)
}

type attackFinished struct {
	*Report
	stopped bool
}

func (e attackFinished) MarshalZerologObject(event *zerolog.Event) {
	event.Uint64("requests", e.Requests).
		Int("journeys", e.Journeys).
		Float64("error_rate", e.ErrorRate).
		Dur("p95", e.Latency.P95).
		Float64("hit_rate", e.Cache.HitRate).
		Bool("passed", e.Passed()).
		Bool("stopped", e.stopped)
}
