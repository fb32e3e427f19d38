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

package loadtest

import (
	"encoding/json"
	"fmt"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// RenderCPUCost is the estimated server CPU time spent rendering a page that is not served from the cache
const RenderCPUCost = 200 * time.Millisecond

type LatencySummary struct {
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	Mean time.Duration `json:"mean"`
	Max  time.Duration `json:"max"`
}

type CacheSummary struct {
	HitRate float64 `json:"hitRate"`
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
}

// CPUSavings estimates the render CPU time the cache saved, and projects it onto 1M requests
type CPUSavings struct {
	PerHit          time.Duration `json:"perHit"`
	Saved           time.Duration `json:"saved"`
	HitsPerMillion  int64         `json:"hitsPerMillion"`
	SavedPerMillion time.Duration `json:"savedPerMillion"`
}

func estimateCPUSavings(hits int, requests uint64) CPUSavings {
	savings := CPUSavings{
		PerHit: RenderCPUCost,
		Saved:  time.Duration(hits) * RenderCPUCost,
	}
	if requests > 0 {
		savings.HitsPerMillion = int64(math.Round(float64(hits) / float64(requests) * 1e6))
		savings.SavedPerMillion = time.Duration(savings.HitsPerMillion) * RenderCPUCost
	}
	return savings
}

// ThresholdResult is the outcome of a single threshold
type ThresholdResult struct {
	Name   string `json:"name"`
	Limit  string `json:"limit"`
	Actual string `json:"actual"`
	Passed bool   `json:"passed"`
}

// Report summarizes a load test run
type Report struct {
	BaseURL     string            `json:"baseURL"`
	Duration    time.Duration     `json:"duration"`
	Requests    uint64            `json:"requests"`
	Journeys    int               `json:"journeys"`
	ErrorRate   float64           `json:"errorRate"`
	Latency     LatencySummary    `json:"latency"`
	PageLoadP95 time.Duration     `json:"pageLoadP95"`
	Cache       CacheSummary      `json:"cache"`
	CPU         CPUSavings        `json:"cpu"`
	Steps       []StepSummary     `json:"steps"`
	Checks      []CheckResult     `json:"checks"`
	Thresholds  []ThresholdResult `json:"thresholds"`
	StatusCodes map[string]int    `json:"statusCodes"`
	Errors      []string          `json:"errors,omitempty"`
}

func percent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

func (r *Report) evaluate(thresholds Thresholds) {
	r.Thresholds = []ThresholdResult{
		{
			Name:   "p95 latency",
			Limit:  "< " + thresholds.P95.String(),
			Actual: r.Latency.P95.String(),
			Passed: r.Latency.P95 < thresholds.P95,
		},
		{
			Name:   "error rate",
			Limit:  "< " + percent(thresholds.MaxErrorRate),
			Actual: percent(r.ErrorRate),
			Passed: r.ErrorRate < thresholds.MaxErrorRate,
		},
		{
			Name:   "cache hit rate",
			Limit:  "> " + percent(thresholds.MinCacheHitRate),
			Actual: percent(r.Cache.HitRate),
			Passed: r.Cache.HitRate > thresholds.MinCacheHitRate,
		},
	}
}

// Passed returns true if every threshold passed
func (r Report) Passed() bool {
	return lo.EveryBy(r.Thresholds, func(t ThresholdResult) bool { return t.Passed })
}

// FailedThresholds returns the names of the thresholds that were breached
func (r Report) FailedThresholds() []string {
	return lo.FilterMap(r.Thresholds, func(t ThresholdResult, _ int) (string, bool) {
		return t.Name, !t.Passed
	})
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// WriteText writes the human readable summary
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(tw, format+"\n", args...)
	}

	line("LOAD TEST SUMMARY\t%s", r.BaseURL)
	line("")
	line("Requests\t%d", r.Requests)
	line("Journeys\t%d", r.Journeys)
	line("Duration\t%s", r.Duration.Round(time.Millisecond))
	line("Error rate\t%s", percent(r.ErrorRate))
	line("")
	line("LATENCY")
	line("p50\t%s", ms(r.Latency.P50))
	line("p95\t%s", ms(r.Latency.P95))
	line("mean\t%s", ms(r.Latency.Mean))
	line("max\t%s", ms(r.Latency.Max))
	line("page load p95\t%s", ms(r.PageLoadP95))
	line("")
	line("CACHE")
	line("Hit rate\t%s", percent(r.Cache.HitRate))
	line("Hits\t%d", r.Cache.Hits)
	line("Misses\t%d", r.Cache.Misses)
	line("")
	line("CPU SAVINGS (%s per cached render)", r.CPU.PerHit)
	line("Saved during the test\t%.0fms (%.4f hours)", float64(r.CPU.Saved)/float64(time.Millisecond), r.CPU.Saved.Hours())
	line("Projected per 1M requests\t%d cached renders, %.2f CPU hours saved", r.CPU.HitsPerMillion, r.CPU.SavedPerMillion.Hours())
	line("")
	line("STEPS\trequests\tp95\tmean\thit rate")
	for _, step := range r.Steps {
		line("%s\t%d\t%s\t%s\t%s", step.Name, step.Requests, ms(step.P95), ms(step.Mean), percent(step.HitRate))
	}
	line("")
	line("CHECKS\tpasses\tfails")
	for _, check := range r.Checks {
		mark := "✓"
		if check.Fails > 0 {
			mark = "✗"
		}
		line("%s %s\t%d\t%d", mark, check.Name, check.Passes, check.Fails)
	}
	line("")
	line("STATUS CODES")
	codes := lo.Keys(r.StatusCodes)
	sort.Strings(codes)
	for _, code := range codes {
		line("%s\t%d", code, r.StatusCodes[code])
	}
	line("")
	line("THRESHOLDS\tlimit\tactual")
	for _, threshold := range r.Thresholds {
		status := "PASS"
		if !threshold.Passed {
			status = "FAIL"
		}
		line("%s %s\t%s\t%s", status, threshold.Name, threshold.Limit, threshold.Actual)
	}
	if failed := r.FailedThresholds(); len(failed) > 0 {
		line("")
		line("FAILED: %s", strings.Join(failed, ", "))
	}
	return errors.Wrap(tw.Flush(), "failed to write report")
}

// WriteJSON writes the full report as indented JSON
func (r Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(r), "failed to encode report")
}

// WriteJSONFile writes the JSON report to the file, replacing it if it exists
func (r Report) WriteJSONFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report file: %s", path)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close report file: %s", path)
}
