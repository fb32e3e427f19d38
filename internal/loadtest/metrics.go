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
	"github.com/oysterpack/ecoshop/internal/pagecache"
	"github.com/samber/lo"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"sort"
	"time"
)

// CheckResult counts how often a check passed and failed
type CheckResult struct {
	Step   string `json:"step"`
	Name   string `json:"name"`
	Passes int    `json:"passes"`
	Fails  int    `json:"fails"`
}

// PassRate is in [0, 1]. A check that never ran has a pass rate of 1.
func (c CheckResult) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 1
	}
	return float64(c.Passes) / float64(total)
}

// collector aggregates the attack results
type collector struct {
	steps map[string]Step

	all       vegeta.Metrics
	pageLoads vegeta.Metrics
	perStep   map[string]*vegeta.Metrics
	checks    map[string]map[string]*CheckResult

	hits, misses int
	stepHits     map[string]int
}

func newCollector(steps []Step) *collector {
	c := &collector{
		steps:    lo.KeyBy(steps, func(step Step) string { return step.Name }),
		perStep:  make(map[string]*vegeta.Metrics, len(steps)),
		checks:   make(map[string]map[string]*CheckResult, len(steps)),
		stepHits: make(map[string]int, len(steps)),
	}
	for _, step := range steps {
		c.perStep[step.Name] = &vegeta.Metrics{}
		c.checks[step.Name] = make(map[string]*CheckResult, len(step.Checks))
		for _, check := range step.Checks {
			c.checks[step.Name][check.Name] = &CheckResult{Step: step.Name, Name: check.Name}
		}
	}
	return c
}

func (c *collector) add(result *vegeta.Result) {
	c.all.Add(result)

	step, ok := c.steps[StepName(result.URL)]
	if !ok {
		return
	}
	c.perStep[step.Name].Add(result)
	if step.PageLoad {
		c.pageLoads.Add(result)
	}

	// transport errors have no response to check or count
	if result.Code == 0 {
		return
	}
	resp := Response{Status: int(result.Code), Header: result.Headers}
	switch {
	case step.Uncached:
	case resp.Header.Get(pagecache.Header) == pagecache.Hit:
		c.hits++
		c.stepHits[step.Name]++
	default:
		c.misses++
	}
	for _, check := range step.Checks {
		counts := c.checks[step.Name][check.Name]
		if check.Pass(resp) {
			counts.Passes++
		} else {
			counts.Fails++
		}
	}
}

// StepSummary reports the latency and cache effectiveness per journey step
type StepSummary struct {
	Name     string        `json:"name"`
	Requests uint64        `json:"requests"`
	P95      time.Duration `json:"p95"`
	Mean     time.Duration `json:"mean"`
	HitRate  float64       `json:"hitRate"`
}

func (c *collector) close(elapsed time.Duration) Report {
	c.all.Close()
	c.pageLoads.Close()
	for _, m := range c.perStep {
		m.Close()
	}

	// each journey starts on the home page
	journeys := int(c.perStep[StepHome].Requests)

	stepNames := lo.Keys(c.perStep)
	sort.Slice(stepNames, func(i, j int) bool {
		return stepIndex(stepNames[i]) < stepIndex(stepNames[j])
	})
	steps := lo.Map(stepNames, func(name string, _ int) StepSummary {
		m := c.perStep[name]
		summary := StepSummary{
			Name:     name,
			Requests: m.Requests,
			P95:      m.Latencies.P95,
			Mean:     m.Latencies.Mean,
		}
		if m.Requests > 0 {
			summary.HitRate = float64(c.stepHits[name]) / float64(m.Requests)
		}
		return summary
	})

	checks := lo.FlatMap(stepNames, func(name string, _ int) []CheckResult {
		return lo.Map(c.steps[name].Checks, func(check Check, _ int) CheckResult {
			return *c.checks[name][check.Name]
		})
	})

	report := Report{
		Duration:  elapsed,
		Requests:  c.all.Requests,
		Journeys:  journeys,
		ErrorRate: 1 - c.all.Success,
		Latency: LatencySummary{
			P50:  c.all.Latencies.P50,
			P95:  c.all.Latencies.P95,
			Mean: c.all.Latencies.Mean,
			Max:  c.all.Latencies.Max,
		},
		PageLoadP95: c.pageLoads.Latencies.P95,
		Cache: CacheSummary{
			Hits:   c.hits,
			Misses: c.misses,
		},
		Steps:       steps,
		Checks:      checks,
		StatusCodes: c.all.StatusCodes,
		Errors:      c.all.Errors,
	}
	if c.all.Requests == 0 {
		report.ErrorRate = 0
	}
	if total := c.hits + c.misses; total > 0 {
		report.Cache.HitRate = float64(c.hits) / float64(total)
	}
	report.CPU = estimateCPUSavings(c.hits, report.Requests)
	return report
}

func stepIndex(name string) int {
	_, i, _ := lo.FindIndexOf(Journey(), func(step Step) bool { return step.Name == name })
	return i
}
