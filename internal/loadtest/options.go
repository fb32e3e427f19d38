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
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
	"net/url"
	"os"
	"time"
)

// Stage ramps the request rate linearly from the previous stage's target to this stage's target over the duration.
// Target is in requests per second.
type Stage struct {
	Duration time.Duration `yaml:"duration" json:"duration"`
	Target   int           `yaml:"target" json:"target"`
}

// Thresholds fail the load test when breached
type Thresholds struct {
	// P95 is the max 95th percentile latency
	P95 time.Duration `yaml:"p95" json:"p95"`
	// MaxErrorRate is in [0, 1]
	MaxErrorRate float64 `yaml:"maxErrorRate" json:"maxErrorRate"`
	// MinCacheHitRate is in [0, 1]
	MinCacheHitRate float64 `yaml:"minCacheHitRate" json:"minCacheHitRate"`
}

// Options configures a load test run
type Options struct {
	BaseURL    string        `yaml:"baseURL"`
	Stages     []Stage       `yaml:"stages"`
	Timeout    time.Duration `yaml:"timeout"`
	Workers    uint64        `yaml:"workers"`
	MaxWorkers uint64        `yaml:"maxWorkers"`
	Thresholds Thresholds    `yaml:"thresholds"`
	// ReportPath is where the JSON report is written. Blank means no JSON report.
	ReportPath string `yaml:"report"`
	// Seed drives the random product and category picks. 0 means seed from the clock.
	Seed int64 `yaml:"seed"`
}

// DefaultStages ramp up to 10 req/s, hold, spike to 30 req/s, hold, then ramp down
func DefaultStages() []Stage {
	return []Stage{
		{30 * time.Second, 10},
		{time.Minute, 10},
		{30 * time.Second, 30},
		{time.Minute, 30},
		{30 * time.Second, 0},
	}
}

// DefaultOptions targets a local server
func DefaultOptions() Options {
	return Options{
		BaseURL:    "http://localhost:8008",
		Stages:     DefaultStages(),
		Timeout:    30 * time.Second,
		Workers:    10,
		MaxWorkers: 100,
		Thresholds: Thresholds{
			P95:             2 * time.Second,
			MaxErrorRate:    0.05,
			MinCacheHitRate: 0.5,
		},
		ReportPath: "loadtest-report.json",
	}
}

// LoadOptions reads YAML options from the file. Fields missing from the file keep their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read options file: %s", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "invalid options file: %s", path)
	}
	return opts, opts.Validate()
}

// Duration sums the stage durations
func (o Options) Duration() time.Duration {
	var d time.Duration
	for _, stage := range o.Stages {
		d += stage.Duration
	}
	return d
}

// Validate aggregates all option errors
func (o Options) Validate() error {
	var err error
	if u, e := url.Parse(o.BaseURL); e != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		err = multierr.Append(err, errors.Errorf("base URL must be an absolute http(s) URL: %q", o.BaseURL))
	}
	if len(o.Stages) == 0 {
		err = multierr.Append(err, errors.New("at least 1 stage is required"))
	}
	for i, stage := range o.Stages {
		if stage.Duration <= 0 {
			err = multierr.Append(err, errors.Errorf("stage %d: duration must be greater than 0", i))
		}
		if stage.Target < 0 {
			err = multierr.Append(err, errors.Errorf("stage %d: target must not be negative", i))
		}
	}
	if o.Timeout <= 0 {
		err = multierr.Append(err, errors.New("timeout must be greater than 0"))
	}
	if o.Workers == 0 {
		err = multierr.Append(err, errors.New("at least 1 worker is required"))
	}
	if o.MaxWorkers < o.Workers {
		err = multierr.Append(err, errors.New("max workers must be greater than or equal to workers"))
	}
	if o.Thresholds.MaxErrorRate < 0 || o.Thresholds.MaxErrorRate > 1 {
		err = multierr.Append(err, errors.New("max error rate must be in [0, 1]"))
	}
	if o.Thresholds.MinCacheHitRate < 0 || o.Thresholds.MinCacheHitRate > 1 {
		err = multierr.Append(err, errors.New("min cache hit rate must be in [0, 1]"))
	}
	return err
}
