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
	"math"
	"time"
)

// idleWait is how long the pacer waits while the target rate is 0
const idleWait = 10 * time.Millisecond

// StagedPacer implements vegeta.Pacer. The rate is interpolated linearly within each stage, starting from the previous
// stage's target, i.e., the first stage ramps up from 0.
type StagedPacer struct {
	Stages []Stage
}

// Rate returns the requests per second at the elapsed time. It is 0 once all stages are done.
func (p StagedPacer) Rate(elapsed time.Duration) float64 {
	var start time.Duration
	from := 0.0
	for _, stage := range p.Stages {
		to := float64(stage.Target)
		if elapsed < start+stage.Duration {
			progress := float64(elapsed-start) / float64(stage.Duration)
			return from + (to-from)*progress
		}
		start += stage.Duration
		from = to
	}
	return 0
}

// hits returns the number of hits that should have been sent by the elapsed time, i.e., the area under the rate curve
func (p StagedPacer) hits(elapsed time.Duration) float64 {
	var start time.Duration
	from, total := 0.0, 0.0
	for _, stage := range p.Stages {
		to := float64(stage.Target)
		if elapsed < start+stage.Duration {
			partial := elapsed - start
			total += (from + p.Rate(elapsed)) / 2 * partial.Seconds()
			return total
		}
		total += (from + to) / 2 * stage.Duration.Seconds()
		start += stage.Duration
		from = to
	}
	return total
}

func (p StagedPacer) duration() time.Duration {
	var d time.Duration
	for _, stage := range p.Stages {
		d += stage.Duration
	}
	return d
}

// Pace returns how long to wait before the next hit. The attack stops once all stages are done.
func (p StagedPacer) Pace(elapsed time.Duration, hits uint64) (time.Duration, bool) {
	total := p.duration()
	if elapsed >= total {
		return 0, true
	}
	expected := p.hits(elapsed)
	if float64(hits) < expected {
		return 0, false
	}
	rate := p.Rate(elapsed)
	if rate <= 0 {
		return minDuration(idleWait, total-elapsed), false
	}
	wait := time.Duration(math.Ceil((float64(hits) + 1 - expected) / rate * float64(time.Second)))
	return minDuration(wait, total-elapsed), false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
