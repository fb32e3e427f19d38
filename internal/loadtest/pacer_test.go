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

package loadtest_test

import (
	"github.com/oysterpack/ecoshop/internal/loadtest"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestStagedPacer_Rate(t *testing.T) {
	pacer := loadtest.StagedPacer{Stages: loadtest.DefaultStages()}
	for _, tc := range []struct {
		elapsed time.Duration
		rate    float64
	}{
		{0, 0},
		{15 * time.Second, 5},
		{30 * time.Second, 10},
		{time.Minute, 10},
		{2*time.Minute + 15*time.Second, 20},
		{3 * time.Minute, 30},
		{3*time.Minute + 15*time.Second, 15},
		{3*time.Minute + 30*time.Second, 0},
		{time.Hour, 0},
	} {
		assert.InDelta(t, tc.rate, pacer.Rate(tc.elapsed), 0.0001, "elapsed: %s", tc.elapsed)
	}
}

func TestStagedPacer_Pace(t *testing.T) {
	pacer := loadtest.StagedPacer{Stages: loadtest.DefaultStages()}

	// the rate is 0 at the start
	wait, stop := pacer.Pace(0, 0)
	assert.False(t, stop)
	assert.True(t, wait > 0)

	// behind schedule: 150 hits are due after the 1st stage
	wait, stop = pacer.Pace(30*time.Second, 100)
	assert.False(t, stop)
	assert.Zero(t, wait)

	// on schedule at 10 req/s: 300 hits are due at 45s
	wait, stop = pacer.Pace(45*time.Second, 300)
	assert.False(t, stop)
	assert.InDelta(t, float64(100*time.Millisecond), float64(wait), float64(time.Microsecond))

	_, stop = pacer.Pace(3*time.Minute+30*time.Second, 2000)
	assert.True(t, stop)
}
