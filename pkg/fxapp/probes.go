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

package fxapp

import (
	"fmt"
	"net/http"
	"sync"
)

// ReadinessWaitGroup is used by application components to signal when they are ready to service requests
type ReadinessWaitGroup interface {
	Add(delta uint)
	Inc()

	// Count returns the wait group counter value. When the count is zero, it means the wait group is done.
	Count() uint

	// Done decrements the wait group counter by one
	Done()

	// Ready returns a chan that is used to signal when the wait group counter is zero.
	Ready() <-chan struct{}
}

// NewReadinessWaitgroup returns a new ReadinessWaitGroup initialized with the specified count
func NewReadinessWaitgroup(count uint) ReadinessWaitGroup {
	wg := &sync.WaitGroup{}
	wg.Add(int(count))
	return &readinessWaitGroup{
		WaitGroup: wg,
		count:     count,
	}
}

type readinessWaitGroup struct {
	*sync.WaitGroup
	sync.Mutex
	count uint
}

func (r *readinessWaitGroup) Add(delta uint) {
	r.Lock()
	defer r.Unlock()
	r.WaitGroup.Add(int(delta))
	r.count += delta
}

func (r *readinessWaitGroup) Inc() {
	r.Add(1)
}

func (r *readinessWaitGroup) Count() uint {
	r.Lock()
	defer r.Unlock()
	return r.count
}

func (r *readinessWaitGroup) Done() {
	r.Lock()
	defer r.Unlock()
	if r.count == 0 {
		return
	}
	r.count--
	r.WaitGroup.Done()
}

// Ready returns a chan that is used to signal that the application is ready to service requests
func (r *readinessWaitGroup) Ready() <-chan struct{} {
	c := make(chan struct{})
	go func() {
		defer close(c)
		r.Wait()
	}()
	return c
}

// probe endpoints
const (
	ReadinessProbePath = "/ready"
	LivenessProbePath  = "/live"
)

func readinessProbeHTTPHandler(readiness ReadinessWaitGroup) HTTPHandler {
	return NewHTTPHandler(ReadinessProbePath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		count := readiness.Count()
		switch count {
		case 0:
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Add("x-readiness-wait-group-count", fmt.Sprint(count))
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}, http.MethodGet, http.MethodHead)
}

// the liveness probe fails only when the app is stopping
func livenessProbeHTTPHandler(app LifeCycle) HTTPHandler {
	return NewHTTPHandler(LivenessProbePath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		select {
		case <-app.Stopping():
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}, http.MethodGet, http.MethodHead)
}
