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

package health

import (
	"github.com/oklog/ulid"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is used to schedule health checks to run.
//
// Design
// - Only 1 health check will be allowed to run at a time to prevent application / system overload.
// - A health check is run as soon as it is scheduled. The next run is scheduled when the run is complete.
// - As health checks are registered, then they will get scheduled to run.
// - Once the scheduler is stopped, it cannot be restarted
type Scheduler interface {
	// StopAsync triggers shutdown async
	StopAsync()

	// Stopping returns true is StopAsync has previously been invoked
	Stopping() bool

	// Done returns a channel that is used to signal that the scheduler shutdown has completed
	Done() <-chan struct{}

	// HealthCheckCount returns the number of health checks that are currently scheduled
	HealthCheckCount() uint

	// Results returns the latest result for each health check that has run at least once, ordered by health check ID.
	Results() []Result

	// Subscribe is used to subscribe to health check results.
	//
	// If the scheduler has been shutdown, then a closed channel will be returned.
	// As soon as the scheduler shutdown is complete, then no more health check results will be published - even if they
	// are in flight.
	Subscribe(filter func(check Check) bool) <-chan Result
}

type scheduler struct {
	Registry

	shutdown chan struct{} // used to trigger the scheduler to shutdown
	done     chan struct{} // used to signal when the scheduler shutdown is complete

	healthCheckCount uint32

	results    chan runResult        // used to publish health check run results
	subscribe  chan subscribeRequest // used to subscribe to health check run results
	getResults chan chan []Result

	runLock   sync.Mutex
	schedules sync.WaitGroup
	stopOnce  sync.Once
}

type runResult struct {
	Check
	Result
}

type subscribeRequest struct {
	filter func(Check) bool
	reply  chan chan Result
}

// StartScheduler starts up a new health check scheduler for the specified registry.
func StartScheduler(registry Registry) Scheduler {
	s := &scheduler{
		Registry: registry,

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),

		results:    make(chan runResult),
		subscribe:  make(chan subscribeRequest),
		getResults: make(chan chan []Result),
	}

	// subscribe before listing the registered checks, otherwise a registration in between would be missed
	registered := registry.Subscribe()
	scheduled := make(map[ulid.ULID]bool)
	for _, check := range registry.HealthChecks(nil) {
		scheduled[check.ID()] = true
		s.startSchedule(check)
	}

	go s.run(registered, scheduled)
	return s
}

func (s *scheduler) run(registered <-chan Check, scheduled map[ulid.ULID]bool) {
	defer close(s.done)

	latest := make(map[ulid.ULID]Result)
	subscriptions := make(map[chan Result]func(Check) bool)

	for {
		select {
		case <-s.shutdown:
			s.schedules.Wait()
			return
		case check := <-registered:
			if !scheduled[check.ID()] {
				scheduled[check.ID()] = true
				s.startSchedule(check)
			}
		case result := <-s.results:
			latest[result.HealthCheckID()] = result.Result
			for ch, filter := range subscriptions {
				if filter == nil || filter(result.Check) {
					go s.send(result.Result, ch)
				}
			}
		case req := <-s.subscribe:
			ch := make(chan Result)
			subscriptions[ch] = req.filter
			req.reply <- ch
		case reply := <-s.getResults:
			results := make([]Result, 0, len(latest))
			for _, result := range latest {
				results = append(results, result)
			}
			sort.Slice(results, func(i, j int) bool {
				return results[i].HealthCheckID().Compare(results[j].HealthCheckID()) < 0
			})
			reply <- results
		}
	}
}

func (s *scheduler) send(result Result, ch chan<- Result) {
	select {
	case ch <- result:
	case <-s.done:
	}
}

func (s *scheduler) startSchedule(check Check) {
	s.schedules.Add(1)
	atomic.AddUint32(&s.healthCheckCount, 1)
	go s.schedule(check)
}

func (s *scheduler) schedule(check Check) {
	defer func() {
		atomic.AddUint32(&s.healthCheckCount, ^uint32(0))
		s.schedules.Done()
	}()

	for {
		result := s.runHealthCheck(check)
		select {
		case <-s.shutdown:
			return
		case s.results <- runResult{check, result}:
		}

		timer := time.NewTimer(check.RunInterval())
		select {
		case <-s.shutdown:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *scheduler) runHealthCheck(check Check) Result {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	return check.Run()
}

func (s *scheduler) StopAsync() {
	s.stopOnce.Do(func() { close(s.shutdown) })
}

func (s *scheduler) Stopping() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

func (s *scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *scheduler) HealthCheckCount() uint {
	return uint(atomic.LoadUint32(&s.healthCheckCount))
}

func (s *scheduler) Results() []Result {
	reply := make(chan []Result, 1)
	select {
	case <-s.done:
		return nil
	case s.getResults <- reply:
		return <-reply
	}
}

func (s *scheduler) Subscribe(filter func(Check) bool) <-chan Result {
	req := subscribeRequest{
		filter,
		make(chan chan Result, 1),
	}

	closedChan := func() chan Result {
		ch := make(chan Result)
		close(ch)
		return ch
	}

	select {
	case <-s.done:
		return closedChan()
	case s.subscribe <- req:
		return <-req.reply
	}
}
