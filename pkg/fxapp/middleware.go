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
	"bufio"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid"
	"github.com/oysterpack/ecoshop/pkg/ulids"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RequestIDHeader is set on every response
const RequestIDHeader = "X-Request-Id"

// HTTP request events
const (
	HTTPRequestEvent      EventTypeID = "01J53TW8JZ38AYTNJKGGSFKYS7"
	HTTPRequestPanicEvent EventTypeID = "01JAA4DZEWNWV8CF5BN5MFQGC1"
)

// builtinMiddleware is applied by the app to every request before the registered middleware:
//	1. request ID + request logging
//	2. prometheus instrumentation
//	3. panic recovery
type builtinMiddleware struct {
	fx.In

	Logger     *zerolog.Logger
	Registerer prometheus.Registerer
}

func (b builtinMiddleware) middlewares() []Middleware {
	requests := RegisterCounterVec(b.Registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests partitioned by route, method, and status code",
		},
		[]string{"route", "method", "code"},
	))
	durations := RegisterHistogramVec(b.Registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies partitioned by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	))

	nextRequestID := ulids.MonotonicULIDGenerator()
	logRequest := HTTPRequestEvent.NewLogEvent(b.Logger, zerolog.DebugLevel)
	logPanic := HTTPRequestPanicEvent.NewLogEvent(b.Logger, zerolog.ErrorLevel)

	return []Middleware{
		{
			Name: "request-log",
			Wrap: func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					id := nextRequestID()
					w.Header().Set(RequestIDHeader, id.String())
					rec := &statusRecorder{ResponseWriter: w}
					start := time.Now()
					next.ServeHTTP(rec, r)
					logRequest(requestInfo{
						id:       id,
						method:   r.Method,
						path:     r.URL.Path,
						status:   rec.Status(),
						duration: time.Since(start),
						cache:    rec.Header().Get("X-Cache"),
					}, "HTTP request")
				})
			},
		},
		{
			Name: "metrics",
			Wrap: func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					rec := &statusRecorder{ResponseWriter: w}
					start := time.Now()
					next.ServeHTTP(rec, r)
					route := routeName(r)
					durations.WithLabelValues(route).Observe(time.Since(start).Seconds())
					requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.Status())).Inc()
				})
			},
		},
		{
			Name: "recover",
			Wrap: func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					defer func() {
						if p := recover(); p != nil {
							if p == http.ErrAbortHandler {
								panic(p)
							}
							logPanic(panicInfo{path: r.URL.Path, err: errors.Errorf("%v", p)}, "HTTP handler panicked")
							http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
						}
					}()
					next.ServeHTTP(w, r)
				})
			},
		},
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("%T does not support hijacking", r.ResponseWriter)
}

type requestInfo struct {
	id       ulid.ULID
	method   string
	path     string
	status   int
	duration time.Duration
	cache    string
}

func (info requestInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", info.id.String()).
		Str("method", info.method).
		Str("path", info.path).
		Int("status", info.status).
		Dur("duration", info.duration)
	if info.cache != "" {
		e.Str("cache", info.cache)
	}
}

type panicInfo struct {
	path string
	err  error
}

func (info panicInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", info.path).Err(info.err)
}
