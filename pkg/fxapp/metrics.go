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
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"net/http"
)

// MetricsPath is the prometheus scrape endpoint
const MetricsPath = "/metrics"

// PrometheusHTTPError indicates an error occurred while handling a metrics scrape HTTP request.
const PrometheusHTTPError EventTypeID = "01JTRTDRHN3ZHQ8D5HFRSWVK18"

// newMetricRegistry creates the app metric registry, which is pre-registered with the go runtime and process collectors.
func newMetricRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, registry
}

func metricsHTTPHandler(gatherer prometheus.Gatherer, registerer prometheus.Registerer, logger *zerolog.Logger) HTTPHandler {
	errorLog := prometheusHTTPErrorLog(PrometheusHTTPError.NewLogEvent(logger, zerolog.ErrorLevel))
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:            errorLog,
		ErrorHandling:       promhttp.ContinueOnError,
		Registry:            registerer,
		MaxRequestsInFlight: 5,
	})
	return NewHTTPHandler(MetricsPath, handler.ServeHTTP, http.MethodGet)
}

// RegisterCounterVec registers the counter vector, or returns the previously registered one
func RegisterCounterVec(registerer prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

// RegisterHistogramVec registers the histogram vector, or returns the previously registered one
func RegisterHistogramVec(registerer prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(err)
	}
	return h
}

// FindMetricFamily returns the first metric family that matches the filter
func FindMetricFamily(mfs []*dto.MetricFamily, accept func(mf *dto.MetricFamily) bool) *dto.MetricFamily {
	for _, mf := range mfs {
		if accept(mf) {
			return mf
		}
	}
	return nil
}

// MetricFamilyNamed returns a filter that matches on the metric family name
func MetricFamilyNamed(name string) func(mf *dto.MetricFamily) bool {
	return func(mf *dto.MetricFamily) bool {
		return mf.GetName() == name
	}
}

type prometheusHTTPErrorLog LogEvent

func (errLog prometheusHTTPErrorLog) Println(v ...interface{}) {
	errLog(prometheusHTTPError(fmt.Sprint(v...)), "prometheus HTTP handler error")
}

type prometheusHTTPError string

func (err prometheusHTTPError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(errors.New(string(err)))
}
