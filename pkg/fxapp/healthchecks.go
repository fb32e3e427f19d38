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
	"context"
	"encoding/json"
	"github.com/oysterpack/ecoshop/pkg/fxapp/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net/http"
)

// HealthCheckResultEvent is logged for every health check run
const HealthCheckResultEvent EventTypeID = "01J8GV764KCRGE00KXHMFYFF1T"

// HealthCheckPath exposes the latest health check results
const HealthCheckPath = "/health"

func startHealthCheckScheduler(registry health.Registry, lc fx.Lifecycle) health.Scheduler {
	scheduler := health.StartScheduler(registry)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			scheduler.StopAsync()
			select {
			case <-scheduler.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return scheduler
}

// logHealthCheckResults logs health check results:
//	- Green -> debug
//	- Yellow -> warn
//	- Red -> error
//
// A gauge is maintained per health check, using the health check status as the gauge value.
func logHealthCheckResults(scheduler health.Scheduler, registerer prometheus.Registerer, logger *zerolog.Logger) error {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status: 0 = Green, 1 = Yellow, 2 = Red",
	}, []string{"id"})
	if err := registerer.Register(gauge); err != nil {
		return err
	}

	logGreen := HealthCheckResultEvent.NewLogEvent(logger, zerolog.DebugLevel)
	logYellow := HealthCheckResultEvent.NewLogEvent(logger, zerolog.WarnLevel)
	logRed := HealthCheckResultEvent.NewLogEvent(logger, zerolog.ErrorLevel)

	results := scheduler.Subscribe(nil)
	go func() {
		for {
			select {
			case <-scheduler.Done():
				return
			case result, ok := <-results:
				if !ok {
					return
				}
				gauge.WithLabelValues(result.HealthCheckID().String()).Set(float64(result.Status()))
				switch result.Status() {
				case health.Green:
					logGreen(result, "health check passed")
				case health.Yellow:
					logYellow(result, "health check warning")
				default:
					logRed(result, "health check failed")
				}
			}
		}
	}()
	return nil
}

type healthCheckResponse struct {
	Status health.Status   `json:"status"`
	Checks []health.Check  `json:"checks"`
	Result []health.Result `json:"results"`
}

// healthCheckHTTPHandler reports the overall status, i.e., the worst health check status.
// A Red overall status responds with 503.
func healthCheckHTTPHandler(registry health.Registry, scheduler health.Scheduler) HTTPHandler {
	return NewHTTPHandler(HealthCheckPath, func(w http.ResponseWriter, _ *http.Request) {
		resp := healthCheckResponse{
			Status: health.Green,
			Checks: registry.HealthChecks(nil),
			Result: scheduler.Results(),
		}
		for _, result := range resp.Result {
			if result.Status() > resp.Status {
				resp.Status = result.Status()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if resp.Status == health.Red {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}, http.MethodGet)
}
