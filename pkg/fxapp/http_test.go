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

package fxapp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/oysterpack/ecoshop/pkg/fxapp/health"
	"github.com/oysterpack/ecoshop/pkg/fxapptest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func helloHandler() fxapp.HTTPHandler {
	return fxapp.NewHTTPHandler("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello %s", strings.TrimPrefix(r.URL.Path, "/hello/"))
	}, http.MethodGet)
}

func localServer() fx.Annotated {
	return fx.Annotated{
		Name: "http.Server",
		Target: func() *http.Server {
			return &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
		},
	}
}

// serverAddr extracts the bound address from the HTTP server starting event
func serverAddr(t *testing.T, buf *fxapptest.SyncLog) string {
	events := buf.EventsOfType(fxapp.HTTPServerStarting.String())
	require.Len(t, events, 1)
	data, ok := events[0].Fields[fxapp.HTTPServerStarting.String()].(map[string]interface{})
	require.True(t, ok)
	addr, ok := data["addr"].(string)
	require.True(t, ok)
	return "http://" + addr
}

func httpGet(t *testing.T, url string) (*http.Response, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHTTPServer(t *testing.T) {
	buf := fxapptest.NewSyncLog()
	app, err := fxapp.NewAppBuilder(testDesc()).
		LogWriter(buf).
		LogLevel(zerolog.DebugLevel).
		Provide(localServer(), helloHandler).
		ExposeProbesViaHTTP().
		ExposeMetricsViaHTTP().
		ExposeHealthChecksViaHTTP().
		Invoke(func(registry health.Registry) error {
			return registry.Register(health.NewBuilder("01JNDY0YP57RCYBVN5SXS5AA81").
				Description("always green").
				RedImpact("none").
				Checker(func(ctx context.Context) health.Failure { return nil }).
				MustBuild())
		}).
		Build()
	require.NoError(t, err)

	go app.Run()
	defer func() {
		app.Shutdown()
		<-app.Done()
	}()
	<-app.Ready()
	baseURL := serverAddr(t, buf)

	resp, body := httpGet(t, baseURL+"/hello/world")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", body)
	assert.NotEmpty(t, resp.Header.Get(fxapp.RequestIDHeader))

	resp, _ = httpGet(t, baseURL+fxapp.ReadinessProbePath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = httpGet(t, baseURL+fxapp.LivenessProbePath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = httpGet(t, baseURL+"/no-such-page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fxapp.RequestIDHeader), "middleware is applied to unmatched requests")

	resp, body = httpGet(t, baseURL+fxapp.MetricsPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `http_requests_total{code="200",method="GET",route="/hello/{name}"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds")

	// the health check runs as soon as it is registered
	assert.Eventually(t, func() bool {
		resp, body := httpGet(t, baseURL+fxapp.HealthCheckPath)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var report struct {
			Status  string            `json:"status"`
			Results []json.RawMessage `json:"results"`
		}
		return json.Unmarshal([]byte(body), &report) == nil && report.Status == "Green" && len(report.Results) == 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.True(t, buf.HasEvent(fxapp.HTTPRequestEvent.String()))
}

func TestHTTPRouter_DuplicateEndpoints(t *testing.T) {
	_, err := fxapp.NewAppBuilder(testDesc()).
		LogWriter(fxapptest.NewSyncLog()).
		Provide(
			helloHandler,
			func() fxapp.HTTPHandlers {
				return fxapp.HTTPHandlers{
					Endpoints: []fxapp.HTTPEndpoint{{Path: "/hello/{name}", Methods: []string{http.MethodGet}, Handler: func(http.ResponseWriter, *http.Request) {}}},
				}
			},
		).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate HTTP endpoint")
}

func TestHTTPRouter_Middleware(t *testing.T) {
	middleware := func(name string, order int) func() fxapp.HTTPMiddleware {
		return func() fxapp.HTTPMiddleware {
			return fxapp.HTTPMiddleware{
				Middleware: fxapp.Middleware{
					Name:  name,
					Order: order,
					Wrap: func(next http.Handler) http.Handler {
						return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
							w.Header().Add("X-Middleware", name)
							next.ServeHTTP(w, r)
						})
					},
				},
			}
		}
	}

	var router fxapp.HTTPRouter
	var gatherer prometheus.Gatherer
	_, err := fxapp.NewAppBuilder(testDesc()).
		LogWriter(fxapptest.NewSyncLog()).
		Provide(helloHandler, middleware("b", 2), middleware("a", 1)).
		Provide(func() *fxapp.NotFoundHandler {
			return &fxapp.NotFoundHandler{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nothing here", http.StatusNotFound)
			})}
		}).
		Populate(&router, &gatherer).
		Build()
	require.NoError(t, err)
	require.NotNil(t, router.Router)

	w := httptest.NewRecorder()
	router.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hello/fx", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, w.Header().Values("X-Middleware"))

	w = httptest.NewRecorder()
	router.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "nothing here")
	assert.Equal(t, []string{"a", "b"}, w.Header().Values("X-Middleware"))

	w = httptest.NewRecorder()
	router.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/hello/fx", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	mfs, err := gatherer.Gather()
	require.NoError(t, err)
	requests := fxapp.FindMetricFamily(mfs, fxapp.MetricFamilyNamed("http_requests_total"))
	require.NotNil(t, requests)
	assert.NotEmpty(t, requests.GetMetric())
}

func TestHTTPRouter_PanicRecovery(t *testing.T) {
	buf := fxapptest.NewSyncLog()
	var router fxapp.HTTPRouter
	_, err := fxapp.NewAppBuilder(testDesc()).
		LogWriter(buf).
		Provide(func() fxapp.HTTPHandler {
			return fxapp.NewHTTPHandler("/panic", func(http.ResponseWriter, *http.Request) {
				panic("BOOM")
			})
		}).
		Populate(&router).
		Build()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, buf.HasEvent(fxapp.HTTPRequestPanicEvent.String()))
}

func TestReadinessWaitGroup(t *testing.T) {
	wg := fxapp.NewReadinessWaitgroup(1)
	wg.Inc()
	assert.Equal(t, uint(2), wg.Count())
	wg.Done()
	wg.Done()
	wg.Done() // no-op at 0
	assert.Equal(t, uint(0), wg.Count())
	select {
	case <-wg.Ready():
	case <-time.After(time.Second):
		t.Fatal("*** readiness wait group should be ready")
	}
}
