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
	"fmt"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// HTTPHandler is used to group HTTPEndpoint(s) together.
// The HTTPEndpoint(s) are automatically registered with the app's HTTP server.
type HTTPHandler struct {
	fx.Out

	HTTPEndpoint `group:"HTTPHandler"`
}

// NewHTTPHandler constructs a new HTTPHandler.
// If no methods are specified, then the endpoint matches any method.
func NewHTTPHandler(path string, handler http.HandlerFunc, methods ...string) HTTPHandler {
	return HTTPHandler{
		HTTPEndpoint: HTTPEndpoint{
			Path:    path,
			Methods: methods,
			Handler: handler,
		},
	}
}

// HTTPHandlers is used by a single constructor to provide multiple endpoints.
type HTTPHandlers struct {
	fx.Out

	Endpoints []HTTPEndpoint `group:"HTTPHandler,flatten"`
}

// HTTPEndpoint maps an HTTP handler to an HTTP path.
//
// Path may contain gorilla/mux path variables, e.g., `/products/{id:[0-9]+}`.
type HTTPEndpoint struct {
	Path    string
	Methods []string
	Handler http.HandlerFunc
}

// HTTPMiddleware is used to register middleware with the app's HTTP router.
type HTTPMiddleware struct {
	fx.Out

	Middleware `group:"HTTPMiddleware"`
}

// Middleware wraps every routed request.
// Middleware is applied in ascending Order, i.e., the lowest order is the outermost.
type Middleware struct {
	Name  string
	Order int
	Wrap  mux.MiddlewareFunc
}

// NotFoundHandler can be provided to render 404 responses. Middleware is applied to it as well.
type NotFoundHandler struct {
	http.Handler
}

// httpServerOpts is used by the app to configure and run an HTTP server only if HTTPEndpoint(s) are discovered, i.e.,
// registered with the app via dependency injection.
//
// An http.Server can be provided when building the app. If an http.Server is not found, then the app creates one with the
// following options:
// 	- Addr:              ":8008",
//	- ReadHeaderTimeout: time.Second,
//	- MaxHeaderBytes:    8 KiB,
type httpServerOpts struct {
	fx.In

	Server   *http.Server     `name:"http.Server" optional:"true"`
	NotFound *NotFoundHandler `optional:"true"`

	Endpoints   []HTTPEndpoint `group:"HTTPHandler"`
	Middlewares []Middleware   `group:"HTTPMiddleware"`
}

// validate runs the following checks:
//	- endpoint path and method combinations are unique
//	- handler funcs are not nil
func (opts httpServerOpts) validate() error {
	routes := make(map[string]bool, len(opts.Endpoints))
	for _, endpoint := range opts.Endpoints {
		if endpoint.Handler == nil {
			return fmt.Errorf("http handler func is nil for: %v", endpoint.Path)
		}
		methods := endpoint.Methods
		if len(methods) == 0 {
			methods = []string{"*"}
		}
		for _, method := range methods {
			route := strings.ToUpper(method) + " " + endpoint.Path
			if routes[route] {
				return fmt.Errorf("duplicate HTTP endpoint: %v", route)
			}
			routes[route] = true
		}
	}

	for _, m := range opts.Middlewares {
		if m.Wrap == nil {
			return fmt.Errorf("http middleware func is nil for: %v", m.Name)
		}
	}

	return nil
}

func (opts httpServerOpts) httpServerInfo(addr string) httpServerInfo {
	endpoints := make([]string, 0, len(opts.Endpoints))
	for _, endpoint := range opts.Endpoints {
		endpoints = append(endpoints, endpoint.Path)
	}
	sort.Strings(endpoints)

	middlewares := make([]string, 0, len(opts.Middlewares))
	for _, m := range opts.Middlewares {
		middlewares = append(middlewares, m.Name)
	}

	return httpServerInfo{
		addr:        addr,
		endpoints:   endpoints,
		middlewares: middlewares,
	}
}

// HTTPRouter is the app's HTTP request router. Router is nil if no endpoints were registered.
//
// Components can use the router to issue in-process requests, e.g., to pre-render pages into a cache.
type HTTPRouter struct {
	Router *mux.Router
}

func newHTTPRouter(opts httpServerOpts, builtins builtinMiddleware) (HTTPRouter, error) {
	if len(opts.Endpoints) == 0 {
		return HTTPRouter{}, nil
	}

	if err := opts.validate(); err != nil {
		return HTTPRouter{}, err
	}

	router := mux.NewRouter()
	for _, endpoint := range opts.Endpoints {
		route := router.HandleFunc(endpoint.Path, endpoint.Handler)
		if len(endpoint.Methods) > 0 {
			route.Methods(endpoint.Methods...)
		}
	}

	middlewares := append([]Middleware(nil), opts.Middlewares...)
	sort.SliceStable(middlewares, func(i, j int) bool {
		return middlewares[i].Order < middlewares[j].Order
	})
	chain := append(builtins.middlewares(), middlewares...)
	for _, m := range chain {
		router.Use(m.Wrap)
	}

	// mux does not apply middleware to unmatched requests
	notFound := http.Handler(http.NotFoundHandler())
	if opts.NotFound != nil && opts.NotFound.Handler != nil {
		notFound = opts.NotFound.Handler
	}
	for i := len(chain) - 1; i >= 0; i-- {
		notFound = chain[i].Wrap(notFound)
	}
	router.NotFoundHandler = notFound

	return HTTPRouter{router}, nil
}

func runHTTPServer(opts httpServerOpts, router HTTPRouter, logger *zerolog.Logger, lc fx.Lifecycle) error {
	if router.Router == nil {
		return nil
	}

	server := opts.Server
	if server == nil {
		server = newHTTPServerWithDefaultOpts()
	}
	server.Handler = router.Router

	errorLog := httpServerErrorLog(HTTPServerError.NewLogEvent(logger, zerolog.ErrorLevel))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// bind synchronously so that address errors fail the app start
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return errors.Wrapf(err, "failed to listen on: %s", server.Addr)
			}
			HTTPServerStarting.NewLogEvent(logger, zerolog.InfoLevel)(opts.httpServerInfo(listener.Addr().String()), "starting HTTP server")
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				wg.Done()
				err := server.Serve(listener)
				if err != http.ErrServerClosed {
					errorLog(httpListenAndServerError{err}, "HTTP server has exited with an error")
				}
			}()
			wg.Wait()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	return nil
}

func newHTTPServerWithDefaultOpts() *http.Server {
	return &http.Server{
		Addr:              ":8008",
		ReadHeaderTimeout: time.Second,
		MaxHeaderBytes:    8 << 10,
	}
}

// HTTP server related events
const (
	HTTPServerError    EventTypeID = "01JA0ZWSK9TPRM7N0MNS7C0JGQ"
	HTTPServerStarting EventTypeID = "01J4SR4QVH3H63J9FHVMCQV1SD"
)

type httpServerErrorLog LogEvent

func (log httpServerErrorLog) Println(v ...interface{}) {
	log(httpServerError(fmt.Sprint(v...)), "HTTP Server error")
}

type httpServerError string

func (err httpServerError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(errors.New(string(err)))
}

type httpListenAndServerError struct {
	error
}

func (err httpListenAndServerError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err)
}

type httpServerInfo struct {
	addr        string
	endpoints   []string
	middlewares []string
}

func (info httpServerInfo) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("addr", info.addr).
		Strs("endpoints", info.endpoints).
		Strs("middlewares", info.middlewares)
}
