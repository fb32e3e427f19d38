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
	"bytes"
	"errors"
	"fmt"
	"github.com/oysterpack/ecoshop/pkg/fxapp/health"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"io"
	"os"
	"reflect"
	"time"
)

// AppBuilder is used to construct a new App instance.
type AppBuilder interface {
	Build() (App, error)

	SetStartTimeout(timeout time.Duration) AppBuilder
	SetStopTimeout(timeout time.Duration) AppBuilder

	// LogWriter defaults to stderr
	LogWriter(w io.Writer) AppBuilder
	// LogLevel defaults to info
	LogLevel(level zerolog.Level) AppBuilder

	Provide(constructors ...interface{}) AppBuilder
	Invoke(funcs ...interface{}) AppBuilder
	// Options is used to plug in fx modules
	Options(opts ...fx.Option) AppBuilder
	// Populate is used to extract values from the app, e.g., for testing purposes
	Populate(targets ...interface{}) AppBuilder

	// ExposeProbesViaHTTP registers the readiness and liveness probe HTTP endpoints
	ExposeProbesViaHTTP() AppBuilder
	// ExposeMetricsViaHTTP registers the prometheus HTTP endpoint
	ExposeMetricsViaHTTP() AppBuilder
	// ExposeHealthChecksViaHTTP registers the health check HTTP endpoint
	ExposeHealthChecksViaHTTP() AppBuilder
}

// NewAppBuilder constructs a new AppBuilder
func NewAppBuilder(desc Desc) AppBuilder {
	return &appBuilder{
		desc:         desc,
		startTimeout: 15 * time.Second,
		stopTimeout:  15 * time.Second,
		logWriter:    os.Stderr,
		logLevel:     zerolog.InfoLevel,
	}
}

type appBuilder struct {
	desc Desc

	startTimeout time.Duration
	stopTimeout  time.Duration

	logWriter io.Writer
	logLevel  zerolog.Level

	constructors []interface{}
	funcs        []interface{}
	options      []fx.Option
	populate     []interface{}

	exposeProbes, exposeMetrics, exposeHealthChecks bool
}

func (a *appBuilder) String() string {
	funcTypes := func(funcs []interface{}) string {
		if len(funcs) == 0 {
			return "[]"
		}
		s := new(bytes.Buffer)
		s.WriteString("[")
		s.WriteString(reflect.TypeOf(funcs[0]).String())
		for i := 1; i < len(funcs); i++ {
			s.WriteString("|")
			s.WriteString(reflect.TypeOf(funcs[i]).String())
		}

		s.WriteString("]")
		return s.String()
	}

	return fmt.Sprintf("AppBuilder{%v, StartTimeout: %s, StopTimeout: %s, Provide: %s, Invoke: %s}",
		a.desc,
		a.startTimeout,
		a.stopTimeout,
		funcTypes(a.constructors),
		funcTypes(a.funcs),
	)
}

func (a *appBuilder) SetStartTimeout(timeout time.Duration) AppBuilder {
	a.startTimeout = timeout
	return a
}

func (a *appBuilder) SetStopTimeout(timeout time.Duration) AppBuilder {
	a.stopTimeout = timeout
	return a
}

func (a *appBuilder) LogWriter(w io.Writer) AppBuilder {
	a.logWriter = w
	return a
}

func (a *appBuilder) LogLevel(level zerolog.Level) AppBuilder {
	a.logLevel = level
	return a
}

func (a *appBuilder) Provide(constructors ...interface{}) AppBuilder {
	a.constructors = append(a.constructors, constructors...)
	return a
}

func (a *appBuilder) Invoke(funcs ...interface{}) AppBuilder {
	a.funcs = append(a.funcs, funcs...)
	return a
}

func (a *appBuilder) Options(opts ...fx.Option) AppBuilder {
	a.options = append(a.options, opts...)
	return a
}

func (a *appBuilder) Populate(targets ...interface{}) AppBuilder {
	a.populate = append(a.populate, targets...)
	return a
}

func (a *appBuilder) ExposeProbesViaHTTP() AppBuilder {
	a.exposeProbes = true
	return a
}

func (a *appBuilder) ExposeMetricsViaHTTP() AppBuilder {
	a.exposeMetrics = true
	return a
}

func (a *appBuilder) ExposeHealthChecksViaHTTP() AppBuilder {
	a.exposeHealthChecks = true
	return a
}

// Build tries to construct and initialize a new App instance.
// All of the app's functions are run as part of the app initialization phase.
func (a *appBuilder) Build() (App, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	instanceID := NewInstanceID()
	logger := NewLogger(a.logWriter, a.logLevel, a.desc, instanceID)
	app := &app{
		instanceID:   instanceID,
		desc:         a.desc,
		startTimeout: a.startTimeout,
		stopTimeout:  a.stopTimeout,

		starting:  make(chan struct{}),
		started:   make(chan struct{}),
		readiness: NewReadinessWaitgroup(1),
		stopping:  make(chan os.Signal, 1),
		stopped:   make(chan os.Signal, 1),

		logger: logger,
	}

	app.App = fx.New(
		fx.NopLogger,
		fx.StartTimeout(a.startTimeout),
		fx.StopTimeout(a.stopTimeout),
		fx.Provide(
			func() Desc { return a.desc },
			func() InstanceID { return instanceID },
			func() *zerolog.Logger { return logger },
			func() ReadinessWaitGroup { return app.readiness },
			func() LifeCycle { return app },
			newMetricRegistry,
			health.NewRegistry,
			startHealthCheckScheduler,
			newHTTPRouter,
		),
		fx.Options(a.buildOptions()...),
		fx.Invoke(logHealthCheckResults),
		// the HTTP server is started last, i.e., after all other components have started
		fx.Invoke(runHTTPServer),
		fx.Populate(&app.shutdowner),
		fx.Populate(a.populate...),
	)

	if err := app.Err(); err != nil {
		InitFailedEvent.NewLogEvent(logger, zerolog.ErrorLevel)(appFailed{err}, "app failed to initialize")
		return nil, err
	}
	InitializedEvent.NewLogEvent(logger, zerolog.NoLevel)(appInitialized{a.startTimeout, a.stopTimeout}, "app initialized")

	return app, nil
}

func (a *appBuilder) validate() error {
	err := a.desc.Validate()
	if a.startTimeout <= 0 {
		err = multierr.Append(err, errors.New("start timeout must be greater than 0"))
	}
	if a.stopTimeout <= 0 {
		err = multierr.Append(err, errors.New("stop timeout must be greater than 0"))
	}
	if a.logWriter == nil {
		err = multierr.Append(err, errors.New("log writer is required"))
	}
	if len(a.constructors) == 0 && len(a.funcs) == 0 && len(a.options) == 0 &&
		!a.exposeProbes && !a.exposeMetrics && !a.exposeHealthChecks {
		err = multierr.Append(err, errors.New("at least 1 functional option is required"))
	}
	return err
}

func (a *appBuilder) buildOptions() []fx.Option {
	compOptions := make([]fx.Option, 0, len(a.constructors)+len(a.funcs)+len(a.options)+3)
	if a.exposeProbes {
		compOptions = append(compOptions, fx.Provide(readinessProbeHTTPHandler, livenessProbeHTTPHandler))
	}
	if a.exposeMetrics {
		compOptions = append(compOptions, fx.Provide(metricsHTTPHandler))
	}
	if a.exposeHealthChecks {
		compOptions = append(compOptions, fx.Provide(healthCheckHTTPHandler))
	}
	for _, f := range a.constructors {
		compOptions = append(compOptions, fx.Provide(f))
	}
	compOptions = append(compOptions, a.options...)
	for _, f := range a.funcs {
		compOptions = append(compOptions, fx.Invoke(f))
	}
	return compOptions
}
