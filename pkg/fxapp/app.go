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
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"os"
	"time"
)

// App represents a functional application container, leveraging fx (https://godoc.org/go.uber.org/fx) as the underlying
// framework. Functional means, the application behavior is defined via functions.
//
// The application transitions through the following lifecycle states:
//	1. Initialized
//	2. Starting
//	3. Started
//	4. Ready
//	5. Stopping
//	6. Done
//
// Automatically Provided
//	- Desc
//	- InstanceID
//	- *zerolog.Logger
//	- fx.Lifecycle - for components to use to bind to the app lifecycle
//	- fx.Shutdowner - used to trigger app shutdown
//	- LifeCycle
//	- ReadinessWaitGroup - the readiness probe uses the ReadinessWaitGroup to know when the application is ready to serve requests
//	- prometheus.Gatherer
//	- prometheus.Registerer
//	- health.Registry
//	- health.Scheduler
//	- HTTPRouter
type App interface {
	LifeCycle

	// Desc returns the app descriptor
	Desc() Desc

	// InstanceID returns the app unique instance ID
	InstanceID() InstanceID

	StartTimeout() time.Duration
	StopTimeout() time.Duration

	// Run will start running the application and blocks until the app is shutdown.
	// It waits to receive a SIGINT or SIGTERM signal to shutdown the app.
	Run() error

	// Shutdown signals the app to shutdown. This method does not block, i.e., application shutdown occurs async.
	//
	// Shutdown can only be called after the app has been started - otherwise an error is returned.
	Shutdown() error
}

// LifeCycle defines the application lifecycle.
type LifeCycle interface {
	// Starting signals that the app is starting.
	// Closing the channel is the signal.
	Starting() <-chan struct{}
	// Started signals that the app has fully started
	Started() <-chan struct{}
	// Ready means the app is ready to serve requests
	Ready() <-chan struct{}
	// Stopping signals that app is stopping.
	// The channel is closed after the stop signal is sent.
	Stopping() <-chan os.Signal
	// Done signals that the app has shutdown.
	// The channel is closed after the stop signal is sent.
	// If the app fails to startup, then the channel is simply closed, i.e., no stop signal will be sent on the channel.
	Done() <-chan os.Signal
}

type app struct {
	desc       Desc
	instanceID InstanceID

	startTimeout, stopTimeout time.Duration

	*fx.App
	shutdowner        fx.Shutdowner
	starting, started chan struct{}
	readiness         ReadinessWaitGroup
	stopping, stopped chan os.Signal

	logger *zerolog.Logger
}

func (a *app) String() string {
	return fmt.Sprintf("App{%v, InstanceID: %s, StartTimeout: %s, StopTimeout: %s}",
		a.desc,
		a.instanceID,
		a.startTimeout,
		a.stopTimeout,
	)
}

func (a *app) Desc() Desc {
	return a.desc
}

func (a *app) InstanceID() InstanceID {
	return a.instanceID
}

func (a *app) StartTimeout() time.Duration {
	return a.startTimeout
}

func (a *app) StopTimeout() time.Duration {
	return a.stopTimeout
}

func (a *app) Run() error {
	select {
	case <-a.starting:
		return errors.New("app cannot be run again after it has already been started")
	default:
	}
	StartingEvent.NewLogEvent(a.logger, zerolog.NoLevel)(nil, "app starting")

	startCtx, cancel := context.WithTimeout(context.Background(), a.startTimeout)
	defer cancel()
	defer close(a.stopped)

	stopChan := a.App.Done()

	close(a.starting)
	startingTime := time.Now()
	if err := a.Start(startCtx); err != nil {
		StartFailedEvent.NewLogEvent(a.logger, zerolog.ErrorLevel)(appFailed{err}, "app failed to start")
		return err
	}
	StartedEvent.NewLogEvent(a.logger, zerolog.NoLevel)(appDuration(time.Since(startingTime)), "app started")
	close(a.started)
	a.readiness.Done() // the app has started

	select {
	case <-a.readiness.Ready():
		ReadyEvent.NewLogEvent(a.logger, zerolog.NoLevel)(nil, "app is ready to service requests")
		return a.shutdown(<-stopChan)
	case signal := <-stopChan:
		return a.shutdown(signal)
	}
}

func (a *app) shutdown(signal os.Signal) error {
	a.stopping <- signal
	close(a.stopping)
	defer func() {
		a.stopped <- signal
	}()

	StoppingEvent.NewLogEvent(a.logger, zerolog.NoLevel)(appStopping{signal}, "app stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer cancel()
	stoppingTime := time.Now()
	defer func() {
		StoppedEvent.NewLogEvent(a.logger, zerolog.NoLevel)(appDuration(time.Since(stoppingTime)), "app stopped")
	}()
	if err := a.Stop(stopCtx); err != nil {
		StopFailedEvent.NewLogEvent(a.logger, zerolog.ErrorLevel)(appFailed{err}, "app failed to stop cleanly")
		return err
	}
	return nil
}

func (a *app) Starting() <-chan struct{} {
	return a.starting
}

func (a *app) Started() <-chan struct{} {
	return a.started
}

func (a *app) Ready() <-chan struct{} {
	return a.readiness.Ready()
}

func (a *app) Stopping() <-chan os.Signal {
	return a.stopping
}

func (a *app) Done() <-chan os.Signal {
	return a.stopped
}

func (a *app) Shutdown() error {
	select {
	case <-a.started:
		return a.shutdowner.Shutdown()
	default:
		return errors.New("app can only be shutdown after it has started")
	}
}
