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
	"errors"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/oysterpack/ecoshop/pkg/fxapptest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"testing"
	"time"
)

func testDesc() fxapp.Desc {
	return fxapp.MustNewDesc("ecoshop-test", "0.1.0")
}

func TestNewDesc(t *testing.T) {
	desc, err := fxapp.NewDesc(" ecoshop ", "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "ecoshop", desc.Name)
	assert.Equal(t, "1.2.3", desc.Version.String())

	_, err = fxapp.NewDesc("ecoshop", "not-a-version")
	assert.Error(t, err)

	_, err = fxapp.NewDesc("1x", "1.0.0")
	assert.Error(t, err, "name must start with an alpha and be at least 3 chars")

	assert.Error(t, fxapp.Desc{}.Validate())
}

func TestAppBuilder_Validation(t *testing.T) {
	t.Run("no options", func(t *testing.T) {
		_, err := fxapp.NewAppBuilder(testDesc()).Build()
		assert.Error(t, err)
	})

	t.Run("invalid timeouts", func(t *testing.T) {
		_, err := fxapp.NewAppBuilder(testDesc()).
			SetStartTimeout(0).
			SetStopTimeout(-1).
			Invoke(func() {}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start timeout")
		assert.Contains(t, err.Error(), "stop timeout")
	})

	t.Run("invoke error", func(t *testing.T) {
		buf := fxapptest.NewSyncLog()
		_, err := fxapp.NewAppBuilder(testDesc()).
			LogWriter(buf).
			Invoke(func() error { return errors.New("BOOM") }).
			Build()
		require.Error(t, err)
		assert.True(t, buf.HasEvent(fxapp.InitFailedEvent.String()))
	})
}

func TestApp_Lifecycle(t *testing.T) {
	buf := fxapptest.NewSyncLog()
	started := make(chan struct{})
	stopped := make(chan struct{})
	var logger *zerolog.Logger
	app, err := fxapp.NewAppBuilder(testDesc()).
		SetStartTimeout(5*time.Second).
		SetStopTimeout(5*time.Second).
		LogWriter(buf).
		LogLevel(zerolog.DebugLevel).
		Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					close(started)
					return nil
				},
				OnStop: func(context.Context) error {
					close(stopped)
					return nil
				},
			})
		}).
		Populate(&logger).
		Build()
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Error(t, app.Shutdown(), "shutdown before the app is started should fail")

	go app.Run()
	<-app.Starting()
	<-app.Started()
	<-started
	<-app.Ready()

	require.NoError(t, app.Shutdown())
	signal := <-app.Done()
	assert.NotNil(t, signal)
	<-stopped

	select {
	case <-app.Stopping():
	default:
		t.Error("*** stopping channel should be closed")
	}

	for _, event := range []fxapp.EventTypeID{
		fxapp.InitializedEvent,
		fxapp.StartingEvent,
		fxapp.StartedEvent,
		fxapp.ReadyEvent,
		fxapp.StoppingEvent,
		fxapp.StoppedEvent,
	} {
		assert.True(t, buf.HasEvent(event.String()), "event was not logged: %s", event)
	}

	for _, event := range buf.Events() {
		assert.Equal(t, app.InstanceID().String(), event.InstanceID)
		assert.NotEmpty(t, event.EventID)
	}

	assert.Error(t, app.Run(), "app cannot be run twice")
}

func TestApp_StartFailure(t *testing.T) {
	buf := fxapptest.NewSyncLog()
	app, err := fxapp.NewAppBuilder(testDesc()).
		LogWriter(buf).
		Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return errors.New("BOOM")
				},
			})
		}).
		Build()
	require.NoError(t, err)

	assert.Error(t, app.Run())
	_, ok := <-app.Done()
	assert.False(t, ok, "done channel should be closed without a signal")
	assert.True(t, buf.HasEvent(fxapp.StartFailedEvent.String()))
}
