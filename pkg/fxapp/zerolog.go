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
	"github.com/oysterpack/ecoshop/pkg/ulids"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"io"
	"strings"
)

// Applies standard zerolog initialization.
//
// The following global settings are applied for performance reasons:
//   - the following standard logger field names are shortened
//     - Timestamp -> t
//     - Level -> l
//	   - Message -> m
//     - Error -> e
//   - Unix time format is used for performance reasons - seconds granularity is sufficient for log events
//
// An error stack marshaller is configured.
func init() {
	zerolog.TimestampFieldName = "t"
	zerolog.LevelFieldName = "l"
	zerolog.MessageFieldName = "m"
	zerolog.ErrorFieldName = "e"

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldInteger = true

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// standard app logger fields
const (
	appNameField     = "a"
	appVersionField  = "v"
	instanceIDField  = "x"
	componentField   = "c"
	eventTypeIDField = "n"
	eventIDField     = "z"
	tagsField        = "g"
)

// NewLogger constructs the app logger. The logger context is augmented with the app name, version, and instance ID.
// Every log event is assigned a ULID event ID, which enables log events to be referenced.
func NewLogger(w io.Writer, level zerolog.Level, desc Desc, instanceID InstanceID) *zerolog.Logger {
	nextEventID := ulids.MonotonicULIDGenerator()
	logger := zerolog.New(w).
		Level(level).
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			e.Str(eventIDField, nextEventID().String())
		})).
		With().
		Timestamp().
		Str(appNameField, desc.Name).
		Str(appVersionField, desc.Version.String()).
		Str(instanceIDField, instanceID.String()).
		Logger()
	return &logger
}

// EventLogger returns a new logger with the event type ID field 'n' set to the specified value.
//
// The event type ID should be unique. To ensure uniqueness, use ULIDs.
func EventLogger(logger *zerolog.Logger, id string) *zerolog.Logger {
	l := logger.With().Str(eventTypeIDField, id).Logger()
	return &l
}

// ComponentLogger returns a new logger with the component field 'c' set to the specified value.
func ComponentLogger(logger *zerolog.Logger, id string) *zerolog.Logger {
	l := logger.With().Str(componentField, id).Logger()
	return &l
}

// ParseLogLevel maps a level name to a zerolog.Level. Blank maps to info.
func ParseLogLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(level)
}
