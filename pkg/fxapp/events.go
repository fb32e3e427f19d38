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
	"github.com/rs/zerolog"
	"os"
	"time"
)

// EventTypeID is used as an event type ID.
// It must be globally unique - ULIDs are recommended.
type EventTypeID string

func (e EventTypeID) String() string {
	return string(e)
}

// LogEvent is a function used to log events.
type LogEvent func(eventData zerolog.LogObjectMarshaler, msg string, tags ...string)

// NewLogEvent creates a new function used to log events using a standardized structure, e.g., app event
//
//	{
//	  "l": "error", -------------------------------------- event level
//	  "a": "ecoshop",
//	  "v": "0.1.0",
//	  "x": "01DE379HHN2RRX9YQCG2DN9CHG",
//	  "n": "01DE2Z4E07E4T0GJJXCG8NN6A0", ----------------- event type ID
//	  "01DE2Z4E07E4T0GJJXCG8NN6A0": { -------------------- event type ID is used as event object dictionary key (optional)
//		"e": "failure to connect" ------------------------ event object data (optional)
//	  }, ------------------------------------------------- event object data (optional)
//	  "g": ["tag-a","tag-b"], ---------------------------- event tags (optional)
//	  "z": "01DE379HHNM87XT4PBHXYYBTYS",
//	  "t": 1561328928,
//	  "m": "healthcheck failed" -------------------------- event short description
//	}
//
// the event object data is logged as an event dictionary, using the event type ID as the key
func (e EventTypeID) NewLogEvent(logger *zerolog.Logger, level zerolog.Level) LogEvent {
	eventLogger := EventLogger(logger, e.String())
	return func(eventObject zerolog.LogObjectMarshaler, msg string, tags ...string) {
		event := eventLogger.WithLevel(level)

		if eventObject != nil {
			data := zerolog.Dict()
			eventObject.MarshalZerologObject(data)
			event.Dict(e.String(), data)
		}

		if len(tags) > 0 {
			event.Strs(tagsField, tags)
		}

		event.Msg(msg)
	}
}

// app lifecycle event IDs
const (
	InitializedEvent EventTypeID = "01JM9S346Q3D25VT4F5V37E3S3"
	InitFailedEvent  EventTypeID = "01JE28JT97KB6CQ643DZVMXXQK"

	StartingEvent    EventTypeID = "01JFBF5KZNWJ47TAN9ZT24MNPZ"
	StartFailedEvent EventTypeID = "01JX45HY43KWJRP1XPA7Z3DJ8F"

	StartedEvent EventTypeID = "01JSSZ5AWSH8VHTPRE95B9EE0Z"
	ReadyEvent   EventTypeID = "01JBGJ09TQM83XSSSS6YS3C4DW"

	StoppingEvent   EventTypeID = "01JA7N36096Q14DR9GPQY77ZXY"
	StopFailedEvent EventTypeID = "01JYK596NGYA1DQ91K5GQAPENE"

	StoppedEvent EventTypeID = "01JCFSECZP11HYGCPWPQ5E6EYC"
)

// appInitialized indicates the application has successfully initialized
type appInitialized struct {
	startTimeout, stopTimeout time.Duration
}

func (event appInitialized) MarshalZerologObject(e *zerolog.Event) {
	e.Dur("start_timeout", event.startTimeout)
	e.Dur("stop_timeout", event.stopTimeout)
}

// appDuration is used to log how long it took the app to start or stop
type appDuration time.Duration

func (d appDuration) MarshalZerologObject(e *zerolog.Event) {
	e.Dur("duration", time.Duration(d))
}

// appStopping indicates the app has been triggered to shutdown.
type appStopping struct {
	os.Signal
}

func (event appStopping) MarshalZerologObject(e *zerolog.Event) {
	if event.Signal != nil {
		e.Str("signal", event.Signal.String())
	}
}

// appFailed indicates the application failed to start or stop
type appFailed struct {
	err error
}

func (event appFailed) MarshalZerologObject(e *zerolog.Event) {
	e.Err(event.err)
}
