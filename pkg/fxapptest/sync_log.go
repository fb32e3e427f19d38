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

package fxapptest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// SyncLog is used to to provide a concurrency safe read/write log.
//
// Use Case: used when inspecting logs in unit tests that have multiple go routines writing to the log concurrently
type SyncLog struct {
	sync.Mutex
	buf *bytes.Buffer
}

func NewSyncLog() *SyncLog {
	return &SyncLog{
		buf: new(bytes.Buffer),
	}
}

func (l *SyncLog) Write(data []byte) (int, error) {
	l.Lock()
	defer l.Unlock()
	return l.buf.Write(data)
}

func (l *SyncLog) String() string {
	l.Lock()
	defer l.Unlock()
	return l.buf.String()
}

// LogEvent is the standard app log event envelope
type LogEvent struct {
	Level      string                 `json:"l"`
	Message    string                 `json:"m"`
	Error      string                 `json:"e"`
	EventType  string                 `json:"n"`
	EventID    string                 `json:"z"`
	Component  string                 `json:"c"`
	InstanceID string                 `json:"x"`
	Tags       []string               `json:"g"`
	Fields     map[string]interface{} `json:"-"`
}

// Events parses each log line as a LogEvent. Lines that fail to parse are skipped.
func (l *SyncLog) Events() []LogEvent {
	var events []LogEvent
	scanner := bufio.NewScanner(strings.NewReader(l.String()))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		_ = json.Unmarshal(line, &event.Fields)
		events = append(events, event)
	}
	return events
}

// EventsOfType returns the events with the specified event type ID
func (l *SyncLog) EventsOfType(eventType string) []LogEvent {
	var events []LogEvent
	for _, event := range l.Events() {
		if event.EventType == eventType {
			events = append(events, event)
		}
	}
	return events
}

// HasEvent returns true if at least 1 event with the specified event type ID was logged
func (l *SyncLog) HasEvent(eventType string) bool {
	return len(l.EventsOfType(eventType)) > 0
}
