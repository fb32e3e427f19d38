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
	"errors"
	"github.com/rs/zerolog"
	"runtime/debug"
	"sort"
)

// BuildInfo describes the module build the binary was produced from
type BuildInfo struct {
	GoVersion string
	Path      string
	Main      Module
	Deps      []Module
	Settings  map[string]string
}

// MarshalZerologObject logs the main module and dependency versions
func (b BuildInfo) MarshalZerologObject(e *zerolog.Event) {
	deps := zerolog.Arr()
	for _, d := range b.Deps {
		deps.Object(d)
	}
	e.Str("go", b.GoVersion).
		Str("path", b.Path).
		Object("main", b.Main).
		Array("deps", deps)
	if revision, ok := b.Settings["vcs.revision"]; ok {
		e.Str("revision", revision)
	}
}

// ReadBuildInfo returns the build information embedded in the running binary.
// The information is available only in binaries built with module support.
func ReadBuildInfo() (BuildInfo, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildInfo{}, errors.New("build information is available only in binaries built with module support")
	}
	deps := make([]Module, 0, len(info.Deps))
	for _, dep := range info.Deps {
		deps = append(deps, newModule(dep))
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return BuildInfo{
		GoVersion: info.GoVersion,
		Path:      info.Path,
		Main:      newModule(&info.Main),
		Deps:      deps,
		Settings:  settings,
	}, nil
}

// Module is a module dependency. Replaced modules report the replacement.
type Module struct {
	Path     string
	Version  string
	Checksum string
}

func newModule(m *debug.Module) Module {
	if m.Replace != nil {
		m = m.Replace
	}
	return Module{m.Path, m.Version, m.Sum}
}

func (m Module) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", m.Path).
		Str("version", m.Version)
	if m.Checksum != "" {
		e.Str("checksum", m.Checksum)
	}
}
