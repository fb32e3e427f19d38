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
	"fmt"
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"regexp"
	"strings"
)

var (
	// name constraints:
	// - must be alpha-numeric and can contain the following non-alpha-numeric chars: '_' '-'
	// - must start with an alpha
	// - min len = 3, max len = 50
	nameRegex = regexp.MustCompile(`^[[:alpha:]][a-zA-Z0-9_-]{2,49}$`)
)

// Desc represents the application descriptor
type Desc struct {
	Name    string
	Version *semver.Version
}

// NewDesc parses the version and validates the descriptor
func NewDesc(name, version string) (Desc, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return Desc{Name: name}, errors.Wrapf(err, "invalid app version: %q", version)
	}
	desc := Desc{
		Name:    strings.TrimSpace(name),
		Version: v,
	}
	return desc, desc.Validate()
}

// MustNewDesc is like NewDesc, but panics if the descriptor is invalid.
func MustNewDesc(name, version string) Desc {
	desc, err := NewDesc(name, version)
	if err != nil {
		panic(err)
	}
	return desc
}

// Validate checks that the name matches the naming constraints and that the version is set
func (d Desc) Validate() error {
	var err error
	if !nameRegex.MatchString(d.Name) {
		err = multierr.Append(err, fmt.Errorf("`Name` failed to match against regex: %q : %q", nameRegex, d.Name))
	}
	if d.Version == nil {
		err = multierr.Append(err, errors.New("`Version` is required"))
	}
	return err
}

func (d Desc) String() string {
	return fmt.Sprintf("Desc{Name: %s, Version: %v}", d.Name, d.Version)
}
