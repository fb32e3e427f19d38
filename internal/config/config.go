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

// Package config loads the storefront settings from the env.
package config

import (
	"encoding/hex"
	"fmt"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"strings"
	"time"
)

// EnvPrefix is used as the environment variable name prefix, e.g., ECOSHOP_HTTP_ADDR
const EnvPrefix = "ECOSHOP"

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds the storefront settings
type Config struct {
	HTTPAddr     string `split_words:"true" default:":8008"`
	DatabasePath string `split_words:"true" default:"ecoshop.db"`

	SeedSecret  string `split_words:"true"`
	SeedOnStart bool   `split_words:"true"`

	CacheBackend              string        `split_words:"true" default:"memory"`
	RedisAddr                 string        `split_words:"true" default:"localhost:6379"`
	CacheMaxAge               time.Duration `split_words:"true" default:"1h"`
	CacheStaleWhileRevalidate time.Duration `split_words:"true" default:"60s"`
	PrerenderCount            int           `split_words:"true" default:"20"`

	// CartKey is the hex encoded 32 byte key used to seal cart cookies.
	// If blank, a random key is generated per process.
	CartKey HexKey `split_words:"true"`

	LogLevel  Level `split_words:"true" default:"info"`
	Profiling bool
}

// Load loads the config from the env and validates it
func Load() (Config, error) {
	var config Config
	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return config, errors.Wrap(err, "failed to load config from env")
	}
	return config, config.Validate()
}

// Validate aggregates all config errors
func (c Config) Validate() error {
	var err error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		err = multierr.Append(err, errors.New("HTTP address is required"))
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		err = multierr.Append(err, errors.New("database path is required"))
	}
	switch c.CacheBackend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			err = multierr.Append(err, errors.New("redis address is required when the redis cache backend is used"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("invalid cache backend: %q", c.CacheBackend))
	}
	if c.CacheMaxAge <= 0 {
		err = multierr.Append(err, errors.New("cache max age must be greater than 0"))
	}
	if c.CacheStaleWhileRevalidate < 0 {
		err = multierr.Append(err, errors.New("cache stale-while-revalidate must not be negative"))
	}
	if c.PrerenderCount < 0 {
		err = multierr.Append(err, errors.New("prerender count must not be negative"))
	}
	if c.CartKey != nil && len(c.CartKey) != 32 {
		err = multierr.Append(err, fmt.Errorf("cart key must be 32 bytes: %d", len(c.CartKey)))
	}
	return err
}

func (c Config) String() string {
	return fmt.Sprintf("Config{HTTPAddr=%s, DatabasePath=%s, CacheBackend=%s, CacheMaxAge=%s, CacheStaleWhileRevalidate=%s, PrerenderCount=%d, LogLevel=%s, Profiling=%v}",
		c.HTTPAddr, c.DatabasePath, c.CacheBackend, c.CacheMaxAge, c.CacheStaleWhileRevalidate, c.PrerenderCount, c.LogLevel, c.Profiling)
}

// MarshalZerologObject never logs secrets
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("http_addr", c.HTTPAddr).
		Str("db", c.DatabasePath).
		Bool("seed_secret", c.SeedSecret != "").
		Bool("seed_on_start", c.SeedOnStart).
		Str("cache", c.CacheBackend).
		Dur("cache_max_age", c.CacheMaxAge).
		Dur("cache_swr", c.CacheStaleWhileRevalidate).
		Int("prerender", c.PrerenderCount).
		Bool("profiling", c.Profiling)
}

// Level is a type alias for zerolog.Level in order to be able to implement the `envconfig.Decoder` interface on it
type Level zerolog.Level

// Decode implements `envconfig.Decoder` interface
func (l *Level) Decode(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		*l = Level(zerolog.InfoLevel)
		return nil
	}
	level, err := zerolog.ParseLevel(value)
	if err != nil {
		return err
	}
	*l = Level(level)
	return nil
}

func (l Level) String() string {
	return zerolog.Level(l).String()
}

// HexKey decodes a hex encoded key
type HexKey []byte

// Decode implements `envconfig.Decoder` interface
func (k *HexKey) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*k = nil
		return nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return errors.Wrap(err, "key must be hex encoded")
	}
	*k = key
	return nil
}
