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

package main

import (
	"bytes"
	"encoding/json"
	"github.com/oysterpack/ecoshop/internal/loadtest"
	"github.com/oysterpack/ecoshop/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, AppName+" "+Version)
}

func TestSeedCmd_Local(t *testing.T) {
	t.Setenv("ECOSHOP_DATABASE_PATH", filepath.Join(t.TempDir(), "ecoshop.db"))
	out, err := execute("seed", "--products", "10", "--users", "2", "--orders", "3", "--rand-seed", "7")
	require.NoError(t, err)

	var result seed.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, seed.Result{Categories: len(seed.Categories), Products: 10, Users: 2, Orders: 3}, result)
}

func TestSeedCmd_Remote(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch {
		case r.Method != http.MethodPost || r.URL.Path != "/api/seed":
			w.WriteHeader(http.StatusNotFound)
		case r.Header.Get("Authorization") == "Bearer fail":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"Seed failed"}`))
		case r.Header.Get("Authorization") != "Bearer s3cret":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
		default:
			w.Write([]byte(`{"message":"Database seeded successfully"}`))
		}
	}))
	defer server.Close()

	out, err := execute("seed", "--remote", server.URL+"/", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, "Database seeded successfully")

	_, err = execute("seed", "--remote", server.URL, "--secret", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	// failed seeds are not retried
	atomic.StoreInt32(&calls, 0)
	_, err = execute("seed", "--remote", server.URL, "--secret", "fail")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = execute("seed", "--remote", server.URL, "--secret", " ")
	assert.Error(t, err)
}

func TestParseStages(t *testing.T) {
	stages, err := parseStages([]string{"30s:10", " 1m : 20 "})
	require.NoError(t, err)
	assert.Equal(t, []loadtest.Stage{{Duration: 30 * time.Second, Target: 10}, {Duration: time.Minute, Target: 20}}, stages)

	for _, value := range []string{"30s", "x:10", "30s:x"} {
		_, err := parseStages([]string{value})
		assert.Error(t, err, value)
	}
}

func TestLoadTestOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loadtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
baseURL: http://shop.test
workers: 2
thresholds:
  p95: 1s
  maxErrorRate: 0.1
  minCacheHitRate: 0.9
`), 0644))

	cmd := newLoadTestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--stage", "1s:5", "--min-hit-rate", "0.25"}))
	flags := loadTestFlags{}
	flags.config, _ = cmd.Flags().GetString("config")
	flags.stages, _ = cmd.Flags().GetStringSlice("stage")
	flags.minCacheHitRate, _ = cmd.Flags().GetFloat64("min-hit-rate")

	opts, err := loadTestOptions(cmd, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://shop.test", opts.BaseURL)
	assert.Equal(t, uint64(2), opts.Workers)
	assert.Equal(t, []loadtest.Stage{{Duration: time.Second, Target: 5}}, opts.Stages)
	assert.Equal(t, time.Second, opts.Thresholds.P95)
	assert.Equal(t, 0.1, opts.Thresholds.MaxErrorRate)
	assert.Equal(t, 0.25, opts.Thresholds.MinCacheHitRate)
}

func TestLoadTestCmd_FailedThresholds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "MISS")
		w.Header().Set("Cache-Control", "public, no-store")
	}))
	defer server.Close()

	out, err := execute("loadtest",
		"--url", server.URL,
		"--stage", "200ms:20", "--stage", "300ms:20",
		"--report", "",
		"--min-hit-rate", "0.5",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache hit rate")
	assert.Contains(t, out, "LOAD TEST SUMMARY")
}

func TestIDCmd(t *testing.T) {
	out, err := execute("id", "-n", "3")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 3)
	assert.True(t, sort.StringsAreSorted(ids), "ids are monotonic")

	out, err = execute("id", "-p", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, ids[0]+" -> Time(")

	_, err = execute("id", "-p", "not-a-ulid")
	assert.Error(t, err)
	_, err = execute("id", "-n", "0")
	assert.Error(t, err)
}
