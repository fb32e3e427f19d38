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

// ecoshop runs the storefront, seeds its database, and load tests it.
//
// Usage:
//
//	ecoshop serve
//	ecoshop seed [--remote URL --secret SECRET]
//	ecoshop loadtest [--config FILE] [--url URL]
//	ecoshop version
//	ecoshop id [-p ULID] [-n COUNT]
//
// The server is configured via ECOSHOP_* environment variables.
package main

import (
	"fmt"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/spf13/cobra"
	"os"
)

// AppName is the fxapp name
const AppName = "ecoshop"

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "0.1.0"

func desc() fxapp.Desc {
	return fxapp.MustNewDesc(AppName, Version)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Eco-friendly storefront with an incrementally revalidated page cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newSeedCmd(),
		newLoadTestCmd(),
		newVersionCmd(),
		newIDCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
