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
	"fmt"
	"github.com/oysterpack/ecoshop/pkg/fxapp"
	"github.com/spf13/cobra"
	"text/tabwriter"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", AppName, Version)
			info, err := fxapp.ReadBuildInfo()
			if err != nil {
				// binaries built without module support, e.g., test binaries in some environments
				return nil
			}
			fmt.Fprintf(out, "go: %s\n", info.GoVersion)
			if revision, ok := info.Settings["vcs.revision"]; ok {
				fmt.Fprintf(out, "revision: %s\n", revision)
			}
			if !verbose {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, dep := range info.Deps {
				fmt.Fprintf(tw, "%s\t%s\n", dep.Path, dep.Version)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list the module dependencies")
	return cmd
}
