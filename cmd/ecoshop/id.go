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
	"github.com/oklog/ulid"
	"github.com/oysterpack/ecoshop/pkg/ulids"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"io"
)

// newIDCmd generates or parses the ULIDs used as event type IDs and health check IDs
func newIDCmd() *cobra.Command {
	var (
		parse   string
		count   int
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate or parse a ULID",
		Long: `Generates new ULIDs, e.g., for event type IDs and health check IDs. When generating more than 1, the IDs are
monotonic, i.e., they sort in the order they were generated.

Use --parse to validate a ULID and show its timestamp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if parse != "" {
				id, err := ulids.Parse(parse)
				if err != nil {
					return errors.Wrapf(err, "invalid ULID: %q", parse)
				}
				printID(out, id, true)
				return nil
			}
			if count < 1 {
				return errors.Errorf("count must be at least 1: %d", count)
			}
			next := ulids.MonotonicULIDGenerator()
			for i := 0; i < count; i++ {
				printID(out, next(), verbose)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&parse, "parse", "p", "", "ULID to parse")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ULIDs to generate")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the ULID timestamp")
	return cmd
}

func printID(out io.Writer, id ulid.ULID, verbose bool) {
	if verbose {
		fmt.Fprintf(out, "%s -> Time(%s)\n", id, ulid.Time(id.Time()).UTC())
		return
	}
	fmt.Fprintln(out, id)
}
