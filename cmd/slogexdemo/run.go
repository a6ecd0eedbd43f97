// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pjscruggs/slogex"
)

const errNotANumber = "not-a-number"

func newRunCommand(extra []slogex.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [values...]",
		Short: "Log each value on a client-side engine and report the ones that are not numbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, args, extra)
		},
	}
	addEngineFlags(cmd)
	return cmd
}

// reportLogError writes a failed log call to the command's error stream.
func reportLogError(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "slogexdemo: log: %v\n", err)
	}
}

func runDemo(cmd *cobra.Command, args []string, extra []slogex.Option) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, cleanup, err := engineOptions(cfg, slogex.SideClient, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := slogex.New(append(opts, extra...)...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	if err := engine.RegisterException(errNotANumber, slogex.MessageFunc(func(data any) string {
		return fmt.Sprintf("%q is not a number", data)
	})); err != nil {
		return err
	}
	parse := engine.PrepareExceptionThrower(errNotANumber, slogex.ExceptionOptions{
		Tags: []string{"parse"},
	})

	ctx := cmd.Context()
	reportLogError(cmd, engine.Info(1, "parsing values", len(args)))

	var sum float64
	var failures int
	for i, raw := range args {
		n, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			failures++
			err := parse(ctx, raw)
			var exc *slogex.Exception
			if !errors.As(err, &exc) {
				reportLogError(cmd, err)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), exc.String())
			if err != error(exc) {
				reportLogError(cmd, err)
			}
			continue
		}
		sum += n
		reportLogError(cmd, engine.Log(slogex.V(3).WithTags("value"), "parsed", i, n))
	}
	reportLogError(cmd, engine.Info(0, "done", map[string]any{"sum": sum, "failures": failures}))

	snapshot, err := engine.Transient().Serialized()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sum=%g failures=%d\n", sum, failures)
	fmt.Fprintln(cmd.OutOrStdout(), snapshot)
	return nil
}
