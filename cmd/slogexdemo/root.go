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
	"github.com/spf13/cobra"

	"github.com/pjscruggs/slogex"
)

// newRootCommand builds the command tree. extra is appended to the engine
// options of every subcommand.
func newRootCommand(extra ...slogex.Option) *cobra.Command {
	root := &cobra.Command{
		Use:           "slogexdemo",
		Short:         "Exercise the slogex logging and exception engine",
		Version:       slogex.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(extra), newServeCommand(extra))
	return root
}
