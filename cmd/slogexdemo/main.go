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

// Command slogexdemo exercises the slogex engine from the command line.
//
// "slogexdemo run 1 2 x" logs each argument on a client-side engine and
// raises a not-a-number exception for anything that does not parse.
// "slogexdemo serve" starts a server-side engine with an in-memory durable
// store and streams its publications at /logs/{publication}.
//
// Flags can also be set through SLOGEX_DEMO_* environment variables, for
// example SLOGEX_DEMO_LOG_FILE=demo.log.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
