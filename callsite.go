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

package slogex

import (
	"strconv"
	"strings"
)

// resolveCallSite returns the "file:line" token of the first frame in pcs.
// Callers capture pcs at a skip depth that already excludes every slogex
// frame, so the first frame is the application code that made the call.
func resolveCallSite(pcs []uintptr) string {
	frame := firstFrame(pcs)
	if frame.File == "" {
		return ""
	}
	return frame.File + ":" + strconv.Itoa(frame.Line)
}

// lowerAll returns the trimmed, lower-cased, non-empty entries of patterns.
func lowerAll(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// matchesAny reports whether callSite contains any of the lower-cased
// patterns, ignoring case.
func matchesAny(callSite string, lowered []string) bool {
	if callSite == "" || len(lowered) == 0 {
		return false
	}
	site := strings.ToLower(callSite)
	for _, p := range lowered {
		if strings.Contains(site, p) {
			return true
		}
	}
	return false
}
