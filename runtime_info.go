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
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/compute/metadata"
)

// Mode is the deployment mode of the process.
type Mode string

const (
	// ModeDevelopment enables the live display and call-site annotations.
	ModeDevelopment Mode = "development"
	// ModeProduction suppresses the live display by default and never
	// annotates it with call sites.
	ModeProduction Mode = "production"
)

// Side tells whether the engine runs in a client-like or server-like process.
type Side string

const (
	// SideClient processes keep a transient record store by default.
	SideClient Side = "client"
	// SideServer processes rely on the durable store.
	SideServer Side = "server"
)

// ParseMode parses a deployment mode name. "dev" and "prod" are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return ModeDevelopment, nil
	case "production", "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrConfig, s)
	}
}

// ParseSide parses a side name.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return SideClient, nil
	case "server":
		return SideServer, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrConfig, s)
	}
}

var (
	detectedMode     Mode
	detectedModeOnce sync.Once
)

// onGCE is swapped in tests.
var onGCE = metadata.OnGCE

// DetectMode infers the deployment mode when neither an option nor
// SLOGEX_MODE sets it: processes running on Google Cloud compute are treated
// as production, everything else as development. The result is cached.
func DetectMode() Mode {
	detectedModeOnce.Do(func() {
		detectedMode = ModeDevelopment
		if onGCE() {
			detectedMode = ModeProduction
		}
	})
	return detectedMode
}
