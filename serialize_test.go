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
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type serializeNode struct {
	Name string
	Next *serializeNode
}

// TestSerializeRoundTripsAcyclicArguments verifies Deserialize reproduces acyclic input.
func TestSerializeRoundTripsAcyclicArguments(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name    string `json:"name"`
		Skipped string `json:"-"`
		Empty   string `json:"empty,omitempty"`
		List    []int  `json:"list"`
		hidden  string
		Tags    []string `json:"tags"`
	}

	args := []any{
		"hello",
		42,
		true,
		nil,
		map[string]any{"b": 1, "a": []any{"x", 2.5}},
		payload{Name: "n", Skipped: "s", List: []int{1, 2}, hidden: "h"},
	}

	got, err := Deserialize(Serialize(args))
	if err != nil {
		t.Fatalf("Deserialize() returned %v", err)
	}
	want := []any{
		"hello",
		float64(42),
		true,
		nil,
		map[string]any{"a": []any{"x", 2.5}, "b": float64(1)},
		map[string]any{"name": "n", "list": []any{float64(1), float64(2)}, "tags": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestSerializeIsCanonical ensures map key order never changes the output.
func TestSerializeIsCanonical(t *testing.T) {
	t.Parallel()

	first := map[string]int{"b": 2, "a": 1, "c": 3}
	second := map[string]int{"c": 3, "a": 1, "b": 2}

	got := Serialize([]any{"x", first})
	if want := `["x",{"a":1,"b":2,"c":3}]`; got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
	if other := Serialize([]any{"x", second}); other != got {
		t.Fatalf("Serialize() is not stable: %s vs %s", got, other)
	}
}

// TestSerializeReplacesSelfReference verifies a map containing itself terminates.
func TestSerializeReplacesSelfReference(t *testing.T) {
	t.Parallel()

	m := map[string]any{"name": "loop"}
	m["self"] = m

	got := Serialize([]any{m})
	want := `[{"name":"loop","self":"*** circular dependency (@.0) ***"}]`
	if got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
}

// TestSerializeReplacesMutualCycle verifies pointer cycles through structs terminate.
func TestSerializeReplacesMutualCycle(t *testing.T) {
	t.Parallel()

	a := &serializeNode{Name: "a"}
	b := &serializeNode{Name: "b", Next: a}
	a.Next = b

	got := Serialize([]any{a})
	want := `[{"Name":"a","Next":{"Name":"b","Next":"*** circular dependency (@.0) ***"}}]`
	if got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
}

// TestSerializeArgumentListContainingItself uses the root path for the sentinel.
func TestSerializeArgumentListContainingItself(t *testing.T) {
	t.Parallel()

	args := make([]any, 2)
	args[0] = 1
	args[1] = args

	got := Serialize(args)
	if want := `[1,"*** circular dependency (@) ***"]`; got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
}

// TestSerializeSharedSiblingReference marks the second sighting of a shared container.
func TestSerializeSharedSiblingReference(t *testing.T) {
	t.Parallel()

	shared := map[string]any{"k": 1}
	got := Serialize([]any{shared, shared})
	if want := `[{"k":1},"*** circular dependency (@.0) ***"]`; got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
}

// TestSerializeSpecialValues covers values encoding/json would reject or mangle.
func TestSerializeSpecialValues(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := Serialize([]any{
		errors.New("boom"),
		math.NaN(),
		math.Inf(1),
		ts,
		func() {},
		"<tag>",
	})
	want := `["boom","NaN","+Inf","2024-05-01T12:00:00Z","func()","<tag>"]`
	if got != want {
		t.Fatalf("Serialize() = %s, want %s", got, want)
	}
}

// TestSerializeNilArguments encodes a nil argument list as an empty array.
func TestSerializeNilArguments(t *testing.T) {
	t.Parallel()

	if got := Serialize(nil); got != "[]" {
		t.Fatalf("Serialize(nil) = %s, want []", got)
	}
}

// TestDeserializeRejectsNonArray ensures only argument lists are accepted.
func TestDeserializeRejectsNonArray(t *testing.T) {
	t.Parallel()

	if _, err := Deserialize(`{"a":1}`); err == nil {
		t.Fatal("Deserialize(object) returned nil error")
	}
	if _, err := Deserialize(`[1,`); err == nil {
		t.Fatal("Deserialize(truncated) returned nil error")
	}
}

// TestDisplayMessageJoinsArguments checks strings stay verbatim in the live display.
func TestDisplayMessageJoinsArguments(t *testing.T) {
	t.Parallel()

	got := displayMessage([]any{"count", 3, map[string]int{"a": 1}})
	if want := `count 3 {"a":1}`; got != want {
		t.Fatalf("displayMessage() = %q, want %q", got, want)
	}
}

// TestDeserializeKeepsLargeIntegersExact decodes integers past 2^53 without rounding.
func TestDeserializeKeepsLargeIntegersExact(t *testing.T) {
	t.Parallel()

	big := int64(1<<62 + 1)
	huge := uint64(1<<63 + 5)
	got, err := Deserialize(Serialize([]any{big, -big, huge, 7, 1.5}))
	if err != nil {
		t.Fatalf("Deserialize() returned %v", err)
	}
	want := []any{big, -big, huge, float64(7), 1.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
