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
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogRecord is one stored log entry. Records are values: stores copy them on
// insert and on read, so a record never changes after it is created.
type LogRecord struct {
	ID         string    `json:"_id"`
	Message    string    `json:"msg"`
	Timestamp  time.Time `json:"ts"`
	Verbosity  int       `json:"v"`
	Level      Level     `json:"ll"`
	Tags       []string  `json:"tags,omitempty"`
	CallSite   string    `json:"@,omitempty"`
	StackTrace string    `json:"stack,omitempty"`

	// Origin metadata, set on the durable side only.
	UserID        string `json:"uId,omitempty"`
	ConnectionID  string `json:"cId,omitempty"`
	ClientAddress string `json:"ca,omitempty"`
	ForwardedFor  string `json:"xf,omitempty"`
	TraceID       string `json:"tr,omitempty"`
}

// Args decodes the record's message back into its argument list.
func (r LogRecord) Args() ([]any, error) {
	return Deserialize(r.Message)
}

// HasTag reports whether the record carries tag.
func (r LogRecord) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// clone returns a copy that shares no slices with r.
func (r LogRecord) clone() LogRecord {
	r.Tags = slices.Clone(r.Tags)
	return r
}

// withOrigin returns a copy of r carrying the caller metadata of inv. The
// client address is preferred; when it is a loopback placeholder the
// forwarded-for value is stored instead.
func (r LogRecord) withOrigin(inv Invocation) LogRecord {
	r.UserID = inv.UserID
	r.ConnectionID = inv.ConnectionID
	if inv.directAddress() {
		r.ClientAddress = inv.ClientAddress
	} else {
		r.ForwardedFor = inv.ForwardedFor
	}
	if r.TraceID == "" {
		r.TraceID = inv.TraceID
	}
	return r
}

// cleanTags trims tags and drops empty ones, preserving order and duplicates.
func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func newRecordID() string {
	return uuid.NewString()
}
