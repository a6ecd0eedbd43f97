// Copyright 2025 Patrick J. Scruggs
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
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Constants defining the maximum stack frames to capture.
const (
	maxStackFrames = 64
)

var stackPCPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, maxStackFrames)
		return &buf
	},
}

// stackTracer defines an interface errors can implement to provide their own stack trace
// in the form of program counters. Compatible with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() []uintptr
}

// ErrorStack returns the formatted stack carried by err or any error it wraps,
// as exposed through a StackTrace() []uintptr method. *Exception implements
// it. The result is empty when no error in the chain carries a stack.
func ErrorStack(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		pcs := st.StackTrace()
		if len(pcs) > maxStackFrames {
			pcs = pcs[:maxStackFrames]
		}
		return formatStack(pcs)
	}
	return ""
}

// capturePCs records program counters for the current goroutine, skipping
// capturePCs itself plus skip further frames. With skip 0 the first pc
// belongs to the function that called capturePCs.
func capturePCs(skip int) []uintptr {
	bufPtr := stackPCPool.Get().(*[]uintptr)
	defer stackPCPool.Put(bufPtr)
	pcs := (*bufPtr)[:cap(*bufPtr)]

	n := runtime.Callers(skip+2, pcs)
	return slices.Clone(pcs[:n])
}

// CaptureStack returns the formatted stack of the function that called
// CaptureStack, skipping skip additional frames above it, together with the
// first reported frame.
func CaptureStack(skip int) (string, runtime.Frame) {
	pcs := capturePCs(skip + 1)
	return formatStack(pcs), firstFrame(pcs)
}

// firstFrame resolves the first program counter of pcs.
func firstFrame(pcs []uintptr) runtime.Frame {
	if len(pcs) == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	return frame
}

// formatStack formats program counters into a standard Go stack trace string.
// It skips runtime exit frames.
func formatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}

	header := currentGoroutineHeader()

	var sb strings.Builder
	sb.Grow(len(header) + 1 + len(pcs)*64)
	sb.WriteString(header)
	sb.WriteByte('\n')

	var intBuf [20]byte
	frames := runtime.CallersFrames(pcs)
	frameCount := 0

	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if frame.Function == "runtime.goexit" || frame.Function == "" {
			if !more {
				break
			}
			continue
		}

		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteByte(':')
		sb.Write(strconv.AppendInt(intBuf[:0], int64(frame.Line), 10))

		if frame.Entry != 0 && frame.PC > frame.Entry {
			sb.WriteString(" +0x")
			sb.Write(strconv.AppendUint(intBuf[:0], uint64(frame.PC-frame.Entry), 16))
		}
		sb.WriteByte('\n')

		frameCount++
		if !more || frameCount >= maxStackFrames {
			break
		}
	}

	return sb.String()
}

// currentGoroutineHeader returns the goroutine header emitted by runtime.Stack.
func currentGoroutineHeader() string {
	const fallbackHeader = "goroutine 0 [running]:"

	var buf [128]byte
	n := runtime.Stack(buf[:], false)
	if n <= 0 {
		return fallbackHeader
	}

	header := string(buf[:n])
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	header = strings.TrimSpace(strings.TrimSuffix(header, "\r"))
	if header == "" {
		return fallbackHeader
	}
	return header
}
