package core

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	maxCallstackFrames = 8
	maxMessageLen      = 255
)

type callFrame struct {
	file     string
	line     int
	function string
}

// errorState records the first failure seen by a context. Once a status is
// set, later attempts to overwrite it are dropped and the state is locked so
// the original message survives.
type errorState struct {
	status         Status
	callstack      []callFrame
	callstackSkips int
	message        string
	locked         bool
}

// Error is the public error value produced by a context. It carries the
// stable status code, the recorded message, and the bounded callstack.
type Error struct {
	Status    Status
	Message   string
	Callstack string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("fastscale: %s (status %d): %s", e.Status, int(e.Status), e.Message)
	}
	return fmt.Sprintf("fastscale: %s (status %d)", e.Status, int(e.Status))
}

func caller(skip int) callFrame {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return callFrame{file: "unknown", line: 0, function: "unknown"}
	}
	fn := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
		if i := strings.LastIndexByte(fn, '/'); i >= 0 {
			fn = fn[i+1:]
		}
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return callFrame{file: file, line: line, function: fn}
}

// SetError records status with an empty message. The first error wins; a
// second error locks the state and is otherwise discarded.
func (c *Context) SetError(status Status) bool {
	return c.setError(status, "", 1)
}

// SetErrorf records status with a formatted message.
func (c *Context) SetErrorf(status Status, format string, args ...any) bool {
	return c.setError(status, fmt.Sprintf(format, args...), 1)
}

func (c *Context) setError(status Status, msg string, skip int) bool {
	if c.err.status != StatusNoError {
		// A failure is already recorded. Preserve it and lock the state so
		// the original message cannot be clobbered.
		c.err.locked = true
		return false
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	c.err.status = status
	c.err.message = msg
	c.err.callstack = c.err.callstack[:0]
	c.err.callstackSkips = 0
	c.pushFrame(caller(skip + 1))
	return true
}

// AddToCallstack appends the caller's location to the recorded callstack.
// Frames past the bound are dropped silently.
func (c *Context) AddToCallstack() bool {
	if c.err.status == StatusNoError {
		return false
	}
	c.pushFrame(caller(1))
	return true
}

func (c *Context) addFrameFor(tag string, file string, line int) {
	c.pushFrame(callFrame{file: file, line: line, function: tag})
}

func (c *Context) pushFrame(f callFrame) {
	if len(c.err.callstack) >= maxCallstackFrames {
		c.err.callstackSkips++
		return
	}
	c.err.callstack = append(c.err.callstack, f)
}

// HasError reports whether a status has been recorded.
func (c *Context) HasError() bool { return c.err.status != StatusNoError }

// ErrorStatus returns the recorded status code.
func (c *Context) ErrorStatus() Status { return c.err.status }

// ErrorLocked reports whether a second error was suppressed.
func (c *Context) ErrorLocked() bool { return c.err.locked }

// ClearError resets the error state. Intended for callers that have fully
// handled a failure and want to reuse the context.
func (c *Context) ClearError() {
	c.err = errorState{}
}

// ErrorMessage returns the recorded message, which may be empty.
func (c *Context) ErrorMessage() string { return c.err.message }

// FormatCallstack renders the recorded frames, deepest first.
func (c *Context) FormatCallstack() string {
	var b strings.Builder
	for _, f := range c.err.callstack {
		fmt.Fprintf(&b, "%s:%d: %s\n", f.file, f.line, f.function)
	}
	if c.err.callstackSkips > 0 {
		fmt.Fprintf(&b, "... %d frame(s) dropped\n", c.err.callstackSkips)
	}
	return b.String()
}

// Err converts the recorded state into an error value, or nil.
func (c *Context) Err() error {
	if c.err.status == StatusNoError {
		return nil
	}
	return &Error{
		Status:    c.err.status,
		Message:   c.err.message,
		Callstack: c.FormatCallstack(),
	}
}
