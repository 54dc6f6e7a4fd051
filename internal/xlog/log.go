// Copyright 2016 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package xlog is a small structured, leveled logger in the vein of the
// go-ethereum/go-probeum "log" package: key/value pairs rather than format
// strings, colorized level tags when the writer exposes a file descriptor
// (or FORCE_COLOR is set), and a call-stack frame attached to Error/Crit
// records.
package xlog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

// Lvl is a log severity level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

// Logger writes leveled, keyed records to an underlying writer.
type Logger struct {
	out      io.Writer
	mu       sync.Mutex
	minLevel int32
	ctx      []interface{}
	color    bool
}

var root = New(colorable.NewColorableStdout(), LvlInfo)

// Root returns the package-level default logger.
func Root() *Logger { return root }

// New creates a Logger writing to w at the given minimum level. Color
// output is enabled when w has an Fd method (as an *os.File or a
// mattn/go-colorable writer does), whether or not that descriptor is a
// terminal, or when FORCE_COLOR is set.
func New(w io.Writer, min Lvl) *Logger {
	_, isColorable := w.(interface{ Fd() uintptr })
	return &Logger{out: w, minLevel: int32(min), color: isColorable || os.Getenv("FORCE_COLOR") != ""}
}

// SetLevel adjusts the minimum level emitted by this logger.
func (l *Logger) SetLevel(lvl Lvl) { atomic.StoreInt32(&l.minLevel, int32(lvl)) }

// New returns a child logger with additional persistent context appended
// to every record it emits.
func (l *Logger) New(ctx ...interface{}) *Logger {
	child := &Logger{out: l.out, minLevel: atomic.LoadInt32(&l.minLevel), color: l.color}
	child.ctx = append(append([]interface{}{}, l.ctx...), ctx...)
	return child
}

func (l *Logger) log(lvl Lvl, msg string, ctx []interface{}) {
	if int32(lvl) > atomic.LoadInt32(&l.minLevel) {
		return
	}
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	if lvl <= LvlError {
		all = append(all, "stack", callerFrame())
	}
	line := format(lvl, msg, all, l.color)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line)
}

// callerFrame reports, in "file:line" form, the frame three levels above
// itself: the caller of a Logger method. For the package-level wrappers
// (Error, Crit) that frame is the wrapper inside this package.
func callerFrame() string {
	cs := stack.Trace().TrimBelow(stack.Caller(3)).TrimRuntime()
	if len(cs) == 0 {
		return ""
	}
	return fmt.Sprintf("%+v", cs[0])
}

func format(lvl Lvl, msg string, ctx []interface{}, useColor bool) string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	lvlStr := lvl.String()
	if useColor {
		if c, ok := lvlColor[lvl]; ok {
			lvlStr = c.Sprint(lvlStr)
		}
	}
	parts := []string{ts, "[" + lvlStr + "]", msg}
	kv := pairs(ctx)
	for _, k := range kv {
		parts = append(parts, k)
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}

func pairs(ctx []interface{}) []string {
	type kv struct{ k, v string }
	var list []kv
	for i := 0; i+1 < len(ctx); i += 2 {
		k, _ := ctx[i].(string)
		list = append(list, kv{k, fmt.Sprint(ctx[i+1])})
	}
	sort.SliceStable(list, func(i, j int) bool { return false }) // preserve insertion order
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, fmt.Sprintf("%s=%q", p.k, p.v))
	}
	return out
}

func (l *Logger) Crit(msg string, ctx ...interface{})  { l.log(LvlCrit, msg, ctx); os.Exit(1) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx) }
func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LvlTrace, msg, ctx) }

// Package-level convenience wrappers over Root().

func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
