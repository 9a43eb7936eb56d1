// Copyright 2025 Tom Barlow
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

// Package log provides the leveled, contextual event logger used across
// veridia, together with the transports that deliver its events.
//
// A Logger builds one Event per call above its threshold, redacts the
// event's context and data, and hands it to each registered Transport in
// turn. Transport failures are swallowed so logging never affects control
// flow. Child loggers inherit level, context and a copy of the parent's
// transport list.
package log

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veridia-health/veridia/internal/log/redact"
)

// Options configures a root Logger.
type Options struct {
	// Level is the minimum level emitted. Default: LevelInfo.
	Level Level

	// Context is attached to every event.
	Context Fields

	// Transports receive events in order.
	Transports []Transport

	// Redactor sanitizes context and data. Default: redact.Default().
	Redactor *redact.Redactor

	// DisableRedaction hands events to transports unredacted.
	DisableRedaction bool
}

// Logger is a leveled event emitter fanning out to transports.
// It is safe for concurrent use.
type Logger struct {
	level      atomic.Int32
	context    Fields
	transports *transportSet
	redactor   *redact.Redactor
	now        func() time.Time
}

// New creates a root logger.
func New(opts Options) *Logger {
	level := opts.Level
	if level == 0 {
		level = LevelInfo
	}

	redactor := opts.Redactor
	if redactor == nil && !opts.DisableRedaction {
		redactor = redact.Default()
	}

	l := &Logger{
		context:    Fields{}.Merge(opts.Context),
		transports: newTransportSet(opts.Transports),
		redactor:   redactor,
		now:        time.Now,
	}
	l.level.Store(int32(level))
	return l
}

// Nop returns a logger that emits nothing.
func Nop() *Logger {
	return New(Options{Level: LevelSilent, DisableRedaction: true})
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// SetLevel changes the minimum level of this logger. Existing children keep
// the level they were created with.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Enabled reports whether events at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

// Context returns a copy of the logger's effective context.
func (l *Logger) Context() Fields {
	return Fields{}.Merge(l.context)
}

// Child returns a logger with the same level and transports whose context
// is this logger's context with extra laid over it. The child's transport
// list is a copy: adding or removing transports on either side afterwards
// does not affect the other.
func (l *Logger) Child(extra Fields) *Logger {
	c := &Logger{
		context:    l.context.Merge(extra),
		transports: newTransportSet(l.transports.snapshot()),
		redactor:   l.redactor,
		now:        l.now,
	}
	c.level.Store(l.level.Load())
	return c
}

// With is Child with slog-style key/value arguments.
func (l *Logger) With(args ...any) *Logger {
	return l.Child(fieldsFromArgs(args))
}

// Scoped returns a child tagged with a scope name.
func (l *Logger) Scoped(scope string) *Logger {
	if scope == "" {
		return l.Child(nil)
	}
	return l.Child(Fields{ScopeKey: scope})
}

// WithTransports returns a child that delivers to transports instead of
// the ones inherited from this logger.
func (l *Logger) WithTransports(transports ...Transport) *Logger {
	c := l.Child(nil)
	c.transports = newTransportSet(transports)
	return c
}

// AddTransport registers t on this logger. Existing children and the
// parent are unaffected.
func (l *Logger) AddTransport(t Transport) {
	l.transports.add(t)
}

// RemoveTransport unregisters t from this logger.
func (l *Logger) RemoveTransport(t Transport) {
	l.transports.remove(t)
}

// Transports returns a snapshot of the registered transports.
func (l *Logger) Transports() []Transport {
	return l.transports.snapshot()
}

// Log emits an event at level. Events below the threshold are dropped
// before any work is done. Each transport is called in registration order;
// its error is discarded and a panic is recovered.
func (l *Logger) Log(ctx context.Context, level Level, msg string, data Fields) {
	if level < l.Level() {
		return
	}

	evt := &Event{
		Time:    l.now().UTC(),
		Level:   level,
		Message: msg,
		Context: l.redactFields(l.context),
		Data:    l.redactFields(data),
	}

	for _, t := range l.transports.snapshot() {
		deliver(ctx, t, evt)
	}
}

// deliver hands evt to t, discarding any error or panic.
func deliver(ctx context.Context, t Transport, evt *Event) {
	defer func() { _ = recover() }()
	_ = t.Log(ctx, evt)
}

func (l *Logger) redactFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	if l.redactor == nil {
		return f
	}
	out, _ := l.redactor.Redact(redact.Of(map[string]any(f))).Interface().(map[string]any)
	return Fields(out)
}

// Trace logs at trace level with slog-style key/value arguments.
func (l *Logger) Trace(msg string, args ...any) {
	l.logArgs(LevelTrace, msg, args)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.logArgs(LevelDebug, msg, args)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.logArgs(LevelInfo, msg, args)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.logArgs(LevelWarn, msg, args)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.logArgs(LevelError, msg, args)
}

func (l *Logger) logArgs(level Level, msg string, args []any) {
	if level < l.Level() {
		return
	}
	l.Log(context.Background(), level, msg, fieldsFromArgs(args))
}

// Flush asks every transport that buffers to deliver what it holds.
func (l *Logger) Flush(ctx context.Context) error {
	var errs []error
	for _, t := range l.transports.snapshot() {
		if f, ok := t.(Flusher); ok {
			errs = append(errs, f.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}

// Close shuts down every transport that holds resources. Called once at
// process teardown.
func (l *Logger) Close(ctx context.Context) error {
	var errs []error
	for _, t := range l.transports.snapshot() {
		if c, ok := t.(Closer); ok {
			errs = append(errs, c.Close(ctx))
		}
	}
	return errors.Join(errs...)
}

// transportSet is a logger's mutable transport list.
type transportSet struct {
	mu   sync.RWMutex
	list []Transport
}

func newTransportSet(transports []Transport) *transportSet {
	s := &transportSet{}
	for _, t := range transports {
		if t != nil {
			s.list = append(s.list, t)
		}
	}
	return s
}

func (s *transportSet) snapshot() []Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transport(nil), s.list...)
}

func (s *transportSet) add(t Transport) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, t)
}

func (s *transportSet) remove(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.list[:0:0]
	for _, existing := range s.list {
		if !sameTransport(existing, t) {
			kept = append(kept, existing)
		}
	}
	s.list = kept
}

// sameTransport compares by identity, guarding against dynamic types that
// would panic under ==.
func sameTransport(a, b Transport) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
