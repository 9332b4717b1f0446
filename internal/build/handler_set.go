package build

import (
	"context"
	"errors"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet is a btclog.Handler that fans each record out to several
// underlying handlers. The hook uses it to write the same record to the
// rotating hook log, to stderr in debug mode, and to a per-review log file
// while a review is running.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet constructs a new HandlerSet from the given handlers at the
// Info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{set: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// With returns a new HandlerSet containing the receiver's handlers plus the
// given extras. The extras are moved to the receiver's level.
func (h *HandlerSet) With(extra ...btclogv2.Handler) *HandlerSet {
	set := make([]btclogv2.Handler, 0, len(h.set)+len(extra))
	set = append(set, h.set...)
	set = append(set, extra...)

	n := &HandlerSet{set: set}
	n.SetLevel(h.level)

	return n
}

// Enabled reports whether any underlying handler accepts the level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return anyEnabled(ctx, level, slogHandlers(h.set))
}

// Handle dispatches the record to every handler that accepts its level. All
// handlers are tried even if one fails.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, slogHandlers(h.set))
}

// WithAttrs returns a handler whose attributes consist of both the
// receiver's attributes and the arguments.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(slogSet, len(h.set))
	for i, handler := range h.set {
		out[i] = handler.WithAttrs(attrs)
	}

	return out
}

// WithGroup returns a handler with the given group appended to the
// receiver's existing groups.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	out := make(slogSet, len(h.set))
	for i, handler := range h.set {
		out[i] = handler.WithGroup(name)
	}

	return out
}

// SubSystem creates a new Handler with the given sub-system tag.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix returns a copy of the Handler with the given string prefixed to
// each log message.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the logging level on all underlying handlers.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the current logging level.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

func (h *HandlerSet) derive(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	n := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		n.set[i] = f(handler)
	}

	return n
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogSet is the plain slog.Handler produced by WithAttrs and WithGroup,
// which return slog handlers rather than btclog ones.
type slogSet []slog.Handler

// Enabled reports whether any underlying handler accepts the level.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) Enabled(ctx context.Context, level slog.Level) bool {
	return anyEnabled(ctx, level, s)
}

// Handle dispatches the record to every enabled handler.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, s)
}

// WithAttrs applies the attributes to every underlying handler.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(slogSet, len(s))
	for i, handler := range s {
		out[i] = handler.WithAttrs(attrs)
	}

	return out
}

// WithGroup applies the group to every underlying handler.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) WithGroup(name string) slog.Handler {
	out := make(slogSet, len(s))
	for i, handler := range s {
		out[i] = handler.WithGroup(name)
	}

	return out
}

var _ slog.Handler = (slogSet)(nil)

func slogHandlers(set []btclogv2.Handler) []slog.Handler {
	out := make([]slog.Handler, len(set))
	for i, handler := range set {
		out[i] = handler
	}

	return out
}

func anyEnabled(ctx context.Context, level slog.Level,
	set []slog.Handler) bool {

	for _, handler := range set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func handleAll(ctx context.Context, record slog.Record,
	set []slog.Handler) error {

	var errs []error
	for _, handler := range set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
