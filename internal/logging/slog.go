// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler on top of a zerolog logger so
// slog-only libraries (sutureslog in particular) write through the
// global logger.
type slogBridge struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	group  string
}

// NewSlogLogger returns an slog.Logger backed by the global zerolog
// logger.
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogBridge{logger: Logger()})
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return b.logger.GetLevel() <= zerologLevel(level)
}

func (b *slogBridge) Handle(_ context.Context, record slog.Record) error {
	event := b.logger.WithLevel(zerologLevel(record.Level))
	for _, attr := range b.attrs {
		event = appendAttr(event, attr, "")
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = appendAttr(event, attr, b.group)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(b.attrs)+len(attrs))
	merged = append(merged, b.attrs...)
	// Prefix now so a later WithGroup does not retroactively rename them.
	for _, attr := range attrs {
		if b.group != "" {
			attr.Key = b.group + "." + attr.Key
		}
		merged = append(merged, attr)
	}
	return &slogBridge{logger: b.logger, attrs: merged, group: b.group}
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	prefix := name
	if b.group != "" {
		prefix = b.group + "." + name
	}
	return &slogBridge{logger: b.logger, attrs: b.attrs, group: prefix}
}

func appendAttr(event *zerolog.Event, attr slog.Attr, group string) *zerolog.Event {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return event.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(key, attr.Value.Time())
	case slog.KindGroup:
		for _, inner := range attr.Value.Group() {
			event = appendAttr(event, inner, key)
		}
		return event
	default:
		return event.Interface(key, attr.Value.Any())
	}
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
