// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// GlobalLogger is the JSON logger used by repositories, hubs and background workers.
var GlobalLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// LoggingConfig toggles the noisier automated log streams.
type LoggingConfig struct {
	EnableRepoLogging bool
	EnableWSLogging   bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableRepoLogging: false,
	EnableWSLogging:   true,
}

// SetLogger swaps the global logger, typically from main after the request logger is built.
func SetLogger(l *slog.Logger) {
	if l != nil {
		GlobalLogger = l
	}
}

func fieldAttrs(fields map[string]any) []any {
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	table string
}

// NewRepoLogger creates a RepoLogger for the given table.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{table: table}
}

// LogWrite logs a create, update or delete.
func (l *RepoLogger) LogWrite(ctx context.Context, operation string, fields map[string]any) {
	if !Config.EnableRepoLogging {
		return
	}
	attrs := append([]any{slog.String("table", l.table), slog.String("operation", operation)}, fieldAttrs(fields)...)
	GlobalLogger.InfoContext(ctx, "repository write", attrs...)
}

// LogError logs a repository error. Errors are always logged.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	GlobalLogger.ErrorContext(ctx, "repository error",
		slog.String("table", l.table),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// WSLogger provides structured logging for socket hubs.
type WSLogger struct {
	hub string
}

// NewWSLogger creates a WSLogger for the given hub.
func NewWSLogger(hub string) *WSLogger {
	return &WSLogger{hub: hub}
}

// LogConnect logs a socket joining a room or channel.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint, roomID, socketID string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("room_id", roomID),
		slog.String("socket_id", socketID),
	)
}

// LogDisconnect logs a socket leaving.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, roomID, socketID, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("room_id", roomID),
		slog.String("socket_id", socketID),
		slog.String("reason", reason),
	)
}

// LogError logs a socket error with the event that caused it.
func (l *WSLogger) LogError(ctx context.Context, userID uint, roomID string, err error, event string) {
	GlobalLogger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hub),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("room_id", roomID),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}

// LogLifecycle logs hub start, stop and wiring events.
func (l *WSLogger) LogLifecycle(ctx context.Context, event string, fields map[string]any) {
	if !Config.EnableWSLogging {
		return
	}
	attrs := append([]any{slog.String("hub", l.hub), slog.String("event", event)}, fieldAttrs(fields)...)
	GlobalLogger.InfoContext(ctx, "websocket lifecycle", attrs...)
}

// LogAsyncOperationError logs a failure inside a background worker.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := append([]any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
	}, fieldAttrs(fields)...)
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
