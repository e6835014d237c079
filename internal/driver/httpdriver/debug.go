package httpdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger logs requests and responses at debug level. A nil
// DebugLogger logs nothing.
type DebugLogger struct {
	logger *slog.Logger
}

func NewDebugLogger(l *slog.Logger) *DebugLogger {
	if l == nil {
		l = slog.Default()
	}
	return &DebugLogger{logger: l}
}

// Enabled reports whether debug records would be written.
func (d *DebugLogger) Enabled(ctx context.Context) bool {
	return d != nil && d.logger.Enabled(ctx, slog.LevelDebug)
}

func (d *DebugLogger) LogRequest(ctx context.Context, alias string, cycle int64, req *http.Request) {
	if !d.Enabled(ctx) {
		return
	}
	attrs := []slog.Attr{
		slog.String("alias", alias),
		slog.Int64("cycle", cycle),
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
	}
	if len(req.Header) > 0 {
		attrs = append(attrs, slog.String("headers", formatHeaders(req.Header)))
	}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			if len(body) > 0 {
				attrs = append(attrs, slog.String("body", truncateBody(body)))
			}
		}
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, "http request", attrs...)
}

func (d *DebugLogger) LogResponse(ctx context.Context, alias string, cycle int64, resp *http.Response, body []byte, duration time.Duration) {
	if !d.Enabled(ctx) {
		return
	}
	attrs := []slog.Attr{
		slog.String("alias", alias),
		slog.Int64("cycle", cycle),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration.Round(time.Microsecond)),
	}
	if len(resp.Header) > 0 {
		attrs = append(attrs, slog.String("headers", formatHeaders(resp.Header)))
	}
	if len(body) > 0 {
		attrs = append(attrs, slog.String("body", truncateBody(body)))
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, "http response", attrs...)
}

func (d *DebugLogger) LogError(ctx context.Context, alias string, cycle int64, err error, duration time.Duration) {
	if !d.Enabled(ctx) {
		return
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, "http error",
		slog.String("alias", alias),
		slog.Int64("cycle", cycle),
		slog.Duration("duration", duration.Round(time.Microsecond)),
		slog.Any("error", err),
	)
}

func formatHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + strings.Join(h[name], ", ")
	}
	return strings.Join(parts, "; ")
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
