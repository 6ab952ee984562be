// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/credstore/internal/logging"
)

// Logger is an HTTP middleware that logs one structured line per request.
//
// Log fields:
//   - method, path, status
//   - duration_ms: request processing time in milliseconds
//   - ip: client IP (RemoteAddr after TrustedRealIP)
//   - bytes: response body size
//
// The request id and any attributes added by RequestMetadata (actor) come
// from logging.FromContext. 5xx responses log at error level, 4xx at warn.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		// RequestMetadata runs further down the chain; let it report back
		holder := &attrHolder{}
		r = r.WithContext(withAttrHolder(r.Context(), holder))

		next.ServeHTTP(ww, r)

		ctx := r.Context()
		if len(holder.attrs) > 0 {
			ctx = logging.WithAttrs(ctx, holder.attrs...)
		}

		level := slog.LevelInfo
		switch {
		case ww.status >= 500:
			level = slog.LevelError
		case ww.status >= 400:
			level = slog.LevelWarn
		}

		logging.FromContext(ctx).Log(ctx, level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r),
			"bytes", ww.bytes,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap provides access to the underlying ResponseWriter for
// http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
