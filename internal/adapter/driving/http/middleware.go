package httphandler

import (
	"log/slog"
	"net/http"
	"time"
)

// quietPaths are polled by orchestrators and scrapers; a successful hit is
// only worth a debug line.
var quietPaths = map[string]bool{
	"/api/v1/health": true,
	"/metrics":       true,
}

// responseRecorder remembers the status and size of what a handler wrote.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (rr *responseRecorder) WriteHeader(status int) {
	if !rr.written {
		rr.status = status
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.written {
		rr.status = http.StatusOK
		rr.written = true
	}
	n, err := rr.ResponseWriter.Write(p)
	rr.bytes += n
	return n, err
}

// requestLevel picks the log level for a finished request: server errors
// are errors, client errors warnings, quiet paths debug.
func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// loggingMiddleware writes one structured line per request.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.LogAttrs(r.Context(), requestLevel(r.URL.Path, rec.status), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int("bytes", rec.bytes),
			slog.Duration("duration", time.Since(start).Round(time.Microsecond)),
		)
	})
}

// recoveryMiddleware turns a handler panic into a JSON 500. If the handler
// had already started its response, the connection is left as is.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*responseRecorder)
		if !ok {
			rec = &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		}

		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic recovered", "panic", v, "path", r.URL.Path)
				if !rec.written {
					writeError(rec, http.StatusInternalServerError, "internal server error")
				}
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
