package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/jacksonlee411/lease-signflow/pkg/logger"
	"github.com/jacksonlee411/lease-signflow/pkg/uuidv7"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDBytes = 128
)

var newRequestID = uuidv7.NewString

// withRequestID keeps a caller-supplied X-Request-ID or assigns a new one, and
// puts it on the request, the response and the log context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDBytes {
			generated, err := newRequestID()
			if err != nil {
				logger.Warn(r.Context(), "request id generation failed", "error", err)
			}
			id = generated
		}
		if id != "" {
			r.Header.Set(requestIDHeader, id)
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case rec.status >= 500:
			logger.Error(r.Context(), "http request", args...)
		case rec.status >= 400:
			logger.Warn(r.Context(), "http request", args...)
		default:
			logger.Info(r.Context(), "http request", args...)
		}
	})
}
