package routing

import (
	"encoding/json"
	"net/http"
	"strings"
)

type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    ErrorEnvelopeMeta `json:"meta"`
}

type ErrorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func WriteError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string) {
	message = normalizeMessage(code, message)
	if isJSONOnly(rc) || wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ErrorEnvelope{
			Code:    code,
			Message: message,
			TraceID: traceIDFromRequest(r),
			Meta: ErrorEnvelopeMeta{
				Path:   r.URL.Path,
				Method: r.Method,
			},
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.TrimSpace(r.Header.Get("Accept")), "application/json")
}

func isJSONOnly(rc RouteClass) bool {
	return rc == RouteClassInternalAPI
}

// traceIDFromRequest prefers the W3C traceparent trace id and falls back to
// X-Request-ID.
func traceIDFromRequest(r *http.Request) string {
	if id := traceparentID(r); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func traceparentID(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}

// normalizeMessage replaces an empty message, or one that only repeats the code,
// with a readable sentence built from the code.
func normalizeMessage(code string, message string) string {
	message = strings.TrimSpace(message)
	if message != "" && message != code {
		return message
	}
	return humanizeCode(code)
}

func humanizeCode(code string) string {
	words := strings.FieldsFunc(strings.ToLower(code), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(words) == 0 {
		return "Request failed."
	}
	s := strings.Join(words, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
