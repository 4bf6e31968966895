package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_AcceptJSONCharset(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassUnknown, http.StatusNotFound, "not_found", "not found")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestWriteError_PlainTextForOps(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassOps, http.StatusServiceUnavailable, "unavailable", "database unreachable")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
	if rec.Code != http.StatusServiceUnavailable || strings.TrimSpace(rec.Body.String()) != "database unreachable" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestTraceIDFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		traceparent string
		requestID   string
		want        string
	}{
		{name: "empty", want: ""},
		{name: "malformed segments", traceparent: "00-abc-01", want: ""},
		{name: "invalid chars", traceparent: "00-0123456789abcdef0123456789abcdeg-0123456789abcdef-01", want: ""},
		{name: "all zero trace", traceparent: "00-00000000000000000000000000000000-0123456789abcdef-01", want: ""},
		{name: "valid", traceparent: "00-ABCDEFABCDEFABCDEFABCDEFABCDEFAB-0123456789abcdef-01", want: "abcdefabcdefabcdefabcdefabcdefab"},
		{name: "request id fallback", traceparent: "00-abc-01", requestID: "req-7", want: "req-7"},
		{name: "traceparent wins", traceparent: "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01", requestID: "req-7", want: "0123456789abcdef0123456789abcdef"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.traceparent != "" {
				req.Header.Set("traceparent", tc.traceparent)
			}
			if tc.requestID != "" {
				req.Header.Set("X-Request-ID", tc.requestID)
			}
			if got := traceIDFromRequest(req); got != tc.want {
				t.Fatalf("traceIDFromRequest()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestWriteError_Envelope(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/signing/api/contracts/c-1/signatures", nil)
	req.Header.Set("traceparent", "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassInternalAPI, http.StatusConflict, "OUT_OF_ORDER", "tenant must sign before owner")

	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d", rec.Code)
	}
	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != "OUT_OF_ORDER" || body.Message != "tenant must sign before owner" {
		t.Fatalf("body=%+v", body)
	}
	if body.TraceID != "0123456789abcdef0123456789abcdef" || body.Meta.Method != http.MethodPost {
		t.Fatalf("body=%+v", body)
	}
}

func TestNormalizeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    string
		message string
		want    string
	}{
		{name: "keep explicit", code: "ALREADY_SIGNED", message: "owner has already signed", want: "owner has already signed"},
		{name: "empty message", code: "contract_not_found", message: "", want: "Contract not found."},
		{name: "message repeats code", code: "bad_json", message: "bad_json", want: "Bad json."},
		{name: "upper code", code: "CONCURRENCY_CONFLICT", message: " ", want: "Concurrency conflict."},
		{name: "hyphen", code: "rate-limited", message: "", want: "Rate limited."},
		{name: "nothing to humanize", code: "___", message: "", want: "Request failed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeMessage(tt.code, tt.message); got != tt.want {
				t.Fatalf("normalizeMessage(%q, %q)=%q want %q", tt.code, tt.message, got, tt.want)
			}
		})
	}
}
