package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("Healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	pass := func() error { return nil }
	fail := func(msg string) Check { return func() error { return errors.New(msg) } }

	tests := []struct {
		name     string
		checks   map[string]Check
		wantCode int
		wantBody string
	}{
		{"no checks", nil, http.StatusOK, "ready\n"},
		{"all pass", map[string]Check{"borders": pass}, http.StatusOK, "ready\n"},
		{
			"one failing",
			map[string]Check{"borders": fail("not loaded"), "viewer": pass},
			http.StatusServiceUnavailable,
			"not ready: borders: not loaded\n",
		},
		{
			"failures sorted by name",
			map[string]Check{"viewer": fail("stopped"), "borders": fail("not loaded")},
			http.StatusServiceUnavailable,
			"not ready: borders: not loaded; viewer: stopped\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Readyz(tt.checks)(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
