package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/star/starglobe/internal/tracker"
	"github.com/star/starglobe/internal/viewer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// fakeFrames serves a fixed latest frame and a pre-filled update channel.
type fakeFrames struct {
	mu       sync.Mutex
	latest   *viewer.Frame
	updates  chan *viewer.Frame
	subs     int
	canceled int
}

func newFakeFrames(latest *viewer.Frame, queued ...*viewer.Frame) *fakeFrames {
	ch := make(chan *viewer.Frame, len(queued)+1)
	for _, f := range queued {
		ch <- f
	}
	return &fakeFrames{latest: latest, updates: ch}
}

func (f *fakeFrames) Frame() *viewer.Frame { return f.latest }

func (f *fakeFrames) Subscribe() (<-chan *viewer.Frame, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	return f.updates, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.canceled++
	}
}

func (f *fakeFrames) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs - f.canceled
}

func frame(seq uint64) *viewer.Frame {
	return &viewer.Frame{
		Seq:        seq,
		SVG:        []byte(`<svg id="f"></svg>`),
		RenderedAt: time.Date(2026, 2, 6, 4, 0, 0, 0, time.UTC),
	}
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

// messages parses the data lines of an SSE body.
func messages(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func frameSeqs(msgs []map[string]any) []float64 {
	var seqs []float64
	for _, m := range msgs {
		if m["type"] == "frame" {
			seqs = append(seqs, m["seq"].(float64))
		}
	}
	return seqs
}

// TestSSEMessageFormat verifies headers, the metadata-first ordering and the
// wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	frames := newFakeFrames(frame(1), frame(2), frame(3))
	close(frames.updates)

	store := tracker.NewStore()
	store.Set(tracker.Position{Lon: 10, Lat: 20, Timestamp: time.Now(), Source: "feed"})
	handler := NewHandler(frames, store, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	msgs := messages(t, body)
	if len(msgs) == 0 || msgs[0]["type"] != "metadata" {
		t.Fatalf("first message = %v, want metadata", msgs)
	}
	if msgs[0]["source"] != "feed" {
		t.Errorf("metadata source = %v, want feed", msgs[0]["source"])
	}
	if msgs[0]["seq"].(float64) != 1 {
		t.Errorf("metadata seq = %v, want 1", msgs[0]["seq"])
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, frameSeqs(msgs)); diff != "" {
		t.Errorf("frame seqs mismatch (-want +got):\n%s", diff)
	}
	if msgs[1]["svg"] != `<svg id="f"></svg>` {
		t.Errorf("frame svg = %v", msgs[1]["svg"])
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}

	if frames.Subscribers() != 0 {
		t.Errorf("subscription not canceled on disconnect")
	}
	if handler.Active() != 0 {
		t.Errorf("Active = %d after disconnect, want 0", handler.Active())
	}
}

func TestStaleFramesSkipped(t *testing.T) {
	frames := newFakeFrames(frame(5), frame(4), frame(5), frame(6))
	close(frames.updates)

	handler := NewHandler(frames, nil, testConfig(), testLogger())
	req := httptest.NewRequest("GET", "/api/v1/stream/frames?svg=false", nil)
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	msgs := messages(t, w.Body.String())
	if diff := cmp.Diff([]float64{5, 6}, frameSeqs(msgs)); diff != "" {
		t.Errorf("frame seqs mismatch (-want +got):\n%s", diff)
	}
	for _, m := range msgs {
		if _, ok := m["svg"]; ok {
			t.Errorf("svg sent with svg=false: %v", m)
		}
	}
}

// TestThrottleCoalesces verifies that frames arriving within the interval are
// collapsed to the most recent one.
func TestThrottleCoalesces(t *testing.T) {
	frames := newFakeFrames(frame(1), frame(2), frame(3), frame(4))
	handler := NewHandler(frames, nil, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?interval=100", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 400*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if diff := cmp.Diff([]float64{1, 4}, frameSeqs(messages(t, w.Body.String()))); diff != "" {
		t.Errorf("frame seqs mismatch (-want +got):\n%s", diff)
	}
}

func TestNoFrameYet(t *testing.T) {
	frames := newFakeFrames(nil)
	close(frames.updates)

	handler := NewHandler(frames, nil, testConfig(), testLogger())
	w := httptest.NewRecorder()
	handler.HandleFrames(w, httptest.NewRequest("GET", "/api/v1/stream/frames", nil))

	msgs := messages(t, w.Body.String())
	if len(msgs) != 1 || msgs[0]["type"] != "metadata" {
		t.Errorf("messages = %v, want only metadata", msgs)
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newConnLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
	if c := limiter.active(); c != 4 {
		t.Errorf("active = %d, want 4", c)
	}
}

func TestRateLimitingTotal(t *testing.T) {
	limiter := newConnLimiter(10, 2)
	if !limiter.acquire("a") || !limiter.acquire("b") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.acquire("c") {
		t.Error("acquire beyond total limit should fail")
	}
	limiter.release("a")
	if !limiter.acquire("c") {
		t.Error("acquire after release should succeed")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newConnLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	frames := newFakeFrames(frame(1))
	handler := NewHandler(frames, nil, Config{
		MaxConcurrentPerIP: 1,
		KeepaliveInterval:  30 * time.Second,
	}, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFrames(httptest.NewRecorder(), req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(newFakeFrames(nil), nil, testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"negative interval", "?interval=-1"},
		{"interval too large", "?interval=10001"},
		{"interval non-numeric", "?interval=abc"},
		{"svg not a boolean", "?svg=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/frames"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.HandleFrames(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}
