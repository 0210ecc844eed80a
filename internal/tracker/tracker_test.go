package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const issTLE = `ISS (ZARYA)
1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927
2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537
`

func TestFeedSource_Parse(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	f := NewFeedSource("http://unused", time.Second)
	f.now = func() time.Time { return fixed }

	tests := []struct {
		name    string
		body    string
		want    Position
		wantErr bool
	}{
		{
			name: "valid",
			body: `{"message": "success", "timestamp": 1700000000, "iss_position": {"longitude": "-12.5", "latitude": "45.25"}}`,
			want: Position{Lon: -12.5, Lat: 45.25, Timestamp: time.Unix(1700000000, 0).UTC(), Source: "feed"},
		},
		{
			name: "no timestamp",
			body: `{"iss_position": {"longitude": "100", "latitude": "-3"}}`,
			want: Position{Lon: 100, Lat: -3, Timestamp: fixed, Source: "feed"},
		},
		{name: "empty position", body: `{"iss_position": {}}`, wantErr: true},
		{name: "missing position", body: `{"message": "success"}`, wantErr: true},
		{name: "not a number", body: `{"iss_position": {"longitude": "east", "latitude": "1"}}`, wantErr: true},
		{name: "numeric not string", body: `{"iss_position": {"longitude": 1.5, "latitude": "1"}}`, wantErr: true},
		{name: "latitude out of range", body: `{"iss_position": {"longitude": "0", "latitude": "91"}}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.parse([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFeedSource_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewFeedSource(server.URL, time.Second).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

// TestPoller_MalformedThenGood covers a bad response that must leave the
// store alone, followed by a good one that updates it.
func TestPoller_MalformedThenGood(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"iss_position": {}}`))
			return
		}
		w.Write([]byte(`{"timestamp": 1700000000, "iss_position": {"longitude": "10.5", "latitude": "20.25"}}`))
	}))
	defer server.Close()

	store := NewStore()
	p := NewPoller(NewFeedSource(server.URL, time.Second), store, time.Second, testLogger)
	var updates []Position
	p.OnUpdate(func(pos Position) { updates = append(updates, pos) })

	if err := p.Poll(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("first poll err = %v, want ErrMalformed", err)
	}
	if store.Get() != nil {
		t.Fatalf("store updated by malformed poll: %+v", store.Get())
	}
	if store.AgeSeconds() != -1 {
		t.Errorf("AgeSeconds = %v, want -1", store.AgeSeconds())
	}

	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	got := store.Get()
	if got == nil || got.Lon != 10.5 || got.Lat != 20.25 {
		t.Fatalf("store = %+v, want lon 10.5 lat 20.25", got)
	}
	if len(updates) != 1 || updates[0] != *got {
		t.Errorf("listener saw %+v, want one update", updates)
	}
}

type funcSource func(ctx context.Context) (Position, error)

func (f funcSource) Name() string                                { return "func" }
func (f funcSource) Fetch(ctx context.Context) (Position, error) { return f(ctx) }

func TestPoller_FailureKeepsLastPosition(t *testing.T) {
	store := NewStore()
	store.Set(Position{Lon: 1, Lat: 2, Timestamp: time.Now()})

	p := NewPoller(funcSource(func(context.Context) (Position, error) {
		return Position{}, errors.New("connection refused")
	}), store, time.Second, testLogger)

	if err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := store.Get(); got.Lon != 1 || got.Lat != 2 {
		t.Errorf("store = %+v, want previous position", got)
	}
}

func TestPoller_RunUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var polls atomic.Int32
	src := funcSource(func(context.Context) (Position, error) {
		if polls.Add(1) >= 3 {
			cancel()
		}
		return Position{Lon: 5, Lat: 5, Timestamp: time.Now()}, nil
	})

	done := make(chan struct{})
	go func() {
		NewPoller(src, NewStore(), 5*time.Millisecond, testLogger).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if polls.Load() < 3 {
		t.Errorf("polled %d times, want at least 3", polls.Load())
	}
}

func TestParseElements(t *testing.T) {
	badChecksum := strings.Replace(issTLE, "0  2927", "0  2928", 1)
	input := issTLE + "SHORT\n1 00001U\n2 00001\n" + "garbage\n" + badChecksum

	entries, err := ParseElements(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.CatalogNumber != 25544 || e.Name != "ISS (ZARYA)" {
		t.Errorf("entry = %+v", e)
	}
	wantEpoch := time.Date(2008, 9, 20, 12, 25, 40, 0, time.UTC)
	if d := e.Epoch.Sub(wantEpoch); d < -time.Second || d > time.Second {
		t.Errorf("epoch = %v, want about %v", e.Epoch, wantEpoch)
	}
}

func TestCheckLine(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(issTLE), "\n")
	for _, l := range lines[1:] {
		if err := checkLine(l); err != nil {
			t.Errorf("checkLine(%q): %v", l, err)
		}
	}
	if err := checkLine(lines[1][:68]); err == nil {
		t.Error("expected length error")
	}
}

func tleServer(t *testing.T, body string, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTLESource(t *testing.T) {
	var fail atomic.Bool
	server := tleServer(t, issTLE, &fail)

	now := time.Date(2008, 9, 20, 13, 0, 0, 0, time.UTC)
	src := NewTLESource(TLEConfig{URL: server.URL, MaxAge: time.Hour}, testLogger)
	src.now = func() time.Time { return now }

	first, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.Source != "tle" || !first.Timestamp.Equal(now) {
		t.Errorf("position = %+v", first)
	}
	// The orbit's inclination bounds the ground track latitude.
	if math.Abs(first.Lat) > 52.5 {
		t.Errorf("latitude %v exceeds inclination", first.Lat)
	}

	// Ten minutes later the station has moved a long way east or west.
	now = now.Add(10 * time.Minute)
	second, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if math.Abs(second.Lon-first.Lon) < 1 && math.Abs(second.Lat-first.Lat) < 1 {
		t.Errorf("position did not move: %+v -> %+v", first, second)
	}

	// Past MaxAge a failed refresh keeps the old elements.
	fail.Store(true)
	now = now.Add(2 * time.Hour)
	if _, err := src.Fetch(context.Background()); err != nil {
		t.Errorf("Fetch with stale elements: %v", err)
	}
	if src.Elements() == nil {
		t.Error("elements dropped after failed refresh")
	}
}

func TestTLESource_Errors(t *testing.T) {
	t.Run("unknown catalog number", func(t *testing.T) {
		server := tleServer(t, issTLE, nil)
		src := NewTLESource(TLEConfig{URL: server.URL, CatalogNumber: 99999}, testLogger)
		if _, err := src.Fetch(context.Background()); !errors.Is(err, ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
	})

	t.Run("first download fails", func(t *testing.T) {
		var fail atomic.Bool
		fail.Store(true)
		server := tleServer(t, issTLE, &fail)
		if _, err := NewTLESource(TLEConfig{URL: server.URL}, testLogger).Fetch(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}
