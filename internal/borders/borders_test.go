package borders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const sampleDataset = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"CONTINENT": "A"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,0]]]}},
    {"type": "MultiPolygon", "coordinates": [
      [[[20,20],[30,20],[30,30],[20,20]]],
      [[[40,40],[50,40],[50,50],[40,40]]]
    ]},
    {"type": "Polygon", "coordinates": [[[1,1],[2,1],[2,2],[1,1]]]},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [5,5]}},
    {"type": "GeometryCollection", "geometries": []},
    {"type": "Feature", "properties": {}, "geometry": null}
  ]
}`

func TestDecode(t *testing.T) {
	geoms, err := Decode([]byte(sampleDataset), testLogger)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Feature(Polygon), MultiPolygon, Polygon, Feature(Point). The collection
	// and the null geometry are skipped.
	if len(geoms) != 4 {
		t.Fatalf("got %d geometries, want 4", len(geoms))
	}
	if _, ok := geoms[0].(orb.Polygon); !ok {
		t.Errorf("geoms[0] = %T, want orb.Polygon", geoms[0])
	}
	mp, ok := geoms[1].(orb.MultiPolygon)
	if !ok {
		t.Fatalf("geoms[1] = %T, want orb.MultiPolygon", geoms[1])
	}
	if len(mp) != 2 {
		t.Errorf("multipolygon has %d polygons, want 2", len(mp))
	}
	if _, ok := geoms[3].(orb.Point); !ok {
		t.Errorf("geoms[3] = %T, want orb.Point", geoms[3])
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`{"features": 12}`), testLogger); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestFetcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	data, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != sampleDataset {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(sampleDataset))
	}
}

func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := NewFetcher(server.URL, testLogger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 404 response, got nil")
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		if err := c.Write([]byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("cache holds %d files, want 2", len(entries))
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "d" {
		t.Errorf("latest data = %q, want %q", data, "d")
	}
	if !ts.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("latest ts = %v, want %v", ts, base.Add(3*time.Hour))
	}
}

func TestCacheWrite_IdenticalContentRefreshes(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 3)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		if err := c.Write([]byte(sampleDataset), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("cache holds %d files after identical downloads, want 1", len(entries))
	}
	_, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("cached at %v, want the latest download time %v", ts, base.Add(2*time.Hour))
	}
}

func TestCacheLoadLatest_SkipsDamagedEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 3)

	base := time.Unix(1_700_000_000, 0)
	if err := c.Write([]byte("old"), base); err != nil {
		t.Fatal(err)
	}
	if err := c.Write([]byte("new"), base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	// Truncate the newest entry in place.
	newest := filepath.Join(dir, cacheEntry{ts: base.Add(time.Hour), digest: digestOf([]byte("new"))}.name())
	if err := os.WriteFile(newest, []byte("ne"), 0644); err != nil {
		t.Fatal(err)
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "old" || !ts.Equal(base) {
		t.Errorf("LoadLatest = %q at %v, want %q at %v", data, ts, "old", base)
	}
}

func TestCache_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "123-xyz.geojson", "abc-0123456789abcdef.geojson", ".partial-1"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := NewCache(dir, 3).LoadLatest(); err == nil {
		t.Error("expected no usable entries among foreign files")
	}
}

func TestCacheLoadLatest_Empty(t *testing.T) {
	if _, _, err := NewCache(filepath.Join(t.TempDir(), "missing"), 0).LoadLatest(); err == nil {
		t.Fatal("expected error for empty cache")
	}
}

func TestSource_FallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	if err := NewCache(dir, 3).Write([]byte(sampleDataset), time.Now()); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewSource(Config{URL: server.URL, CacheDir: dir}, testLogger)
	geoms, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(geoms) != 4 {
		t.Errorf("got %d geometries, want 4", len(geoms))
	}
}

func TestSource_DownloadIsCached(t *testing.T) {
	dir := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	if _, err := NewSource(Config{URL: server.URL, CacheDir: dir}, testLogger).Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := NewCache(dir, 3).LoadLatest(); err != nil {
		t.Errorf("downloaded dataset was not cached: %v", err)
	}
}

func TestSource_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.geojson")
	if err := os.WriteFile(path, []byte(sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}

	geoms, err := NewSource(Config{Path: path}, testLogger).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(geoms) != 4 {
		t.Errorf("got %d geometries, want 4", len(geoms))
	}
}

func TestSource_NoDataset(t *testing.T) {
	_, err := NewSource(Config{Path: filepath.Join(t.TempDir(), "nope.geojson")}, testLogger).Load(context.Background())
	if !errors.Is(err, ErrNoDataset) {
		t.Errorf("err = %v, want ErrNoDataset", err)
	}
}
