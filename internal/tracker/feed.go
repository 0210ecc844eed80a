package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultFeedURL is the public ISS position feed.
const DefaultFeedURL = "http://api.open-notify.org/iss-now.json"

// maxFeedBytes bounds a feed response.
const maxFeedBytes = 64 << 10

// FeedSource reads positions from a JSON feed of the form
//
//	{"iss_position": {"longitude": "-12.3", "latitude": "45.6"}, "timestamp": 1700000000}
//
// where coordinates are decimal strings.
type FeedSource struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// NewFeedSource creates a FeedSource for url, or DefaultFeedURL when empty.
func NewFeedSource(url string, timeout time.Duration) *FeedSource {
	if url == "" {
		url = DefaultFeedURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (f *FeedSource) Name() string { return "feed" }

type feedResponse struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Position  *struct {
		Longitude string `json:"longitude"`
		Latitude  string `json:"latitude"`
	} `json:"iss_position"`
}

// Fetch performs one GET and parses the response.
func (f *FeedSource) Fetch(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Position{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("fetching position: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return Position{}, fmt.Errorf("reading response body: %w", err)
	}
	return f.parse(body)
}

func (f *FeedSource) parse(body []byte) (Position, error) {
	var r feedResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if r.Position == nil {
		return Position{}, fmt.Errorf("%w: missing iss_position", ErrMalformed)
	}

	lon, err := strconv.ParseFloat(r.Position.Longitude, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: longitude %q", ErrMalformed, r.Position.Longitude)
	}
	lat, err := strconv.ParseFloat(r.Position.Latitude, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: latitude %q", ErrMalformed, r.Position.Latitude)
	}

	ts := f.now()
	if r.Timestamp > 0 {
		ts = time.Unix(r.Timestamp, 0).UTC()
	}

	p := Position{Lon: lon, Lat: lat, Timestamp: ts, Source: f.Name()}
	if err := p.validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}
