// Package tracker keeps the current position of the tracked satellite. A
// Poller asks a Source for a fresh fix on a fixed interval and swaps it into a
// Store; readers always see a whole Position or none.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/star/starglobe/internal/sphere"
)

// ErrMalformed marks a response that could not be turned into a position.
var ErrMalformed = errors.New("malformed position")

// Position is one satellite fix.
type Position struct {
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// GeoPoint returns the ground point of p.
func (p Position) GeoPoint() sphere.GeoPoint {
	return sphere.GeoPoint{Lon: p.Lon, Lat: p.Lat}
}

func (p Position) validate() error {
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrMalformed, p.Lon)
	}
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrMalformed, p.Lat)
	}
	return nil
}

// Source produces the current satellite position.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Position, error)
}

// Store holds the latest position.
type Store struct {
	pos atomic.Pointer[Position]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the latest position, or nil before the first successful poll.
func (s *Store) Get() *Position {
	return s.pos.Load()
}

// Set replaces the latest position.
func (s *Store) Set(p Position) {
	s.pos.Store(&p)
}

// AgeSeconds returns the age of the latest position in seconds, or -1 if
// there is none.
func (s *Store) AgeSeconds() float64 {
	p := s.pos.Load()
	if p == nil {
		return -1
	}
	return time.Since(p.Timestamp).Seconds()
}
