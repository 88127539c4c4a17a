package metadata

import (
	"context"
	"errors"
)

// ErrNotFound indicates the provider has no entry for the queried title.
var ErrNotFound = errors.New("metadata not found")

// Result carries the provider fields the catalog cares about.
// Empty strings mean the provider had nothing for that field.
type Result struct {
	Title     string
	Year      string
	Rating    string
	Plot      string
	Genre     string
	PosterURL string
}

// Provider looks up film and series metadata by title.
type Provider interface {
	LookupMovie(ctx context.Context, title, year string) (*Result, error)
	LookupSeries(ctx context.Context, title, year string) (*Result, error)
}
