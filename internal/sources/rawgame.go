package sources

import (
	"context"
	"encoding/json"
	"time"
)

// RawGame is the uniform record every adapter emits. Name and Store are
// required; StoreID is synthesized when the storefront has no stable id.
type RawGame struct {
	Name          string
	Store         string
	StoreID       string
	PlaytimeHours *float64
	CoverURL      string
	Developers    []string
	Publishers    []string
	ReleaseDate   *time.Time
	LastModified  *time.Time
	Genres        []string

	// ExtraData is the raw store payload, preserved verbatim so later
	// code can re-parse fields this shape does not carry.
	ExtraData json.RawMessage

	// Streaming marks cloud-playable entries on services that
	// distinguish them from owned copies.
	Streaming bool
}

// Adapter fetches the full current catalog of one storefront.
type Adapter interface {
	// Store returns the fixed store identifier this adapter serves.
	Store() string

	// Fetch returns the normalized catalog. It never writes to the
	// library and fails with one of the sentinel error kinds.
	Fetch(ctx context.Context) ([]RawGame, error)
}

const userAgent = "gamehoard/1.0 (library aggregator)"
