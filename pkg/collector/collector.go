// Package collector implements the source adapters that pull raw
// workflow popularity observations from external platforms.
package collector

import (
	"context"
	"math"
	"time"
)

// Platform identifiers assigned to observations.
const (
	PlatformVideo  = "video"
	PlatformForum  = "forum"
	PlatformSearch = "search"
)

// Params selects what a collector should fetch.
type Params struct {
	// Queries are the search terms or keywords, in priority order.
	Queries []string

	// Countries are ISO 3166-1 alpha-2 codes to segment by. Sources
	// that cannot segment by geography ignore this.
	Countries []string
}

// Metrics holds the raw counters and derived figures of one
// observation. Counters are populated only by the producing source.
type Metrics struct {
	Views              *int
	Likes              *int
	Comments           *int
	Replies            *int
	UniqueContributors *int
	SearchVolume       *int
	InterestScore      *int

	LikeToViewRatio    *float64
	CommentToViewRatio *float64
	TrendPercentage    *float64

	// EngagementScore is the unified cross-source popularity figure.
	EngagementScore float64
}

// Observation is one record pulled from a source describing a workflow
// and its metrics at collection time.
type Observation struct {
	Platform    string
	Country     string
	DisplayName string
	Description string
	SourceURL   string
	ObservedAt  time.Time
	Metrics     Metrics
}

// Collector is the shared capability implemented by every source
// adapter. Collect degrades gracefully: individual failed calls yield
// fewer observations, and an error is returned only when the source is
// entirely unusable.
type Collector interface {
	Platform() string
	Collect(ctx context.Context, params Params) ([]Observation, error)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)

	return math.Round(v*scale) / scale
}
