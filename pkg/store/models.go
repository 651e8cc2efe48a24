package store

import (
	"time"
)

// CollectionRun outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
)

// Workflow is a named automation pattern observed on one platform in
// one country. Identity is (canonical_key, platform, country); the
// same key may legitimately appear under other platforms or countries
// as distinct rows.
type Workflow struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DisplayName  string    `gorm:"not null" json:"display_name"`
	CanonicalKey string    `gorm:"not null;uniqueIndex:uq_workflow_identity,priority:1" json:"canonical_key"`
	Description  string    `json:"description,omitempty"`
	Platform     string    `gorm:"not null;index;uniqueIndex:uq_workflow_identity,priority:2" json:"platform"`
	Country      string    `gorm:"not null;size:2;index;uniqueIndex:uq_workflow_identity,priority:3" json:"country"`
	SourceURL    string    `json:"source_url,omitempty"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Samples []MetricSample `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// MetricSample is one point-in-time measurement for a workflow. At
// most one sample exists per workflow per calendar date; re-running
// collection on the same date replaces the row's metric columns
// instead of appending a duplicate.
type MetricSample struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	WorkflowID uint      `gorm:"not null;uniqueIndex:uq_workflow_sample_date,priority:1" json:"-"`
	SampleDate time.Time `gorm:"not null;index;uniqueIndex:uq_workflow_sample_date,priority:2" json:"sample_date"`

	// Raw counters, populated only by the producing source.
	Views              *int `json:"views,omitempty"`
	Likes              *int `json:"likes,omitempty"`
	Comments           *int `json:"comments,omitempty"`
	Replies            *int `json:"replies,omitempty"`
	UniqueContributors *int `json:"unique_contributors,omitempty"`
	SearchVolume       *int `json:"search_volume,omitempty"`
	InterestScore      *int `json:"interest_score,omitempty"`

	// Derived ratios.
	LikeToViewRatio    *float64 `json:"like_to_view_ratio,omitempty"`
	CommentToViewRatio *float64 `json:"comment_to_view_ratio,omitempty"`
	TrendPercentage    *float64 `json:"trend_percentage,omitempty"`

	// EngagementScore is unified across sources.
	EngagementScore float64 `json:"engagement_score"`

	RecordedAt time.Time `json:"recorded_at"`
}

// CollectionRun is the audit record of one attempt to pull data from
// one source. Rows are append-only and never mutated after finalize.
type CollectionRun struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Platform       string    `gorm:"not null;index" json:"platform"`
	Country        string    `gorm:"not null" json:"country"`
	Outcome        string    `gorm:"not null" json:"outcome"`
	ItemsCollected int       `json:"items_collected"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}
