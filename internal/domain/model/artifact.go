package model

import "time"

type ContentKind string

const (
	ContentKindReviewDigest ContentKind = "review_digest"
	ContentKindLongText     ContentKind = "long_text"
)

// GeneratedArtifact is an accepted generation output, 1:1 with a
// (WorkItem, ContentKind) pair via upsert.
type GeneratedArtifact struct {
	ID         string
	WorkItemID string
	Kind       ContentKind

	Text   string
	Source string
	Rating float64

	ConfidenceScore float64
	ExpiresAt       time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
