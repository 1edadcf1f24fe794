package model

import "time"

// WorkItem is one localized business listing for which review content can
// be generated. IDs are ULIDs, so ordering by ID is creation order and
// keyset cursors stay stable under concurrent inserts.
type WorkItem struct {
	ID          string
	CompanyID   string
	CompanyName string
	City        string
	Category    string
	Subcategory string
	NAFLabel    string

	// MetaDescription is SEO metadata pushed back from generation results,
	// independent of whether an artifact exists.
	MetaDescription string

	IsActive        bool
	LastGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
