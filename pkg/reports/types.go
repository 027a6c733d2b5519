// Package reports owns the report catalog, the report↔unit visibility
// join and the Step classification labels. A report row exists once per
// upstream report regardless of how many units reference it.
package reports

import "time"

// Report represents a registered BI report
type Report struct {
	ID          int64     `json:"id"`
	ReportID    string    `json:"report_id"` // upstream report ID, globally unique
	WorkspaceID string    `json:"workspace_id"`
	DatasetID   string    `json:"dataset_id,omitempty"`
	Name        string    `json:"name"`
	Code        string    `json:"code,omitempty"`
	EmbedURL    string    `json:"embed_url,omitempty"`
	StepID      *int64    `json:"step_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// UnitIDs is populated on detail reads; the join itself is
	// ownerless and carries no attributes.
	UnitIDs []int64 `json:"unit_ids,omitempty"`
}

// Step is a global, non-hierarchical classification label
type Step struct {
	ID         int64     `json:"id"`
	StepNumber int       `json:"step_number"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateReportRequest registers a report against one or more units
type CreateReportRequest struct {
	UnitIDs     []int64 `json:"unit_ids"`
	ReportID    string  `json:"report_id"`
	WorkspaceID string  `json:"workspace_id"`
	DatasetID   string  `json:"dataset_id,omitempty"`
	Name        string  `json:"name"`
	Code        string  `json:"code,omitempty"`
	EmbedURL    string  `json:"embed_url,omitempty"`
	StepID      *int64  `json:"step_id,omitempty"`
}

// UpdateReportRequest updates report metadata
type UpdateReportRequest struct {
	Name      *string `json:"name,omitempty"`
	DatasetID *string `json:"dataset_id,omitempty"`
	EmbedURL  *string `json:"embed_url,omitempty"`
	Code      *string `json:"code,omitempty"`
	StepID    *int64  `json:"step_id,omitempty"`
}

// CreateStepRequest creates a classification label
type CreateStepRequest struct {
	StepNumber int    `json:"step_number"`
	Name       string `json:"name"`
}

// UpdateStepRequest updates a classification label
type UpdateStepRequest struct {
	StepNumber *int    `json:"step_number,omitempty"`
	Name       *string `json:"name,omitempty"`
}

// SyncItem is one report as described by the upstream workspace
// listing, used when mirroring a workspace into the catalog.
type SyncItem struct {
	ReportID    string
	WorkspaceID string
	DatasetID   string
	Name        string
	EmbedURL    string
}

// SyncResult summarizes a workspace sync
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}
