package models

import "time"

// Severity represents how badly a bug hurts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status represents where a bug is in its lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Bug is a tracked defect report. ID and both timestamps are assigned by
// the store and are never client-writable.
type Bug struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Severity          Severity  `json:"severity"`
	Status            Status    `json:"status"`
	ReportedBy        string    `json:"reportedBy"`
	AssignedTo        string    `json:"assignedTo,omitempty"`
	Tags              []string  `json:"tags"`
	ReproductionSteps string    `json:"reproductionSteps,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// BugPatch is a partial update. Nil fields are left untouched; non-nil
// fields replace the stored value and the merged record is re-validated.
type BugPatch struct {
	Title             *string   `json:"title,omitempty"`
	Description       *string   `json:"description,omitempty"`
	Severity          *string   `json:"severity,omitempty"`
	Status            *string   `json:"status,omitempty"`
	ReportedBy        *string   `json:"reportedBy,omitempty"`
	AssignedTo        *string   `json:"assignedTo,omitempty"`
	Tags              *[]string `json:"tags,omitempty"`
	ReproductionSteps *string   `json:"reproductionSteps,omitempty"`
}

// Apply merges the patch into b.
func (p BugPatch) Apply(b *Bug) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Severity != nil {
		b.Severity = Severity(*p.Severity)
	}
	if p.Status != nil {
		b.Status = Status(*p.Status)
	}
	if p.ReportedBy != nil {
		b.ReportedBy = *p.ReportedBy
	}
	if p.AssignedTo != nil {
		b.AssignedTo = *p.AssignedTo
	}
	if p.Tags != nil {
		b.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.ReproductionSteps != nil {
		b.ReproductionSteps = *p.ReproductionSteps
	}
}

// Clone returns a deep copy of b.
func (b *Bug) Clone() *Bug {
	c := *b
	c.Tags = append([]string(nil), b.Tags...)
	return &c
}
