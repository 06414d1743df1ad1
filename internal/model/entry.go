package model

import (
	"fmt"
	"time"
)

// Status is the approval state of a time entry. It is set by approval
// workflows outside the grid; the grid only ever creates drafts.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return st, nil
	case "":
		return StatusDraft, nil
	default:
		return "", fmt.Errorf("unknown entry status %q", s)
	}
}

// DefaultDescription is substituted for a blank description when entries are
// created or matched.
const DefaultDescription = "Time entry"

// DescriptionOrDefault returns s, or DefaultDescription when s is blank.
func DescriptionOrDefault(s string) string {
	if s == "" {
		return DefaultDescription
	}
	return s
}

// TimeEntry is a single persisted block of work on one calendar day.
type TimeEntry struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId,omitempty"`
	Date            string    `json:"date"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Description     string    `json:"description"`
	Status          Status    `json:"status"`
	CompanyID       string    `json:"companyId"`
	UserID          string    `json:"userId"`
	Department      string    `json:"department,omitempty"`
	Account         string    `json:"account,omitempty"`
	Paycode         string    `json:"paycode,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EntryPatch is a partial update. Nil fields are left unchanged.
type EntryPatch struct {
	ProjectID       *string    `json:"projectId,omitempty"`
	Description     *string    `json:"description,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	Status          *Status    `json:"status,omitempty"`
}

// Apply copies the set fields of p onto e.
func (p EntryPatch) Apply(e *TimeEntry) {
	if p.ProjectID != nil {
		e.ProjectID = *p.ProjectID
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.DurationMinutes != nil {
		e.DurationMinutes = *p.DurationMinutes
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
}

// DayFile is the top-level structure stored in each daily JSON file.
type DayFile struct {
	Date    string      `json:"date"`
	Entries []TimeEntry `json:"entries"`
}
