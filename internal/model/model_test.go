package model_test

import (
	"testing"
	"time"

	"github.com/Tiliavir/timesheet-grid/internal/model"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    model.Status
		wantErr bool
	}{
		{"draft", model.StatusDraft, false},
		{"submitted", model.StatusSubmitted, false},
		{"approved", model.StatusApproved, false},
		{"rejected", model.StatusRejected, false},
		{"", model.StatusDraft, false},
		{"pending", "", true},
	}
	for _, tt := range tests {
		got, err := model.ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPaycycleStatusAt(t *testing.T) {
	p := model.Paycycle{
		ID:        "pc1",
		Frequency: model.FrequencyBiweekly,
		StartDate: "2025-09-15",
		EndDate:   "2025-09-28",
		PayDate:   "2025-10-03",
	}
	tests := []struct {
		day  string
		want model.PaycycleStatus
	}{
		{"2025-09-14", model.PaycycleUpcoming},
		{"2025-09-15", model.PaycycleOpen},
		{"2025-09-28", model.PaycycleOpen},
		{"2025-09-29", model.PaycycleProcessing},
		{"2025-10-03", model.PaycycleProcessing},
		{"2025-10-04", model.PaycycleClosed},
	}
	for _, tt := range tests {
		now, _ := time.Parse("2006-01-02", tt.day)
		if got := p.StatusAt(now.Add(13 * time.Hour)); got != tt.want {
			t.Errorf("StatusAt(%s) = %q, want %q", tt.day, got, tt.want)
		}
	}
}

func TestPaycycleStatusAt_InvalidDates(t *testing.T) {
	p := model.Paycycle{StartDate: "soon", EndDate: "2025-09-28"}
	if got := p.StatusAt(time.Now()); got != model.PaycycleUpcoming {
		t.Errorf("StatusAt = %q, want upcoming", got)
	}
}

func TestEntryPatchApply(t *testing.T) {
	e := model.TimeEntry{ID: "e1", ProjectID: "p1", Description: "old", DurationMinutes: 60}
	desc := "new"
	mins := 90
	model.EntryPatch{Description: &desc, DurationMinutes: &mins}.Apply(&e)

	if e.Description != "new" || e.DurationMinutes != 90 {
		t.Errorf("patched entry = %+v", e)
	}
	if e.ProjectID != "p1" {
		t.Errorf("ProjectID changed to %q", e.ProjectID)
	}
}

func TestGridRowClone(t *testing.T) {
	r := model.GridRow{
		ID:          "r1",
		WeekEntries: map[string]model.DayCell{"2025-09-19": {Duration: "04:00"}},
		EntryIDs:    map[string]string{"2025-09-19": "e1"},
	}
	c := r.Clone()
	c.WeekEntries["2025-09-19"] = model.DayCell{Duration: "01:00"}
	c.EntryIDs["2025-09-19"] = "e2"

	if r.WeekEntries["2025-09-19"].Duration != "04:00" || r.EntryIDs["2025-09-19"] != "e1" {
		t.Error("Clone shares maps with the original")
	}
	if !r.Populated() {
		t.Error("expected populated row")
	}
	if (model.GridRow{}).Populated() {
		t.Error("empty row reported populated")
	}
}
