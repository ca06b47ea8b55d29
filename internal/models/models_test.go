package models

import (
	"testing"
	"time"
)

var noon = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestIssueOverdue(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  bool
	}{
		{"past due and open", Issue{DueDate: datePtr(2026, 8, 29), Status: StatusOpen}, true},
		{"past due in progress", Issue{DueDate: datePtr(2026, 8, 29), Status: StatusInProgress}, true},
		{"past due but resolved", Issue{DueDate: datePtr(2026, 8, 29), Status: StatusResolved}, false},
		{"past due but closed", Issue{DueDate: datePtr(2026, 8, 29), Status: StatusClosed}, false},
		{"future due", Issue{DueDate: datePtr(2026, 9, 2), Status: StatusOpen}, false},
		{"no due date", Issue{Status: StatusOpen}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.Overdue(noon); got != tt.want {
				t.Errorf("Overdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIssueDueToday(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  bool
	}{
		{"due today", Issue{DueDate: datePtr(2026, 8, 31), Status: StatusOpen}, true},
		{"due tomorrow", Issue{DueDate: datePtr(2026, 9, 1), Status: StatusOpen}, false},
		{"due today but done", Issue{DueDate: datePtr(2026, 8, 31), Status: StatusClosed}, false},
		{"no due date", Issue{Status: StatusOpen}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.DueToday(noon); got != tt.want {
				t.Errorf("DueToday() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIssueDueThisWeek(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  bool
	}{
		{"due today", Issue{DueDate: datePtr(2026, 8, 31), Status: StatusOpen}, true},
		{"due in 7 days", Issue{DueDate: datePtr(2026, 9, 7), Status: StatusOpen}, true},
		{"due in 8 days", Issue{DueDate: datePtr(2026, 9, 8), Status: StatusOpen}, false},
		{"already past", Issue{DueDate: datePtr(2026, 8, 30), Status: StatusOpen}, false},
		{"due this week but done", Issue{DueDate: datePtr(2026, 9, 3), Status: StatusResolved}, false},
		{"no due date", Issue{Status: StatusOpen}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.DueThisWeek(noon); got != tt.want {
				t.Errorf("DueThisWeek() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusDone(t *testing.T) {
	if !StatusResolved.Done() || !StatusClosed.Done() {
		t.Error("Expected resolved and closed to count as done")
	}
	if StatusOpen.Done() || StatusInProgress.Done() || StatusPending.Done() {
		t.Error("Expected open, in_progress, and pending to not count as done")
	}
}

func TestDailyReportHasIssues(t *testing.T) {
	empty := DailyReport{}
	if empty.HasIssues() {
		t.Error("Expected no issues for an empty report")
	}

	withOverdue := DailyReport{OverdueIssues: []Issue{{ID: "P1-1"}}}
	if !withOverdue.HasIssues() {
		t.Error("Expected issues when something is overdue")
	}

	withDueToday := DailyReport{DueToday: []Issue{{ID: "P1-2"}}}
	if !withDueToday.HasIssues() {
		t.Error("Expected issues when something is due today")
	}

	onlyWeek := DailyReport{DueThisWeek: []Issue{{ID: "P1-3"}}}
	if onlyWeek.HasIssues() {
		t.Error("Expected due-this-week alone to not raise the flag")
	}
}
