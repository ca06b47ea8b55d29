// Package controlplane provides the HTTP API and service layer for
// pulsebot.
package controlplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/pulsebot/internal/ai"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/report"
	"github.com/fentz26/pulsebot/internal/taskcache"
)

// JobRunner is the slice of the scheduler the control plane needs.
type JobRunner interface {
	JobStatuses() []models.JobStatus
	TriggerManually(id string) bool
}

// Service provides the control plane business logic.
type Service struct {
	tasks     *taskcache.Service
	reports   *report.Service
	jobs      JobRunner
	responder ai.Responder
}

// NewService creates a new control plane service. responder may be nil when
// no AI provider is configured.
func NewService(tasks *taskcache.Service, reports *report.Service, jobs JobRunner, responder ai.Responder) *Service {
	return &Service{
		tasks:     tasks,
		reports:   reports,
		jobs:      jobs,
		responder: responder,
	}
}

// GenerateDailyReport builds the daily report for a date ("" means today).
func (s *Service) GenerateDailyReport(ctx context.Context, date string) (*models.DailyReport, error) {
	t, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	return s.reports.GenerateDaily(ctx, t)
}

// GenerateWeeklyReport builds the weekly report ending at a date ("" means
// today).
func (s *Service) GenerateWeeklyReport(ctx context.Context, endDate string) (*models.WeeklyReport, error) {
	t, err := parseDate(endDate)
	if err != nil {
		return nil, err
	}
	return s.reports.GenerateWeekly(ctx, t)
}

// JobStatuses returns the scheduler's job table.
func (s *Service) JobStatuses() []models.JobStatus {
	return s.jobs.JobStatuses()
}

// TriggerJob runs a scheduled job immediately.
func (s *Service) TriggerJob(id string) error {
	if !s.jobs.TriggerManually(id) {
		return ErrJobNotFound
	}
	return nil
}

// OverdueTasks returns the current overdue set.
func (s *Service) OverdueTasks(ctx context.Context) []models.Issue {
	return s.tasks.OverdueTasks(ctx)
}

// TasksDueToday returns issues due on the current day.
func (s *Service) TasksDueToday(ctx context.Context) []models.Issue {
	return s.tasks.TasksDueToday(ctx)
}

// TasksDueThisWeek returns issues due within the next seven days.
func (s *Service) TasksDueThisWeek(ctx context.Context) []models.Issue {
	return s.tasks.TasksDueThisWeek(ctx)
}

// CompletionRate returns the percentage of tracked issues completed.
func (s *Service) CompletionRate(ctx context.Context) float64 {
	return s.tasks.CompletionRate(ctx)
}

// Answer resolves a free-text question against a snapshot of the current
// project state.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	if s.responder == nil {
		return "", ErrAIUnavailable
	}
	return s.responder.Answer(ctx, question, s.snapshot(ctx))
}

// snapshot renders the current project state as plain text for the model.
func (s *Service) snapshot(ctx context.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completion rate: %.1f%%\n", s.tasks.CompletionRate(ctx))

	sections := []struct {
		title  string
		issues []models.Issue
	}{
		{"Overdue", s.tasks.OverdueTasks(ctx)},
		{"Due today", s.tasks.TasksDueToday(ctx)},
		{"Due this week", s.tasks.TasksDueThisWeek(ctx)},
	}
	for _, sec := range sections {
		fmt.Fprintf(&b, "%s (%d):\n", sec.title, len(sec.issues))
		for i := range sec.issues {
			issue := &sec.issues[i]
			fmt.Fprintf(&b, "- %s %s (status %s, priority %s", issue.ID, issue.Summary, issue.Status, issue.Priority)
			if issue.DueDate != nil {
				fmt.Fprintf(&b, ", due %s", issue.DueDate.Format("2006-01-02"))
			}
			b.WriteString(")\n")
		}
	}
	return b.String()
}

func parseDate(date string) (time.Time, error) {
	if date == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}
