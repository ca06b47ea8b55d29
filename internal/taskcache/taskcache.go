// Package taskcache provides the read-through/write-through cache between
// the report engine and the external issue tracker.
package taskcache

import (
	"context"
	"log"
	"time"

	"github.com/fentz26/pulsebot/internal/backlog"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/store"
)

// Tracker is the issue-tracker surface the cache needs. *backlog.Client
// satisfies it; tests substitute fakes.
type Tracker interface {
	ProjectIssues(ctx context.Context, projectID string, filter backlog.IssueFilter) ([]models.Issue, error)
	Issue(ctx context.Context, issueID string) (*models.Issue, error)
}

// Service caches issue state with a TTL and falls back to the tracker on
// miss. Remote failures are isolated per project; read paths never fail
// wholesale — they return the union of whatever succeeded.
type Service struct {
	store      *store.Store
	tracker    Tracker
	projectIDs []string
	ttl        time.Duration

	now func() time.Time
}

// New creates the task cache service.
func New(s *store.Store, tracker Tracker, projectIDs []string, ttl time.Duration) *Service {
	return &Service{
		store:      s,
		tracker:    tracker,
		projectIDs: projectIDs,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// cutoff is the oldest cached_at a cache entry may carry and still be valid.
func (s *Service) cutoff() time.Time {
	return s.now().Add(-s.ttl)
}

// AllTasks returns every issue across the given projects (the configured
// projects when projectIDs is nil). With useCache, fresh per-project cache
// entry sets short-circuit the remote fetch; fetched issues are written
// through. Per-project failures are logged and skipped.
func (s *Service) AllTasks(ctx context.Context, projectIDs []string, useCache bool) []models.Issue {
	if projectIDs == nil {
		projectIDs = s.projectIDs
	}

	var all []models.Issue
	for _, projectID := range projectIDs {
		if useCache {
			cached, err := s.store.CachedProjectIssues(projectID, s.cutoff())
			if err != nil {
				log.Printf("taskcache: cache read failed for project %s: %v", projectID, err)
			} else if len(cached) > 0 {
				all = append(all, cached...)
				continue
			}
		}

		issues, err := s.fetchProject(ctx, projectID, backlog.IssueFilter{})
		if err != nil {
			log.Printf("taskcache: fetching project %s failed: %v", projectID, err)
			continue
		}
		all = append(all, issues...)
	}
	return all
}

// fetchProject pulls a project's issues from the tracker and writes each one
// through to the cache.
func (s *Service) fetchProject(ctx context.Context, projectID string, filter backlog.IssueFilter) ([]models.Issue, error) {
	issues, err := s.tracker.ProjectIssues(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	cachedAt := s.now()
	for i := range issues {
		if err := s.store.UpsertIssue(&issues[i], cachedAt); err != nil {
			log.Printf("taskcache: caching issue %s failed: %v", issues[i].ID, err)
		}
	}
	return issues, nil
}

// OverdueTasks returns open issues whose due date has passed. The cache is
// consulted first; on miss the tracker is queried with a due-date range.
func (s *Service) OverdueTasks(ctx context.Context) []models.Issue {
	now := s.now()
	cached, err := s.store.CachedOverdueIssues(now, s.cutoff())
	if err != nil {
		log.Printf("taskcache: overdue cache read failed: %v", err)
	} else if len(cached) > 0 {
		return cached
	}

	var overdue []models.Issue
	for _, projectID := range s.projectIDs {
		issues, err := s.fetchProject(ctx, projectID, backlog.IssueFilter{
			DueUntil: now,
			OpenOnly: true,
		})
		if err != nil {
			log.Printf("taskcache: fetching overdue issues for project %s failed: %v", projectID, err)
			continue
		}
		for i := range issues {
			if issues[i].Overdue(now) {
				overdue = append(overdue, issues[i])
			}
		}
	}
	return overdue
}

// TasksDueToday returns open issues due on the current calendar day.
func (s *Service) TasksDueToday(ctx context.Context) []models.Issue {
	now := s.now()
	start, end := dayBounds(now)

	cached, err := s.store.CachedIssuesDueBetween(start, end, s.cutoff())
	if err != nil {
		log.Printf("taskcache: due-today cache read failed: %v", err)
	} else if len(cached) > 0 {
		return cached
	}

	var due []models.Issue
	for _, issue := range s.AllTasks(ctx, nil, true) {
		if issue.DueToday(now) {
			due = append(due, issue)
		}
	}
	return due
}

// TasksDueThisWeek returns open issues due within the next 7 days inclusive
// of today.
func (s *Service) TasksDueThisWeek(ctx context.Context) []models.Issue {
	now := s.now()
	start, _ := dayBounds(now)
	_, end := dayBounds(now.AddDate(0, 0, 7))

	cached, err := s.store.CachedIssuesDueBetween(start, end, s.cutoff())
	if err != nil {
		log.Printf("taskcache: due-this-week cache read failed: %v", err)
	} else if len(cached) > 0 {
		return cached
	}

	var due []models.Issue
	for _, projectID := range s.projectIDs {
		issues, err := s.fetchProject(ctx, projectID, backlog.IssueFilter{
			DueSince: start,
			DueUntil: end,
			OpenOnly: true,
		})
		if err != nil {
			log.Printf("taskcache: fetching upcoming issues for project %s failed: %v", projectID, err)
			continue
		}
		for i := range issues {
			if issues[i].DueThisWeek(now) {
				due = append(due, issues[i])
			}
		}
	}
	return due
}

// TasksByAssignee returns open issues assigned to a user.
func (s *Service) TasksByAssignee(ctx context.Context, assigneeID string) []models.Issue {
	cached, err := s.store.CachedIssuesByAssignee(assigneeID, s.cutoff())
	if err != nil {
		log.Printf("taskcache: assignee cache read failed: %v", err)
	} else if len(cached) > 0 {
		return cached
	}

	var assigned []models.Issue
	for _, issue := range s.AllTasks(ctx, nil, true) {
		if issue.AssigneeID == assigneeID && !issue.Status.Done() {
			assigned = append(assigned, issue)
		}
	}
	return assigned
}

// UnassignedTasks returns issues with no assignee.
func (s *Service) UnassignedTasks(ctx context.Context) []models.Issue {
	var unassigned []models.Issue
	for _, issue := range s.AllTasks(ctx, nil, true) {
		if issue.AssigneeID == "" {
			unassigned = append(unassigned, issue)
		}
	}
	return unassigned
}

// TaskByID returns a single issue, from cache when fresh, otherwise from the
// tracker with write-through. A failed remote lookup yields nil, not an
// error.
func (s *Service) TaskByID(ctx context.Context, issueID string) *models.Issue {
	cached, err := s.store.CachedIssueByID(issueID, s.cutoff())
	if err != nil {
		log.Printf("taskcache: cache read for issue %s failed: %v", issueID, err)
	} else if cached != nil {
		return cached
	}

	issue, err := s.tracker.Issue(ctx, issueID)
	if err != nil {
		log.Printf("taskcache: fetching issue %s failed: %v", issueID, err)
		return nil
	}
	if issue == nil {
		return nil
	}
	if err := s.store.UpsertIssue(issue, s.now()); err != nil {
		log.Printf("taskcache: caching issue %s failed: %v", issueID, err)
	}
	return issue
}

// CompletionRate returns the percentage of all fetched issues in a completed
// status, 0.0 when no issues exist.
func (s *Service) CompletionRate(ctx context.Context) float64 {
	all := s.AllTasks(ctx, nil, true)
	if len(all) == 0 {
		return 0.0
	}
	completed := 0
	for i := range all {
		if all[i].Status.Done() {
			completed++
		}
	}
	return float64(completed) / float64(len(all)) * 100.0
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.Add(24*time.Hour - time.Nanosecond)
}
