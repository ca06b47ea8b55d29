// Package report builds daily and weekly project-status reports from the
// task cache, chat progress signals, and sync updates.
package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/progress"
	"github.com/fentz26/pulsebot/internal/store"
	"github.com/fentz26/pulsebot/internal/taskcache"
)

// ServiceError wraps any failure during report assembly or persistence.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("report %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// dateKey is the persistence key layout for report dates.
const dateKey = "2006-01-02"

// Service generates reports. Each generation call is a pure function of
// (date, current cache and remote state) plus the upsert of the result.
type Service struct {
	tasks     *taskcache.Service
	extractor *progress.Extractor
	store     *store.Store

	now func() time.Time
}

// New creates the report service.
func New(tasks *taskcache.Service, extractor *progress.Extractor, s *store.Store) *Service {
	return &Service{
		tasks:     tasks,
		extractor: extractor,
		store:     s,
		now:       time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// GenerateDaily builds and persists the daily report for a date. The zero
// time means today. Failures gathering inputs degrade to partial or empty
// results; a failure to persist returns a ServiceError and no report.
func (s *Service) GenerateDaily(ctx context.Context, date time.Time) (*models.DailyReport, error) {
	if date.IsZero() {
		date = s.now()
	}
	date = startOfDay(date)
	log.Printf("report: generating daily report for %s", date.Format(dateKey))

	overdue := s.tasks.OverdueTasks(ctx)
	dueToday := s.tasks.TasksDueToday(ctx)
	dueThisWeek := s.tasks.TasksDueThisWeek(ctx)
	completionRate := s.tasks.CompletionRate(ctx)

	// Progress signals come from the prior day's chat.
	yesterday := date.AddDate(0, 0, -1)
	yStart, yEnd := dayBounds(yesterday)
	signals, err := s.extractor.Extract(ctx, yStart, yEnd)
	if err != nil {
		log.Printf("report: extracting progress for %s failed: %v", yesterday.Format(dateKey), err)
		signals = nil
	}

	dStart, dEnd := dayBounds(date)
	syncs, err := s.store.SyncUpdatesBetween(dStart, dEnd)
	if err != nil {
		log.Printf("report: loading sync updates for %s failed: %v", date.Format(dateKey), err)
		syncs = nil
	}

	r := &models.DailyReport{
		Date:           date,
		OverdueIssues:  overdue,
		DueToday:       dueToday,
		DueThisWeek:    dueThisWeek,
		Progress:       signals,
		SyncUpdates:    syncs,
		CompletionRate: completionRate,
	}

	if err := s.store.SaveDailyReport(date.Format(dateKey), dailyDoc(r, s.now())); err != nil {
		return nil, &ServiceError{Op: "save daily", Err: err}
	}

	log.Printf("report: daily report for %s generated", date.Format(dateKey))
	return r, nil
}

// GenerateWeekly builds and persists the weekly report for the 7-day window
// ending at endDate inclusive. The zero time means today. Missing daily
// reports inside the window are generated first (self-healing); days that
// still fail are skipped.
func (s *Service) GenerateWeekly(ctx context.Context, endDate time.Time) (*models.WeeklyReport, error) {
	if endDate.IsZero() {
		endDate = s.now()
	}
	endDate = startOfDay(endDate)
	startDate := endDate.AddDate(0, 0, -6)
	log.Printf("report: generating weekly report for %s..%s", startDate.Format(dateKey), endDate.Format(dateKey))

	dailies, err := s.loadDailyRange(ctx, startDate, endDate)
	if err != nil {
		return nil, &ServiceError{Op: "load dailies", Err: err}
	}

	if len(dailies) < 7 {
		s.healMissingDays(ctx, startDate, dailies)
		dailies, err = s.loadDailyRange(ctx, startDate, endDate)
		if err != nil {
			return nil, &ServiceError{Op: "reload dailies", Err: err}
		}
	}

	trends := s.analyzeTrends(ctx, dailies, startDate, endDate)

	r := &models.WeeklyReport{
		WeekStart:       startDate,
		WeekEnd:         endDate,
		DailyReports:    dailies,
		Trends:          trends,
		KeyAchievements: keyAchievements(dailies),
		Blockers:        extractBlockers(dailies),
		Recommendations: recommendations(dailies, trends),
	}

	doc := weeklyDoc(r, s.now())
	if err := s.store.SaveWeeklyReport(startDate.Format(dateKey), endDate.Format(dateKey), doc); err != nil {
		return nil, &ServiceError{Op: "save weekly", Err: err}
	}

	log.Printf("report: weekly report for %s..%s generated", startDate.Format(dateKey), endDate.Format(dateKey))
	return r, nil
}

// healMissingDays generates daily reports for window days without a stored
// document. Per-day failures are logged and skipped.
func (s *Service) healMissingDays(ctx context.Context, startDate time.Time, existing []models.DailyReport) {
	have := make(map[string]bool, len(existing))
	for i := range existing {
		have[existing[i].Date.Format(dateKey)] = true
	}
	for day := 0; day < 7; day++ {
		date := startDate.AddDate(0, 0, day)
		if have[date.Format(dateKey)] {
			continue
		}
		if _, err := s.GenerateDaily(ctx, date); err != nil {
			log.Printf("report: self-heal for %s failed: %v", date.Format(dateKey), err)
		}
	}
}

// loadDailyRange rehydrates stored daily reports: issues come back from the
// task cache by id, progress and sync updates are re-read for each day.
func (s *Service) loadDailyRange(ctx context.Context, startDate, endDate time.Time) ([]models.DailyReport, error) {
	docs, err := s.store.DailyReportDocs(startDate.Format(dateKey), endDate.Format(dateKey))
	if err != nil {
		return nil, err
	}

	issues := make(map[string]*models.Issue)
	lookup := func(ids []string) []models.Issue {
		out := make([]models.Issue, 0, len(ids))
		for _, id := range ids {
			issue, ok := issues[id]
			if !ok {
				issue = s.tasks.TaskByID(ctx, id)
				issues[id] = issue
			}
			if issue != nil {
				out = append(out, *issue)
			}
		}
		return out
	}

	var reports []models.DailyReport
	for i := range docs {
		doc := &docs[i]
		date, err := time.ParseInLocation(dateKey, doc.Date, startDate.Location())
		if err != nil {
			log.Printf("report: stored daily report has bad date %q: %v", doc.Date, err)
			continue
		}

		yStart, yEnd := dayBounds(date.AddDate(0, 0, -1))
		signals, err := s.extractor.Extract(ctx, yStart, yEnd)
		if err != nil {
			log.Printf("report: re-extracting progress for %s failed: %v", doc.Date, err)
			signals = nil
		}

		dStart, dEnd := dayBounds(date)
		syncs, err := s.store.SyncUpdatesBetween(dStart, dEnd)
		if err != nil {
			log.Printf("report: re-loading sync updates for %s failed: %v", doc.Date, err)
			syncs = nil
		}

		reports = append(reports, models.DailyReport{
			Date:           date,
			OverdueIssues:  lookup(doc.OverdueIDs),
			DueToday:       lookup(doc.DueTodayIDs),
			DueThisWeek:    lookup(doc.DueThisWeekIDs),
			Progress:       signals,
			SyncUpdates:    syncs,
			CompletionRate: doc.CompletionRate,
		})
	}
	return reports, nil
}

func dailyDoc(r *models.DailyReport, now time.Time) *store.DailyReportDoc {
	return &store.DailyReportDoc{
		Date:            r.Date.Format(dateKey),
		OverdueIDs:      issueIDs(r.OverdueIssues),
		DueTodayIDs:     issueIDs(r.DueToday),
		DueThisWeekIDs:  issueIDs(r.DueThisWeek),
		CompletionRate:  r.CompletionRate,
		ProgressCount:   len(r.Progress),
		SyncUpdateCount: len(r.SyncUpdates),
		CreatedAt:       now.Format(time.RFC3339),
	}
}

func weeklyDoc(r *models.WeeklyReport, now time.Time) *store.WeeklyReportDoc {
	dates := make([]string, 0, len(r.DailyReports))
	for i := range r.DailyReports {
		dates = append(dates, r.DailyReports[i].Date.Format(dateKey))
	}
	return &store.WeeklyReportDoc{
		WeekStart:       r.WeekStart.Format(dateKey),
		WeekEnd:         r.WeekEnd.Format(dateKey),
		DailyDates:      dates,
		Trends:          r.Trends,
		KeyAchievements: r.KeyAchievements,
		Blockers:        r.Blockers,
		Recommendations: r.Recommendations,
		CreatedAt:       now.Format(time.RFC3339),
	}
}

func issueIDs(issues []models.Issue) []string {
	ids := make([]string, 0, len(issues))
	for i := range issues {
		ids = append(ids, issues[i].ID)
	}
	return ids
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := startOfDay(t)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}
