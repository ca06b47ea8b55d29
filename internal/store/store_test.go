package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIssue(id string, due *time.Time) *models.Issue {
	return &models.Issue{
		ID:        id,
		ProjectID: "P1",
		Summary:   "Issue " + id,
		Status:    models.StatusOpen,
		Priority:  models.PriorityNormal,
		DueDate:   due,
		CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestUpsertIssue_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	due := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	issue := testIssue("P1-1", &due)
	if err := s.UpsertIssue(issue, now); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}

	got, err := s.CachedIssueByID("P1-1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CachedIssueByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cached issue, got nil")
	}
	if got.Summary != issue.Summary || got.Status != models.StatusOpen {
		t.Errorf("Unexpected issue: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("Expected due date %v, got %v", due, got.DueDate)
	}
}

func TestUpsertIssue_Overwrites(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	issue := testIssue("P1-1", nil)
	if err := s.UpsertIssue(issue, now); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}

	issue.Status = models.StatusResolved
	issue.Summary = "Updated"
	if err := s.UpsertIssue(issue, now); err != nil {
		t.Fatalf("Second UpsertIssue failed: %v", err)
	}

	issues, err := s.CachedProjectIssues("P1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CachedProjectIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("Expected 1 issue after upsert, got %d", len(issues))
	}
	if issues[0].Status != models.StatusResolved || issues[0].Summary != "Updated" {
		t.Errorf("Expected overwritten issue, got %+v", issues[0])
	}
}

func TestCachedIssues_RespectCutoff(t *testing.T) {
	s := newTestStore(t)

	staleAt := time.Now().Add(-time.Hour)
	if err := s.UpsertIssue(testIssue("P1-1", nil), staleAt); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}

	cutoff := time.Now().Add(-30 * time.Minute)
	issues, err := s.CachedProjectIssues("P1", cutoff)
	if err != nil {
		t.Fatalf("CachedProjectIssues failed: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("Expected stale entries to be filtered, got %d", len(issues))
	}

	got, err := s.CachedIssueByID("P1-1", cutoff)
	if err != nil {
		t.Fatalf("CachedIssueByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for stale issue, got %+v", got)
	}
}

func TestCachedOverdueIssues(t *testing.T) {
	s := newTestStore(t)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -2)
	future := now.AddDate(0, 0, 2)

	overdue := testIssue("P1-1", &past)
	upcoming := testIssue("P1-2", &future)
	doneLate := testIssue("P1-3", &past)
	doneLate.Status = models.StatusClosed

	cachedAt := now.Add(-time.Minute)
	for _, issue := range []*models.Issue{overdue, upcoming, doneLate} {
		if err := s.UpsertIssue(issue, cachedAt); err != nil {
			t.Fatalf("UpsertIssue failed: %v", err)
		}
	}

	got, err := s.CachedOverdueIssues(now, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CachedOverdueIssues failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "P1-1" {
		t.Errorf("Expected only P1-1 overdue, got %+v", got)
	}
}

func TestDailyReport_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := &DailyReportDoc{
		Date:           "2026-08-28",
		OverdueIDs:     []string{"P1-1"},
		DueTodayIDs:    []string{"P1-2", "P1-3"},
		CompletionRate: 80,
		CreatedAt:      time.Now().Format(time.RFC3339),
	}
	if err := s.SaveDailyReport("2026-08-28", doc); err != nil {
		t.Fatalf("SaveDailyReport failed: %v", err)
	}

	docs, err := s.DailyReportDocs("2026-08-22", "2026-08-28")
	if err != nil {
		t.Fatalf("DailyReportDocs failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 doc, got %d", len(docs))
	}
	got := docs[0]
	if got.Version != DocVersion {
		t.Errorf("Expected version %d, got %d", DocVersion, got.Version)
	}
	if len(got.OverdueIDs) != 1 || len(got.DueTodayIDs) != 2 || got.CompletionRate != 80 {
		t.Errorf("Unexpected doc: %+v", got)
	}
}

func TestDailyReport_UpsertsByDate(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveDailyReport("2026-08-28", &DailyReportDoc{Date: "2026-08-28", CompletionRate: 10}); err != nil {
		t.Fatalf("SaveDailyReport failed: %v", err)
	}
	if err := s.SaveDailyReport("2026-08-28", &DailyReportDoc{Date: "2026-08-28", CompletionRate: 90}); err != nil {
		t.Fatalf("Second SaveDailyReport failed: %v", err)
	}

	docs, err := s.DailyReportDocs("2026-08-28", "2026-08-28")
	if err != nil {
		t.Fatalf("DailyReportDocs failed: %v", err)
	}
	if len(docs) != 1 || docs[0].CompletionRate != 90 {
		t.Errorf("Expected regeneration to overwrite, got %+v", docs)
	}
}

func TestDailyReportDocs_RejectsUnknownVersion(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(
		`INSERT INTO daily_reports (report_date, report_data, created_at) VALUES (?, ?, ?)`,
		"2026-08-28", `{"version":99,"date":"2026-08-28"}`, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("Raw insert failed: %v", err)
	}

	_, err = s.DailyReportDocs("2026-08-28", "2026-08-28")
	if !errors.Is(err, ErrUnknownDocVersion) {
		t.Errorf("Expected ErrUnknownDocVersion, got %v", err)
	}
}

func TestWeeklyReport_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := &WeeklyReportDoc{
		WeekStart:       "2026-08-22",
		WeekEnd:         "2026-08-28",
		DailyDates:      []string{"2026-08-22", "2026-08-23"},
		Trends:          models.TrendAnalysis{CompletionRate: 75, OverdueTrend: -20},
		Recommendations: []string{"The project is on track. Keep the current pace."},
	}
	if err := s.SaveWeeklyReport("2026-08-22", "2026-08-28", doc); err != nil {
		t.Fatalf("SaveWeeklyReport failed: %v", err)
	}

	got, err := s.GetWeeklyReportDoc("2026-08-22", "2026-08-28")
	if err != nil {
		t.Fatalf("GetWeeklyReportDoc failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected weekly doc, got nil")
	}
	if got.Trends.CompletionRate != 75 || got.Trends.OverdueTrend != -20 {
		t.Errorf("Unexpected trends: %+v", got.Trends)
	}

	missing, err := s.GetWeeklyReportDoc("2026-01-01", "2026-01-07")
	if err != nil {
		t.Fatalf("GetWeeklyReportDoc for missing window failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing window, got %+v", missing)
	}
}

func TestSyncUpdates_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	submitted := time.Date(2026, 8, 28, 9, 20, 0, 0, time.UTC)
	u := &models.SyncUpdate{
		UserID:             "U001",
		CompletedYesterday: []string{"task A", "task B"},
		PlannedToday:       []string{"task C"},
		Blockers:           []string{"waiting on review"},
		SubmittedAt:        submitted,
		UserName:           "alex",
	}
	if err := s.SaveSyncUpdate(u); err != nil {
		t.Fatalf("SaveSyncUpdate failed: %v", err)
	}

	got, err := s.SyncUpdatesBetween(submitted.Add(-time.Hour), submitted.Add(time.Hour))
	if err != nil {
		t.Fatalf("SyncUpdatesBetween failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(got))
	}
	if len(got[0].CompletedYesterday) != 2 || got[0].Blockers[0] != "waiting on review" {
		t.Errorf("Unexpected update: %+v", got[0])
	}

	outside, err := s.SyncUpdatesBetween(submitted.Add(2*time.Hour), submitted.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("SyncUpdatesBetween outside window failed: %v", err)
	}
	if len(outside) != 0 {
		t.Errorf("Expected no updates outside window, got %d", len(outside))
	}
}

func TestUserMapping(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveUserMapping("B100", "U001", "alex"); err != nil {
		t.Fatalf("SaveUserMapping failed: %v", err)
	}

	chatID, err := s.ChatUserID("B100")
	if err != nil {
		t.Fatalf("ChatUserID failed: %v", err)
	}
	if chatID != "U001" {
		t.Errorf("Expected U001, got %s", chatID)
	}

	missing, err := s.ChatUserID("B999")
	if err != nil {
		t.Fatalf("ChatUserID for missing mapping failed: %v", err)
	}
	if missing != "" {
		t.Errorf("Expected empty chat id for unknown mapping, got %q", missing)
	}
}
