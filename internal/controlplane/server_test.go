package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/pulsebot/internal/backlog"
	"github.com/fentz26/pulsebot/internal/chat"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/progress"
	"github.com/fentz26/pulsebot/internal/report"
	"github.com/fentz26/pulsebot/internal/store"
	"github.com/fentz26/pulsebot/internal/taskcache"
)

type fakeTracker struct {
	issues []models.Issue
}

func (f *fakeTracker) ProjectIssues(ctx context.Context, projectID string, filter backlog.IssueFilter) ([]models.Issue, error) {
	return f.issues, nil
}

func (f *fakeTracker) Issue(ctx context.Context, issueID string) (*models.Issue, error) {
	for i := range f.issues {
		if f.issues[i].ID == issueID {
			return &f.issues[i], nil
		}
	}
	return nil, nil
}

type fakeChat struct{}

func (fakeChat) ChannelHistory(ctx context.Context, channelID string, oldest, latest time.Time, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}
func (fakeChat) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]models.ChatMessage, error) {
	return nil, nil
}
func (fakeChat) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return nil, nil
}
func (fakeChat) UserInfo(ctx context.Context, userID string) (*chat.UserInfo, error) {
	return &chat.UserInfo{ID: userID}, nil
}
func (fakeChat) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	return "1700000000.000100", nil
}
func (fakeChat) PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error) {
	return "1700000000.000200", nil
}

type fakeJobs struct {
	statuses  []models.JobStatus
	triggered []string
}

func (f *fakeJobs) JobStatuses() []models.JobStatus {
	return f.statuses
}

func (f *fakeJobs) TriggerManually(id string) bool {
	if id == "missing" {
		return false
	}
	f.triggered = append(f.triggered, id)
	return true
}

func newTestServer(t *testing.T, issues []models.Issue, jobs *fakeJobs) *Server {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tasks := taskcache.New(st, &fakeTracker{issues: issues}, []string{"P1"}, 30*time.Minute)
	extractor := progress.NewExtractor(fakeChat{}, st, "C001")
	reports := report.New(tasks, extractor, st)

	service := NewService(tasks, reports, jobs, nil)
	return NewServer(service, "127.0.0.1:0")
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeJobs{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("Unexpected health body: %s", w.Body.String())
	}
}

func TestJobsEndpoint(t *testing.T) {
	jobs := &fakeJobs{statuses: []models.JobStatus{
		{ID: "daily_report", Name: "Daily report", NextRun: "2026-08-31 10:00:00 JST", Active: true, Trigger: "cron: 0 10 * * *"},
	}}
	s := newTestServer(t, nil, jobs)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got []models.JobStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "daily_report" {
		t.Errorf("Unexpected jobs payload: %+v", got)
	}
}

func TestTriggerJob(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestServer(t, nil, jobs)

	req := httptest.NewRequest(http.MethodPost, "/jobs/daily_report/trigger", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if len(jobs.triggered) != 1 || jobs.triggered[0] != "daily_report" {
		t.Errorf("Expected daily_report to be triggered, got %v", jobs.triggered)
	}
}

func TestTriggerJob_Unknown(t *testing.T) {
	s := newTestServer(t, nil, &fakeJobs{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/missing/trigger", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestOverdueTasksEndpoint(t *testing.T) {
	due := time.Now().AddDate(0, 0, -3)
	issues := []models.Issue{
		{ID: "P1-1", ProjectID: "P1", Summary: "Late task", Status: models.StatusOpen, Priority: models.PriorityHigh, DueDate: &due},
	}
	s := newTestServer(t, issues, &fakeJobs{})

	req := httptest.NewRequest(http.MethodGet, "/tasks/overdue", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got []models.Issue
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "P1-1" {
		t.Errorf("Unexpected overdue payload: %+v", got)
	}
}

func TestDailyReportEndpoint(t *testing.T) {
	s := newTestServer(t, nil, &fakeJobs{})

	req := httptest.NewRequest(http.MethodPost, "/reports/daily", strings.NewReader(`{"date":"2026-08-28"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got models.DailyReport
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Date.Format("2006-01-02") != "2026-08-28" {
		t.Errorf("Expected report date 2026-08-28, got %s", got.Date)
	}
}

func TestDailyReportEndpoint_BadDate(t *testing.T) {
	s := newTestServer(t, nil, &fakeJobs{})

	req := httptest.NewRequest(http.MethodPost, "/reports/daily", strings.NewReader(`{"date":"28-08-2026"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestQueryEndpoint_Unconfigured(t *testing.T) {
	s := newTestServer(t, nil, &fakeJobs{})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"what is overdue?"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
