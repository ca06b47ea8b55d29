package backlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

const issueJSON = `{
	"issueKey": "P1-1",
	"summary": "Fix the login timeout",
	"projectId": 100,
	"assignee": {"id": 42},
	"status": {"id": 2, "name": "In Progress"},
	"priority": {"id": 2, "name": "High"},
	"dueDate": "2026-09-01",
	"created": "2026-08-01T09:00:00Z",
	"updated": "2026-08-20T15:30:00Z",
	"description": "Sessions drop after 5 minutes.",
	"project": {"name": "Platform"}
}`

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewWithBaseURL(srv.URL, "test-key")
	c.sleep = func(time.Duration) {}
	return c, srv
}

func TestProjectIssues(t *testing.T) {
	var gotQuery map[string][]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/P1/issues" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Write([]byte("[" + issueJSON + "]"))
	}))
	defer srv.Close()

	filter := IssueFilter{
		DueUntil: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		OpenOnly: true,
	}
	issues, err := c.ProjectIssues(context.Background(), "P1", filter)
	if err != nil {
		t.Fatalf("ProjectIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("Expected 1 issue, got %d", len(issues))
	}

	issue := issues[0]
	if issue.ID != "P1-1" {
		t.Errorf("Expected issue key P1-1, got %s", issue.ID)
	}
	if issue.Status != models.StatusInProgress {
		t.Errorf("Expected in_progress status, got %s", issue.Status)
	}
	if issue.Priority != models.PriorityHigh {
		t.Errorf("Expected high priority, got %s", issue.Priority)
	}
	if issue.AssigneeID != "42" {
		t.Errorf("Expected assignee 42, got %s", issue.AssigneeID)
	}
	if issue.DueDate == nil || issue.DueDate.Format("2006-01-02") != "2026-09-01" {
		t.Errorf("Expected due date 2026-09-01, got %v", issue.DueDate)
	}
	if issue.ProjectName != "Platform" {
		t.Errorf("Expected project name Platform, got %s", issue.ProjectName)
	}

	if gotQuery["apiKey"][0] != "test-key" {
		t.Error("Expected apiKey query parameter")
	}
	if gotQuery["dueDateUntil"][0] != "2026-09-07" {
		t.Errorf("Expected dueDateUntil filter, got %v", gotQuery["dueDateUntil"])
	}
	if len(gotQuery["statusId[]"]) != 3 {
		t.Errorf("Expected 3 open status ids, got %v", gotQuery["statusId[]"])
	}
}

func TestProjectIssues_SkipsMalformed(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First issue has no key, second has a bad created timestamp.
		w.Write([]byte(`[
			{"summary": "no key", "created": "2026-08-01T09:00:00Z", "updated": "2026-08-01T09:00:00Z"},
			{"issueKey": "P1-2", "created": "garbage", "updated": "2026-08-01T09:00:00Z"},
			` + issueJSON + `
		]`))
	}))
	defer srv.Close()

	issues, err := c.ProjectIssues(context.Background(), "P1", IssueFilter{})
	if err != nil {
		t.Fatalf("ProjectIssues failed: %v", err)
	}
	if len(issues) != 1 || issues[0].ID != "P1-1" {
		t.Errorf("Expected only the well-formed issue, got %v", issues)
	}
}

func TestIssue(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/issues/P1-1" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(issueJSON))
	}))
	defer srv.Close()

	issue, err := c.Issue(context.Background(), "P1-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if issue.Summary != "Fix the login timeout" {
		t.Errorf("Unexpected summary: %s", issue.Summary)
	}
}

func TestGet_RetriesRateLimit(t *testing.T) {
	var attempts int
	var waits []time.Duration
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(issueJSON))
	}))
	defer srv.Close()
	c.sleep = func(d time.Duration) { waits = append(waits, d) }

	if _, err := c.Issue(context.Background(), "P1-1"); err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	for _, d := range waits {
		if d != 7*time.Second {
			t.Errorf("Expected Retry-After to set the wait to 7s, got %s", d)
		}
	}
}

func TestGet_RateLimitExhausted(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := c.Issue(context.Background(), "P1-1")
	if err == nil {
		t.Fatal("Expected an error after exhausting retries")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("Expected an APIError, got %T", err)
	}
}

func TestGet_ServerErrorFailsImmediately(t *testing.T) {
	var attempts int
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := c.Issue(context.Background(), "P1-1")
	if err == nil {
		t.Fatal("Expected an error for a 500 response")
	}
	if attempts != 1 {
		t.Errorf("Expected no retries for a 500, got %d attempts", attempts)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500 in the error, got %d", apiErr.StatusCode)
	}
}

func TestProjectUsers(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/P1/users" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id": 42, "name": "Sato"}, {"id": 43, "name": "Tanaka"}]`))
	}))
	defer srv.Close()

	users, err := c.ProjectUsers(context.Background(), "P1")
	if err != nil {
		t.Fatalf("ProjectUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].Name != "Sato" {
		t.Errorf("Unexpected users: %v", users)
	}
}
