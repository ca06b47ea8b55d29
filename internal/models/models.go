// Package models defines the core domain types for pulsebot.
package models

import "time"

// IssueStatus represents the tracker-side state of an issue.
// Values are stable machine codes; localized display labels live at the
// presentation boundary (internal/notify).
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
	StatusPending    IssueStatus = "pending"
)

// Done reports whether the status counts as completed for urgency and
// completion-rate purposes.
func (s IssueStatus) Done() bool {
	return s == StatusResolved || s == StatusClosed
}

// IssuePriority represents the tracker-side priority of an issue.
type IssuePriority string

const (
	PriorityHigh   IssuePriority = "high"
	PriorityNormal IssuePriority = "normal"
	PriorityLow    IssuePriority = "low"
)

// Issue is a trackable unit of work fetched from the issue tracker.
type Issue struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Summary     string        `json:"summary"`
	AssigneeID  string        `json:"assignee_id,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Description string        `json:"description,omitempty"`
	ProjectName string        `json:"project_name,omitempty"`
}

// Overdue reports whether the issue's due date has passed and the issue is
// still open. Issues without a due date are never overdue.
func (i *Issue) Overdue(now time.Time) bool {
	if i.DueDate == nil || i.Status.Done() {
		return false
	}
	return i.DueDate.Before(now)
}

// DueToday reports whether the issue is due on the calendar day of now.
func (i *Issue) DueToday(now time.Time) bool {
	if i.DueDate == nil || i.Status.Done() {
		return false
	}
	y1, m1, d1 := i.DueDate.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DueThisWeek reports whether the issue is due within 7 days of now,
// inclusive of today. An issue due today is also due this week.
func (i *Issue) DueThisWeek(now time.Time) bool {
	if i.DueDate == nil || i.Status.Done() {
		return false
	}
	today := startOfDay(now)
	due := startOfDay(*i.DueDate)
	delta := int(due.Sub(today).Hours() / 24)
	return delta >= 0 && delta <= 7
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Sentiment tags a progress signal by keyword heuristic.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ChatMessage is a raw message pulled from the chat platform.
type ChatMessage struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	MessageTS string    `json:"message_ts"`
	ThreadTS  string    `json:"thread_ts,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Bot       bool      `json:"bot,omitempty"`
}

// ProgressSignal is an unstructured chat message heuristically classified as
// reporting task progress.
type ProgressSignal struct {
	UserID      string    `json:"user_id"`
	IssueRef    string    `json:"issue_ref,omitempty"`
	Content     string    `json:"content"`
	Sentiment   Sentiment `json:"sentiment"`
	ExtractedAt time.Time `json:"extracted_at"`
	MessageTS   string    `json:"message_ts,omitempty"`
	ChannelID   string    `json:"channel_id,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
}

// SyncUpdate is a structured self-report parsed from a daily-sync reply.
type SyncUpdate struct {
	UserID             string    `json:"user_id"`
	CompletedYesterday []string  `json:"completed_yesterday"`
	PlannedToday       []string  `json:"planned_today"`
	Blockers           []string  `json:"blockers"`
	SubmittedAt        time.Time `json:"submitted_at"`
	UserName           string    `json:"user_name,omitempty"`
}

// DailyReport is the per-day project status snapshot, keyed by date.
type DailyReport struct {
	Date           time.Time        `json:"date"`
	OverdueIssues  []Issue          `json:"overdue_issues"`
	DueToday       []Issue          `json:"due_today"`
	DueThisWeek    []Issue          `json:"due_this_week"`
	Progress       []ProgressSignal `json:"progress"`
	SyncUpdates    []SyncUpdate     `json:"sync_updates"`
	CompletionRate float64          `json:"completion_rate"`
}

// HasIssues reports whether the day needs attention: anything overdue or due
// today.
func (r *DailyReport) HasIssues() bool {
	return len(r.OverdueIssues) > 0 || len(r.DueToday) > 0
}

// TrendAnalysis summarizes week-over-week movement for a weekly report.
type TrendAnalysis struct {
	CompletionRate        float64  `json:"completion_rate"`
	OverdueTrend          float64  `json:"overdue_trend"`           // signed percent change
	AverageCompletionTime float64  `json:"average_completion_time"` // days
	RecurringBlockers     []string `json:"recurring_blockers"`
}

// WeeklyReport aggregates seven daily reports over an inclusive window.
type WeeklyReport struct {
	WeekStart       time.Time     `json:"week_start"`
	WeekEnd         time.Time     `json:"week_end"`
	DailyReports    []DailyReport `json:"daily_reports"`
	Trends          TrendAnalysis `json:"trends"`
	KeyAchievements []string      `json:"key_achievements"`
	Blockers        []string      `json:"blockers"`
	Recommendations []string      `json:"recommendations"`
}

// JobStatus describes one scheduled job for introspection.
type JobStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	NextRun string `json:"next_run"`
	Active  bool   `json:"active"`
	Trigger string `json:"trigger"`
}

// UserMapping links an issue-tracker account to a chat-platform account.
type UserMapping struct {
	TrackerUserID string    `json:"tracker_user_id"`
	ChatUserID    string    `json:"chat_user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
