// Package store provides SQLite-backed persistence for pulsebot.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
	_ "modernc.org/sqlite"
)

// Store provides access to the pulsebot SQLite database. It owns the task
// cache, persisted reports, progress signals, sync updates, and user
// mappings.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		assignee_id TEXT,
		due_date DATETIME,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		cached_at DATETIME NOT NULL,
		description TEXT,
		project_name TEXT
	);

	CREATE TABLE IF NOT EXISTS daily_reports (
		report_date TEXT PRIMARY KEY,
		report_data TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_reports (
		week_start TEXT NOT NULL,
		week_end TEXT NOT NULL,
		report_data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (week_start, week_end)
	);

	CREATE TABLE IF NOT EXISTS sync_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		completed_yesterday TEXT NOT NULL,
		planned_today TEXT NOT NULL,
		blockers TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		user_name TEXT
	);

	CREATE TABLE IF NOT EXISTS chat_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		issue_ref TEXT,
		content TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		extracted_at DATETIME NOT NULL,
		message_ts TEXT,
		channel_id TEXT,
		user_name TEXT
	);

	CREATE TABLE IF NOT EXISTS user_mappings (
		tracker_user_id TEXT PRIMARY KEY,
		chat_user_id TEXT NOT NULL,
		display_name TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
	CREATE INDEX IF NOT EXISTS idx_sync_updates_submitted_at ON sync_updates(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_chat_progress_extracted_at ON chat_progress(extracted_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Cache Operations ---

const issueColumns = `id, project_id, summary, assignee_id, due_date, status, priority, created_at, updated_at, description, project_name`

// UpsertIssue writes an issue snapshot into the cache. Last write wins; the
// cached_at timestamp restarts the TTL window.
func (s *Store) UpsertIssue(issue *models.Issue, cachedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, project_id, summary, assignee_id, due_date, status, priority, created_at, updated_at, cached_at, description, project_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			summary = excluded.summary,
			assignee_id = excluded.assignee_id,
			due_date = excluded.due_date,
			status = excluded.status,
			priority = excluded.priority,
			updated_at = excluded.updated_at,
			cached_at = excluded.cached_at,
			description = excluded.description,
			project_name = excluded.project_name`,
		issue.ID, issue.ProjectID, issue.Summary, nullString(issue.AssigneeID),
		nullTime(issue.DueDate), string(issue.Status), string(issue.Priority),
		issue.CreatedAt, issue.UpdatedAt, cachedAt,
		nullString(issue.Description), nullString(issue.ProjectName),
	)
	if err != nil {
		return fmt.Errorf("upsert issue: %w", err)
	}
	return nil
}

// CachedProjectIssues returns the cached issues for a project whose cache
// entries are newer than cutoff.
func (s *Store) CachedProjectIssues(projectID string, cutoff time.Time) ([]models.Issue, error) {
	return s.queryIssues(
		`SELECT `+issueColumns+` FROM tasks WHERE project_id = ? AND cached_at > ?`,
		projectID, cutoff,
	)
}

// CachedOverdueIssues returns cached issues due before now, excluding
// completed statuses, within the TTL window.
func (s *Store) CachedOverdueIssues(now, cutoff time.Time) ([]models.Issue, error) {
	return s.queryIssues(
		`SELECT `+issueColumns+` FROM tasks
		 WHERE due_date IS NOT NULL AND due_date < ?
		 AND status NOT IN (?, ?) AND cached_at > ?`,
		now, string(models.StatusResolved), string(models.StatusClosed), cutoff,
	)
}

// CachedIssuesDueBetween returns cached open issues with a due date inside
// [start, end], within the TTL window.
func (s *Store) CachedIssuesDueBetween(start, end, cutoff time.Time) ([]models.Issue, error) {
	return s.queryIssues(
		`SELECT `+issueColumns+` FROM tasks
		 WHERE due_date IS NOT NULL AND due_date >= ? AND due_date <= ?
		 AND status NOT IN (?, ?) AND cached_at > ?`,
		start, end, string(models.StatusResolved), string(models.StatusClosed), cutoff,
	)
}

// CachedIssuesByAssignee returns cached open issues for an assignee within
// the TTL window.
func (s *Store) CachedIssuesByAssignee(assigneeID string, cutoff time.Time) ([]models.Issue, error) {
	return s.queryIssues(
		`SELECT `+issueColumns+` FROM tasks
		 WHERE assignee_id = ? AND status NOT IN (?, ?) AND cached_at > ?`,
		assigneeID, string(models.StatusResolved), string(models.StatusClosed), cutoff,
	)
}

// CachedIssueByID returns a single cached issue within the TTL window, or
// nil when the cache has no fresh entry.
func (s *Store) CachedIssueByID(id string, cutoff time.Time) (*models.Issue, error) {
	issues, err := s.queryIssues(
		`SELECT `+issueColumns+` FROM tasks WHERE id = ? AND cached_at > ?`,
		id, cutoff,
	)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &issues[0], nil
}

func (s *Store) queryIssues(query string, args ...interface{}) ([]models.Issue, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var issue models.Issue
		var assigneeID, description, projectName sql.NullString
		var dueDate sql.NullTime
		var status, priority string

		if err := rows.Scan(&issue.ID, &issue.ProjectID, &issue.Summary, &assigneeID,
			&dueDate, &status, &priority, &issue.CreatedAt, &issue.UpdatedAt,
			&description, &projectName); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}

		issue.Status = models.IssueStatus(status)
		issue.Priority = models.IssuePriority(priority)
		if assigneeID.Valid {
			issue.AssigneeID = assigneeID.String
		}
		if dueDate.Valid {
			d := dueDate.Time
			issue.DueDate = &d
		}
		if description.Valid {
			issue.Description = description.String
		}
		if projectName.Valid {
			issue.ProjectName = projectName.String
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// --- Report Documents ---

// ErrUnknownDocVersion indicates a persisted report document carries a
// version this build cannot decode.
var ErrUnknownDocVersion = fmt.Errorf("unknown report document version")

// DailyReportDoc is the versioned serialized form of a daily report. Issues
// are stored by id and rehydrated from the task cache at read time.
type DailyReportDoc struct {
	Version         int      `json:"version"`
	Date            string   `json:"date"`
	OverdueIDs      []string `json:"overdue_issues"`
	DueTodayIDs     []string `json:"due_today"`
	DueThisWeekIDs  []string `json:"due_this_week"`
	CompletionRate  float64  `json:"completion_rate"`
	ProgressCount   int      `json:"progress_count"`
	SyncUpdateCount int      `json:"sync_update_count"`
	CreatedAt       string   `json:"created_at"`
}

// WeeklyReportDoc is the versioned serialized form of a weekly report.
type WeeklyReportDoc struct {
	Version         int                  `json:"version"`
	WeekStart       string               `json:"week_start"`
	WeekEnd         string               `json:"week_end"`
	DailyDates      []string             `json:"daily_reports"`
	Trends          models.TrendAnalysis `json:"trends"`
	KeyAchievements []string             `json:"key_achievements"`
	Blockers        []string             `json:"blockers"`
	Recommendations []string             `json:"recommendations"`
	CreatedAt       string               `json:"created_at"`
}

// DocVersion is the report document version written by this build.
const DocVersion = 1

// SaveDailyReport upserts a daily report document keyed by its date.
func (s *Store) SaveDailyReport(date string, doc *DailyReportDoc) error {
	doc.Version = DocVersion
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode daily report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO daily_reports (report_date, report_data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(report_date) DO UPDATE SET
			report_data = excluded.report_data,
			created_at = excluded.created_at`,
		date, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save daily report: %w", err)
	}
	return nil
}

// DailyReportDocs returns the stored daily report documents for dates inside
// [start, end], ordered by date ascending.
func (s *Store) DailyReportDocs(start, end string) ([]DailyReportDoc, error) {
	rows, err := s.db.Query(
		`SELECT report_data FROM daily_reports
		 WHERE report_date >= ? AND report_date <= ? ORDER BY report_date ASC`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily reports: %w", err)
	}
	defer rows.Close()

	var docs []DailyReportDoc
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan daily report: %w", err)
		}
		var doc DailyReportDoc
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decode daily report: %w", err)
		}
		if doc.Version != DocVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnknownDocVersion, doc.Version)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SaveWeeklyReport upserts a weekly report document keyed by its window.
func (s *Store) SaveWeeklyReport(weekStart, weekEnd string, doc *WeeklyReportDoc) error {
	doc.Version = DocVersion
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode weekly report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO weekly_reports (week_start, week_end, report_data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(week_start, week_end) DO UPDATE SET
			report_data = excluded.report_data,
			created_at = excluded.created_at`,
		weekStart, weekEnd, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save weekly report: %w", err)
	}
	return nil
}

// GetWeeklyReportDoc returns the stored weekly report for a window, or nil
// when none exists.
func (s *Store) GetWeeklyReportDoc(weekStart, weekEnd string) (*WeeklyReportDoc, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT report_data FROM weekly_reports WHERE week_start = ? AND week_end = ?`,
		weekStart, weekEnd,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query weekly report: %w", err)
	}
	var doc WeeklyReportDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode weekly report: %w", err)
	}
	if doc.Version != DocVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocVersion, doc.Version)
	}
	return &doc, nil
}

// --- Progress Signal Operations ---

// SaveProgressSignal appends an extracted progress signal. Signals are
// persisted regardless of report assembly outcome and never updated.
func (s *Store) SaveProgressSignal(sig *models.ProgressSignal) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_progress (user_id, issue_ref, content, sentiment, extracted_at, message_ts, channel_id, user_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.UserID, nullString(sig.IssueRef), sig.Content, string(sig.Sentiment),
		sig.ExtractedAt, nullString(sig.MessageTS), nullString(sig.ChannelID),
		nullString(sig.UserName),
	)
	if err != nil {
		return fmt.Errorf("insert progress signal: %w", err)
	}
	return nil
}

// --- Sync Update Operations ---

// SaveSyncUpdate appends a parsed sync update.
func (s *Store) SaveSyncUpdate(u *models.SyncUpdate) error {
	completed, err := json.Marshal(u.CompletedYesterday)
	if err != nil {
		return fmt.Errorf("encode sync update: %w", err)
	}
	planned, err := json.Marshal(u.PlannedToday)
	if err != nil {
		return fmt.Errorf("encode sync update: %w", err)
	}
	blockers, err := json.Marshal(u.Blockers)
	if err != nil {
		return fmt.Errorf("encode sync update: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sync_updates (user_id, completed_yesterday, planned_today, blockers, submitted_at, user_name)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.UserID, string(completed), string(planned), string(blockers),
		u.SubmittedAt, nullString(u.UserName),
	)
	if err != nil {
		return fmt.Errorf("insert sync update: %w", err)
	}
	return nil
}

// SyncUpdatesBetween returns sync updates submitted inside [start, end].
func (s *Store) SyncUpdatesBetween(start, end time.Time) ([]models.SyncUpdate, error) {
	rows, err := s.db.Query(
		`SELECT user_id, completed_yesterday, planned_today, blockers, submitted_at, user_name
		 FROM sync_updates WHERE submitted_at >= ? AND submitted_at <= ?`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query sync updates: %w", err)
	}
	defer rows.Close()

	var updates []models.SyncUpdate
	for rows.Next() {
		var u models.SyncUpdate
		var completed, planned, blockers string
		var userName sql.NullString
		if err := rows.Scan(&u.UserID, &completed, &planned, &blockers, &u.SubmittedAt, &userName); err != nil {
			return nil, fmt.Errorf("scan sync update: %w", err)
		}
		if err := json.Unmarshal([]byte(completed), &u.CompletedYesterday); err != nil {
			return nil, fmt.Errorf("decode sync update: %w", err)
		}
		if err := json.Unmarshal([]byte(planned), &u.PlannedToday); err != nil {
			return nil, fmt.Errorf("decode sync update: %w", err)
		}
		if err := json.Unmarshal([]byte(blockers), &u.Blockers); err != nil {
			return nil, fmt.Errorf("decode sync update: %w", err)
		}
		if userName.Valid {
			u.UserName = userName.String
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// --- User Mapping Operations ---

// SaveUserMapping upserts a tracker-to-chat user mapping.
func (s *Store) SaveUserMapping(trackerUserID, chatUserID, displayName string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_mappings (tracker_user_id, chat_user_id, display_name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tracker_user_id) DO UPDATE SET
			chat_user_id = excluded.chat_user_id,
			display_name = excluded.display_name`,
		trackerUserID, chatUserID, nullString(displayName), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert user mapping: %w", err)
	}
	return nil
}

// ChatUserID returns the chat user mapped to a tracker user, or "" when no
// mapping exists.
func (s *Store) ChatUserID(trackerUserID string) (string, error) {
	var chatUserID string
	err := s.db.QueryRow(
		`SELECT chat_user_id FROM user_mappings WHERE tracker_user_id = ?`,
		trackerUserID,
	).Scan(&chatUserID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user mapping: %w", err)
	}
	return chatUserID, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
