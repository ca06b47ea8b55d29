package notify

import (
	"fmt"
	"strings"

	"github.com/fentz26/pulsebot/internal/models"
)

// Localized display labels. Stored status and priority codes are stable;
// only the outgoing messages use these.
var statusLabels = map[models.IssueStatus]string{
	models.StatusOpen:       "未対応",
	models.StatusInProgress: "処理中",
	models.StatusResolved:   "処理済み",
	models.StatusClosed:     "完了",
	models.StatusPending:    "保留",
}

var priorityLabels = map[models.IssuePriority]string{
	models.PriorityHigh:   "高",
	models.PriorityNormal: "中",
	models.PriorityLow:    "低",
}

// StatusLabel returns the display label for a status code.
func StatusLabel(s models.IssueStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// PriorityLabel returns the display label for a priority code.
func PriorityLabel(p models.IssuePriority) string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return string(p)
}

// FormatDailyReport renders a daily report as a chat message.
func FormatDailyReport(r *models.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":clipboard: *Daily Report — %s*\n\n", r.Date.Format("2006-01-02"))

	if r.HasIssues() {
		if len(r.OverdueIssues) > 0 {
			fmt.Fprintf(&b, ":red_circle: *Overdue (%d)*\n", len(r.OverdueIssues))
			writeIssueLines(&b, r.OverdueIssues, 10)
		}
		if len(r.DueToday) > 0 {
			fmt.Fprintf(&b, ":warning: *Due today (%d)*\n", len(r.DueToday))
			writeIssueLines(&b, r.DueToday, 10)
		}
	} else {
		b.WriteString(":white_check_mark: Nothing overdue or due today.\n")
	}

	if len(r.DueThisWeek) > 0 {
		fmt.Fprintf(&b, ":calendar: *Due this week (%d)*\n", len(r.DueThisWeek))
		writeIssueLines(&b, r.DueThisWeek, 10)
	}

	fmt.Fprintf(&b, "\n:chart_with_upwards_trend: Completion rate: %.1f%%\n", r.CompletionRate)
	if len(r.Progress) > 0 {
		fmt.Fprintf(&b, ":speech_balloon: Progress signals collected: %d\n", len(r.Progress))
	}
	if len(r.SyncUpdates) > 0 {
		fmt.Fprintf(&b, ":memo: Sync updates received: %d\n", len(r.SyncUpdates))
	}
	return b.String()
}

// FormatWeeklyReport renders a weekly report as a chat message.
func FormatWeeklyReport(r *models.WeeklyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":bar_chart: *Weekly Report — %s to %s*\n\n",
		r.WeekStart.Format("2006-01-02"), r.WeekEnd.Format("2006-01-02"))

	fmt.Fprintf(&b, "*Trends*\n")
	fmt.Fprintf(&b, "• Completion rate: %.1f%%\n", r.Trends.CompletionRate)
	fmt.Fprintf(&b, "• Overdue trend: %+.1f%%\n", r.Trends.OverdueTrend)
	if r.Trends.AverageCompletionTime > 0 {
		fmt.Fprintf(&b, "• Average completion time: %.1f days\n", r.Trends.AverageCompletionTime)
	}

	if len(r.KeyAchievements) > 0 {
		b.WriteString("\n*Key achievements*\n")
		writeBullets(&b, r.KeyAchievements)
	}
	if len(r.Blockers) > 0 {
		b.WriteString("\n*Blockers*\n")
		writeBullets(&b, r.Blockers)
	}
	if len(r.Trends.RecurringBlockers) > 0 {
		b.WriteString("\n*Recurring blockers*\n")
		writeBullets(&b, r.Trends.RecurringBlockers)
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\n*Recommendations*\n")
		writeBullets(&b, r.Recommendations)
	}
	return b.String()
}

func formatSyncSummary(updates []models.SyncUpdate) string {
	if len(updates) == 0 {
		return ":memo: *Daily Sync Summary*\nNo updates were posted today."
	}
	var b strings.Builder
	fmt.Fprintf(&b, ":memo: *Daily Sync Summary* (%d updates)\n", len(updates))
	for i := range updates {
		u := &updates[i]
		name := u.UserName
		if name == "" {
			name = u.UserID
		}
		fmt.Fprintf(&b, "\n*%s*\n", name)
		if len(u.CompletedYesterday) > 0 {
			fmt.Fprintf(&b, "• Yesterday: %s\n", strings.Join(u.CompletedYesterday, ", "))
		}
		if len(u.PlannedToday) > 0 {
			fmt.Fprintf(&b, "• Today: %s\n", strings.Join(u.PlannedToday, ", "))
		}
		if len(u.Blockers) > 0 {
			fmt.Fprintf(&b, "• Blockers: %s\n", strings.Join(u.Blockers, ", "))
		}
	}
	return b.String()
}

func writeIssueLines(b *strings.Builder, issues []models.Issue, limit int) {
	for i := range issues {
		if i >= limit {
			fmt.Fprintf(b, "  …and %d more\n", len(issues)-limit)
			return
		}
		issue := &issues[i]
		line := fmt.Sprintf("  • %s %s [%s/%s]", issue.ID, issue.Summary,
			StatusLabel(issue.Status), PriorityLabel(issue.Priority))
		if issue.DueDate != nil {
			line += " due " + issue.DueDate.Format("2006-01-02")
		}
		b.WriteString(line + "\n")
	}
}

func writeBullets(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "• %s\n", item)
	}
}
