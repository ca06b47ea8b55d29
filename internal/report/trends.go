package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/progress"
)

// analyzeTrends computes week-level metrics from the daily series.
func (s *Service) analyzeTrends(ctx context.Context, dailies []models.DailyReport, startDate, endDate time.Time) models.TrendAnalysis {
	var t models.TrendAnalysis
	if len(dailies) == 0 {
		return t
	}

	var rateSum float64
	for i := range dailies {
		rateSum += dailies[i].CompletionRate
	}
	t.CompletionRate = rateSum / float64(len(dailies))
	t.OverdueTrend = overdueTrend(dailies)
	t.AverageCompletionTime = s.averageCompletionDays(ctx, startDate, endDate)
	t.RecurringBlockers = recurringBlockers(dailies)
	return t
}

// overdueTrend is the percentage change in overdue count from the first day
// of the window to the last. A single day has no trend. Growth from zero is
// reported as a flat 100%.
func overdueTrend(dailies []models.DailyReport) float64 {
	if len(dailies) < 2 {
		return 0
	}
	first := len(dailies[0].OverdueIssues)
	last := len(dailies[len(dailies)-1].OverdueIssues)
	if first > 0 {
		return float64(last-first) / float64(first) * 100
	}
	if last == 0 {
		return 0
	}
	return 100
}

// averageCompletionDays is the mean age in days, creation to last update, of
// issues resolved or closed during the window. Zero when nothing completed.
func (s *Service) averageCompletionDays(ctx context.Context, startDate, endDate time.Time) float64 {
	_, windowEnd := dayBounds(endDate)
	var sum float64
	var n int
	for _, issue := range s.tasks.AllTasks(ctx, nil, true) {
		if !issue.Status.Done() {
			continue
		}
		if issue.UpdatedAt.Before(startDate) || issue.UpdatedAt.After(windowEnd) {
			continue
		}
		age := issue.UpdatedAt.Sub(issue.CreatedAt)
		if age < 0 {
			continue
		}
		sum += age.Hours() / 24
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// recurringBlockers are blocker items reported two or more times across the
// window's sync updates, most frequent first. Every occurrence counts; "none"
// sentinels never do.
func recurringBlockers(dailies []models.DailyReport) []string {
	counts := make(map[string]int)
	var order []string
	for i := range dailies {
		for _, su := range dailies[i].SyncUpdates {
			for _, b := range su.Blockers {
				b = strings.TrimSpace(b)
				if progress.IsNoneSentinel(b) {
					continue
				}
				if counts[b] == 0 {
					order = append(order, b)
				}
				counts[b]++
			}
		}
	}

	var out []string
	for _, b := range order {
		if counts[b] >= 2 {
			out = append(out, b)
		}
	}
	// Most frequent first, first-seen order breaking ties.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && counts[out[j]] > counts[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// keyAchievements collects up to 5 distinct completed items from sync
// updates plus up to 3 positive progress signals.
func keyAchievements(dailies []models.DailyReport) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range dailies {
		for _, su := range dailies[i].SyncUpdates {
			for _, item := range su.CompletedYesterday {
				item = strings.TrimSpace(item)
				if progress.IsNoneSentinel(item) || seen[item] {
					continue
				}
				seen[item] = true
				out = append(out, "Completed: "+item)
				if len(out) >= 5 {
					break
				}
			}
			if len(out) >= 5 {
				break
			}
		}
		if len(out) >= 5 {
			break
		}
	}

	positives := 0
	for i := range dailies {
		for _, sig := range dailies[i].Progress {
			if sig.Sentiment != models.SentimentPositive {
				continue
			}
			out = append(out, "Progress: "+truncate(sig.Content))
			positives++
			if positives >= 3 {
				return out
			}
		}
	}
	return out
}

// extractBlockers collects distinct blocker items from sync updates plus up
// to 3 negative progress signals.
func extractBlockers(dailies []models.DailyReport) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range dailies {
		for _, su := range dailies[i].SyncUpdates {
			for _, b := range su.Blockers {
				b = strings.TrimSpace(b)
				if progress.IsNoneSentinel(b) || seen[b] {
					continue
				}
				seen[b] = true
				out = append(out, b)
			}
		}
	}

	negatives := 0
	for i := range dailies {
		for _, sig := range dailies[i].Progress {
			if sig.Sentiment != models.SentimentNegative {
				continue
			}
			out = append(out, "Reported problem: "+truncate(sig.Content))
			negatives++
			if negatives >= 3 {
				return out
			}
		}
	}
	return out
}

// recommendations derives advisory lines from the week's numbers. At least
// one line always comes back.
func recommendations(dailies []models.DailyReport, trends models.TrendAnalysis) []string {
	var out []string

	if len(dailies) > 0 {
		sum := 0
		for i := range dailies {
			sum += len(dailies[i].OverdueIssues)
		}
		if mean := sum / len(dailies); mean > 0 {
			out = append(out, fmt.Sprintf("Prioritize the backlog of overdue tasks (%d on average per day).", mean))
		}
	}
	if trends.CompletionRate < 50 {
		out = append(out, "Completion rate is below 50%. Review task sizing and assignments.")
	}
	if trends.OverdueTrend > 10 {
		out = append(out, "Overdue tasks are trending up. Consider rebalancing the schedule.")
	}
	if len(trends.RecurringBlockers) > 0 {
		out = append(out, "Recurring blockers need escalation: "+strings.Join(trends.RecurringBlockers, ", "))
	}
	if hasUnassignedUrgent(dailies) {
		out = append(out, "Urgent tasks are unassigned. Assign owners to everything due soon.")
	}
	if len(out) == 0 {
		out = append(out, "The project is on track. Keep the current pace.")
	}
	return out
}

func hasUnassignedUrgent(dailies []models.DailyReport) bool {
	for i := range dailies {
		d := &dailies[i]
		for _, set := range [][]models.Issue{d.OverdueIssues, d.DueToday, d.DueThisWeek} {
			for j := range set {
				if set[j].AssigneeID == "" {
					return true
				}
			}
		}
	}
	return false
}

// truncate caps a message at 100 runes with a trailing ellipsis.
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= 100 {
		return s
	}
	return string(r[:97]) + "..."
}
