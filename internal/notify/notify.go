// Package notify formats reports and sync prompts and delivers them to the
// team chat channel.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/pulsebot/internal/chat"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/progress"
	"github.com/fentz26/pulsebot/internal/store"
)

// Notifier posts formatted messages to the chat platform.
type Notifier struct {
	chat         chat.Client
	store        *store.Store
	channelID    string
	adminChannel string

	now func() time.Time
}

// New creates a Notifier. adminChannel may equal channelID when no separate
// operations channel exists.
func New(c chat.Client, s *store.Store, channelID, adminChannel string) *Notifier {
	if adminChannel == "" {
		adminChannel = channelID
	}
	return &Notifier{
		chat:         c,
		store:        s,
		channelID:    channelID,
		adminChannel: adminChannel,
		now:          time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (n *Notifier) SetNow(now func() time.Time) {
	n.now = now
}

// SendSyncPrompt posts the daily sync question to the channel and returns
// the thread id replies should land in.
func (n *Notifier) SendSyncPrompt(ctx context.Context) (string, error) {
	msg := ":wave: Good morning! Time for the daily sync.\n" +
		"Reply in this thread with:\n" +
		"> yesterday: what you completed\n" +
		"> today: what you plan to do\n" +
		"> blockers: anything in your way (or \"none\")"
	ts, err := n.chat.PostMessage(ctx, n.channelID, msg)
	if err != nil {
		return "", fmt.Errorf("post sync prompt: %w", err)
	}
	log.Printf("notify: sync prompt posted, thread %s", ts)
	return ts, nil
}

// SendReminder nudges users who have not replied in the sync thread.
func (n *Notifier) SendReminder(ctx context.Context, threadTS string, userIDs []string) error {
	if threadTS == "" {
		return fmt.Errorf("send reminder: no sync thread")
	}
	if len(userIDs) == 0 {
		log.Printf("notify: everyone replied, skipping reminder")
		return nil
	}
	mentions := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		mentions = append(mentions, "<@"+id+">")
	}
	msg := strings.Join(mentions, " ") + " friendly reminder to post your sync update in this thread."
	if _, err := n.chat.PostThreadReply(ctx, n.channelID, threadTS, msg); err != nil {
		return fmt.Errorf("post reminder: %w", err)
	}
	return nil
}

// MissingResponders returns channel members who have not replied in the
// sync thread. Bot accounts never count as responders or as missing.
func (n *Notifier) MissingResponders(ctx context.Context, threadTS string) ([]string, error) {
	members, err := n.chat.ChannelMembers(ctx, n.channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}
	replies, err := n.chat.ThreadReplies(ctx, n.channelID, threadTS)
	if err != nil {
		return nil, fmt.Errorf("list thread replies: %w", err)
	}
	responded := make(map[string]bool, len(replies))
	for _, r := range replies {
		responded[r.UserID] = true
	}

	var missing []string
	for _, id := range members {
		if responded[id] {
			continue
		}
		info, err := n.chat.UserInfo(ctx, id)
		if err != nil {
			log.Printf("notify: user info for %s failed: %v", id, err)
			continue
		}
		if info.Bot {
			continue
		}
		missing = append(missing, id)
	}
	return missing, nil
}

// PostSyncSummary parses every reply in the sync thread into a structured
// update, persists the updates, and posts a summary back to the channel.
func (n *Notifier) PostSyncSummary(ctx context.Context, threadTS string) error {
	if threadTS == "" {
		return fmt.Errorf("post sync summary: no sync thread")
	}
	replies, err := n.chat.ThreadReplies(ctx, n.channelID, threadTS)
	if err != nil {
		return fmt.Errorf("list thread replies: %w", err)
	}

	var updates []models.SyncUpdate
	for _, r := range replies {
		if r.Bot || strings.TrimSpace(r.Text) == "" {
			continue
		}
		u, err := progress.ParseSyncUpdate(r, n.now())
		if err != nil {
			continue
		}
		if u.UserName == "" {
			if info, err := n.chat.UserInfo(ctx, r.UserID); err == nil && info != nil {
				u.UserName = displayName(info)
			}
		}
		if err := n.store.SaveSyncUpdate(u); err != nil {
			log.Printf("notify: saving sync update for %s failed: %v", r.UserID, err)
		}
		updates = append(updates, *u)
	}

	if _, err := n.chat.PostMessage(ctx, n.channelID, formatSyncSummary(updates)); err != nil {
		return fmt.Errorf("post sync summary: %w", err)
	}
	log.Printf("notify: sync summary posted, %d updates", len(updates))
	return nil
}

// SyncUserMappings matches tracker project members to chat users by display
// name and persists the mapping. trackerUsers maps tracker user id to the
// tracker-side name. Unmatched users are logged and skipped.
func (n *Notifier) SyncUserMappings(ctx context.Context, trackerUsers map[string]string) error {
	members, err := n.chat.ChannelMembers(ctx, n.channelID)
	if err != nil {
		return fmt.Errorf("list channel members: %w", err)
	}

	byName := make(map[string]string, len(members))
	for _, id := range members {
		info, err := n.chat.UserInfo(ctx, id)
		if err != nil {
			log.Printf("notify: user info for %s failed: %v", id, err)
			continue
		}
		if info.Bot {
			continue
		}
		if info.Name != "" {
			byName[strings.ToLower(info.Name)] = id
		}
		if info.DisplayName != "" {
			byName[strings.ToLower(info.DisplayName)] = id
		}
	}

	var mapped int
	for trackerID, name := range trackerUsers {
		chatID, ok := byName[strings.ToLower(name)]
		if !ok {
			log.Printf("notify: no chat user found for tracker user %s (%s)", trackerID, name)
			continue
		}
		if err := n.store.SaveUserMapping(trackerID, chatID, name); err != nil {
			return fmt.Errorf("save user mapping for %s: %w", trackerID, err)
		}
		mapped++
	}
	log.Printf("notify: user mappings synced, %d of %d matched", mapped, len(trackerUsers))
	return nil
}

// PostDailyReport formats and posts a daily report to the channel. Assignees
// of overdue tasks with a known chat mapping get cc'd.
func (n *Notifier) PostDailyReport(ctx context.Context, r *models.DailyReport) error {
	text := FormatDailyReport(r)
	if cc := n.overdueMentions(r.OverdueIssues); cc != "" {
		text += "\ncc " + cc
	}
	if _, err := n.chat.PostMessage(ctx, n.channelID, text); err != nil {
		return fmt.Errorf("post daily report: %w", err)
	}
	return nil
}

// overdueMentions resolves the distinct assignees of overdue issues to chat
// mentions. Unmapped assignees are silently omitted.
func (n *Notifier) overdueMentions(issues []models.Issue) string {
	var mentions []string
	seen := make(map[string]bool)
	for i := range issues {
		assignee := issues[i].AssigneeID
		if assignee == "" || seen[assignee] {
			continue
		}
		seen[assignee] = true
		chatID, err := n.store.ChatUserID(assignee)
		if err != nil {
			log.Printf("notify: chat user lookup for %s failed: %v", assignee, err)
			continue
		}
		if chatID != "" {
			mentions = append(mentions, "<@"+chatID+">")
		}
	}
	return strings.Join(mentions, " ")
}

// PostWeeklyReport formats and posts a weekly report to the channel.
func (n *Notifier) PostWeeklyReport(ctx context.Context, r *models.WeeklyReport) error {
	if _, err := n.chat.PostMessage(ctx, n.channelID, FormatWeeklyReport(r)); err != nil {
		return fmt.Errorf("post weekly report: %w", err)
	}
	return nil
}

// NotifyAdmin reports an operational failure to the admin channel. Each
// notification carries a correlation id for log matching.
func (n *Notifier) NotifyAdmin(ctx context.Context, subject string, cause error) {
	id := uuid.NewString()[:8]
	log.Printf("notify: admin alert %s: %s: %v", id, subject, cause)
	msg := fmt.Sprintf(":rotating_light: *%s* failed (ref %s)\n```%v```", subject, id, cause)
	if _, err := n.chat.PostMessage(ctx, n.adminChannel, msg); err != nil {
		log.Printf("notify: admin alert %s could not be delivered: %v", id, err)
	}
}

func displayName(info *chat.UserInfo) string {
	if info.DisplayName != "" {
		return info.DisplayName
	}
	return info.Name
}
