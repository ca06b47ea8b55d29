package notify

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/pulsebot/internal/chat"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/store"
)

type recordingChat struct {
	members []string
	infos   map[string]*chat.UserInfo
	replies []models.ChatMessage
	posted  []string
}

func (c *recordingChat) ChannelHistory(ctx context.Context, channelID string, oldest, latest time.Time, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}

func (c *recordingChat) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]models.ChatMessage, error) {
	return c.replies, nil
}

func (c *recordingChat) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return c.members, nil
}

func (c *recordingChat) UserInfo(ctx context.Context, userID string) (*chat.UserInfo, error) {
	if info, ok := c.infos[userID]; ok {
		return info, nil
	}
	return &chat.UserInfo{ID: userID}, nil
}

func (c *recordingChat) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	c.posted = append(c.posted, text)
	return "1.0", nil
}

func (c *recordingChat) PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error) {
	c.posted = append(c.posted, text)
	return "1.1", nil
}

func newTestNotifier(t *testing.T, c *recordingChat) (*Notifier, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(c, s, "C001", ""), s
}

func TestSyncUserMappings(t *testing.T) {
	c := &recordingChat{
		members: []string{"U1", "U2", "UBOT"},
		infos: map[string]*chat.UserInfo{
			"U1":   {ID: "U1", Name: "sato", DisplayName: "Sato Taro"},
			"U2":   {ID: "U2", Name: "tanaka"},
			"UBOT": {ID: "UBOT", Name: "pulsebot", Bot: true},
		},
	}
	n, s := newTestNotifier(t, c)

	err := n.SyncUserMappings(context.Background(), map[string]string{
		"42": "Sato Taro", // matches U1 by display name
		"43": "TANAKA",    // matches U2 case-insensitively
		"44": "Suzuki",    // no chat counterpart
	})
	if err != nil {
		t.Fatalf("SyncUserMappings failed: %v", err)
	}

	if id, _ := s.ChatUserID("42"); id != "U1" {
		t.Errorf("Expected tracker user 42 mapped to U1, got %q", id)
	}
	if id, _ := s.ChatUserID("43"); id != "U2" {
		t.Errorf("Expected tracker user 43 mapped to U2, got %q", id)
	}
	if id, _ := s.ChatUserID("44"); id != "" {
		t.Errorf("Expected no mapping for tracker user 44, got %q", id)
	}
}

func TestSyncUserMappings_NeverMatchesBots(t *testing.T) {
	c := &recordingChat{
		members: []string{"UBOT"},
		infos: map[string]*chat.UserInfo{
			"UBOT": {ID: "UBOT", Name: "suzuki", Bot: true},
		},
	}
	n, s := newTestNotifier(t, c)

	if err := n.SyncUserMappings(context.Background(), map[string]string{"44": "suzuki"}); err != nil {
		t.Fatalf("SyncUserMappings failed: %v", err)
	}
	if id, _ := s.ChatUserID("44"); id != "" {
		t.Errorf("Expected no mapping through a bot account, got %q", id)
	}
}

func TestPostDailyReport_MentionsOverdueAssignees(t *testing.T) {
	c := &recordingChat{}
	n, s := newTestNotifier(t, c)
	if err := s.SaveUserMapping("42", "U1", "Sato"); err != nil {
		t.Fatalf("SaveUserMapping failed: %v", err)
	}

	r := &models.DailyReport{
		Date: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		OverdueIssues: []models.Issue{
			{ID: "P1-1", Summary: "a", Status: models.StatusOpen, Priority: models.PriorityHigh, AssigneeID: "42"},
			{ID: "P1-2", Summary: "b", Status: models.StatusOpen, Priority: models.PriorityHigh, AssigneeID: "42"},
			{ID: "P1-3", Summary: "c", Status: models.StatusOpen, Priority: models.PriorityHigh, AssigneeID: "99"},
		},
	}
	if err := n.PostDailyReport(context.Background(), r); err != nil {
		t.Fatalf("PostDailyReport failed: %v", err)
	}

	if len(c.posted) != 1 {
		t.Fatalf("Expected 1 posted message, got %d", len(c.posted))
	}
	msg := c.posted[0]
	if !strings.Contains(msg, "cc <@U1>") {
		t.Errorf("Expected the mapped assignee to be cc'd, got:\n%s", msg)
	}
	if strings.Count(msg, "<@U1>") != 1 {
		t.Errorf("Expected each assignee mentioned once, got:\n%s", msg)
	}
	if strings.Contains(msg, "99") && strings.Contains(msg, "<@99>") {
		t.Errorf("Expected unmapped assignees to be omitted, got:\n%s", msg)
	}
}

func TestPostDailyReport_NoMentionsWithoutMappings(t *testing.T) {
	c := &recordingChat{}
	n, _ := newTestNotifier(t, c)

	r := &models.DailyReport{
		Date:           time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CompletionRate: 100,
	}
	if err := n.PostDailyReport(context.Background(), r); err != nil {
		t.Fatalf("PostDailyReport failed: %v", err)
	}
	if strings.Contains(c.posted[0], "\ncc ") {
		t.Errorf("Expected no cc line on a clean report, got:\n%s", c.posted[0])
	}
}

func TestMissingResponders(t *testing.T) {
	c := &recordingChat{
		members: []string{"U1", "U2", "UBOT"},
		infos: map[string]*chat.UserInfo{
			"UBOT": {ID: "UBOT", Bot: true},
		},
		replies: []models.ChatMessage{{UserID: "U1", Text: "yesterday: x"}},
	}
	n, _ := newTestNotifier(t, c)

	missing, err := n.MissingResponders(context.Background(), "1.0")
	if err != nil {
		t.Fatalf("MissingResponders failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != "U2" {
		t.Errorf("Expected [U2] missing, got %v", missing)
	}
}

func TestSendReminder_NoThread(t *testing.T) {
	n, _ := newTestNotifier(t, &recordingChat{})
	if err := n.SendReminder(context.Background(), "", []string{"U1"}); err == nil {
		t.Error("Expected an error when no sync thread exists")
	}
}
