// Package progress turns raw chat messages into structured progress signals
// and sync updates.
package progress

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fentz26/pulsebot/internal/chat"
	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/store"
)

// The keyword contract is fixed: a message becomes a progress signal iff it
// matches at least one progress pattern. Sentiment uses a second, disjoint
// keyword set.
var progressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcompleted\b`),
	regexp.MustCompile(`(?i)\bfinished\b`),
	regexp.MustCompile(`(?i)\bdone with\b`),
	regexp.MustCompile(`(?i)progress[:：]`),
	regexp.MustCompile(`(?i)\bworking on\b`),
	regexp.MustCompile(`(?i)\bin progress\b`),
	regexp.MustCompile(`(?i)\bblocked\b`),
	regexp.MustCompile(`(?i)\bdelayed\b`),
	regexp.MustCompile(`(?i)\bproblem with\b`),
	regexp.MustCompile(`(?i)\bissue with\b`),
}

var positivePattern = regexp.MustCompile(`(?i)\b(completed|success|succeeded|resolved|fixed)\b`)
var negativePattern = regexp.MustCompile(`(?i)\b(blocked|blocker|delayed|problem|failed|failure)\b`)

// issueRefPattern matches project-key style references, e.g. PROJ-123.
var issueRefPattern = regexp.MustCompile(`([A-Z0-9]+-[0-9]+)`)

// MatchesProgress reports whether the text satisfies the progress keyword
// contract.
func MatchesProgress(text string) bool {
	for _, p := range progressPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifySentiment assigns a sentiment tag by keyword heuristic. Positive
// wins over negative when both sets match.
func ClassifySentiment(text string) models.Sentiment {
	if positivePattern.MatchString(text) {
		return models.SentimentPositive
	}
	if negativePattern.MatchString(text) {
		return models.SentimentNegative
	}
	return models.SentimentNeutral
}

// IssueRef returns the first issue-reference token in the text, or "".
func IssueRef(text string) string {
	return issueRefPattern.FindString(text)
}

// ErrNoSections indicates a message carried none of the recognized sync
// section labels. Callers treat it as "no sync update", not a failure.
var ErrNoSections = fmt.Errorf("no sync sections found")

// Section labels recognized by the sync-update parser. Each must be followed
// by a colon. The Japanese labels match the original report format used by
// the team.
var (
	completedLabels = []string{"yesterday", "completed", "昨日", "完了"}
	plannedLabels   = []string{"today", "planned", "今日", "予定"}
	blockerLabels   = []string{"blocker", "blockers", "ブロッカー", "障害"}
)

// ParseSyncUpdate parses the three-section sync format:
//
//	yesterday: task one, task two
//	today: task three
//	blockers: none
//
// Section values split on commas into trimmed lists. A message containing
// none of the labels returns ErrNoSections.
func ParseSyncUpdate(msg models.ChatMessage, submittedAt time.Time) (*models.SyncUpdate, error) {
	var completed, planned, blockers []string
	found := false

	for _, line := range strings.Split(msg.Text, "\n") {
		line = strings.TrimSpace(line)
		label, value, ok := splitSection(line)
		if !ok {
			continue
		}
		switch {
		case matchLabel(label, completedLabels):
			completed = splitItems(value)
			found = true
		case matchLabel(label, plannedLabels):
			planned = splitItems(value)
			found = true
		case matchLabel(label, blockerLabels):
			blockers = splitItems(value)
			found = true
		}
	}

	if !found {
		return nil, ErrNoSections
	}
	return &models.SyncUpdate{
		UserID:             msg.UserID,
		CompletedYesterday: completed,
		PlannedToday:       planned,
		Blockers:           blockers,
		SubmittedAt:        submittedAt,
		UserName:           msg.UserName,
	}, nil
}

func splitSection(line string) (label, value string, ok bool) {
	idx := strings.IndexAny(line, ":：")
	if idx <= 0 {
		return "", "", false
	}
	rest := line[idx:]
	_, size := utf8.DecodeRuneInString(rest)
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(rest[size:]), true
}

func matchLabel(label string, candidates []string) bool {
	label = strings.ToLower(label)
	for _, c := range candidates {
		if label == c {
			return true
		}
	}
	return false
}

func splitItems(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// IsNoneSentinel reports whether an item is a "nothing to report" marker
// excluded from aggregation. Comparison is case-insensitive; the Japanese
// sentinel is kept from the original report format.
func IsNoneSentinel(item string) bool {
	switch strings.ToLower(strings.TrimSpace(item)) {
	case "", "none", "なし":
		return true
	}
	return false
}

// Extractor fetches chat activity for a time window and persists every
// produced signal.
type Extractor struct {
	chat      chat.Client
	store     *store.Store
	channelID string

	now func() time.Time
}

// NewExtractor creates a progress extractor for one channel.
func NewExtractor(c chat.Client, s *store.Store, channelID string) *Extractor {
	return &Extractor{
		chat:      c,
		store:     s,
		channelID: channelID,
		now:       time.Now,
	}
}

// SetNow overrides the clock. For tests.
func (e *Extractor) SetNow(now func() time.Time) {
	e.now = now
}

// Extract pulls channel messages and first-level thread replies inside
// [oldest, latest], classifies them against the keyword contract, and
// persists every produced signal. Bot messages are excluded. A failure to
// fetch history returns the error; per-message persistence failures are
// logged and do not drop the signal from the result.
func (e *Extractor) Extract(ctx context.Context, oldest, latest time.Time) ([]models.ProgressSignal, error) {
	messages, err := e.chat.ChannelHistory(ctx, e.channelID, oldest, latest, 200)
	if err != nil {
		return nil, fmt.Errorf("fetch channel history: %w", err)
	}

	var signals []models.ProgressSignal
	for _, msg := range messages {
		if sig := e.classify(ctx, msg); sig != nil {
			signals = append(signals, *sig)
		}

		// Thread parents carry their own ts as thread_ts.
		if msg.ThreadTS != "" && msg.ThreadTS == msg.MessageTS {
			replies, err := e.chat.ThreadReplies(ctx, e.channelID, msg.MessageTS)
			if err != nil {
				log.Printf("progress: fetching thread %s failed: %v", msg.MessageTS, err)
				continue
			}
			for _, reply := range replies {
				if sig := e.classify(ctx, reply); sig != nil {
					signals = append(signals, *sig)
				}
			}
		}
	}
	return signals, nil
}

// classify turns one message into a persisted progress signal, or nil when
// the message does not match the contract.
func (e *Extractor) classify(ctx context.Context, msg models.ChatMessage) *models.ProgressSignal {
	if msg.Bot || msg.Text == "" || msg.UserID == "" {
		return nil
	}
	if !MatchesProgress(msg.Text) {
		return nil
	}

	userName := msg.UserName
	if userName == "" {
		if info, err := e.chat.UserInfo(ctx, msg.UserID); err == nil && info != nil {
			userName = info.DisplayName
		}
	}

	sig := &models.ProgressSignal{
		UserID:      msg.UserID,
		IssueRef:    IssueRef(msg.Text),
		Content:     msg.Text,
		Sentiment:   ClassifySentiment(msg.Text),
		ExtractedAt: e.now(),
		MessageTS:   msg.MessageTS,
		ChannelID:   msg.ChannelID,
		UserName:    userName,
	}

	if err := e.store.SaveProgressSignal(sig); err != nil {
		log.Printf("progress: persisting signal from %s failed: %v", msg.UserID, err)
	}
	return sig
}
