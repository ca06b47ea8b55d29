// Package chat defines the chat-platform client used by the report engine
// and the orchestrator's sync jobs.
package chat

import (
	"context"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

// UserInfo describes a chat-platform account.
type UserInfo struct {
	ID          string
	Name        string
	DisplayName string
	Bot         bool
}

// Client is the capability surface the engine needs from the chat platform.
// The HTTP implementation lives in this package; tests substitute fakes.
type Client interface {
	// ChannelHistory returns top-level channel messages with timestamps
	// inside [oldest, latest].
	ChannelHistory(ctx context.Context, channelID string, oldest, latest time.Time, limit int) ([]models.ChatMessage, error)

	// ThreadReplies returns the first-level replies under a thread parent.
	ThreadReplies(ctx context.Context, channelID, threadTS string) ([]models.ChatMessage, error)

	// ChannelMembers returns the user ids present in a channel.
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)

	// UserInfo resolves a user id to profile data, or nil when unknown.
	UserInfo(ctx context.Context, userID string) (*UserInfo, error)

	// PostMessage posts to a channel and returns the new message timestamp,
	// which doubles as the thread id for replies.
	PostMessage(ctx context.Context, channelID, text string) (string, error)

	// PostThreadReply posts into an existing thread.
	PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error)
}
