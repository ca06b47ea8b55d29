package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

// DefaultTimeout is the per-request timeout for chat platform calls.
const DefaultTimeout = 15 * time.Second

// HTTPClient implements Client against a Slack-style Web API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a chat client with the platform's default base URL.
func NewHTTPClient(token string) *HTTPClient {
	return NewHTTPClientWithBaseURL("https://slack.com/api", token)
}

// NewHTTPClientWithBaseURL creates a chat client against an explicit base
// URL. Used by tests pointed at a local server.
func NewHTTPClientWithBaseURL(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type apiEnvelope struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error"`
	Messages []wireMessage `json:"messages"`
	Members  []string      `json:"members"`
	TS       string        `json:"ts"`
	User     *wireUser     `json:"user"`
}

type wireMessage struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
}

type wireUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsBot   bool   `json:"is_bot"`
	Profile struct {
		RealName    string `json:"real_name"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params url.Values, body interface{}) (*apiEnvelope, error) {
	var req *http.Request
	var err error

	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("chat API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat API read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API error (%d): %s", resp.StatusCode, string(data))
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("chat API decode: %w", err)
	}
	if !env.OK {
		return nil, fmt.Errorf("chat API error: %s", env.Error)
	}
	return &env, nil
}

// ChannelHistory implements Client.
func (c *HTTPClient) ChannelHistory(ctx context.Context, channelID string, oldest, latest time.Time, limit int) ([]models.ChatMessage, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("oldest", formatTS(oldest))
	params.Set("latest", formatTS(latest))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	env, err := c.call(ctx, "conversations.history", params, nil)
	if err != nil {
		return nil, err
	}
	return toMessages(env.Messages, channelID), nil
}

// ThreadReplies implements Client. The parent message is excluded from the
// result.
func (c *HTTPClient) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]models.ChatMessage, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("ts", threadTS)

	env, err := c.call(ctx, "conversations.replies", params, nil)
	if err != nil {
		return nil, err
	}

	msgs := toMessages(env.Messages, channelID)
	replies := msgs[:0]
	for _, m := range msgs {
		if m.MessageTS != threadTS {
			replies = append(replies, m)
		}
	}
	return replies, nil
}

// ChannelMembers implements Client.
func (c *HTTPClient) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	params := url.Values{}
	params.Set("channel", channelID)

	env, err := c.call(ctx, "conversations.members", params, nil)
	if err != nil {
		return nil, err
	}
	return env.Members, nil
}

// UserInfo implements Client.
func (c *HTTPClient) UserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	params := url.Values{}
	params.Set("user", userID)

	env, err := c.call(ctx, "users.info", params, nil)
	if err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, nil
	}
	return &UserInfo{
		ID:          env.User.ID,
		Name:        env.User.Name,
		DisplayName: firstNonEmpty(env.User.Profile.RealName, env.User.Profile.DisplayName, env.User.Name),
		Bot:         env.User.IsBot,
	}, nil
}

// PostMessage implements Client.
func (c *HTTPClient) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	env, err := c.call(ctx, "chat.postMessage", nil, map[string]string{
		"channel": channelID,
		"text":    text,
	})
	if err != nil {
		return "", err
	}
	return env.TS, nil
}

// PostThreadReply implements Client.
func (c *HTTPClient) PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error) {
	env, err := c.call(ctx, "chat.postMessage", nil, map[string]string{
		"channel":   channelID,
		"text":      text,
		"thread_ts": threadTS,
	})
	if err != nil {
		return "", err
	}
	return env.TS, nil
}

func toMessages(wire []wireMessage, channelID string) []models.ChatMessage {
	msgs := make([]models.ChatMessage, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, models.ChatMessage{
			ChannelID: channelID,
			UserID:    w.User,
			Text:      w.Text,
			Timestamp: parseTS(w.TS),
			MessageTS: w.TS,
			ThreadTS:  w.ThreadTS,
			Bot:       w.Subtype == "bot_message" || w.BotID != "",
		})
	}
	return msgs
}

// formatTS renders a time as the platform's seconds.microseconds timestamp.
func formatTS(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func parseTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(int64(f * 1e6))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
