// Package backlog provides the HTTP client for the external issue tracker.
package backlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

// APIError is returned after the client has exhausted its retries against
// the tracker. Callers treat per-project failures as skippable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tracker API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tracker API error: %s", e.Message)
}

// DefaultTimeout is the per-request timeout for tracker calls.
const DefaultTimeout = 15 * time.Second

// maxAttempts bounds the retry loop for transient and rate-limit errors.
const maxAttempts = 3

// Client talks to the issue tracker's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// sleep is stubbed in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New creates a tracker client for the given space.
func New(spaceKey, apiKey string) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("https://%s.backlog.com/api/v2", spaceKey),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		sleep:      time.Sleep,
	}
}

// NewWithBaseURL creates a client against an explicit base URL. Used by
// tests pointed at a local server.
func NewWithBaseURL(baseURL, apiKey string) *Client {
	c := New("unused", apiKey)
	c.baseURL = baseURL
	return c
}

// get performs a GET with bounded exponential backoff. Rate-limit responses
// honor the server's Retry-After when present; other non-2xx responses fail
// immediately.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, &APIError{Message: err.Error()}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network errors are retried with exponential backoff.
			lastErr = err
			if attempt < maxAttempts-1 {
				wait := backoff(attempt)
				log.Printf("tracker request failed: %v, retrying in %s", err, wait)
				c.sleep(wait)
				continue
			}
			break
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, &APIError{Message: readErr.Error()}
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := backoff(attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
					wait = time.Duration(secs) * time.Second
				}
			}
			lastErr = fmt.Errorf("rate limited")
			if attempt < maxAttempts-1 {
				log.Printf("tracker rate limit hit, retrying in %s", wait)
				c.sleep(wait)
				continue
			}
		default:
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		}
	}

	return nil, &APIError{Message: fmt.Sprintf("retries exhausted: %v", lastErr)}
}

func backoff(attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

// ProjectIssues fetches the issues of a project, optionally filtered by due
// date range. Open-status filtering is applied server side.
func (c *Client) ProjectIssues(ctx context.Context, projectID string, filter IssueFilter) ([]models.Issue, error) {
	params := url.Values{}
	params.Set("count", "100")
	if !filter.DueSince.IsZero() {
		params.Set("dueDateSince", filter.DueSince.Format("2006-01-02"))
	}
	if !filter.DueUntil.IsZero() {
		params.Set("dueDateUntil", filter.DueUntil.Format("2006-01-02"))
	}
	if filter.OpenOnly {
		// Tracker status ids: 1 open, 2 in progress, 3 resolved.
		for _, id := range []string{"1", "2", "3"} {
			params.Add("statusId[]", id)
		}
	}

	body, err := c.get(ctx, "/projects/"+url.PathEscape(projectID)+"/issues", params)
	if err != nil {
		return nil, err
	}

	var raw []wireIssue
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode issues: %v", err)}
	}

	issues := make([]models.Issue, 0, len(raw))
	for i := range raw {
		issue, err := raw[i].toModel()
		if err != nil {
			log.Printf("skipping malformed issue from project %s: %v", projectID, err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// IssueFilter narrows a project issue listing.
type IssueFilter struct {
	DueSince time.Time
	DueUntil time.Time
	OpenOnly bool
}

// Issue fetches a single issue by id or key.
func (c *Client) Issue(ctx context.Context, issueID string) (*models.Issue, error) {
	body, err := c.get(ctx, "/issues/"+url.PathEscape(issueID), nil)
	if err != nil {
		return nil, err
	}

	var raw wireIssue
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode issue: %v", err)}
	}
	issue, err := raw.toModel()
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	return &issue, nil
}

// ProjectUsers fetches the member list of a project.
func (c *Client) ProjectUsers(ctx context.Context, projectID string) ([]ProjectUser, error) {
	body, err := c.get(ctx, "/projects/"+url.PathEscape(projectID)+"/users", nil)
	if err != nil {
		return nil, err
	}
	var users []ProjectUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode users: %v", err)}
	}
	return users, nil
}

// ProjectUser is a tracker-side project member.
type ProjectUser struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
