package backlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/pulsebot/internal/models"
)

// wireIssue mirrors the tracker's issue JSON shape.
type wireIssue struct {
	IssueKey  string `json:"issueKey"`
	Summary   string `json:"summary"`
	ProjectID int    `json:"projectId"`
	Assignee  *struct {
		ID int `json:"id"`
	} `json:"assignee"`
	Status *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"status"`
	Priority *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"priority"`
	DueDate     string `json:"dueDate"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
	Description string `json:"description"`
	Project     *struct {
		Name string `json:"name"`
	} `json:"project"`
}

// Tracker status ids map to stable codes; unknown ids fall back to open, as
// unknown priorities fall back to normal.
var statusByID = map[int]models.IssueStatus{
	1: models.StatusOpen,
	2: models.StatusInProgress,
	3: models.StatusResolved,
	4: models.StatusClosed,
	5: models.StatusPending,
}

var priorityByID = map[int]models.IssuePriority{
	2: models.PriorityHigh,
	3: models.PriorityNormal,
	4: models.PriorityLow,
}

func (w *wireIssue) toModel() (models.Issue, error) {
	if w.IssueKey == "" {
		return models.Issue{}, fmt.Errorf("issue missing key")
	}

	created, err := parseWireTime(w.Created)
	if err != nil {
		return models.Issue{}, fmt.Errorf("issue %s: bad created timestamp: %w", w.IssueKey, err)
	}
	updated, err := parseWireTime(w.Updated)
	if err != nil {
		return models.Issue{}, fmt.Errorf("issue %s: bad updated timestamp: %w", w.IssueKey, err)
	}

	issue := models.Issue{
		ID:          w.IssueKey,
		ProjectID:   strconv.Itoa(w.ProjectID),
		Summary:     w.Summary,
		Status:      models.StatusOpen,
		Priority:    models.PriorityNormal,
		CreatedAt:   created,
		UpdatedAt:   updated,
		Description: w.Description,
	}

	if w.Assignee != nil {
		issue.AssigneeID = strconv.Itoa(w.Assignee.ID)
	}
	if w.Status != nil {
		if st, ok := statusByID[w.Status.ID]; ok {
			issue.Status = st
		}
	}
	if w.Priority != nil {
		if p, ok := priorityByID[w.Priority.ID]; ok {
			issue.Priority = p
		}
	}
	if w.DueDate != "" {
		if due, err := parseWireTime(w.DueDate); err == nil {
			issue.DueDate = &due
		}
	}
	if w.Project != nil {
		issue.ProjectName = w.Project.Name
	}
	return issue, nil
}

// parseWireTime accepts the tracker's RFC3339-style timestamps and bare
// dates.
func parseWireTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
