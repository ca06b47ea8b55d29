package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/pulsebot/internal/models"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect tracked tasks",
}

var tasksOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List overdue tasks",
	RunE:  func(cmd *cobra.Command, args []string) error { return printTaskSet("/tasks/overdue") },
}

var tasksTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List tasks due today",
	RunE:  func(cmd *cobra.Command, args []string) error { return printTaskSet("/tasks/today") },
}

var tasksWeekCmd = &cobra.Command{
	Use:   "week",
	Short: "List tasks due within seven days",
	RunE:  func(cmd *cobra.Command, args []string) error { return printTaskSet("/tasks/week") },
}

var tasksCompletionCmd = &cobra.Command{
	Use:   "completion",
	Short: "Show the completion rate",
	RunE:  runTasksCompletion,
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a free-text question about the project",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	tasksCmd.AddCommand(tasksOverdueCmd, tasksTodayCmd, tasksWeekCmd, tasksCompletionCmd)
}

func printTaskSet(path string) error {
	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var issues []models.Issue
	if err := json.Unmarshal(resp, &issues); err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUMMARY\tSTATUS\tPRIORITY\tDUE\tASSIGNEE")
	for i := range issues {
		issue := &issues[i]
		due := "-"
		if issue.DueDate != nil {
			due = issue.DueDate.Format("2006-01-02")
		}
		assignee := issue.AssigneeID
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			issue.ID, issue.Summary, issue.Status, issue.Priority, due, assignee)
	}
	return w.Flush()
}

func runTasksCompletion(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/completion")
	if err != nil {
		return err
	}

	var result map[string]float64
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Completion rate: %.1f%%\n", result["completion_rate"])
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/query", map[string]string{"question": strings.Join(args, " ")})
	if err != nil {
		return err
	}

	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Println(result["answer"])
	return nil
}
