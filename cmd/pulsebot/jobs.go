package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/pulsebot/internal/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE:  runJobsList,
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger [job-id]",
	Short: "Run a scheduled job now",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsTrigger,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsTriggerCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/jobs")
	if err != nil {
		return err
	}

	var jobs []models.JobStatus
	if err := json.Unmarshal(resp, &jobs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tNEXT RUN\tTRIGGER\tACTIVE")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", j.ID, j.Name, j.NextRun, j.Trigger, j.Active)
	}
	return w.Flush()
}

func runJobsTrigger(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/jobs/"+args[0]+"/trigger", nil)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Job %s triggered\n", result["job_id"])
	return nil
}
