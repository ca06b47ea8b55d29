package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/pulsebot/internal/models"
	"github.com/fentz26/pulsebot/internal/notify"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Generate the daily report",
	RunE:  runReportDaily,
}

var reportWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate the weekly report",
	RunE:  runReportWeekly,
}

var (
	reportDate    string
	reportEndDate string
)

func init() {
	reportCmd.AddCommand(reportDailyCmd, reportWeeklyCmd)

	reportDailyCmd.Flags().StringVar(&reportDate, "date", "", "Report date (YYYY-MM-DD, default today)")
	reportWeeklyCmd.Flags().StringVar(&reportEndDate, "end", "", "Last day of the week (YYYY-MM-DD, default today)")
}

func runReportDaily(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/reports/daily", map[string]string{"date": reportDate})
	if err != nil {
		return err
	}

	var report models.DailyReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return err
	}

	fmt.Println(notify.FormatDailyReport(&report))
	return nil
}

func runReportWeekly(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/reports/weekly", map[string]string{"end_date": reportEndDate})
	if err != nil {
		return err
	}

	var report models.WeeklyReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return err
	}

	fmt.Println(notify.FormatWeeklyReport(&report))
	return nil
}
