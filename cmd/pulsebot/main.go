package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulsebot",
	Short: "Pulsebot - scheduled report and task-cache daemon",
	Long: `Pulsebot watches an issue tracker, caches its tasks, runs daily syncs
in the team chat, and posts daily and weekly status reports on a cron
schedule.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7467", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
