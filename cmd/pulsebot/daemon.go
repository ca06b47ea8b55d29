package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/pulsebot/internal/ai"
	"github.com/fentz26/pulsebot/internal/backlog"
	"github.com/fentz26/pulsebot/internal/chat"
	"github.com/fentz26/pulsebot/internal/config"
	"github.com/fentz26/pulsebot/internal/controlplane"
	"github.com/fentz26/pulsebot/internal/notify"
	"github.com/fentz26/pulsebot/internal/progress"
	"github.com/fentz26/pulsebot/internal/report"
	"github.com/fentz26/pulsebot/internal/scheduler"
	"github.com/fentz26/pulsebot/internal/store"
	"github.com/fentz26/pulsebot/internal/taskcache"
)

var (
	configPath string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the pulsebot daemon",
	Long:  `Starts the scheduler and the HTTP API for reports, tasks, and jobs.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "pulsebot.yaml", "Path to config file")
}

// syncUserMappings collects the member lists of every tracked project and asks
// the notifier to match them against the chat workspace.
func syncUserMappings(ctx context.Context, tracker *backlog.Client, notifier *notify.Notifier, projectIDs []string) {
	users := make(map[string]string)
	for _, pid := range projectIDs {
		members, err := tracker.ProjectUsers(ctx, pid)
		if err != nil {
			log.Printf("Fetching members of project %s failed: %v", pid, err)
			continue
		}
		for _, m := range members {
			users[strconv.Itoa(m.ID)] = m.Name
		}
	}
	if len(users) == 0 {
		return
	}
	if err := notifier.SyncUserMappings(ctx, users); err != nil {
		log.Printf("User mapping sync failed: %v", err)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting pulsebot daemon...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s, err := store.New(cfg.DatabasePath)
	if err != nil {
		return err
	}

	tracker := backlog.New(cfg.Tracker.SpaceKey, cfg.Tracker.APIKey)
	chatClient := chat.NewHTTPClient(cfg.Chat.BotToken)

	tasks := taskcache.New(s, tracker, cfg.Tracker.ProjectIDs, cfg.CacheTTL())
	extractor := progress.NewExtractor(chatClient, s, cfg.Chat.ChannelID)
	reports := report.New(tasks, extractor, s)
	notifier := notify.New(chatClient, s, cfg.Chat.ChannelID, cfg.Chat.AdminUserID)

	responder, err := ai.NewFromConfig(cfg.AI)
	if err != nil {
		return err
	}
	if responder == nil {
		log.Println("AI responder not configured, /query disabled")
	} else {
		log.Printf("AI responder ready (model %s)", responder.ModelName())
	}

	sched, err := scheduler.New(reports, notifier, cfg)
	if err != nil {
		s.Close()
		return err
	}

	service := controlplane.NewService(tasks, reports, sched, responder)
	server := controlplane.NewServer(service, cfg.ListenAddr)

	sched.Start()
	defer sched.Stop()

	// Refresh the tracker-to-chat user mapping in the background so the
	// daemon comes up without waiting on two remote APIs.
	go syncUserMappings(context.Background(), tracker, notifier, cfg.Tracker.ProjectIDs)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
