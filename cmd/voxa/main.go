package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"voice-agent/internal/app"
	"voice-agent/internal/logger"
	"voice-agent/internal/metrics"
	"voice-agent/internal/store"
)

const version = "0.1.0"

var (
	flagConfig  string
	flagDataDir string
	flagMock    bool
)

func main() {
	root := &cobra.Command{
		Use:     "voxa",
		Short:   "voxa - conversational assistant client",
		Long:    "voxa is a conversational assistant client with durable transcripts and post-session memory.\n\nRun 'voxa chat' to start or resume a conversation, 'voxa list' to browse past ones.",
		Version: version,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: user config dir)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "storage directory (default: user data dir)")
	root.PersistentFlags().BoolVar(&flagMock, "mock", false, "use mock generation services (no API key needed)")

	chatCmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Start or resume a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runChat(id)
		},
	}
	root.AddCommand(chatCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
	root.AddCommand(listCmd)

	rmCmd := &cobra.Command{
		Use:   "rm <conversation-id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(args[0])
		},
	}
	root.AddCommand(rmCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApplication() (*app.Application, error) {
	configPath := flagConfig
	if configPath == "" {
		configPath = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	m := metrics.New(prometheus.DefaultRegisterer)

	application, err := app.NewApplication(cfg, log, m)
	if err != nil {
		return nil, err
	}
	if flagMock || cfg.AnthropicAPIKey == "" {
		application.UseMockGeneration()
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				log.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
	}
	return application, nil
}

func runChat(id string) error {
	application, err := buildApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	session := app.NewTextSession(application.Chat)
	cs, err := application.OpenConversation(id, session)
	if err != nil {
		return err
	}
	cs.SetErrorReporter(func(err error) {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	})
	cs.SetTranscriptObserver(func(role store.Role, text string) {
		if role == store.RoleAssistant {
			fmt.Printf("assistant> %s\n", text)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := cs.Start(ctx); err != nil {
		return err
	}

	conv := cs.Conversation()
	fmt.Printf("Conversation %s (%s). Type your message, Ctrl+D to leave.\n", conv.ID, conv.Title)
	for _, m := range conv.Messages {
		prefix := "you"
		if m.Role == store.RoleAssistant {
			prefix = "assistant"
		}
		fmt.Printf("%s> %s\n", prefix, m.Content)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cs.SendText(line)
		}
	}

	// Leaving the conversation: stop the session, then let the scheduled
	// memory generation drain before exit.
	cs.Close()
	cs.Drain()

	fmt.Printf("\nSaved as %q", conv.Title)
	if conv.Summary != "" {
		fmt.Printf(": %s", conv.Summary)
	}
	fmt.Println()
	return nil
}

func runList() error {
	application, err := buildApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	summaries, err := application.Store.ListConversations(0)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No conversations yet. Run 'voxa chat' to start one.")
		return nil
	}
	for _, s := range summaries {
		conv := s.Conversation
		fmt.Printf("%s  %s  (%d messages, %s)\n",
			conv.ID, conv.Title, s.MessageCount, conv.UpdatedAt.Format(time.DateTime))
		if conv.Summary != "" {
			fmt.Printf("    %s\n", conv.Summary)
		}
	}
	return nil
}

func runRemove(id string) error {
	application, err := buildApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Store.DeleteConversation(id); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %s\n", id)
	return nil
}
