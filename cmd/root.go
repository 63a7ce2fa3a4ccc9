package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/agentproc"
	"github.com/nextlevelbuilder/clawbridge/internal/channels/discord"
	"github.com/nextlevelbuilder/clawbridge/internal/channels/telegram"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/coordinator"
	"github.com/nextlevelbuilder/clawbridge/internal/cron"
	"github.com/nextlevelbuilder/clawbridge/internal/extract"
	"github.com/nextlevelbuilder/clawbridge/internal/persistence"
	"github.com/nextlevelbuilder/clawbridge/internal/ports"
	"github.com/nextlevelbuilder/clawbridge/internal/renderer"
	"github.com/nextlevelbuilder/clawbridge/internal/runner"
	"github.com/nextlevelbuilder/clawbridge/internal/safety"
	"github.com/nextlevelbuilder/clawbridge/internal/tracing"
	"github.com/nextlevelbuilder/clawbridge/internal/transcribe"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/clawbridge/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "clawbridge",
	Short: "clawbridge — chat-app bridge to an agentic coding assistant",
	Long:  "clawbridge wires a Telegram or Discord bot to a long-lived coding-assistant agent process: it enforces the safety policy, renders the agent's streamed output back into chat, and serializes work per chat.",
	Run: func(cmd *cobra.Command, args []string) {
		runBridge()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json5 or $CLAWBRIDGE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clawbridge %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("CLAWBRIDGE_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bridgeChannel is the subset of the channel adapters' own API that
// cmd/root.go needs to drive their lifecycle; both internal/channels/telegram
// and internal/channels/discord satisfy it alongside ports.Messaging.
type bridgeChannel interface {
	ports.Messaging
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runBridge wires every module built for this bridge into a running
// process: config, the Safety Kernel, the default persistence backend, the
// agent process adapter, the Session Runner, the Concurrency Coordinator,
// the cron tick loop, and the configured chat-platform adapter. Once the
// channel is started it checks for a recent /restart pointer. It then blocks
// until SIGINT/SIGTERM, at which point it writes a restart-context Markdown
// file for the cron target chat (the first allowed user), if there is one.
func runBridge() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if endpoint := os.Getenv("CLAWBRIDGE_OTEL_ENDPOINT"); endpoint != "" {
		shutdownTracing, err := tracing.Init(context.Background(), endpoint)
		if err != nil {
			logger.Warn("tracing init failed, continuing without span export", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logger.Warn("tracing shutdown failed", "error", err)
				}
			}()
		}
	}

	workingDir := config.ExpandHome(cfg.WorkingDir)
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		logger.Error("create working dir", "error", err)
		os.Exit(1)
	}
	buttonDir := config.ExpandHome(cfg.ButtonDir)
	if buttonDir != "" {
		if err := os.MkdirAll(buttonDir, 0o755); err != nil {
			logger.Error("create button dir", "error", err)
			os.Exit(1)
		}
	}

	allowedUsers := make([]safety.UserID, 0, len(cfg.AllowedUsers))
	for _, u := range cfg.AllowedUsers {
		allowedUsers = append(allowedUsers, safety.UserID(u))
	}
	policy := safety.NewPolicy(allowedUsers, cfg.AllowedPaths, cfg.TempPaths, nil, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	kernel := safety.New(policy)

	store := persistence.NewFileStore("clawbridge")

	var audit ports.Audit
	auditPath := config.ExpandHome(cfg.Audit.Path)
	if auditPath != "" {
		audit = persistence.NewFileAudit(auditPath, cfg.Audit.JSON)
	}

	if err := agentproc.ValidateMCPConfig(cfg.MCPConfigPath); err != nil {
		logger.Error("mcp config invalid", "error", err)
		os.Exit(1)
	}

	model := agentproc.New(agentproc.Binary{Path: cfg.AgentCommand})
	buttons := coordinator.NewFileButtonChannel(buttonDir)

	checkpoint := func(_ context.Context, s *runner.Session) {
		err := store.SaveSession(persistence.SessionRecord{
			SessionID:         s.SessionID,
			SavedAt:           time.Now(),
			WorkingDir:        s.WorkingDir,
			TotalInputTokens:  s.Usage.InputTokens,
			TotalOutputTokens: s.Usage.OutputTokens,
			TotalQueries:      s.Usage.Queries,
			SessionStartTime:  s.StartedAt,
		})
		if err != nil {
			logger.Warn("checkpoint save failed", "error", err)
		}
	}

	run := runner.New(model, kernel, checkpoint, buttons)

	manifest, err := cron.NewManifestLoader(workingDir)
	if err != nil {
		logger.Error("load cron manifest", "error", err)
		os.Exit(1)
	}
	cronQueue := cron.NewQueue(20, 30)
	matcher := cron.NewMatcher()

	coord := coordinator.New()
	coord.Runner = run
	coord.Safety = kernel
	coord.Store = store
	coord.Audit = audit
	coord.Options = renderer.Options{
		ReactionsEnabled:        cfg.Progress.ReactionEnabled,
		CompletionFooterEnabled: true,
		DeleteThinkingOnDone:    cfg.Deletion.ThinkingOnDone,
		DeleteToolStatusOnDone:  cfg.Deletion.ToolOnDone,
		ShowProgressIndicator:   cfg.Progress.SpinnerEnabled,
	}
	coord.CronQueue = cronQueue
	coord.CronManifest = manifest
	coord.WorkingDir = workingDir
	coord.Model = cfg.Model
	coord.AllowedDirs = cfg.AllowedPaths
	coord.MCPConfigPath = cfg.MCPConfigPath
	coord.DeepKeywords = cfg.Thinking.DeepKeywords
	coord.Keywords = cfg.Thinking.Keywords
	coord.ExtractDir = os.TempDir()
	coord.PDFExtractor = extract.New(os.Getenv("CLAWBRIDGE_PDFTOTEXT_PATH"))
	if cfg.TranscriptionKey != "" {
		coord.Transcription = transcribe.New(cfg.TranscriptionKey, os.Getenv("CLAWBRIDGE_TRANSCRIPTION_URL"), "")
	}

	channel, err := newChannel(cfg, coord)
	if err != nil {
		logger.Error("construct channel adapter", "error", err)
		os.Exit(1)
	}
	coord.Messaging = channel

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := channel.Start(ctx); err != nil {
		logger.Error("start channel", "error", err)
		os.Exit(1)
	}
	coord.CheckRestartPointer(ctx)

	cronTarget := cronChatID(cfg)
	go runCronLoop(ctx, coord, manifest, matcher, cronTarget)

	logger.Info("clawbridge started", "channel", cfg.Channel, "working_dir", workingDir)
	<-ctx.Done()

	logger.Info("shutting down")
	if cronTarget != "" {
		if err := coord.WriteRestartContext(cronTarget, time.Now()); err != nil {
			logger.Warn("write restart context", "error", err)
		}
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := channel.Stop(shutCtx); err != nil {
		logger.Warn("channel stop", "error", err)
	}
}

// newChannel constructs the chat-platform adapter cfg.Channel selects.
// Telegram is the default for an empty/unrecognized value.
func newChannel(cfg *config.Config, coord *coordinator.Coordinator) (bridgeChannel, error) {
	switch cfg.Channel {
	case "discord":
		return discord.New(cfg.BotToken, cfg.AllowedUsers, coord)
	default:
		return telegram.New(cfg.BotToken, cfg.AllowedUsers, coord)
	}
}

// cronChatID designates the single chat cron jobs fire into: this bridge
// serves one bot with one (typically private-chat) destination, so the
// first configured allowed user doubles as the default chat id.
func cronChatID(cfg *config.Config) string {
	if len(cfg.AllowedUsers) == 0 {
		return ""
	}
	return strconv.FormatInt(cfg.AllowedUsers[0], 10)
}

func runCronLoop(ctx context.Context, coord *coordinator.Coordinator, manifest *cron.ManifestLoader, matcher *cron.Matcher, chatID string) {
	if chatID == "" {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, job := range matcher.DueJobs(manifest.Jobs(), now) {
				coord.EnqueueCronFire(ctx, chatID, job)
			}
		}
	}
}
