package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/agentproc"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("clawbridge doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using env + defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Contract:")
	checkSecret("Bot token", cfg.BotToken)
	fmt.Printf("    %-16s %d configured\n", "Allowed users:", len(cfg.AllowedUsers))
	checkSecret("Transcription key", cfg.TranscriptionKey)

	fmt.Println()
	fmt.Println("  Paths:")
	checkDir("Working dir", config.ExpandHome(cfg.WorkingDir))
	for _, p := range cfg.AllowedPaths {
		checkDir("Allowed path", config.ExpandHome(p))
	}
	checkDir("Button dir", config.ExpandHome(cfg.ButtonDir))

	fmt.Println()
	fmt.Println("  Channel:")
	fmt.Printf("    %-16s %s\n", "Selected:", cfg.Channel)

	fmt.Println()
	fmt.Println("  Agent backend:")
	checkBinary(cfg.AgentCommand)

	if cfg.MCPConfigPath != "" {
		fmt.Println()
		fmt.Println("  MCP servers:")
		lines, err := agentproc.SummarizeMCPConfig(cfg.MCPConfigPath)
		if err != nil {
			fmt.Printf("    config error: %s\n", err)
		} else {
			for _, l := range lines {
				fmt.Printf("    %s\n", l)
			}
		}
	}

	fmt.Println()
	fmt.Println("  Rate limit:")
	fmt.Printf("    %-16s enabled=%t requests=%.0f window=%s\n", "Policy:", cfg.RateLimit.Enabled, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-18s (not configured)\n", name+":")
		return
	}
	masked := value
	if len(value) > 8 {
		masked = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
	fmt.Printf("    %-18s %s\n", name+":", masked)
}

func checkDir(name, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-18s %s (NOT FOUND)\n", name+":", path)
	} else {
		fmt.Printf("    %-18s %s (OK)\n", name+":", path)
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-18s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-18s %s\n", name+":", path)
	}
}
