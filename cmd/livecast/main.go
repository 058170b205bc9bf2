package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"livecast/internal/config"
	"livecast/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "livecast",
	Short: "livecast - unattended AI-narrated weather livestream",
	Long: `livecast scrapes weather sources, writes narrated scene scripts with an LLM,
voices them with TTS and airs them in an endless loop for an OBS overlay.

Each collection is an ordered list of scenes. While one scene plays the next
is prepared, and while a collection plays its last pass the next collection
is generated.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .livecast root)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.livecast/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Timeout for one-shot commands")

	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Overlay hub listen address (default from config)")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag or the discovered root.
func resolveWorkspace() (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	ws, err := config.FindWorkspaceRoot()
	if err != nil {
		return "", fmt.Errorf("failed to find workspace: %w", err)
	}
	workspace = ws
	return ws, nil
}

// resolveConfigPath returns --config or the workspace default.
func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return config.Resolve(ws, config.DefaultPath)
}

// loadConfig loads the workspace config.
func loadConfig() (*config.Config, string, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, "", err
	}
	return cfg, ws, nil
}
