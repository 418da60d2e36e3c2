package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/atinylittleshell/nlsh/internal/agent"
	"github.com/atinylittleshell/nlsh/internal/config"
	"github.com/atinylittleshell/nlsh/internal/core"
	"github.com/atinylittleshell/nlsh/internal/oracle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var BUILD_VERSION = "dev"

// app holds what every command needs once the root command has loaded
// configuration.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger

	// newModel builds the model oracle. Tests replace it.
	newModel func(cfg config.ModelConfig, logger *zap.Logger) (oracle.Model, error)
	// runner executes agent commands; nil uses agent.RunShellCommand.
	runner agent.CommandRunner
}

func newApp() *app {
	return &app{newModel: oracle.New}
}

func main() {
	a := newApp()
	root := newRootCmd(a)

	err := root.Execute()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "nlsh:", err)
		}
		os.Exit(1)
	}
}

// errSilent is returned when the failure has already been shown to the operator.
var errSilent = errors.New("silent failure")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "nlsh",
		Short:         "Turn natural-language requests into shell actions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || (cmd.Parent() != nil && cmd.Parent().Name() == "config") {
				return nil
			}
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.nlsh/config.yaml)")

	root.AddCommand(
		newAgentCmd(a),
		newSuggestCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads configuration and sets up logging.
func (a *app) load() error {
	path := a.configPath
	if path == "" {
		path = core.ConfigFile()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	a.cfg = cfg

	if a.logger == nil {
		logger, err := initializeLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
		a.logger.Info("-------- new nlsh session --------", zap.Any("args", os.Args))
	}
	return nil
}

func initializeLogger(level string) (*zap.Logger, error) {
	logLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}

	return loggerConfig.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BUILD_VERSION)
		},
	}
}

func sessionDir(cfg *config.Config) string {
	if cfg.Agent.SessionDir != "" {
		return cfg.Agent.SessionDir
	}
	return core.SessionDir()
}

func workingDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return wd, nil
}
