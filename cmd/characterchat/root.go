package main

import (
	"context"
	"fmt"
	"os"

	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/di"
	"characterchat/backend/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "characterchat",
		Short:         "Chat with user-defined characters through an OpenAI-compatible gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil {
					return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
				}
			} else {
				_ = godotenv.Load()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load environment from this file instead of ./.env")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override LOG_FORMAT (json or text)")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newCharactersCmd(opts),
		newKeyCmd(opts),
	)
	return cmd
}

// newLogger builds the process logger from config, letting flags win.
// Interactive commands default to warnings only so logs do not interleave
// with the conversation.
func (o *rootOptions) newLogger(cfg *config.Config, interactive bool) *logger.Logger {
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	if interactive {
		logConfig.Level = string(logger.LevelWarn)
		logConfig.JSON = false
	}
	if o.logLevel != "" {
		logConfig.Level = o.logLevel
	}
	if o.logFormat != "" {
		logConfig.JSON = o.logFormat != "text"
	}

	log := logger.New(logConfig)
	logger.SetGlobal(log)
	return log
}

// withContainer runs fn against a container built for a local, interactive
// command and closes it afterwards.
func (o *rootOptions) withContainer(ctx context.Context, fn func(ctx context.Context, c *di.Container) error) error {
	cfg := config.Load()
	cfg.Observability.MetricsEnabled = false
	cfg.Observability.TracingEnabled = false

	log := o.newLogger(cfg, true)
	container, err := di.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			log.LogError(err, "Failed to close container")
		}
	}()

	return fn(ctx, container)
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(os.Stdout, infoStyle.Render(fmt.Sprintf(format, args...)))
}
