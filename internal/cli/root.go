package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking POSTPILOT_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("POSTPILOT_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the postpilot CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "postpilot",
		Short: "Adaptive post scheduler",
		Long:  "postpilot plans daily posts with a UCB1 bandit over prompt templates, triggers generation and folds engagement back in.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			level, err := logging.ParseLevel(flagLogLevel)
			if err != nil {
				return err
			}
			logger = logging.NewLogger(level, flagLogFormat)
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "postpilot server URL (or POSTPILOT_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newPlanCmd(),
		newExecuteCmd(),
		newFeedbackCmd(),
		newSchedulesCmd(),
		newTemplatesCmd(),
		newSlotsCmd(),
		newConfigCmd(),
	)

	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
