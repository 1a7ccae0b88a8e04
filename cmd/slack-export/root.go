package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/slack-exporter/pkg/config"
	"github.com/Sternrassler/slack-exporter/pkg/logging"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	runID   string
	logger  zerolog.Logger
	closer  io.Closer
	out     io.Writer
	errOut  io.Writer
}

// flagBindings maps persistent flags to config keys.
var flagBindings = map[string]string{
	"token":        "slack_bot_token",
	"api-url":      "api_url",
	"rate-limit":   "rate_limit",
	"wait-time":    "wait_time",
	"retry-delay":  "retry_delay",
	"max-attempts": "max_attempts",
	"page-size":    "page_size",
	"concurrency":  "concurrency",
	"data-folder":  "data_folder",
	"users-file":   "users_file",
	"from":         "timeframe.from",
	"to":           "timeframe.to",
	"timezone":     "timezone",
	"log-level":    "log.level",
	"log-pretty":   "log.pretty",
	"log-file":     "log.file",
	"redis-addr":   "redis.addr",
	"metrics-addr": "metrics.addr",
	"keyring":      "keyring.enabled",
}

// newRootCmd builds the command tree. Results go to out; logs and progress
// go to errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      config.NewViper(),
		out:    out,
		errOut: errOut,
	}

	cmd := &cobra.Command{
		Use:   "slack-export",
		Short: "Export Slack conversations, members and reactions to CSV",
		Long: `slack-export pages through the Slack Web API under a calls-per-minute budget
and writes messages, reactions and members to quoted CSV files.

Settings are read from (highest priority first):
  - Command line flags
  - Environment variables (SLACK_EXPORT_*, SLACK_BOT_TOKEN)
  - Configuration file (slack-export.yaml)
  - .env in the working directory
  - Default values`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./slack-export.yaml)")
	flags.String("token", "", "Slack bot token")
	flags.String("api-url", config.DefaultAPIURL, "Slack Web API base URL")
	flags.Int("rate-limit", 80, "call budget per minute")
	flags.Int("wait-time", 10, "seconds between rate checks while throttled")
	flags.Int("retry-delay", 5, "seconds between retries")
	flags.Int("max-attempts", 0, "attempts per page before giving up (0 = unlimited)")
	flags.Int("page-size", 200, "items requested per page")
	flags.Int("concurrency", 4, "conversations exported in parallel")
	flags.String("data-folder", "slack_export", "export root folder")
	flags.String("users-file", "slack_users_list.csv", "users CSV file")
	flags.String("from", "", "first day to export (YYYY-MM-DD)")
	flags.String("to", "", "last day to export (YYYY-MM-DD, inclusive)")
	flags.String("timezone", "Local", "timezone for message datetimes and timeframe")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.String("log-file", "", "also append JSON logs to this file")
	flags.String("redis-addr", "", "Redis address for shared rate state and user cache")
	flags.String("metrics-addr", "", "serve /metrics and /health on this address during exports")
	flags.Bool("keyring", false, "read the token from the OS keyring when not configured")
	_ = flags.MarkHidden("api-url")

	cmd.AddCommand(
		newExportCmd(a),
		newConversationsCmd(a),
		newUsersCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

// setup loads the configuration and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.runID = uuid.NewString()

	logger, closer, err := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: a.errOut,
		File:   cfg.Log.File,
		RunID:  a.runID,
	})
	if err != nil {
		return err
	}
	a.logger = logger.With().Str("component", "cli").Logger()
	a.closer = closer

	a.logger.Debug().
		Str("command", cmd.CommandPath()).
		Str("config_file", a.v.ConfigFileUsed()).
		Msg("Configuration loaded")
	return nil
}

func (a *app) teardown() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}
