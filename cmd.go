package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/livewatch/config"
)

// errOffline makes "check --exit-code" exit 2 without an error message.
var errOffline = errors.New("offline")

// rootFlags holds flag values; each overrides its env var only when set.
type rootFlags struct {
	name      string
	platform  string
	logLevel  string
	logFormat string

	interval  time.Duration
	httpAddr  string
	noWebhook bool
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errOffline) {
			return 2
		}
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "livewatch [account]",
		Short: "Trigger Streamer.bot actions when a stream goes live and when it ends",
		Long: `livewatch polls a streaming platform for one account's live status and
calls Streamer.bot's DoAction endpoint once when the account goes live and
once when the live ends. On Twitch (chat) and on TikTok (TIKTOK_EVENTS_URL
relay) it also holds a session while live so a stream-end signal or a dropped
connection is noticed before the next poll.

Configuration comes from the environment (and a .env file); flags override it.`,
		Example: `  livewatch hofzeitprojekt
  livewatch -p twitch -n somestreamer -i 30s
  livewatch check -p youtube @somechannel`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, args)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()
			return runWatch(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.name, "name", "n", "", "account to watch (env LIVEWATCH_ACCOUNT)")
	pf.StringVarP(&f.platform, "platform", "p", "", "tiktok, twitch or youtube (env LIVEWATCH_PLATFORM)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&f.logFormat, "log-format", "", "text or json (env LOG_FORMAT)")

	fl := root.Flags()
	fl.DurationVarP(&f.interval, "interval", "i", 0, "poll interval (env POLL_INTERVAL)")
	fl.StringVar(&f.httpAddr, "http-addr", "", "serve status, events and metrics on this address (env HTTP_ADDR)")
	fl.BoolVar(&f.noWebhook, "no-webhook", false, "do not call Streamer.bot (env STREAMERBOT_ENABLED=false)")

	root.AddCommand(newCheckCmd(f), newMigrateCmd(f))
	return root
}

// load reads the environment, applies changed flags and the positional
// account, then validates.
func (f *rootFlags) load(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := f.apply(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// apply is load without validation.
func (f *rootFlags) apply(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if len(args) > 0 {
		if flags.Changed("name") && f.name != args[0] {
			return nil, fmt.Errorf("account given both as argument %q and --name %q", args[0], f.name)
		}
		cfg.Account = args[0]
	}
	if flags.Changed("name") {
		cfg.Account = f.name
	}
	cfg.Account = strings.TrimPrefix(strings.TrimSpace(cfg.Account), "@")
	if flags.Changed("platform") {
		cfg.Platform = f.platform
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if flags.Changed("interval") {
		cfg.PollInterval = f.interval
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if flags.Changed("no-webhook") {
		cfg.StreamerBotEnabled = !f.noWebhook
	}
	return cfg, nil
}
