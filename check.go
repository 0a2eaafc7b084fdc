package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCheckCmd(f *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check [account]",
		Short: "Query live status once and print live or offline",
		Long: `check performs a single status query for the account and prints "live" or
"offline". No actions are triggered. With --exit-code an offline account exits 2.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.apply(cmd, args)
			if err != nil {
				return err
			}
			if err := cfg.ValidateSource(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			checker, _, err := buildChecker(ctx, cfg)
			if err != nil {
				return err
			}
			live, err := checker.IsLive(ctx)
			if err != nil {
				return fmt.Errorf("status query for %s/%s: %w", cfg.Platform, cfg.Account, err)
			}
			status := "offline"
			if live {
				status = "live"
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			if !live && exitCode(cmd) {
				return errOffline
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "give up on the query after this long")
	cmd.Flags().Bool("exit-code", false, "exit 2 when the account is offline")
	return cmd
}

func exitCode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("exit-code")
	return v
}
