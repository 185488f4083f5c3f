package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand(root *rootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open the login page and save fresh session cookies",
		Long: `Login drives the scripted login for a source and stores the cookies so that
following crawl runs can reuse them. QR-code logins need HEADLESS=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := setup(cmd, root)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			sessions := a.sessions()
			cookies, err := sessions.Obtain(ctx, source)
			if err != nil {
				return err
			}
			if err := sessions.Save(ctx, source, cookies); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d cookies for %s\n", len(cookies), source)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", sourceWechat, "source to log in to")
	return cmd
}
