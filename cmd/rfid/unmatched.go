package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/rfi-tracker/internal/repo"
)

// unmatchedCmd lists inbound mail that could not be tied to any RFI, so an
// operator can follow up by hand.
func unmatchedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unmatched",
		Short: "List inbound messages that matched no RFI, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			rows, err := repo.ListUnmatched(cmd.Context(), db, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no unmatched messages")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%s  %-40s  %s  %q\n",
					r.CreatedAt.UTC().Format(time.RFC3339), r.FromEmail, r.MessageID, r.Subject)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows to print, 0 for all")
	return cmd
}
