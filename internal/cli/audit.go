package cli

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
)

func newAuditCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the booking attempt trail",
	}
	cmd.AddCommand(newAuditListCmd(env))
	cmd.AddCommand(newAuditStatsCmd(env))
	return cmd
}

func newAuditListCmd(env *Env) *cobra.Command {
	var (
		sessionID string
		limit     int
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List booking attempts of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reader, closeFn, err := env.OpenAudit(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			attempts, err := reader.ListBySession(ctx, sessionID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "AT\tOUTCOME\tLOCATION\tPROVIDER\tREASON\tSLOT\tDATE")
			for _, a := range attempts {
				date := ""
				if !a.ApptDate.IsZero() {
					date = a.ApptDate.Format(practice.DateLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.At.UTC().Format(time.RFC3339), a.Outcome, a.LocationID, a.ProviderID, a.ReasonID, a.SlotID, date)
			}
			return nil
		},
	}
	c.Flags().StringVar(&sessionID, "session", "", "wizard session id")
	c.Flags().IntVar(&limit, "limit", 50, "maximum attempts to list")
	_ = c.MarkFlagRequired("session")
	return c
}

func newAuditStatsCmd(env *Env) *cobra.Command {
	var window time.Duration
	c := &cobra.Command{
		Use:   "stats",
		Short: "Count booking attempts per outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reader, closeFn, err := env.OpenAudit(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			counts, err := reader.OutcomeCounts(ctx, env.Now().Add(-window))
			if err != nil {
				return err
			}
			outcomes := make([]string, 0, len(counts))
			for o := range counts {
				outcomes = append(outcomes, o)
			}
			slices.Sort(outcomes)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "OUTCOME\tCOUNT")
			for _, o := range outcomes {
				fmt.Fprintf(w, "%s\t%d\n", o, counts[o])
			}
			return nil
		},
	}
	c.Flags().DurationVar(&window, "since", 24*time.Hour, "look-back window")
	return c
}
