package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
)

func newBootstrapCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Resolve vendor credentials and exchange them for a practice token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := env.session(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session:     %s\n", sess.ID)
			fmt.Fprintf(out, "practice:    %s\n", sess.Practice)
			fmt.Fprintf(out, "credentials: %d\n", len(sess.Credentials))
			fmt.Fprintln(out, "token:       ok")
			return nil
		},
	}
}

func newCatalogCmd(env *Env) *cobra.Command {
	var locationID string
	c := &cobra.Command{
		Use:   "catalog",
		Short: "List locations and reasons, or providers with --location",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := env.session(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if locationID != "" {
				providers, err := env.API.FetchProviders(ctx, sess.Auth(), locationID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "PROVIDER\tNAME")
				for _, p := range providers {
					fmt.Fprintf(w, "%s\t%s\n", p.ID, p.Name)
				}
				return nil
			}

			locations, err := env.API.FetchLocations(ctx, sess.Auth())
			if err != nil {
				return err
			}
			reasons, err := env.API.FetchReasons(ctx, sess.Auth())
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "KIND\tID\tNAME")
			for _, l := range locations {
				fmt.Fprintf(w, "location\t%s\t%s\n", l.ID, l.Name)
			}
			for _, r := range reasons {
				fmt.Fprintf(w, "reason\t%s\t%s\n", r.ID, r.Name)
			}
			return nil
		},
	}
	c.Flags().StringVar(&locationID, "location", "", "location id to list providers for")
	return c
}

type selectionFlags struct {
	location, provider, reason string
}

func (f *selectionFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.location, "location", "", "location id")
	c.Flags().StringVar(&f.provider, "provider", "", "provider id")
	c.Flags().StringVar(&f.reason, "reason", "", "reason id")
	_ = c.MarkFlagRequired("location")
	_ = c.MarkFlagRequired("provider")
	_ = c.MarkFlagRequired("reason")
}

func newCalendarCmd(env *Env) *cobra.Command {
	var (
		sel   selectionFlags
		month string
	)
	c := &cobra.Command{
		Use:   "calendar",
		Short: "Print the bookable dates of one month as a Sunday-first grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			first := env.Now()
			if month != "" {
				m, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("month must be YYYY-MM: %w", err)
				}
				first = m
			}
			first = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)

			sess, err := env.session(ctx)
			if err != nil {
				return err
			}
			dates, err := env.API.FetchAvailableDates(ctx, sess.Auth(), practice.AvailableDatesQuery{
				LocationID: sel.location,
				ProviderID: sel.provider,
				ReasonID:   sel.reason,
				From:       first,
				To:         first.AddDate(0, 1, -1),
			})
			if err != nil {
				return err
			}
			selector := wizard.NewSelector(first, env.Config.MaxRangeDays)
			selector.SetAvailable(dates)
			renderGrid(cmd, first, selector.Grid())
			return nil
		},
	}
	sel.bind(c)
	c.Flags().StringVar(&month, "month", "", "month to show (YYYY-MM), defaults to the current month")
	return c
}

// renderGrid prints available days in brackets.
func renderGrid(cmd *cobra.Command, first time.Time, cells []wizard.Cell) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d\n", first.Month(), first.Year())
	fmt.Fprintln(out, " Su   Mo   Tu   We   Th   Fr   Sa")
	var line strings.Builder
	for i, cell := range cells {
		switch {
		case cell.Day == 0:
			line.WriteString("     ")
		case cell.Available:
			fmt.Fprintf(&line, "[%2d] ", cell.Day)
		default:
			fmt.Fprintf(&line, " %2d  ", cell.Day)
		}
		if i%7 == 6 {
			fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
			line.Reset()
		}
	}
	if line.Len() > 0 {
		fmt.Fprintln(out, strings.TrimRight(line.String(), " "))
	}
}

func newSlotsCmd(env *Env) *cobra.Command {
	var (
		sel  selectionFlags
		date string
	)
	c := &cobra.Command{
		Use:   "slots",
		Short: "List open slots on a date grouped into Morning, Afternoon and Evening",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day, err := practice.ParseDate(date)
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			sess, err := env.session(ctx)
			if err != nil {
				return err
			}
			slots, err := env.API.FetchOpenSlots(ctx, sess.Auth(), practice.OpenSlotsQuery{
				LocationID: sel.location,
				ProviderID: sel.provider,
				ReasonID:   sel.reason,
				Date:       day,
			})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "BUCKET\tSLOT\tTIME\tDURATION")
			for _, b := range wizard.Buckets() {
				for s := range wizard.Categorize(slots, day, b) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b, s.ID, s.DisplayTime, s.Duration)
				}
			}
			return nil
		},
	}
	sel.bind(c)
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	_ = c.MarkFlagRequired("date")
	return c
}
