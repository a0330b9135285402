package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breathe-app/breathe/internal/app/engagement"
	"github.com/breathe-app/breathe/internal/domain"
)

func init() {
	streakCmd.Flags().BoolVar(&streakRefresh, "refresh", false, "Recompute the cached streak from the log first")
	rootCmd.AddCommand(streakCmd)
}

var streakRefresh bool

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the current smoke-free streak, savings and level",
	RunE:  runStreak,
}

func runStreak(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if streakRefresh {
		if _, err := d.Engine.Logs.RefreshStreak(ctx, userID); err != nil {
			return err
		}
	}

	st, err := d.Engine.Logs.Status(ctx, userID)
	if err != nil {
		return err
	}
	snap, err := d.Engine.Aggregator.Aggregate(ctx, userID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if st.Anchor == nil {
		fmt.Fprintln(out, "No quit date set. Run 'breathe profile --quit-date YYYY-MM-DD' to start.")
		return nil
	}

	if st.Mode == domain.ModeCountdown {
		fmt.Fprintf(out, "Quit day:  %s (%s to go)\n", st.Anchor, plural(st.DaysUntilQuit, "day", "days"))
	} else {
		fmt.Fprintf(out, "Streak:    %s smoke-free\n", plural(st.CurrentDays, "day", "days"))
		fmt.Fprintf(out, "Since:     %s\n", dateOrDash(st.StartDate))
		fmt.Fprintf(out, "Last slip: %s\n", dateOrDash(st.LastSlipDate))
		fmt.Fprintf(out, "Saved:     %s\n", d.Engine.Format.Money(snap.SavingsAmount))
		fmt.Fprintln(out, milestoneLine(st.CurrentDays, st.Next))
	}

	if p, err := d.Engine.Profiles.Get(ctx, userID); err == nil {
		fmt.Fprintln(out, levelLine(engagement.ProgressFor(p.TotalPoints)))
	}
	return nil
}
