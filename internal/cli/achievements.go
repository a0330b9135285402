package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/breathe-app/breathe/internal/app/engagement"
)

func init() {
	achievementsCmd.Flags().BoolVar(&achUnseen, "unseen", false, "Only unlocked achievements not yet acknowledged")
	achievementsCmd.Flags().BoolVar(&achLocked, "all", false, "Include locked achievements")
	rootCmd.AddCommand(achievementsCmd, seenCmd, evaluateCmd)
}

var (
	achUnseen bool
	achLocked bool
)

var achievementsCmd = &cobra.Command{
	Use:     "achievements",
	Aliases: []string{"ach"},
	Short:   "List achievements",
	RunE:    runAchievements,
}

var seenCmd = &cobra.Command{
	Use:   "seen ACHIEVEMENT...",
	Short: "Acknowledge unlocked achievements",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSeen,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Check every achievement and unlock the ones earned",
	RunE:  runEvaluate,
}

func runAchievements(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	var views []engagement.AchievementView
	if achUnseen {
		views, err = d.Engine.Achievements.Unseen(ctx, userID)
	} else {
		views, err = d.Engine.Achievements.List(ctx, userID)
	}
	if err != nil {
		return err
	}

	unlocked := 0
	for _, v := range views {
		if v.Unlocked {
			unlocked++
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPOINTS\tUNLOCKED")
	for _, v := range views {
		if !v.Unlocked && !achLocked {
			continue
		}
		when := "-"
		if v.UnlockedAt != nil {
			when = v.UnlockedAt.Local().Format("2006-01-02 15:04")
			if !v.Seen {
				when += " *"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", v.ID, v.Title, v.Category, v.Points, when)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d unlocked (* = new)\n", unlocked, d.Engine.Achievements.TotalCount())
	return nil
}

func runSeen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	for _, id := range args {
		if err := d.Engine.Achievements.MarkSeen(ctx, userID, id); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as seen\n", plural(len(args), "achievement", "achievements"))
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	ids, err := d.Engine.Evaluator.Evaluate(ctx, userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No new achievements.")
		return nil
	}
	printUnlocked(cmd, d.Engine, ids)
	return nil
}

// printUnlocked announces newly unlocked achievements.
func printUnlocked(cmd *cobra.Command, eng *engagement.Engine, ids []string) {
	if len(ids) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	var total int64
	fmt.Fprintln(out)
	for _, id := range ids {
		def, err := eng.Achievements.Definition(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unknown achievement %s\n", id)
			continue
		}
		total += def.Points
		fmt.Fprintf(out, "  %s %s: %s (+%s)\n", def.Icon, def.Title, def.Description, eng.Format.Points(def.Points))
	}
	fmt.Fprintf(out, "Unlocked %s, %s\n", plural(len(ids), "achievement", "achievements"), eng.Format.Points(total))
}
