package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breathe-app/breathe/internal/domain"
)

func init() {
	f := logCmd.Flags()
	f.StringVar(&logDate, "date", "today", "Day to log (YYYY-MM-DD, today, yesterday)")
	f.IntVarP(&logCigarettes, "cigarettes", "c", 0, "Cigarettes smoked that day")
	f.IntVar(&logCravings, "cravings", 0, "Cravings resisted")
	f.IntVar(&logMood, "mood", 0, "Mood rating 1-5")
	f.IntVar(&logStress, "stress", 0, "Stress level 1-5")
	f.StringVar(&logNotes, "notes", "", "Free-form notes")
	rootCmd.AddCommand(logCmd)
}

var (
	logDate       string
	logCigarettes int
	logCravings   int
	logMood       int
	logStress     int
	logNotes      string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record a day in the smoking log",
	Long: `Record or edit one day's log entry. Any past day may be edited;
a changed slip status recomputes the streak.`,
	Example: `  breathe log
  breathe log --date yesterday --cigarettes 2 --mood 3`,
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	today, err := d.Engine.Logs.Today(ctx, userID)
	if err != nil {
		return err
	}
	date, err := parseDateFlag(logDate, today)
	if err != nil {
		return err
	}

	res, err := d.Engine.Logs.Save(ctx, domain.DailyLogEntry{
		UserID:           userID,
		Date:             date,
		CigarettesSmoked: logCigarettes,
		CravingsCount:    logCravings,
		MoodRating:       logMood,
		StressLevel:      logStress,
		Notes:            logNotes,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Entry.SmokeFree {
		fmt.Fprintf(out, "Logged %s: smoke-free\n", res.Entry.Date)
	} else {
		fmt.Fprintf(out, "Logged %s: %s\n", res.Entry.Date, plural(res.Entry.CigarettesSmoked, "cigarette", "cigarettes"))
	}
	if res.Refreshed && res.Streak != nil {
		fmt.Fprintf(out, "Streak recalculated: %s\n", plural(res.Streak.CurrentDays, "day", "days"))
	}

	printUnlocked(cmd, d.Engine, d.Engine.AfterAction(ctx, userID, "log"))
	return nil
}
