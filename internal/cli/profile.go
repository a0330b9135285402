package cli

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/breathe-app/breathe/internal/app/engagement"
	"github.com/breathe-app/breathe/internal/domain"
)

func init() {
	f := profileCmd.Flags()
	f.StringVar(&prof.name, "name", "", "Display name")
	f.StringVar(&prof.quitDate, "quit-date", "", "Quit date (YYYY-MM-DD)")
	f.StringVar(&prof.targetDate, "target-date", "", "Planned quit date (YYYY-MM-DD)")
	f.StringVar(&prof.mode, "mode", "", "Which date anchors the streak: quit or target")
	f.StringVar(&prof.timezone, "timezone", "", "IANA timezone, e.g. Europe/Paris")
	f.Float64Var(&prof.perDay, "per-day", 0, "Cigarettes per day before quitting")
	f.Float64Var(&prof.costPerPack, "cost-per-pack", 0, "Price of one pack")
	f.Float64Var(&prof.perPack, "per-pack", 0, "Cigarettes in one pack")
	rootCmd.AddCommand(profileCmd)
}

var prof struct {
	name, quitDate, targetDate, mode, timezone string
	perDay, costPerPack, perPack               float64
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update the user profile",
	Long:  `Without flags, prints the profile. With flags, updates only the given fields.`,
	Example: `  breathe profile --quit-date 2025-01-10 --per-day 20 --cost-per-pack 10 --per-pack 20
  breathe profile --timezone Europe/Paris`,
	RunE: runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.Engine.Profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		p, err = &domain.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return err
	}

	if profileFlagsChanged(cmd) {
		if err := applyProfileFlags(cmd, p); err != nil {
			return err
		}
		if p, err = d.Engine.Profiles.Save(ctx, *p); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Profile saved.")
		defer printUnlocked(cmd, d.Engine, d.Engine.AfterAction(ctx, userID, "profile"))
	}

	printProfile(cmd, d.Engine, p)
	return nil
}

var profileFlagNames = []string{
	"name", "quit-date", "target-date", "mode", "timezone", "per-day", "cost-per-pack", "per-pack",
}

func profileFlagsChanged(cmd *cobra.Command) bool {
	for _, name := range profileFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func applyProfileFlags(cmd *cobra.Command, p *domain.UserProfile) error {
	f := cmd.Flags()
	if f.Changed("name") {
		p.DisplayName = prof.name
	}
	if f.Changed("timezone") {
		p.Timezone = prof.timezone
	}
	if f.Changed("mode") {
		p.DateMode = domain.DateMode(prof.mode)
	}
	if f.Changed("quit-date") {
		d, err := parseOptionalDate(prof.quitDate)
		if err != nil {
			return err
		}
		p.QuitDate = d
	}
	if f.Changed("target-date") {
		d, err := parseOptionalDate(prof.targetDate)
		if err != nil {
			return err
		}
		p.TargetQuitDate = d
	}
	if f.Changed("per-day") {
		p.CigarettesPerDayBefore = prof.perDay
	}
	if f.Changed("cost-per-pack") {
		p.CostPerPack = prof.costPerPack
	}
	if f.Changed("per-pack") {
		p.CigarettesPerPack = prof.perPack
	}
	return nil
}

func printProfile(cmd *cobra.Command, eng *engagement.Engine, p *domain.UserProfile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:          %s\n", p.UserID)
	fmt.Fprintf(out, "Name:          %s\n", p.DisplayName)
	fmt.Fprintf(out, "Timezone:      %s\n", orDash(p.Timezone))
	fmt.Fprintf(out, "Quit date:     %s\n", dateOrDash(p.QuitDate))
	fmt.Fprintf(out, "Target date:   %s\n", dateOrDash(p.TargetQuitDate))
	fmt.Fprintf(out, "Mode:          %s\n", p.DateMode)
	fmt.Fprintf(out, "Per day:       %g\n", p.CigarettesPerDayBefore)
	fmt.Fprintf(out, "Pack:          %g for %.2f %s\n", p.CigarettesPerPack, p.CostPerPack, eng.Format.Currency())
	fmt.Fprintf(out, "Streak:        %s\n", plural(p.CurrentStreakDays, "day", "days"))
	fmt.Fprintf(out, "Points:        %s\n", eng.Format.Points(p.TotalPoints))
	fmt.Fprintf(out, "Coach chats:   %d\n", p.AIMessagesCount)
	fmt.Fprintf(out, "Audio played:  %d\n", p.AudioSessionsCount)
	fmt.Fprintln(out, levelLine(engagement.ProgressFor(p.TotalPoints)))
}

// parseOptionalDate accepts an empty string or "none" to clear the date.
func parseOptionalDate(s string) (*civil.Date, error) {
	if s == "" || s == "none" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &d, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
