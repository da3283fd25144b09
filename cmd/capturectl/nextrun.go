package main

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	"github.com/spf13/cobra"
)

var nextRunOpts struct {
	periodicity string
	timeOfDay   string
	interval    int
	cronExpr    string
	last        string
	timezone    string
	count       int
}

var nextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Print the next run instants of a recurrence rule",
	Example: `  capturectl next-run --periodicity daily --time 06:30
  capturectl next-run --periodicity every_n_days --interval 3 --time 08:00 --last 2024-03-01T08:00:00-03:00
  capturectl next-run --periodicity cron --cron "0 7 * * 1-5" --count 5`,
	Args: cobra.NoArgs,
	// No database needed.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runNextRun,
}

func init() {
	f := nextRunCmd.Flags()
	f.StringVar(&nextRunOpts.periodicity, "periodicity", string(domain.PeriodicityDaily), "daily, every_n_days or cron")
	f.StringVar(&nextRunOpts.timeOfDay, "time", "00:00", "time of day as HH:mm")
	f.IntVar(&nextRunOpts.interval, "interval", 0, "interval in days for every_n_days")
	f.StringVar(&nextRunOpts.cronExpr, "cron", "", "5-field cron expression")
	f.StringVar(&nextRunOpts.last, "last", "", "last run as RFC3339 (default: now)")
	f.StringVar(&nextRunOpts.timezone, "tz", "UTC", "zone the rule is evaluated in")
	f.IntVar(&nextRunOpts.count, "count", 1, "how many consecutive runs to print")
	rootCmd.AddCommand(nextRunCmd)
}

func runNextRun(cmd *cobra.Command, _ []string) error {
	loc, err := time.LoadLocation(nextRunOpts.timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	tod, err := domain.ParseTimeOfDay(nextRunOpts.timeOfDay)
	if err != nil {
		return err
	}

	rule := recurrence.Rule{
		Periodicity: domain.Periodicity(nextRunOpts.periodicity),
		TimeOfDay:   tod,
	}
	if cmd.Flags().Changed("interval") {
		rule.IntervalDays = &nextRunOpts.interval
	}
	if nextRunOpts.cronExpr != "" {
		rule.CronExpr = &nextRunOpts.cronExpr
	}

	var last *time.Time
	if nextRunOpts.last != "" {
		t, err := time.Parse(time.RFC3339, nextRunOpts.last)
		if err != nil {
			return fmt.Errorf("--last must be RFC3339: %w", err)
		}
		last = &t
	}

	calc := recurrence.NewCalculator(loc)
	for range max(nextRunOpts.count, 1) {
		next, err := calc.NextRun(rule, last)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
		last = &next
	}
	return nil
}
