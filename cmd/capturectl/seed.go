package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var seedOpts struct {
	owner    string
	email    string
	court    string
	token    string
	timezone string
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a sample owner, credentials and a daily schedule for local development",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedOpts.owner, "owner", "user_local", "owner id (the JWT subject you test with)")
	f.StringVar(&seedOpts.email, "email", "seed@test.local", "owner email for failure notifications")
	f.StringVar(&seedOpts.court, "court", "TRT2", "court code; must exist in the courts file")
	f.StringVar(&seedOpts.token, "token", "", "court access token (default: random placeholder)")
	f.StringVar(&seedOpts.timezone, "tz", "UTC", "zone the schedule is evaluated in")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	loc, err := time.LoadLocation(seedOpts.timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	token := seedOpts.token
	if token == "" {
		token = "seed-" + uuid.NewString()
	}

	pool, err := openPool(cmd)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := postgres.NewUserRepository(pool)
	credentials := postgres.NewCredentialRepository(pool)
	schedules := postgres.NewScheduleRepository(pool)

	email := seedOpts.email
	if err := users.Upsert(ctx, seedOpts.owner, &email); err != nil {
		return err
	}
	fmt.Fprintf(out, "user %s <%s>\n", seedOpts.owner, email)

	credentialIDs := make([]string, 0, 2)
	for _, level := range []domain.InstanceLevel{domain.InstanceFirst, domain.InstanceSecond} {
		c, err := credentials.Create(ctx, &domain.CredentialDescriptor{
			OwnerID:       seedOpts.owner,
			CourtCode:     strings.ToUpper(seedOpts.court),
			InstanceLevel: level,
			AuthMaterial:  token,
		})
		if err != nil {
			return err
		}
		credentialIDs = append(credentialIDs, c.ID)
		fmt.Fprintf(out, "credential %s %s %s\n", c.ID, c.CourtCode, c.InstanceLevel)
	}

	s := &domain.Schedule{
		OwnerID:       seedOpts.owner,
		Name:          "seed pending filings",
		CaptureType:   domain.CapturePendingFilings,
		CredentialIDs: credentialIDs,
		Periodicity:   domain.PeriodicityDaily,
		TimeOfDay:     domain.TimeOfDay{Hour: 6},
		ExtraParams:   domain.PendingFilingsParams{Filters: []domain.PendingFilter{domain.FilterNoDeadline, domain.FilterWithinDeadline}},
	}
	s.NextRunAt, err = recurrence.NewCalculator(loc).NextRun(recurrence.RuleOf(s), nil)
	if err != nil {
		return err
	}

	created, err := schedules.Create(ctx, s)
	if errors.Is(err, domain.ErrScheduleNameConflict) {
		fmt.Fprintf(out, "schedule %q already exists, skipped\n", s.Name)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schedule %s next run %s\n", created.ID, created.NextRunAt.In(loc).Format(time.RFC3339))
	return nil
}
