package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ErlanBelekov/court-capture/internal/infrastructure/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "capturectl",
	Short:         "Operate the court capture engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
}

func openPool(cmd *cobra.Command) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return postgres.NewPool(cmd.Context(), databaseURL, postgres.PoolOptions{MaxConns: 2, MinConns: 1})
}
