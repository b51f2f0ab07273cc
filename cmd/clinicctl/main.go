package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
	"github.com/hackgods/clinic-request-desk/internal/config"
	"github.com/hackgods/clinic-request-desk/internal/db"
	"github.com/hackgods/clinic-request-desk/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operator tooling for the clinic request desk",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(accountCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect loads config and opens a pool for one command.
func connect(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", len(applied))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(time.DateTime)
					}
				}
				fmt.Fprintf(out, "%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the request desk as staff would see it",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawFilter, _ := cmd.Flags().GetString("filter")
			rawDate, _ := cmd.Flags().GetString("date")

			filter, err := appointment.ParseFilter(rawFilter)
			if err != nil {
				return err
			}

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			var day *time.Time
			if rawDate != "" {
				d, err := time.ParseInLocation(time.DateOnly, rawDate, cfg.Location)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = &d
			}

			repo := appointment.NewPgRepository(pool)
			requests, err := repo.ListRequests(cmd.Context())
			if err != nil {
				return err
			}
			appts, err := repo.ListAppointments(cmd.Context())
			if err != nil {
				return err
			}

			board := appointment.NewBoard(cfg.Location)
			board.Load(requests, appts)

			entries := onDay(board.Snapshot(filter), day, cfg.Location)
			return renderReport(cmd.OutOrStdout(), entries, cfg.Location)
		},
	}
	cmd.Flags().String("filter", "all", "all, conflict or clear")
	cmd.Flags().String("date", "", "only requests for this day (YYYY-MM-DD, clinic time zone)")
	return cmd
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := account.NewService(
				account.NewPgRepository(pool),
				account.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
				logging.New(cfg.Env, "clinicctl"),
			)
			if err != nil {
				return err
			}

			acc, err := svc.Register(cmd.Context(), account.Registration{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %d (%s)\n", acc.ID, acc.Username)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "login name")
	createCmd.Flags().String("email", "", "contact email")
	createCmd.Flags().String("password", "", "initial password (min 8 characters)")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	cmd.AddCommand(createCmd)
	return cmd
}
