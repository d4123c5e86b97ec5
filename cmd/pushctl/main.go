// Command pushctl is the Scoracle push operations CLI.
//
// Usage:
//
//	pushctl migrate up
//	pushctl migrate down --steps 1
//	pushctl run inactivity_reminder
//	pushctl run new_article --title "Trade deadline" --body "Every deal, graded" --data '{"article_id":"42"}'
//	pushctl classes
//	pushctl runs --limit 20
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-push/internal/config"
	"github.com/albapepper/scoracle-push/internal/db"
	"github.com/albapepper/scoracle-push/internal/devices"
	"github.com/albapepper/scoracle-push/internal/gateway"
	"github.com/albapepper/scoracle-push/internal/metrics"
	"github.com/albapepper/scoracle-push/internal/migrations"
	"github.com/albapepper/scoracle-push/internal/notifications"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "pushctl",
		Short:         "Scoracle push operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(runCmd())
	root.AddCommand(classesCmd())
	root.AddCommand(runsCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return migrations.Up(cfg.DatabaseURL, logger)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return migrations.Down(cfg.DatabaseURL, steps, logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var title, body, data string
	cmd := &cobra.Command{
		Use:   "run <class>",
		Short: "Run one notification class now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := notifications.RunParams{Title: title, Body: body}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &params.Data); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				gw, err := gateway.New(ctx, gateway.Config{
					Provider:        cfg.PushProvider,
					ExpoURL:         cfg.ExpoPushURL,
					ExpoAccessToken: cfg.ExpoAccessToken,
					Timeout:         cfg.PushGatewayTimeout,
					RatePerSecond:   cfg.PushGatewayRPS,
					FCMCredentials:  cfg.FirebaseCredentialsFile,
				}, logger)
				if err != nil {
					return fmt.Errorf("create push gateway: %w", err)
				}
				metrics.Init()
				engine := notifications.NewEngine(
					devices.NewPostgresRegistry(pool), gw, notifications.NewRunStore(pool), logger)

				out, err := engine.RunByName(ctx, args[0], params)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"success":  true,
					"sent":     out.Success,
					"errors":   out.Errors,
					"targeted": out.Targeted,
					"run_id":   out.RunID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Notification title (required for content classes)")
	cmd.Flags().StringVar(&body, "body", "", "Notification body (required for content classes)")
	cmd.Flags().StringVar(&data, "data", "", "Extra JSON object merged into the message data")
	return cmd
}

// --------------------------------------------------------------------------
// classes / runs commands
// --------------------------------------------------------------------------

func classesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List notification classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLASS\tPREFERENCE\tINACTIVITY\tTHROTTLE\tCONTENT\tDESCRIPTION")
			for _, c := range notifications.Classes() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
					c.Name, c.PreferenceKey, window(c.InactivityWindow), window(c.ThrottleWindow),
					c.RequiresContent, c.Description)
			}
			return tw.Flush()
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent notification runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				runs, err := notifications.NewRunStore(pool).Recent(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tCLASS\tTARGETED\tSENT\tERRORS\tDURATION\tRUN ID")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
						r.StartedAt.Format(time.RFC3339), r.Class, r.Targeted, r.Success, r.Errors,
						r.Duration().Round(time.Millisecond), r.RunID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func window(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}

// withDB loads config, connects, and hands both to fn.
func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
