package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/api"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// parseDayFlag parses YYYY-MM-DD, defaulting to today in UTC.
func parseDayFlag(value string) (time.Time, error) {
	if value == "" {
		return alignment.Day(time.Now().UTC()), nil
	}
	return alignment.ParseDay(value)
}

// runInline recomputes one day and prints the result.
func runInline(ctx context.Context, a *app, userID string, day time.Time, reason jobs.TriggerReason) error {
	job, err := jobs.NewJob(userID, day, reason)
	if err != nil {
		return err
	}
	m, err := a.engine.RecalcJob(ctx, job)
	if err != nil {
		return fmt.Errorf("recalculation failed: %w", err)
	}
	if m == nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Skipped %s: no execution record or a recalculation is already running.", job.Key())))
		return nil
	}
	fmt.Println(renderMetric(m))
	return nil
}

func newRecalcCmd() *cobra.Command {
	var (
		userID string
		date   string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute one user's alignment metric for a day",
		Long: `Recompute and persist the alignment metric for a user and day inline,
then print it. Notifications fire exactly as they would from a worker.

Examples:
  revup recalc --user u1                         # today
  revup recalc --user u1 --date 2024-01-01
  revup recalc --user u1 --date 2024-01-01 --reason reflection_done`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			day, err := parseDayFlag(date)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return runInline(ctx, a, userID, day, jobs.TriggerReason(reason))
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&reason, "reason", string(jobs.ReasonAdminCalibrate), "trigger reason recorded in logs")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newSweepCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Record missed days for users who logged nothing",
		Long: `Run the missed-day sweep once. Every user active within the lookback
window who has no execution record for the day gets a missed-day record,
a missed_day notification and a recalculation.

Without --date the previous day in the configured sweep timezone is swept.

Examples:
  revup sweep
  revup sweep --date 2024-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sweeper := jobs.NewSweeper(a.store, a.queue, a.notifier, cfg.SweeperConfig(), logging.WithComponent("sweeper"))

			var res *jobs.SweepResult
			if date == "" {
				res, err = sweeper.RunNow(ctx)
			} else {
				day, perr := alignment.ParseDay(date)
				if perr != nil {
					return perr
				}
				res, err = sweeper.SweepDay(ctx, day)
			}
			if err != nil {
				return err
			}

			processed, failed := a.drain(ctx)

			fmt.Println(titleStyle.Render("Sweep " + alignment.DayKey(res.Day)))
			fmt.Println(row("Users checked", fmt.Sprintf("%d", res.Checked)))
			fmt.Println(row("Missed days", warnStyle.Render(fmt.Sprintf("%d", res.Missed))))
			fmt.Println(row("Jobs enqueued", fmt.Sprintf("%d", res.Enqueued)))
			if processed > 0 || failed > 0 {
				fmt.Println(row("Recomputed", fmt.Sprintf("%d (%d failed)", processed, failed)))
			}
			if res.Errors > 0 {
				fmt.Println(row("Errors", badStyle.Render(fmt.Sprintf("%d", res.Errors))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to sweep as YYYY-MM-DD (default yesterday)")

	return cmd
}

// executionFile is the JSON shape accepted by 'revup log'.
type executionFile struct {
	Tasks           []alignment.Task `json:"tasks"`
	HabitDone       bool             `json:"habit_done"`
	DeepWorkMinutes int              `json:"deep_work_minutes"`
	MissedDay       bool             `json:"missed_day"`
	Reflection      *float64         `json:"reflection_quality,omitempty"`
}

func newLogCmd() *cobra.Command {
	var (
		userID   string
		date     string
		file     string
		noRecalc bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Import a day's execution record from JSON",
		Long: `Store a user's execution evidence for a day from a JSON file, then
recompute that day. Use --file - to read from stdin.

File format:
  {
    "tasks": [{"id": "c1", "category": "core", "completed": true, "effort": 8}],
    "habit_done": true,
    "deep_work_minutes": 90,
    "reflection_quality": 70
  }

Examples:
  revup log --user u1 --date 2024-01-01 --file day.json
  cat day.json | revup log --user u1 --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			day, err := parseDayFlag(date)
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			var in executionFile
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("failed to parse execution record: %w", err)
			}

			rec := &store.ExecutionRecord{
				UserID:          userID,
				Date:            day,
				Tasks:           in.Tasks,
				HabitDone:       in.HabitDone,
				DeepWorkMinutes: in.DeepWorkMinutes,
				MissedDay:       in.MissedDay,
			}
			if err := rec.Validate(); err != nil {
				return err
			}
			if in.Reflection != nil && (*in.Reflection < 0 || *in.Reflection > 100) {
				return fmt.Errorf("reflection_quality must be between 0 and 100")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.UpsertExecution(ctx, rec); err != nil {
				return err
			}
			if in.Reflection != nil {
				if err := a.store.SaveReflection(ctx, userID, day, *in.Reflection); err != nil {
					return err
				}
			}
			fmt.Println(goodStyle.Render(fmt.Sprintf("Stored %d tasks for %s on %s", len(rec.Tasks), userID, alignment.DayKey(day))))

			if noRecalc {
				return nil
			}
			return runInline(ctx, a, userID, day, jobs.ReasonTaskComplete)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with the execution record, or - for stdin (required)")
	cmd.Flags().BoolVar(&noRecalc, "no-recalc", false, "store the record without recomputing")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		userID string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's recent alignment metrics",
		Long: `List a user's persisted alignment metrics, newest first.

Examples:
  revup history --user u1
  revup history --user u1 --limit 30 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			tomorrow := alignment.Day(time.Now().UTC()).AddDate(0, 0, 1)
			metrics, err := st.RecentMetrics(ctx, userID, tomorrow, limit)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(metrics, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal metrics: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}
			if len(metrics) == 0 {
				fmt.Println(dimStyle.Render("No metrics recorded for " + userID))
				return nil
			}
			fmt.Print(renderHistory(userID, metrics))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().IntVar(&limit, "limit", 14, "number of days to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		admin  bool
		expiry time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token",
		Long: `Sign a bearer token for the HTTP API with api.jwt_secret.

Examples:
  revup token --user u1
  revup token --user ops --admin --expiry 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.API == nil || cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is required (set REVUP_JWT_SECRET)")
			}
			tok, err := api.NewTokenService(cfg.API.JWTSecret, expiry).GenerateToken(userID, admin)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin access")
	cmd.Flags().DurationVar(&expiry, "expiry", tokenExpiry, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
