package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Devdesai111/RevUp-sub000/internal/health"
)

func statusSymbol(s health.Status) string {
	switch s {
	case health.StatusOK:
		return goodStyle.Render(s.Symbol())
	case health.StatusWarning:
		return warnStyle.Render(s.Symbol())
	case health.StatusError:
		return badStyle.Render(s.Symbol())
	default:
		return dimStyle.Render(s.Symbol())
	}
}

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and configuration",
		Long: `Ping the configured store and kv backend and list which optional
features the configuration enables.

Examples:
  revup doctor           # Run all checks
  revup doctor --verbose # Show fixes for failing checks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			fmt.Println()
			fmt.Println(titleStyle.Render("revup health check"))
			fmt.Println()

			var report *health.Report
			a, err := openApp(ctx, cfg)
			if err != nil {
				report = &health.Report{Dependencies: []health.Check{{
					Name:    "startup",
					Status:  health.StatusError,
					Message: err.Error(),
					Fix:     "run 'revup config validate' and check store and kv settings",
				}}}
			} else {
				defer func() { _ = a.Close() }()
				report = health.RunChecks(ctx, a.probes(), health.DefaultTimeout)
			}
			report.Features = health.CheckFeatures(cfg)

			fmt.Println("Dependencies:")
			for _, d := range report.Dependencies {
				fmt.Printf("  %s %-20s %s\n", statusSymbol(d.Status), d.Name, dimStyle.Render(d.Message))
				if verbose && d.Fix != "" && d.Status != health.StatusOK {
					fmt.Printf("    → %s\n", d.Fix)
				}
			}
			fmt.Println()

			fmt.Println("Features:")
			for _, f := range report.Features {
				note := ""
				if f.Note != "" {
					note = dimStyle.Render(" (" + f.Note + ")")
				}
				fmt.Printf("  %s %-18s%s\n", statusSymbol(f.Status), f.Name, note)
			}
			fmt.Println()

			if report.HasErrors() {
				fmt.Println(badStyle.Render(report.Summary()))
				return fmt.Errorf("health check failed")
			}
			fmt.Println(goodStyle.Render(report.Summary()))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show fixes for failing checks")

	return cmd
}
