package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/habitlog/internal/insight"
	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/rollup"
	"github.com/habitlog/internal/service"
	"github.com/spf13/cobra"
)

var (
	faint = color.New(color.Faint)
	bold  = color.New(color.Bold)
	good  = color.New(color.FgGreen)
	warn  = color.New(color.FgYellow)
	bad   = color.New(color.FgRed)
)

func newStreakCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Show current and longest streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := app.day()
			if err != nil {
				return err
			}
			streak, err := app.stats.Streak(cmd.Context(), app.userID, day)
			if err != nil {
				return fmt.Errorf("compute streak: %w", err)
			}

			out := cmd.OutOrStdout()
			today := warn.Sprint("pending")
			if streak.TodayComplete {
				today = good.Sprint("done")
			}
			fmt.Fprintf(out, "%s %d days  %s %d days  %s %s\n",
				bold.Sprint("current"), streak.Current,
				faint.Sprint("longest"), streak.Longest,
				faint.Sprint("today"), today)
			return nil
		},
	}
}

func newPeriodCmd(app *cli, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   kind,
		Short: fmt.Sprintf("Show the %s rollup containing --date", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := app.day()
			if err != nil {
				return err
			}

			var report rollup.PeriodReport
			if kind == "month" {
				report, err = app.stats.Month(cmd.Context(), app.userID, day)
			} else {
				report, err = app.stats.Week(cmd.Context(), app.userID, day)
			}
			if err != nil {
				return fmt.Errorf("compute %s: %w", kind, err)
			}

			printPeriod(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func printPeriod(out io.Writer, report rollup.PeriodReport) {
	status := ""
	if report.InProgress {
		status = faint.Sprint(" (in progress)")
	}
	fmt.Fprintf(out, "%s %s ~ %s%s\n",
		bold.Sprint(report.Window.Kind),
		report.Window.Start.Format("2006-01-02"),
		report.Window.End.Format("2006-01-02"),
		status)

	if len(report.Habits) == 0 {
		fmt.Fprintln(out, "No active habits.")
		return
	}
	for _, h := range report.Habits {
		fmt.Fprintf(out, "  %s %d/%d %s\n", padRight(h.Name, 20), h.Completed, h.Target, percent(h.Percentage))
	}
	fmt.Fprintf(out, "  %s %d/%d %s\n", padRight("total", 20), report.Completed, report.Target, percent(report.Percentage))
}

func newMomentumCmd(app *cli) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "momentum",
		Short: "Compute and store momentum for --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := app.day()
			if err != nil {
				return err
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			v, err := app.momentum.Compute(cmd.Context(), app.userID, end.AddDate(0, 0, -days), end)
			if err != nil {
				return fmt.Errorf("compute momentum: %w", err)
			}
			printMomentum(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", service.DefaultMomentumWindow, "lookback window in days")
	return cmd
}

func printMomentum(out io.Writer, v momentum.Vector) {
	direction := faint.Sprint(v.Direction)
	switch v.Direction {
	case momentum.Increasing:
		direction = good.Sprint(v.Direction)
	case momentum.Decreasing:
		direction = bad.Sprint(v.Direction)
	}

	fmt.Fprintf(out, "%s %d  %s  %s %.1f  %s %+.1f\n",
		bold.Sprint("overall"), v.Overall, direction,
		faint.Sprint("strength"), v.Strength,
		faint.Sprint("weekly"), v.WeeklyChange)
	fmt.Fprintf(out, "  consistency %.1f  growth %.1f  impact %.1f  learning %.1f  %s\n",
		v.Consistency, v.Growth, v.Impact, v.Learning,
		faint.Sprintf("(%d executions)", v.Samples))
	for _, p := range v.Forecast {
		fmt.Fprintf(out, "  %s %3d %s\n", p.Date.Format("2006-01-02"), p.Value, faint.Sprintf("±%d%%", 100-p.Confidence))
	}
}

func newInsightsCmd(app *cli) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show biases, predictions, leverage points and friction",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := app.day()
			if err != nil {
				return err
			}
			report, err := app.insights.Generate(cmd.Context(), app.userID, day)
			if err != nil {
				return fmt.Errorf("generate insights: %w", err)
			}
			if category != "" {
				report.Findings = report.Filter(insight.Category(strings.ToLower(category)))
			}
			printInsights(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "bias, prediction, leverage or friction")
	return cmd
}

func printInsights(out io.Writer, report insight.Report) {
	if len(report.Findings) == 0 {
		fmt.Fprintln(out, "No insights found.")
	}
	for _, f := range report.Findings {
		fmt.Fprintf(out, "%s %s %s %s\n",
			severityColor(f.Severity).Sprintf("[%s]", f.Severity),
			bold.Sprint(f.Type),
			faint.Sprintf("%s %d%%", f.Category, f.Confidence),
			f.Description)
		if f.Recommendation != "" {
			fmt.Fprintf(out, "  → %s\n", f.Recommendation)
		}
	}

	if plan := report.Recovery; plan != nil {
		fmt.Fprintf(out, "%s %s %s\n",
			severityColor(plan.Severity).Sprint("recovery"),
			plan.StartDate.Format("2006-01-02"),
			plan.Reason)
	}
}

func severityColor(s insight.Severity) *color.Color {
	switch s {
	case insight.SeverityCritical, insight.SeverityHigh:
		return bad
	case insight.SeverityMedium:
		return warn
	default:
		return faint
	}
}

func percent(p int) string {
	switch {
	case p >= 100:
		return good.Sprintf("%d%%", p)
	case p >= 50:
		return warn.Sprintf("%d%%", p)
	default:
		return bad.Sprintf("%d%%", p)
	}
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
