package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"alertagent/internal/alert"
	"alertagent/internal/collector"
	"alertagent/internal/history"
	"alertagent/internal/pipeline"
	"alertagent/internal/scheduler"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts pipeline.RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily alert digest once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.buildDigest(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if opts.DryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "DRY RUN: the digest is built but not posted")
			}
			result, err := d.pipeline.Run(cmd.Context(), opts)
			if result != nil {
				printResult(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Build the digest and print it instead of posting to Slack")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Post a digest even when no alerts fired")
	cmd.Flags().IntVar(&opts.LookbackHours, "lookback-hours", 0, "Override the configured lookback window")
	return cmd
}

func printResult(w io.Writer, r *alert.ProcessingResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Execution\t%s\n", r.ExecutionID)
	fmt.Fprintf(tw, "Status\t%s\n", r.Status)
	fmt.Fprintf(tw, "Alerts collected\t%d\n", r.AlertsCollected)
	fmt.Fprintf(tw, "Groups created\t%d\n", r.GroupsCreated)
	fmt.Fprintf(tw, "Summary generated\t%t\n", r.SummaryGenerated)
	fmt.Fprintf(tw, "Slack sent\t%t\n", r.SlackSent)
	fmt.Fprintf(tw, "Duration\t%s\n", r.Duration().Round(time.Millisecond))
	if r.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error\t%s\n", r.ErrorMessage)
	}
	_ = tw.Flush()

	if r.DryRun && r.Summary != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, r.Summary.Markdown())
	}
}

func newCollectCmd(root *rootOptions) *cobra.Command {
	var (
		lookbackHours int
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch and list alerts from Grafana without building a digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if lookbackHours == 0 {
				lookbackHours = a.cfg.Scheduler.LookbackHours
			}
			if lookbackHours < 1 || lookbackHours > 168 {
				return fmt.Errorf("--lookback-hours must be between 1 and 168, got %d", lookbackHours)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collecting alerts from the last %d hours...\n", lookbackHours)
			if dryRun {
				fmt.Fprintf(out, "DRY RUN: would query %s\n", a.cfg.Grafana.BaseURL)
				return nil
			}

			client := collector.NewClient(a.cfg.Grafana, a.retryPolicy(), a.log.WithName("grafana"))
			alerts, err := client.FetchAlerts(cmd.Context(), time.Duration(lookbackHours)*time.Hour)
			if err != nil {
				return err
			}
			printAlerts(out, alerts, 10)
			return nil
		},
	}
	cmd.Flags().IntVar(&lookbackHours, "lookback-hours", 0, "Override the configured lookback window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be collected without calling Grafana")
	return cmd
}

// printAlerts lists at most limit alerts, then a count of the rest.
func printAlerts(w io.Writer, alerts []alert.Alert, limit int) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSEVERITY\tSERVICE\tTIMESTAMP")
	for i, a := range alerts {
		if i == limit {
			fmt.Fprintf(tw, "...\tand %d more alerts\t\t\t\n", len(alerts)-limit)
			break
		}
		title := a.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, title, a.Severity, a.ServiceName(), a.Timestamp.Format(time.RFC3339))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d alerts collected\n", len(alerts))
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			issues := cfg.Validate()
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "Configuration is valid.")
				return nil
			}
			fmt.Fprintln(out, "Configuration validation failed:")
			for _, issue := range issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("configuration has %d issue(s)", len(issues))
		},
	}
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show component health, schedule and the last run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			d, err := a.buildDigest(ctx, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPONENT\tSTATUS\tDETAILS")

			if issues := a.cfg.Validate(); len(issues) == 0 {
				fmt.Fprintln(tw, "configuration\tvalid\tall settings validated")
			} else {
				fmt.Fprintf(tw, "configuration\tinvalid\t%s\n", issues[0])
			}

			hc := d.pipeline.Health(ctx)
			for _, c := range hc.Components {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
			}

			sch, err := scheduler.New(d.pipeline, a.cfg.Scheduler.Time, a.cfg.Scheduler.Timezone, a.log)
			if err != nil {
				fmt.Fprintf(tw, "scheduler\tinvalid\t%v\n", err)
			} else {
				fmt.Fprintf(tw, "scheduler\t%s\tnext run %s\n", sch.Spec(), sch.NextRun().Format(time.RFC3339))
			}
			_ = tw.Flush()

			last, err := d.pipeline.History().Last(ctx)
			switch {
			case errors.Is(err, history.ErrNotFound):
				fmt.Fprintln(out, "\nNo runs recorded.")
			case err != nil:
				return err
			default:
				fmt.Fprintln(out, "\nLast run:")
				printResult(out, last)
			}
			fmt.Fprintf(out, "\nOverall: %s\n", hc.Status)
			return nil
		},
	}
}
