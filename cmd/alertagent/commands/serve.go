package commands

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"alertagent/internal/alert"
	"alertagent/internal/api"
	"alertagent/internal/scheduler"
)

func newSchedulerCmd(root *rootOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the digest every day at the configured time",
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
			sch, err := scheduler.New(d.pipeline, a.cfg.Scheduler.Time, a.cfg.Scheduler.Timezone, a.log)
			if err != nil {
				return err
			}
			if runNow {
				if _, err := sch.RunOnce(ctx); err != nil {
					a.log.Error(err, "initial run failed")
				}
			}
			return sch.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run once immediately before waiting for the schedule")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr        string
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and alert webhook, with the daily scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg
			if addr == "" {
				addr = cfg.API.Addr
			}

			ctx := cmd.Context()
			buffer := alert.NewBuffer(cfg.API.WebhookRetention, cfg.API.SweepInterval, a.log.WithName("buffer"))
			d, err := a.buildDigest(ctx, buffer)
			if err != nil {
				return err
			}
			if d.redis != nil {
				buffer.WithEventSink(d.redis)
			}

			toolRouter := a.buildTools(d.source)
			assistant, llmRouter, err := a.buildAssistant(toolRouter)
			if err != nil {
				return err
			}

			server := api.NewServer(d.pipeline, toolRouter, addr, a.log).
				WithAlertHandler(alert.NewHandler(buffer, a.log.WithName("webhook"))).
				WithLLMRouter(llmRouter)
			if assistant != nil {
				if d.redis != nil {
					assistant.WithAlertContext(d.redis)
				}
				server.WithAssistant(assistant)
			} else {
				a.log.Info("no LLM provider configured; agent endpoints disabled")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				buffer.Run(gctx)
				return nil
			})
			if !noScheduler {
				sch, err := scheduler.New(d.pipeline, cfg.Scheduler.Time, cfg.Scheduler.Timezone, a.log)
				if err != nil {
					return err
				}
				server.WithScheduler(sch)
				g.Go(func() error { return sch.Start(gctx) })
			}
			g.Go(func() error { return server.Start(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default api.addr)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve the API only")
	return cmd
}
