package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neuralsalvage/pkg/arweave"
	"neuralsalvage/pkg/cache"
	"neuralsalvage/pkg/db"
	"neuralsalvage/pkg/jobs"
	"neuralsalvage/pkg/pricing"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			return db.Migrate(ctx.cfg.DatabaseURL, ctx.log)
		},
	}
}

func newQuoteCommand(ctx *commandContext) *cobra.Command {
	var (
		subscriber bool
		storage    bool
	)
	cmd := &cobra.Command{
		Use:     "quote <size>",
		Short:   "Price a mint for a file size such as 12MB or 3145728",
		Args:    cobra.ExactArgs(1),
		Example: "  neuralsalvage quote 75MB --subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := humanize.ParseBytes(args[0])
			if err != nil {
				return fmt.Errorf("parse size %q: %w", args[0], err)
			}
			q, err := pricing.QuoteForUser(int64(size), subscriber)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tier:     %s\n", q.Tier)
			fmt.Fprintf(out, "Size:     %s\n", q.Size)
			if q.Subscriber {
				fmt.Fprintf(out, "Price:    $%s (list $%s, %d%% off)\n",
					q.Price.StringFixed(2), pricing.Dollars(q.BasePriceCents).StringFixed(2), q.DiscountPercent)
			} else {
				fmt.Fprintf(out, "Price:    $%s\n", q.Price.StringFixed(2))
			}

			if storage {
				gw := arweave.NewGateway(ctx.cfg.ArweaveGateway, cache.NewMemory(), ctx.log)
				est, err := gw.Price(cmd.Context(), int64(size))
				if err != nil {
					return fmt.Errorf("arweave estimate: %w", err)
				}
				fmt.Fprintf(out, "Arweave:  %s AR (%s winston)\n", est.AR.StringFixed(6), est.Winston)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&subscriber, "subscriber", false, "Apply the subscriber discount")
	cmd.Flags().BoolVar(&storage, "storage", false, "Also fetch the Arweave storage estimate")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect or trigger background jobs",
	}
	jobsCmd.AddCommand(&cobra.Command{
		Use:       "run <name>",
		Short:     "Run one job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.UsageResetName, jobs.ConfirmationsName},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cfg.Validate(); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), ctx.cfg, ctx.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.scheduler.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			ctx.log.Info("job done", zap.String("job", args[0]))
			return nil
		},
	})
	return jobsCmd
}
