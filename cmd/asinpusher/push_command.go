package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asinpusher/verification"
)

func newPushCommand(ctx *commandContext) *cobra.Command {
	var file string
	var yes, wait bool
	var vf verificationFlags

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push identifiers to the crawler queue",
		Example: `  asinpusher push -f asin.txt
  asinpusher push -f asin.txt --wait -y
  asinpusher push -f asin.txt --wait --check-interval 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := vf.apply(cmd, cfg); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			parsed, err := loadRecords(out, file)
			if err != nil {
				return err
			}

			if !yes {
				in := cmd.InOrStdin()
				if f, ok := in.(*os.File); ok && !isTerminal(f) {
					return fmt.Errorf("refusing to push %d identifiers without confirmation; pass --yes", len(parsed.Records))
				}
				ok, err := confirm(in, out, fmt.Sprintf("Push %d identifiers to %s?", len(parsed.Records), cfg.Queue.Backend))
				if err != nil {
					return err
				}
				if !ok {
					return errNotConfirmed
				}
			}

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			if wait {
				lock, err := acquireRunLock()
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			b, err := openBackends(runCtx, cfg, logger, backendSet{queue: true, database: wait, storage: wait})
			if err != nil {
				return err
			}
			defer b.Close()

			// Probe and exporter settings are checked before anything reaches the queue.
			var engine *verification.Engine
			if wait {
				if engine, err = newEngine(cfg, b, logger, true); err != nil {
					return err
				}
			}

			res, err := b.pusher.Push(runCtx, parsed.Records)
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}
			logger.Info("pushed identifiers",
				"queue", b.pusher.Name(),
				"pushed", res.Pushed,
				"added", res.Added,
				"duplicates", res.Duplicates,
			)
			renderPushResult(out, b.pusher.Name(), res)
			if !wait {
				return nil
			}

			report, err := engine.Run(runCtx, parsed.Records)
			renderReport(out, report)
			if err != nil {
				return err
			}
			if rerr := report.Err(); rerr != nil {
				fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("The crawler may still be running; retry later with: asinpusher verify -f %s", file)))
				return rerr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Identifier file, one ASIN per line")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Push without asking for confirmation")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait 30s per identifier + 20s, then verify and export")
	vf.register(cmd, false)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
