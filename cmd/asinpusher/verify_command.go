package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var file string
	var exportPartial bool
	var vf verificationFlags

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Poll the database and object storage until identifiers are crawled",
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

			lock, err := acquireRunLock()
			if err != nil {
				return err
			}
			defer lock.Release()

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			b, err := openBackends(runCtx, cfg, logger, backendSet{database: true, storage: true})
			if err != nil {
				return err
			}
			defer b.Close()

			engine, err := newEngine(cfg, b, logger, false)
			if err != nil {
				return err
			}
			report, err := engine.Run(runCtx, parsed.Records)
			renderReport(out, report)
			if err != nil {
				return err
			}

			if exportPartial && !report.AllVerified() && report.Verified > 0 {
				summary, err := engine.ExportVerified(cmd.Context(), report)
				renderExportSummary(out, summary)
				if err != nil {
					return fmt.Errorf("export verified: %w", err)
				}
			}
			return report.Err()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Identifier file, one ASIN per line")
	cmd.Flags().BoolVar(&exportPartial, "export-verified", false, "Export verified records even when the batch is incomplete")
	vf.register(cmd, true)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
