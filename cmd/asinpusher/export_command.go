package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export database rows for identifiers to result/{SITE}-{ASIN}.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
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

			b, err := openBackends(runCtx, cfg, logger, backendSet{database: true})
			if err != nil {
				return err
			}
			defer b.Close()

			exp, err := newExporter(cfg, b.db, logger)
			if err != nil {
				return err
			}
			summary, err := exp.Export(runCtx, parsed.Records)
			renderExportSummary(out, summary)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if len(summary.Written) == 0 {
				return fmt.Errorf("no rows exported for %d identifiers", len(parsed.Records))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Identifier file, one ASIN per line")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
