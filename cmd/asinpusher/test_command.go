package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"asinpusher/probes"
	"asinpusher/queue"
	"asinpusher/types"
)

type connectivityCheck struct {
	name   string
	target string
	err    error
	took   time.Duration
}

func newTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check connectivity to the queue, database and object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			var checks []connectivityCheck
			run := func(name, target string, fn func(context.Context) error) {
				start := time.Now()
				callCtx, cancel := context.WithTimeout(runCtx, 15*time.Second)
				defer cancel()
				err := fn(callCtx)
				checks = append(checks, connectivityCheck{name: name, target: target, err: err, took: time.Since(start)})
			}

			queueTarget := cfg.Redis.Addr + " " + cfg.Redis.Key
			if cfg.Queue.Backend == "kafka" {
				queueTarget = fmt.Sprintf("%v %s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
			}
			run("queue ("+cfg.Queue.Backend+")", queueTarget, func(c context.Context) error {
				b, err := openBackends(c, cfg, logger, backendSet{queue: true})
				if err != nil {
					return err
				}
				defer b.Close()
				if err := b.pusher.Ping(c); err != nil {
					return err
				}
				if rp, ok := b.pusher.(*queue.RedisPusher); ok {
					n, err := rp.Size(c)
					if err != nil {
						return err
					}
					logger.Info("queue reachable", "key", rp.Key(), "size", n)
				}
				return nil
			})
			run("database ("+cfg.Database.Driver+")", cfg.Database.Host+" "+cfg.Database.StatusTable, func(c context.Context) error {
				b, err := openBackends(c, cfg, logger, backendSet{database: true})
				if err != nil {
					return err
				}
				defer b.Close()
				if err := b.db.PingContext(c); err != nil {
					return err
				}
				probe, err := newDatabaseProbe(cfg, b.db)
				if err != nil {
					return err
				}
				// Any record will do; only a query error matters here.
				res := probe.Check(c, types.Record{Site: types.DefaultSite, ID: "B000000000"})
				if res.Status == probes.StatusError {
					return res.Err
				}
				return nil
			})
			run("object storage", cfg.OSS.Endpoint+" "+cfg.OSS.Bucket, func(c context.Context) error {
				b, err := openBackends(c, cfg, logger, backendSet{storage: true})
				if err != nil {
					return err
				}
				defer b.Close()
				if err := b.s3.Ping(c); err != nil {
					return err
				}
				logger.Info("object storage reachable", "bucket", b.s3.Bucket())
				return nil
			})

			rows := make([][]string, 0, len(checks))
			var failed int
			for _, ch := range checks {
				status := successStyle.Render("ok")
				detail := ""
				if ch.err != nil {
					failed++
					status = errorStyle.Render("failed")
					detail = ch.err.Error()
				}
				rows = append(rows, []string{ch.name, ch.target, status, ch.took.Round(time.Millisecond).String(), detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Backend", "Target", "Status", "Took", "Error"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
			if failed > 0 {
				return fmt.Errorf("%d of %d connectivity checks failed", failed, len(checks))
			}
			return nil
		},
	}
}
