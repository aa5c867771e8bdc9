package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"asinpusher/common"
	"asinpusher/config"
	"asinpusher/exporter"
	"asinpusher/probes"
	"asinpusher/queue"
	"asinpusher/tunnel"
	"asinpusher/verification"
)

// backends holds the clients a command opened. Fields stay nil for backends the
// command did not ask for.
type backends struct {
	tunnel *tunnel.Tunnel
	db     *common.DB
	s3     *common.S3
	pusher queue.Pusher
}

type backendSet struct {
	queue    bool
	database bool
	storage  bool
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger, want backendSet) (*backends, error) {
	b := &backends{}
	needTunnel := (want.database && cfg.Database.UseTunnel) ||
		(want.queue && cfg.Queue.Backend == "redis" && cfg.Redis.UseTunnel)
	if needTunnel {
		t, err := tunnel.Open(ctx, tunnel.Config{
			Host:           cfg.SSH.Host,
			Port:           cfg.SSH.Port,
			Username:       cfg.SSH.Username,
			PrivateKey:     cfg.SSH.PrivateKey,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open ssh tunnel: %w", err)
		}
		b.tunnel = t
	}

	if want.queue {
		var dial queue.Dialer
		if b.tunnel != nil {
			dial = b.tunnel.DialContext
		}
		p, err := queue.FromConfig(cfg, dial)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pusher = p
	}

	if want.database {
		dbCfg := common.DBConfig{
			Driver:       cfg.Database.Driver,
			DSN:          cfg.Database.DSN,
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Name:         cfg.Database.Name,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		}
		if cfg.Database.UseTunnel && b.tunnel != nil {
			dbCfg.Dial = b.tunnel.DialContext
		}
		db, err := common.OpenDB(ctx, dbCfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		b.db = db
	}

	if want.storage {
		s3, err := common.NewS3(ctx, common.S3Config{
			Endpoint:        cfg.OSS.Endpoint,
			Region:          cfg.OSS.Region,
			AccessKeyID:     cfg.OSS.AccessKeyID,
			AccessKeySecret: cfg.OSS.AccessKeySecret,
			Bucket:          cfg.OSS.Bucket,
			UsePathStyle:    cfg.OSS.UsePathStyle,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open object storage: %w", err)
		}
		b.s3 = s3
	}
	return b, nil
}

func (b *backends) Close() error {
	var errs []error
	if b.pusher != nil {
		errs = append(errs, b.pusher.Close())
	}
	if b.db != nil {
		errs = append(errs, b.db.Close())
	}
	if b.tunnel != nil {
		errs = append(errs, b.tunnel.Close())
	}
	return errors.Join(errs...)
}

func newExporter(cfg *config.Config, db *common.DB, logger *slog.Logger) (*exporter.Exporter, error) {
	return exporter.New(db, exporter.Options{
		Table:            cfg.Database.StatusTable,
		ASINColumn:       cfg.Database.ASINField,
		SiteColumn:       cfg.Database.SiteField,
		UpdateTimeColumn: cfg.Database.UpdateTimeField,
		Dir:              cfg.Export.Dir,
		Logger:           logger,
	})
}

func newDatabaseProbe(cfg *config.Config, db *common.DB) (*probes.DatabaseProbe, error) {
	return probes.NewDatabaseProbe(db, probes.DatabaseOptions{
		Table:            cfg.Database.StatusTable,
		ASINColumn:       cfg.Database.ASINField,
		SiteColumn:       cfg.Database.SiteField,
		UpdateTimeColumn: cfg.Database.UpdateTimeField,
		StatusColumn:     cfg.Database.StatusField,
		DoneValue:        cfg.Database.DoneValue,
		Method:           cfg.Database.VerificationMethod,
		FreshnessWindow:  cfg.FreshnessWindow(),
	})
}

func newProbes(cfg *config.Config, b *backends) ([]probes.Probe, error) {
	dbProbe, err := newDatabaseProbe(cfg, b.db)
	if err != nil {
		return nil, err
	}
	ossProbe, err := probes.NewObjectStoreProbe(b.s3, probes.ObjectStoreOptions{
		MainPattern:   cfg.OSS.MainImagePattern,
		SubPattern:    cfg.OSS.SubImagePattern,
		SubImageCount: cfg.OSS.SubImageCount,
		Mode:          cfg.OSS.ImageMode,
	})
	if err != nil {
		return nil, err
	}
	return []probes.Probe{dbProbe, ossProbe}, nil
}

func newEngine(cfg *config.Config, b *backends, logger *slog.Logger, initialWait bool) (*verification.Engine, error) {
	probeList, err := newProbes(cfg, b)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(cfg, b.db, logger)
	if err != nil {
		return nil, err
	}
	return verification.New(verification.Options{
		Probes: probeList,
		Timeouts: map[string]time.Duration{
			probes.BackendDatabase:      cfg.DBTimeout(),
			probes.BackendObjectStorage: cfg.OSSTimeout(),
		},
		CheckInterval: cfg.CheckInterval(),
		MaxRetries:    cfg.Verification.MaxRetries,
		Workers:       cfg.Verification.Workers,
		ProbeTimeout:  cfg.ProbeTimeout(),
		InitialWait:   initialWait,
		Exporter:      exp,
		Logger:        logger,
	})
}
