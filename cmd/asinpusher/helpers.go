package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"asinpusher/config"
	"asinpusher/identifiers"
	"asinpusher/runlock"
)

// verificationFlags override [verification] values when set on the command line.
type verificationFlags struct {
	checkInterval int
	dbTimeout     int
	ossTimeout    int
	maxRetries    int
}

func (f *verificationFlags) register(cmd *cobra.Command, withTimeouts bool) {
	cmd.Flags().IntVar(&f.checkInterval, "check-interval", int(config.DefaultCheckInterval.Seconds()), "Seconds between verification checks")
	if !withTimeouts {
		return
	}
	cmd.Flags().IntVar(&f.dbTimeout, "db-timeout", int(config.DefaultDBTimeout.Seconds()), "Seconds to poll the database")
	cmd.Flags().IntVar(&f.ossTimeout, "oss-timeout", int(config.DefaultOSSTimeout.Seconds()), "Seconds to poll object storage")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", config.DefaultMaxRetries, "Retries per backend after a probe error")
}

func (f *verificationFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("check-interval") {
		cfg.Verification.CheckInterval = f.checkInterval
	}
	if flags.Lookup("db-timeout") != nil && flags.Changed("db-timeout") {
		cfg.Verification.DBTimeout = f.dbTimeout
	}
	if flags.Lookup("oss-timeout") != nil && flags.Changed("oss-timeout") {
		cfg.Verification.OSSTimeout = f.ossTimeout
	}
	if flags.Lookup("max-retries") != nil && flags.Changed("max-retries") {
		cfg.Verification.MaxRetries = f.maxRetries
	}
	return cfg.Validate()
}

func loadRecords(out io.Writer, path string) (*identifiers.Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("an identifier file is required (--file)")
	}
	res, err := identifiers.ParseFile(path)
	if err != nil {
		return nil, err
	}
	renderParseResult(out, res)
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("no valid identifiers in %s", path)
	}
	return res, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func acquireRunLock() (*runlock.Lock, error) {
	return runlock.Acquire(config.LockFile)
}
