// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// pvremux converts PVR recordings into MPEG transport streams.
//
// Usage:
//
//	pvremux [flags] recording...
//
// Signals:
//   - SIGINT, SIGTERM: cancel all jobs
//   - SIGUSR1: toggle pause (unix)
//   - SIGUSR2: cycle the scheduling priority (unix)
//
// Exit codes:
//   - 0: every recording was remuxed
//   - 1: at least one recording failed
//   - 2: usage or configuration error
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/coordinator"
	"github.com/ManuGH/pvremux/internal/domain/recording"
	xglog "github.com/ManuGH/pvremux/internal/log"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/ManuGH/pvremux/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	defaultJobs = 1
)

type options struct {
	configPath  string
	profile     string
	format      string
	language    string
	workDir     string
	keyFile     string
	priority    string
	metricsFile string
	jobs        int
	showVersion bool
	sources     []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("pvremux", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&o.profile, "profile", "", "parameter profile name")
	fs.StringVar(&o.format, "format", "", "force the format class (generic_ts, legacy_dvr, broadcast_wrapper, encrypted_recorder)")
	fs.StringVar(&o.language, "lang", "", "preferred audio language")
	fs.StringVar(&o.workDir, "workdir", "", "directory for intermediate and output files (default: a new pvremux-<base>-* directory next to each recording)")
	fs.StringVar(&o.keyFile, "key-file", "", "file holding the decryption key for encrypted recordings")
	fs.StringVar(&o.priority, "priority", "normal", "initial priority (normal, below_normal, low, idle)")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus text metrics to this file on exit")
	fs.IntVar(&o.jobs, "jobs", defaultJobs, "recordings converted in parallel")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.sources = fs.Args()
	if o.showVersion {
		return o, nil
	}
	if len(o.sources) == 0 {
		return o, errors.New("at least one recording is required")
	}
	if o.jobs < 1 {
		return o, fmt.Errorf("-jobs must be positive, got %d", o.jobs)
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitUsage
	}
	if o.showVersion {
		fmt.Fprintf(stdout, "%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return exitOK
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "pvremux", Version: version.Version})
	logger := xglog.WithComponent("cli")

	cfg, err := config.NewLoader(o.configPath).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitUsage
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: "pvremux", Version: version.Version})
	logger = xglog.WithComponent("cli")

	template, err := jobTemplate(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	prio, err := supervisor.ParsePriority(o.priority)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl := supervisor.NewJobControl()
	ctl.SetPriority(prio)
	stopSignals := watchControlSignals(ctx, ctl, logger)
	defer stopSignals()

	c := coordinator.NewFromConfig(cfg, xglog.Base())
	results := runJobs(ctx, c, template, o.sources, o.jobs, ctl)

	code := exitOK
	for _, r := range results {
		if r.err != nil {
			code = exitFailed
			fmt.Fprintf(stderr, "FAILED\t%s\t%v\n", r.source, r.err)
			continue
		}
		fmt.Fprintf(stdout, "OK\t%s\t%s\t%s\n", r.source, r.result.Strategy, r.result.Path)
	}

	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(o.metricsFile, prometheus.DefaultGatherer); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, o.metricsFile).Msg("failed to write metrics file")
		}
	}
	return code
}

// jobTemplate carries the flags shared by every recording.
func jobTemplate(o options) (recording.Job, error) {
	job := recording.Job{
		WorkDir:       o.workDir,
		AudioLanguage: o.language,
		Profile:       o.profile,
	}
	if o.format != "" {
		f, err := recording.ParseFormatClass(o.format)
		if err != nil {
			return job, err
		}
		job.Format = f
	}
	if o.keyFile != "" {
		b, err := os.ReadFile(o.keyFile)
		if err != nil {
			return job, fmt.Errorf("read key file: %w", err)
		}
		job.DecryptionKey = strings.TrimSpace(string(b))
	}
	return job, nil
}

type remuxer interface {
	Remux(ctx context.Context, job recording.Job, ctl *supervisor.JobControl) (recording.Result, error)
}

type jobResult struct {
	source string
	result recording.Result
	err    error
}

// runJobs converts sources with at most limit jobs in flight. Results keep
// the order of sources. A failed job does not stop the others.
func runJobs(ctx context.Context, rx remuxer, template recording.Job, sources []string, limit int, ctl *supervisor.JobControl) []jobResult {
	results := make([]jobResult, len(sources))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range sources {
		g.Go(func() error {
			job := template
			job.SourcePath = src
			res, err := rx.Remux(ctx, job, ctl)
			results[i] = jobResult{source: src, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
