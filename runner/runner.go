// Package runner wires the mapping catalog, processor, router and source
// into a running service and owns its lifecycle.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	kithttputil "github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	svcMetric "github.com/rudderlabs/rudder-go-kit/stats/metric"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/cefstream/cefstream/cef"
	"github.com/cefstream/cefstream/jsonrs"
	"github.com/cefstream/cefstream/mapping"
	"github.com/cefstream/cefstream/processor"
	"github.com/cefstream/cefstream/router"
	"github.com/cefstream/cefstream/router/collector"
	"github.com/cefstream/cefstream/router/syslog"
	"github.com/cefstream/cefstream/rruntime"
	"github.com/cefstream/cefstream/source"
	"github.com/cefstream/cefstream/utils/crash"
)

// ReleaseInfo holds the release information
type ReleaseInfo struct {
	Version   string
	Commit    string
	BuildDate string
	BuiltBy   string
}

// Runner is responsible for running the application
type Runner struct {
	releaseInfo             ReleaseInfo
	logger                  logger.Logger
	gracefulShutdownTimeout time.Duration
}

// New creates and initializes a new Runner
func New(releaseInfo ReleaseInfo) *Runner {
	return &Runner{
		releaseInfo:             releaseInfo,
		logger:                  logger.NewLogger().Child("runner"),
		gracefulShutdownTimeout: config.GetDuration("GracefulShutdownTimeout", 15, time.Second),
	}
}

// engine pairs a catalog with the generator derived from it, so a reload
// swaps both atomically and in-flight batches keep the pair they started
// with.
type engine struct {
	catalog   *mapping.Catalog
	generator *cef.Generator
}

type engineHolder struct {
	log     logger.Logger
	current atomic.Pointer[engine]
}

func (h *engineHolder) Engine() (*mapping.Catalog, *cef.Generator) {
	e := h.current.Load()
	return e.catalog, e.generator
}

func (h *engineHolder) swap(catalog *mapping.Catalog) {
	h.current.Store(&engine{catalog: catalog, generator: cef.New(catalog, h.log)})
}

// Run runs the application and returns the exit code
func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) > 1 && (args[1] == "version" || args[1] == "--version") {
		r.printVersion()
		return 0
	}

	path, err := config.Default.ConfigFileUsed()
	if err != nil {
		r.logger.Warnn("no config file loaded, using default values",
			logger.NewStringField("path", path), obskit.Error(err))
	} else {
		r.logger.Infon("using config file", logger.NewStringField("path", path))
	}

	statsOptions := []stats.Option{
		stats.WithServiceName("cefstream"),
		stats.WithServiceVersion(r.releaseInfo.Version),
		stats.WithDefaultHistogramBuckets(defaultHistogramBuckets),
	}
	for histogramName, buckets := range customBuckets {
		statsOptions = append(statsOptions, stats.WithHistogramBuckets(histogramName, buckets))
	}
	stats.Default = stats.NewStats(config.Default, logger.Default, svcMetric.Instance, statsOptions...)
	if err := stats.Default.Start(ctx, rruntime.GoRoutineFactory); err != nil {
		r.logger.Errorn("failed to start stats", obskit.Error(err))
		return 1
	}

	crash.Configure(r.logger, crash.PanicWrapperOpts{
		ReleaseStage: config.GetString("GO_ENV", "development"),
		AppType:      "cefstream",
		AppVersion:   r.releaseInfo.Version,
	})
	defer crash.Notify("Core")()

	stats.Default.NewTaggedStat("cefstream_config",
		stats.GaugeType,
		stats.Tags{
			"version":   r.releaseInfo.Version,
			"commit":    r.releaseInfo.Commit,
			"buildDate": r.releaseInfo.BuildDate,
			"builtBy":   r.releaseInfo.BuiltBy,
		}).Gauge(1)

	if err := router.ValidateConfig(config.Default); err != nil {
		r.logger.Errorn("invalid delivery configuration", obskit.Error(err))
		return 1
	}

	mappingPath := config.GetString("Mapping.path", "mapping.json")
	raw, err := os.ReadFile(mappingPath)
	if err != nil {
		r.logger.Errorn("unable to read the mapping document",
			logger.NewStringField("path", mappingPath), obskit.Error(err))
		return 1
	}
	catalog, err := mapping.Load(raw, r.logger)
	if err != nil {
		r.logger.Errorn("invalid mapping document",
			logger.NewStringField("path", mappingPath), obskit.Error(err))
		return 1
	}
	engines := &engineHolder{log: r.logger}
	engines.swap(catalog)

	proc, err := processor.New(config.Default, r.logger, stats.Default, engines)
	if err != nil {
		r.logger.Errorn("unable to set up the processor", obskit.Error(err))
		return 1
	}

	dest, err := r.destination(config.Default)
	if err != nil {
		r.logger.Errorn("unable to set up the destination", obskit.Error(err))
		return 1
	}
	rt := router.New(config.Default, r.logger, stats.Default, dest)
	defer func() { _ = rt.Close() }()

	if config.GetBool("Router.pingOnStartup", true) {
		pingCtx, cancel := context.WithTimeout(ctx, config.GetDuration("Router.pingTimeout", 30, time.Second))
		err := rt.Ping(pingCtx)
		cancel()
		if err != nil {
			r.logger.Errorn("destination is not reachable", obskit.Error(err))
			return 1
		}
	}

	src, err := source.NewNDJSON(source.NDJSONConfigFromConf(config.Default), r.logger)
	if err != nil {
		r.logger.Errorn("unable to open the source", obskit.Error(err))
		return 1
	}
	defer func() { _ = src.Close() }()

	// the derived context also ends the helper goroutines once the source
	// drains, not just on a signal
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	if config.GetBool("Mapping.watch", true) {
		g.Go(crash.Wrapper(func() error {
			return mapping.WatchFile(gCtx, mappingPath, r.logger,
				config.GetDuration("Mapping.reloadDebounce", 500, time.Millisecond),
				engines.swap)
		}))
	}

	if config.GetBool("Diagnostics.enabled", true) {
		g.Go(crash.Wrapper(func() error {
			return r.serveDiagnostics(gCtx)
		}))
	}

	g.Go(crash.Wrapper(func() error {
		defer stop()
		return r.pump(gCtx, src, proc, rt)
	}))

	shutdownDone := make(chan struct{})
	var runErr error
	go func() {
		runErr = g.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-ctx.Done():
		ctxDoneTime := time.Now()
		select {
		case <-shutdownDone:
			r.logger.Infon("graceful termination",
				logger.NewDurationField("after", time.Since(ctxDoneTime)),
				logger.NewIntField("goroutines", int64(runtime.NumGoroutine())),
			)
		case <-time.After(r.gracefulShutdownTimeout):
			r.logger.Errorn("graceful termination failed, goroutine dump follows",
				logger.NewDurationField("after", time.Since(ctxDoneTime)),
			)
			fmt.Print("\n\n")
			_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
			fmt.Print("\n\n")
			logger.Sync()
			stats.Default.Stop()
			return 1
		}
	}

	exitCode := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		r.logger.Errorn("terminal error", obskit.Error(runErr))
		exitCode = 1
	}
	logger.Sync()
	stats.Default.Stop()
	return exitCode
}

// pump moves batches from the source through the processor to the router
// until the source drains or ctx is done. Delivery failures are already
// counted and logged by the router, they do not end the run.
func (r *Runner) pump(ctx context.Context, src source.Source, proc *processor.Handle, rt *router.Handle) error {
	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.logger.Infon("source drained")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading source: %w", err)
		}

		resp := proc.Transform(ctx, batch)
		if resp.Err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transforming batch %s: %w", resp.BatchID, resp.Err)
		}
		if len(resp.Events) == 0 {
			continue
		}
		if err := rt.Deliver(ctx, resp.Events); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Runner) destination(conf *config.Config) (router.Destination, error) {
	switch dest := conf.GetString("Router.destination", router.DestinationSyslog); dest {
	case router.DestinationSyslog:
		return syslog.NewDestination(syslog.ConfigFromConf(conf), r.logger)
	case router.DestinationCollector:
		return collector.NewDestination(collector.ConfigFromConf(conf), r.logger)
	default:
		return nil, fmt.Errorf("unknown destination %q", dest)
	}
}

func (r *Runner) serveDiagnostics(ctx context.Context) error {
	srvMux := chi.NewRouter()
	srvMux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"server":"UP"}`))
	})
	srvMux.Get("/version", r.versionHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.GetInt("Diagnostics.webPort", 8090)),
		Handler:           crash.Handler(srvMux),
		ReadHeaderTimeout: config.GetDuration("Diagnostics.readerHeaderTimeout", 3, time.Second),
	}
	return kithttputil.ListenAndServe(ctx, srv)
}

func (r *Runner) versionInfo() map[string]interface{} {
	return map[string]interface{}{
		"Version":   r.releaseInfo.Version,
		"Commit":    r.releaseInfo.Commit,
		"BuildDate": r.releaseInfo.BuildDate,
		"BuiltBy":   r.releaseInfo.BuiltBy,
	}
}

func (r *Runner) versionHandler(w http.ResponseWriter, _ *http.Request) {
	version := r.versionInfo()
	versionFormatted, _ := jsonrs.Marshal(&version)
	_, _ = w.Write(versionFormatted)
}

func (r *Runner) printVersion() {
	version := r.versionInfo()
	versionFormatted, _ := jsonrs.MarshalIndent(&version, "", " ")
	fmt.Printf("Version Info %s\n", versionFormatted)
}
