// Command gas-sync is the process entrypoint for the GAS developer control
// plane: flag parsing, logger construction, metrics server, component
// wiring, and a signal-handled run loop. The process is invoked
// synchronously by tool calls; there is no watch loop of its own.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/gasdevtools/gas-sync/internal/config"
	"github.com/gasdevtools/gas-sync/internal/deploy"
	"github.com/gasdevtools/gas-sync/internal/gitbridge"
	"github.com/gasdevtools/gas-sync/internal/infra"
	"github.com/gasdevtools/gas-sync/internal/keyedlock"
	"github.com/gasdevtools/gas-sync/internal/obs"
	"github.com/gasdevtools/gas-sync/internal/pipeline"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/worktree"
	"github.com/gasdevtools/gas-sync/internal/xattrmeta"
)

func defaultLocalRoot() string {
	if v := os.Getenv("GAS_SYNC_LOCAL_ROOT"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gas-repos"
	}
	return filepath.Join(home, "gas-repos")
}

func defaultWorkingDir() string {
	if v := os.Getenv("GAS_SYNC_CONFIG_DIR"); v != "" {
		return v
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// components is every collaborator a tool handler reaches into to perform
// one of the operations this control plane contracts to perform. Built
// once at startup and passed down explicitly - never a package-level
// singleton.
type components struct {
	Config    *config.Store
	ConfigLk  *config.Lock
	Bridge    *gitbridge.Bridge
	Cache     *xattrmeta.Cache
	Pipeline  *pipeline.AtomicWritePipeline
	Infra     *infra.Verifier
	Deploy    *deploy.Manager
	Worktrees *worktree.Manager
}

// wire builds every component this process offers to the tool dispatcher,
// sharing one ScriptClient/DriveClient pair, one config Store/Lock, one
// git Bridge, and one Metrics set across all of them.
func wire(localRoot, workingDir string, logger logr.Logger, metrics *obs.Metrics) *components {
	cfgPath := filepath.Join(workingDir, "gas-config.json")
	store := config.NewStore(cfgPath)
	lock := config.NewLock(cfgPath)
	lock.OnWait = func(seconds float64) {
		metrics.ConfigLockWaitSeconds.Record(context.Background(), seconds)
	}

	script := remote.NewHTTPScriptClient()
	drive := remote.NewHTTPDriveClient()
	bridge := gitbridge.New(logger.WithName("gitbridge"))
	cache := xattrmeta.NewCache()
	locks := keyedlock.New()

	pipe := pipeline.New(script, cache, bridge, logger.WithName("pipeline"))
	pipe.Metrics = metrics

	deployMgr := deploy.New(script, locks, store, logger.WithName("deploy"))
	deployMgr.Metrics = metrics

	worktreeMgr := worktree.New(script, drive, bridge, store, lock, localRoot, logger.WithName("worktree"))
	worktreeMgr.Metrics = metrics
	worktreeMgr.Container.OnHit = func() { obs.IncCounter(context.Background(), metrics.ContainerTypeCacheHits) }
	worktreeMgr.Container.OnMiss = func() { obs.IncCounter(context.Background(), metrics.ContainerTypeCacheMiss) }

	return &components{
		Config:    store,
		ConfigLk:  lock,
		Bridge:    bridge,
		Cache:     cache,
		Pipeline:  pipe,
		Infra:     infra.New(script, logger.WithName("infra")),
		Deploy:    deployMgr,
		Worktrees: worktreeMgr,
	}
}

func main() {
	var (
		localRoot   string
		workingDir  string
		metricsPort int
		development bool
	)
	flag.StringVar(&localRoot, "local-root", defaultLocalRoot(), "Root directory for mirrored GAS project checkouts.")
	flag.StringVar(&workingDir, "config-dir", defaultWorkingDir(), "Directory holding gas-config.json and its lock file.")
	flag.IntVar(&metricsPort, "metrics-port", 8080, "Port the /metrics endpoint listens on.")
	flag.BoolVar(&development, "dev", false, "Use human-readable development logging instead of production JSON logging.")
	flag.Parse()

	logger, syncLogger, err := obs.NewLogger(development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer syncLogger()
	setupLog := logger.WithName("setup")

	if err := os.MkdirAll(localRoot, 0o750); err != nil {
		setupLog.Error(err, "failed to create local root", "localRoot", localRoot)
		os.Exit(1)
	}

	metrics, metricsHandler, err := obs.NewMetrics()
	if err != nil {
		setupLog.Error(err, "failed to initialize metrics")
		os.Exit(1)
	}

	comps := wire(localRoot, workingDir, logger, metrics)
	setupLog.Info("component wiring complete", "localRoot", localRoot, "configDir", workingDir)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", metricsPort), Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		setupLog.Info("starting metrics server", "port", metricsPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "metrics server failed")
		}
	}()

	// The tool dispatcher holds comps and calls into
	// its fields per invocation; this process just keeps them alive and
	// serves /metrics until asked to stop.
	_ = comps

	<-ctx.Done()
	setupLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		setupLog.Error(err, "metrics server shutdown did not complete cleanly")
	}
}
