// Package main is the entry point for the triad kernel service.
//
// Usage:
//
//	triad [serve] [--config path] [--listen addr]   run the kernel behind the HTTP API
//	triad mcp [--config path]                        run the kernel as an MCP stdio server
//	triad version                                    print version and exit
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/Rogers-F/triad-kernel/internal/bridge"
	"github.com/Rogers-F/triad-kernel/internal/config"
	"github.com/Rogers-F/triad-kernel/internal/guard"
	"github.com/Rogers-F/triad-kernel/internal/ipc"
	"github.com/Rogers-F/triad-kernel/internal/journal"
	"github.com/Rogers-F/triad-kernel/internal/kernel"
	"github.com/Rogers-F/triad-kernel/internal/mcptools"
	"github.com/Rogers-F/triad-kernel/internal/processor"
	"github.com/Rogers-F/triad-kernel/internal/store"
	"github.com/Rogers-F/triad-kernel/internal/supervisor"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultProvider = "default"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		listenAddr  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("triad", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to configuration file (JSON or YAML)")
	flagSet.StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides listen_addr)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	command := "serve"
	if rest := flagSet.Args(); len(rest) > 0 {
		command = rest[0]
	}
	if showVersion || command == "version" {
		fmt.Printf("triad %s (kernel %s, commit=%s, built=%s)\n", version, kernel.Version, commit, date)
		return nil
	}
	if command != "serve" && command != "mcp" {
		return fmt.Errorf("unknown command %q (want serve, mcp or version)", command)
	}

	path, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.start(ctx)

	if command == "mcp" {
		logger.Info("serving MCP on stdio", "config", path)
		return server.ServeStdio(mcptools.NewServer(a.kernel, a.bridge))
	}
	return a.serveHTTP(ctx, cfg.ListenAddr)
}

// app holds the wired kernel service.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *sql.DB
	kernel     *kernel.Kernel
	bridge     *bridge.Bridge
	journal    *journal.Journal
	supervisor *supervisor.Supervisor

	wg sync.WaitGroup
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	proc, err := openProcessor(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Continue the journal's sequence across restarts.
	lastSeq, err := (&store.EventRepo{}).LastSeq(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}

	clk := clockwork.NewRealClock()
	k := kernel.New(kernel.Config{
		Name:                     cfg.Name,
		StepDuration:             cfg.StepDuration(),
		MaxConcurrentProcesses:   cfg.MaxConcurrentProcesses,
		MaxQueueDepth:            cfg.MaxQueueDepth,
		EnableParallelCognition:  cfg.EnableParallelCognition,
		DefaultSalienceThreshold: cfg.DefaultSalienceThreshold,
		EventBuffer:              cfg.EventBuffer,
	}, proc,
		kernel.WithClock(clk),
		kernel.WithLogger(logger),
		kernel.WithSalience(kernel.NewNoveltySalience(*cfg.SalienceExploration, cfg.SalienceMemory)),
		kernel.WithEventSeq(lastSeq),
	)

	g := guard.NewGuard(guard.GuardConfig{RateLimitPerMinute: cfg.RateLimitPerMinute}, clk)
	b := bridge.NewBridge(k, g, bridge.NewStoreOutbox(db), db, cfg.BotIdentity, logger)
	j := journal.New(k, db, logger)
	sup := supervisor.NewSupervisor(k, db, clk, supervisor.SupervisorConfig{
		CheckInterval:   cfg.SupervisorInterval(),
		DispatchTimeout: cfg.DispatchTimeout(),
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		kernel:     k,
		bridge:     b,
		journal:    j,
		supervisor: sup,
	}, nil
}

// openProcessor returns the configured external processor, or the built-in
// echo processor when none is configured.
func openProcessor(cfg *config.Config, logger *slog.Logger) (kernel.Processor, error) {
	if cfg.Processor == nil {
		logger.Info("no processor configured, using built-in echo")
		return processor.Echo{}, nil
	}
	registry := processor.NewProviderRegistry()
	if err := registry.Register(processor.ProviderSpec{
		Name:    defaultProvider,
		Command: cfg.Processor.Command,
		Args:    cfg.Processor.Args,
		Env:     cfg.Processor.Env,
	}); err != nil {
		return nil, fmt.Errorf("register processor: %w", err)
	}
	proc, err := registry.Open(defaultProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("open processor: %w", err)
	}
	return proc, nil
}

// start launches the subscribers, the supervisor and the master clock.
// Subscribers run until the kernel closes its bus, so they drain every
// shutdown event.
func (a *app) start(ctx context.Context) {
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.bridge.Run(context.Background())
	}()
	go func() {
		defer a.wg.Done()
		a.journal.Run(context.Background())
	}()
	go func() {
		defer a.wg.Done()
		if err := a.kernel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("kernel clock stopped", "error", err)
		}
	}()

	if a.cfg.DispatchTimeout() > 0 {
		a.supervisor.StartMonitoring(ctx)
	}
}

func (a *app) serveHTTP(ctx context.Context, listenAddr string) error {
	srv := ipc.NewServer(ipc.NewHandler(a.kernel, a.bridge, a.db), listenAddr)

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown", "error", err)
		}
	}()

	a.logger.Info("triad kernel listening", "url", ipc.FormatListenURL(listenAddr), "name", a.cfg.Name)
	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// close stops the kernel, waits for subscribers to drain and closes the
// database.
func (a *app) close() {
	if a.cfg.DispatchTimeout() > 0 {
		a.supervisor.StopMonitoring()
	}
	a.kernel.Stop()
	a.wg.Wait()
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}
