package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbias/ndbpool/internal/config"
	"github.com/rbias/ndbpool/internal/driver"
	"github.com/rbias/ndbpool/internal/eventlog"
	"github.com/rbias/ndbpool/internal/health"
	"github.com/rbias/ndbpool/internal/mcpserver"
	"github.com/rbias/ndbpool/internal/pool"
	"github.com/rbias/ndbpool/internal/reporting"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	BuildTime = "unknown"

	connectionString string
	nodeID           int
	logLevel         string
	healthAddr       string
	mcpAddr          string
	simulate         bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ndbpoolsrv",
	Short: "ndbpoolsrv - clustered-database connection pool",
	Long:  "Fronts a clustered-database connection with an elastic handle pool and a reconnect coordinator",
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.Flags().StringVar(&connectionString, "connection-string", "", "Cluster connection string (overrides NDBPOOL_CONNECTION_STRING)")
	rootCmd.Flags().IntVar(&nodeID, "node-id", 0, "Client node id (overrides NDBPOOL_NODE_ID)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.Flags().StringVar(&healthAddr, "health-addr", "", "Health server bind address, empty to disable (overrides NDBPOOL_HEALTH_ADDR)")
	rootCmd.Flags().StringVar(&mcpAddr, "mcp-addr", "", "MCP tool server bind address, empty to disable (overrides NDBPOOL_MCP_ADDR)")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "Use the in-memory simulated driver instead of a real cluster driver")
}

func run(cmd *cobra.Command, args []string) error {
	versionFlag, _ := cmd.Flags().GetBool("version")
	if versionFlag {
		fmt.Printf("ndbpoolsrv version %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	tuning, err := config.LoadTuning()
	if err != nil {
		return fmt.Errorf("failed to load tuning configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)
	printStartupBanner(cfg)

	if !simulate {
		slog.Warn("no real cluster driver is wired in this build; forcing --simulate", "reason", "driver.Simulated is the only available driver.Connector")
		simulate = true
	}

	var connector driver.Connector = &driver.Simulated{}

	retries, retryDelay, clusterReadyTimeout, nodeReadyCheckUnits, drainPoll, drainCap := tuning.PoolOptions()
	p := pool.New(cfg.ConnectionString, cfg.NodeID, connector, pool.Options{
		ConnectRetries:             retries,
		ConnectRetryDelaySeconds:   retryDelay,
		ClusterReadyTimeoutSeconds: clusterReadyTimeout,
		NodeReadyCheckUnits:        nodeReadyCheckUnits,
		DrainPollIntervalMS:        drainPoll,
		DrainCapSeconds:            drainCap,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	eventStore, err := eventlog.NewStore(ctx, eventlog.Config{Driver: cfg.EventLogDriver, DSN: cfg.EventLogDSN})
	if err != nil {
		return fmt.Errorf("failed to initialize event log: %w", err)
	}
	defer eventStore.Close()

	breaker := reporting.NewCircuitBreaker(tuning.Reconnect.FailureThreshold, tuning)
	p.SetReconnectObserver(breaker)
	p.SetEventSink(&eventSinkAdapter{store: eventStore, nodeID: cfg.NodeID})

	connectCtx, connectCancel := context.WithTimeout(ctx, time.Duration(tuning.Connect.ClusterReadyTimeoutSecs+5)*time.Second)
	defer connectCancel()
	status := p.Connect(connectCtx)
	if !status.OK() {
		_ = eventStore.RecordEvent(ctx, eventlog.NewEvent(cfg.NodeID, eventlog.KindConnectFailed, status.Message))
		return fmt.Errorf("initial connect failed: %s", status.Message)
	}
	_ = eventStore.RecordEvent(ctx, eventlog.NewEvent(cfg.NodeID, eventlog.KindConnectSucceeded, "initial connect succeeded"))

	if cfg.HealthAddr != "" {
		healthServer := health.NewServer(p, cfg.NodeID, breaker, cfg.HealthAddr)
		go func() {
			slog.Info("starting health server", "address", cfg.HealthAddr)
			if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("health server failed", "error", err)
			}
		}()
	} else {
		slog.Info("health server disabled", "reason", "health-addr empty")
	}

	if cfg.MCPAddr != "" {
		mcpSrv := mcpserver.NewServer(p, cfg.MCPAddr)
		go func() {
			slog.Info("starting mcp tool server", "address", cfg.MCPAddr)
			if err := mcpSrv.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("mcp tool server failed", "error", err)
			}
		}()
	} else {
		slog.Info("mcp tool server disabled", "reason", "mcp-addr empty")
	}

	<-ctx.Done()
	slog.Info("shutting down pool")
	_ = eventStore.RecordEvent(context.Background(), eventlog.NewEvent(cfg.NodeID, eventlog.KindShutdown, "process shutdown requested"))
	p.Shutdown(true)
	archiveEventLog(cfg, eventStore)
	slog.Info("shutdown complete")
	return nil
}

// eventSinkAdapter forwards pool lifecycle events into the event log,
// translating the pool's string-typed EventSink kinds into eventlog.Kind
// directly since the two constant sets are defined to match.
type eventSinkAdapter struct {
	store  eventlog.Store
	nodeID int
}

func (a *eventSinkAdapter) Record(kind, message string) {
	err := a.store.RecordEvent(context.Background(), eventlog.NewEvent(a.nodeID, eventlog.Kind(kind), message))
	if err != nil {
		slog.Warn("event log: failed to record pool event", "kind", kind, "error", err)
	}
}

// archiveEventLog exports the event trail to Azure blob storage on
// terminal shutdown when both archive settings are configured. It uploads
// what ListEvents returns with no limit: every event for the filesystem
// store, but only the 100 most recent rows for the SQL stores. Archival
// failure is logged, not fatal — the live store remains the source of
// truth regardless.
func archiveEventLog(cfg *config.Config, store eventlog.Store) {
	if cfg.ArchiveConnectionString == "" || cfg.ArchiveContainer == "" {
		return
	}

	archiver, err := eventlog.NewArchiver(cfg.ArchiveConnectionString, cfg.ArchiveContainer)
	if err != nil {
		slog.Error("event log archive: failed to build archiver", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, err := store.ListEvents(ctx, 0)
	if err != nil {
		slog.Error("event log archive: failed to list events", "error", err)
		return
	}

	if err := archiver.ArchiveSnapshot(ctx, cfg.NodeID, events); err != nil {
		slog.Error("event log archive: snapshot upload failed", "error", err)
		return
	}
	slog.Info("event log archive: snapshot uploaded", "node_id", cfg.NodeID, "count", len(events), "container", cfg.ArchiveContainer)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("connection-string") {
		cfg.ConnectionString = connectionString
	}
	if cmd.Flags().Changed("node-id") {
		cfg.NodeID = nodeID
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("health-addr") {
		cfg.HealthAddr = healthAddr
	}
	if cmd.Flags().Changed("mcp-addr") {
		cfg.MCPAddr = mcpAddr
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func printStartupBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║  ndbpoolsrv - cluster connection pool                          ║")
	fmt.Printf("║  Version: %-54s ║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Node ID:      %-49d ║\n", cfg.NodeID)
	fmt.Printf("║  Health Addr:  %-49s ║\n", fallback(cfg.HealthAddr, "(disabled)"))
	fmt.Printf("║  MCP Addr:     %-49s ║\n", fallback(cfg.MCPAddr, "(disabled)"))
	fmt.Printf("║  Event Log:    %-49s ║\n", cfg.EventLogDriver)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
