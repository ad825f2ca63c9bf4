package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/config"
	vizotel "github.com/petal-labs/algoviz/otel"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/server"
)

// Version is reported by telemetry. main sets it from ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "Listen port (default: server.port from config)")
	cmd.Flags().String("host", "", "Listen host (default: server.host from config)")
	cmd.Flags().String("cors-origin", "", "Allowed CORS origin")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database")
	cmd.Flags().String("config", "", "Path to algoviz.yaml")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP trace receiver host:port")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	file, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &file)
	if err := file.Validate(); err != nil {
		return exitError(exitConfig, "%v", err)
	}
	logger := commandLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := vizotel.Setup(ctx, vizotel.TelemetryConfig{
		ServiceName:    "algoviz",
		ServiceVersion: Version,
		OTLPEndpoint:   file.Server.OTLPEndpoint,
		OTLPInsecure:   file.Server.OTLPInsecure,
	})
	if err != nil {
		return exitError(exitServer, "initializing telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(sctx)
	}()

	dsn := sqliteDSN(file.Server.SQLitePath)
	store, err := server.NewSQLiteStore(server.SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		return exitError(exitServer, "opening sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	es, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
		DSN:            dsn,
		RetentionCount: file.Server.EventRetentionCount,
	})
	if err != nil {
		return exitError(exitServer, "opening sqlite event store: %v", err)
	}
	defer func() {
		_ = es.Close()
	}()

	metrics, err := vizotel.NewMetricsHandler(tel.Meter())
	if err != nil {
		return exitError(exitServer, "initializing run metrics: %v", err)
	}
	tracing := vizotel.NewTracingHandler(tel.Tracer())

	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer func() {
		_ = eb.Close()
	}()

	maxBody, _ := cmd.Flags().GetInt64("max-body")
	srv := server.NewServer(server.ServerConfig{
		AuthStore:      store,
		ActivityStore:  store,
		EventStore:     es,
		Bus:            eb,
		RuntimeEvents:  runtime.MultiEventHandler(tracing.Handle, metrics.Handle),
		EmitDecorator:  vizotel.Decorator(tracing),
		Defaults:       &file,
		CORSOrigin:     file.Server.CORSOrigin,
		MaxBody:        maxBody,
		TracerProvider: tel.TracerProvider,
		Logger:         logger,
	})

	maint, err := server.NewMaintenance(server.MaintenanceConfig{
		Schedule:  file.Server.SessionCleanup,
		Sessions:  store,
		Events:    es,
		Retention: file.Server.EventRetention,
		Logger:    logger,
	})
	if err != nil {
		return exitError(exitConfig, "invalid session_cleanup schedule: %v", err)
	}
	maint.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = maint.Stop(sctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /api/metrics", tel.SnapshotHandler())
	mux.Handle("/", srv.Handler())

	// Streams and live sessions hang off baseCtx so shutdown can end them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	addr := net.JoinHostPort(file.Server.Host, fmt.Sprintf("%d", file.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(cmd.OutOrStdout(), "algoviz listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		runsErr := srv.Shutdown(sctx)
		cancelBase()
		return errors.Join(runsErr, httpServer.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return exitError(exitServer, "server error: %v", err)
	}
	return nil
}

// applyServeFlags lets explicit flags win over the config file.
func applyServeFlags(cmd *cobra.Command, file *config.File) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		file.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		file.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		file.Server.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("sqlite-path") {
		file.Server.SQLitePath, _ = flags.GetString("sqlite-path")
	}
	if flags.Changed("otlp-endpoint") {
		file.Server.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
	}
}

// sqliteDSN cleans file paths and leaves file: URIs and :memory: alone.
func sqliteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(strings.ToLower(dsn), "file:") {
		return dsn
	}
	return filepath.Clean(dsn)
}
