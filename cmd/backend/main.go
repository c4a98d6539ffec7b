package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stream-file-server/internal/config"
	"stream-file-server/internal/db"
	"stream-file-server/internal/log"
	"stream-file-server/internal/server"
	"stream-file-server/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 5 * time.Second

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configFile string
	addr       string
	root       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "stream-file-server",
		Short: "Serve and accept files over HTTP without buffering them in memory.",
		Long: `stream-file-server exposes a small HTTP API:

  GET  /file/<name>   stream a stored file
  POST /upload        store the request body as file.<subtype>
  GET  /frontend      the upload page
  GET  /health        storage and database health
  GET  /metrics       Prometheus metrics

Configuration comes from --config (YAML), then SFS_* environment variables,
then the flags below.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&f.configFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (overrides SFS_ADDR)")
	cmd.Flags().StringVar(&f.root, "root", "", "storage root for the local backend (overrides SFS_ROOT)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides SFS_LOG_LEVEL)")
	return cmd
}

// loadConfig merges file, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("addr") {
		cfg.Addr = f.addr
	}
	if cmd.Flags().Changed("root") {
		cfg.Root = f.root
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	log.Init(
		log.WithLevelString(cfg.Log.Level),
		log.WithJSON(cfg.Log.Format == "json"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, local, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	var ledger server.Ledger
	if cfg.DatabaseURL != "" {
		dbConn, err := openLedgerDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = dbConn.Close() }()
		ledger = db.NewLedger(dbConn)
	}

	if local != nil {
		go server.StartCleanupJob(ctx, server.CleanupConfig{
			Interval: cfg.Cleanup.Interval,
			MaxAge:   cfg.Cleanup.MaxAge,
			Sweeper:  local,
		})
	}

	build := getenvDefault("SFS_VERSION", version)
	srv := server.New(server.Config{
		Addr:              cfg.Addr,
		Version:           build,
		Frontend:          cfg.Frontend,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		IdleTimeout:       cfg.IdleTimeout,
		ContentTypePolicy: cfg.ContentTypePolicy,
		UploadsPerMinute:  cfg.UploadRatePerMinute,
		Store:             backend,
		Ledger:            ledger,
	})

	// Start the HTTP server in a background goroutine so we can wait for
	// OS signals while it runs.
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting addr=%s storage=%s version=%s", cfg.Addr, backend.Kind(), build)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("shutting down signal=%s", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Infof("shutdown complete")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

// openStore builds the configured backend. The local store is also
// returned on its own so the sweeper can clean its temp files.
func openStore(ctx context.Context, cfg config.Config) (store.Backend, *store.Local, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		s3, err := store.NewS3(ctx, store.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Bucket:    cfg.Storage.S3.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewGuarded(s3, store.NewCircuitBreaker(breakerFailures, breakerTimeout)), nil, nil
	default:
		local, err := store.NewLocal(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

func openLedgerDB(url string) (*sql.DB, error) {
	dbConn, err := db.OpenDB(url)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Infof("running migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return dbConn, nil
}

// getenvDefault reads an environment variable and returns a default value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
