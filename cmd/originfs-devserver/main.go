// originfs-devserver runs a local copy of the remote record store for
// development and integration tests.
//
// Features:
// - path-index, by-uuid and batch endpoints
// - in-memory or PostgreSQL storage
// - HS256 bearer tokens
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/originfs/originfs/internal/config"
	"github.com/originfs/originfs/internal/devserver"
	"github.com/originfs/originfs/internal/logging"
	"github.com/originfs/originfs/internal/metrics"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "originfs-devserver",
		Short:         "Development remote record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), tokenCmd(), seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Server, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return nil, fmt.Errorf("logging init error: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the store protocol over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Sync()

			logging.Info("originfs dev server starting...",
				zap.String("listen", cfg.ListenAddr),
				zap.String("metrics", cfg.MetricsAddr))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var store devserver.Store
			if cfg.DatabaseURL == "" {
				logging.Info("using in-memory store")
				store = devserver.NewMemoryStore()
			} else {
				pg, err := devserver.NewPostgresStore(cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("connect database: %w", err)
				}
				if err := pg.Migrate(ctx); err != nil {
					pg.Close()
					return fmt.Errorf("migrate database: %w", err)
				}
				logging.Info("connected to database")
				store = pg
			}
			defer store.Close()

			srv := devserver.NewServer(store, devserver.NewAuth(cfg.JWTSecret))

			metricsServer := &http.Server{
				Addr:    cfg.MetricsAddr,
				Handler: metrics.Handler(),
			}
			go func() {
				logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
				if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
					logging.Error("metrics server error", zap.Error(err))
				}
			}()

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh
				logging.Info("shutting down...")
				cancel()
				shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
				defer done()
				httpServer.Shutdown(shutdownCtx)
				metricsServer.Close()
			}()

			logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Mint a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.TokenTTL
			}
			token, exp, err := devserver.NewAuth(cfg.JWTSecret).IssueToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default TOKEN_TTL)")
	return cmd
}
