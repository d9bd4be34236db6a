package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/driftsync/internal/diag"
	"github.com/mcoot/driftsync/internal/factory"
	"github.com/mcoot/driftsync/internal/server"
)

type options struct {
	port        int
	certFile    string
	keyFile     string
	diagAddr    string
	idleTimeout time.Duration
	logLevel    string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "driftsync-server",
		Short: "Real-time multiplayer state synchronization server",
		Long: `driftsync-server accepts TLS connections from game clients and keeps
their movement state synchronized through incremental location updates
with a gap-free resynchronization guarantee.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().IntVarP(&opts.port, "port", "p", 8140, "Port to listen on")
	rootCmd.Flags().StringVar(&opts.certFile, "cert", "build/server.crt", "TLS certificate file")
	rootCmd.Flags().StringVar(&opts.keyFile, "key", "build/server.key", "TLS private key file")
	rootCmd.Flags().StringVar(&opts.diagAddr, "diag-addr", "127.0.0.1:8141", "Diagnostics HTTP address (empty to disable)")
	rootCmd.Flags().DurationVar(&opts.idleTimeout, "idle-timeout", 5*time.Minute, "Idle session timeout")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts *options) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(opts.logLevel),
	}))
	slog.SetDefault(logger)

	serverCfg := server.DefaultConfig()
	serverCfg.IdleTimeout = opts.idleTimeout

	app := factory.New(factory.Config{
		Logger:       logger,
		ServerConfig: serverCfg,
	})

	ln, err := listenTLS(opts.port, opts.certFile, opts.keyFile)
	if err != nil {
		return err
	}
	logger.Info("server started",
		slog.Int("port", opts.port),
		slog.String("cert", opts.certFile))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go app.Server.RunIdleCleanup(ctx)

	var diagServer *diag.Server
	if opts.diagAddr != "" {
		diagServer = diag.NewServer(opts.diagAddr, diag.NewRouter(diag.RouterConfig{
			Logger:   logger,
			Registry: app.Registry,
			Players:  app.Players,
			Accounts: app.Accounts,
			Chat:     app.Chat,
			Log:      app.LocationLog,
		}), logger)
		go func() {
			if err := diagServer.Start(); err != nil {
				logger.Error("diagnostics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	err = app.Server.Serve(ctx, ln)

	if diagServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if shutdownErr := diagServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("diagnostics shutdown error", slog.String("error", shutdownErr.Error()))
		}
	}

	logger.Info("server stopped")
	return err
}

// listenTLS loads the server keypair and opens the encrypted listener.
// Everything past this point consumes plain net.Conn values.
func listenTLS(port int, certFile, keyFile string) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", port), cfg)
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return ln, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
