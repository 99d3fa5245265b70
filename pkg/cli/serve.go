package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockidp/mockidp/pkg/config"
	"github.com/mockidp/mockidp/pkg/logging"
	"github.com/mockidp/mockidp/pkg/provider"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	configFile string
	host       string
	port       int
	issuer     string
	logLevel   string
	logFormat  string
}

var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity provider (foreground)",
	Long: `Start the identity provider server. Settings come from the configuration
file if one is given, with flags overriding individual values.`,
	Example: `  # Start with defaults on :8080
  mockidp serve

  # Start with a config file on a custom port
  mockidp serve --config idp.yaml --port 3000

  # Pin the issuer URL (useful behind a reverse proxy)
  mockidp serve --issuer https://idp.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, &serveFlagVals)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	serveCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to configuration file (YAML or JSON)")
	serveCmd.Flags().StringVar(&f.host, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVarP(&f.port, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&f.issuer, "issuer", "", "Pinned issuer URL (overrides config)")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text or json (overrides config)")
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	settings := config.Default()
	if f.configFile != "" {
		loaded, err := config.LoadFromFile(f.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}

	if cmd.Flags().Changed("host") {
		settings.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		settings.Port = f.port
	}
	if cmd.Flags().Changed("issuer") {
		settings.Issuer = f.issuer
	}
	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		settings.LogFormat = f.logFormat
	}

	logger := logging.New(settings.LogLevel, settings.LogFormat, os.Stderr)

	p, err := provider.New(settings, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	provider.NewHandler(p, logger).Register(mux)

	srv := &http.Server{
		Addr:              settings.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identity provider listening",
			"addr", settings.Addr(),
			"issuer", settings.Issuer,
			"static_users", len(settings.Users))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
