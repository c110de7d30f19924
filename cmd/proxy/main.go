package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caredai/daytona/internal/logging"
	"github.com/caredai/daytona/pkg/daytona/client"
	"github.com/caredai/daytona/pkg/metrics"
	"github.com/caredai/daytona/pkg/proxy"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	var development bool

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Authenticating preview proxy for Daytona sandboxes",
		Long: "proxy terminates sandbox preview traffic: it resolves the path token " +
			"and request credentials into a validated sandbox id, issues short-lived " +
			"auth cookies, and forwards authenticated requests to the sandbox.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(development)
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging")
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("proxy %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	})

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(development bool) error {
	logger, err := logging.NewLogger(development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Sugar().Infow("starting preview proxy", "version", Version, "commit", Commit)

	cfg, err := proxy.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Preview requests are interactive; a failed validation surfaces to
	// the client immediately instead of retrying
	retry := client.NoRetryConfig()
	apiClient, err := client.New(cfg.DaytonaAPIURL, cfg.DaytonaAPIKey, &client.Options{
		Logger:      logger,
		RetryConfig: &retry,
	})
	if err != nil {
		return fmt.Errorf("failed to create Daytona API client: %w", err)
	}

	metrics.RegisterMetrics()

	p, err := proxy.New(cfg, apiClient, logger)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("proxy shutdown failed: %w", err)
	}

	logger.Sugar().Info("preview proxy stopped gracefully")
	return nil
}
