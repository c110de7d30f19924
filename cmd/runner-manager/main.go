package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/caredai/daytona/internal/logging"
	"github.com/caredai/daytona/pkg/daytona/client"
	"github.com/caredai/daytona/pkg/fleet"
	"github.com/caredai/daytona/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	var kubeconfig string
	var development bool

	cmd := &cobra.Command{
		Use:   "runner-manager",
		Short: "Autoscaler for the Daytona sandbox runner fleet",
		Long: "runner-manager keeps the sandbox node pool sized to demand: it watches " +
			"runner utilization through the Daytona API and drives the cluster " +
			"autoscaler with placeholder pods.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(kubeconfig, development)
		},
	}
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig file (uses in-cluster config if not specified)")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging")
	cmd.AddCommand(versionCommand())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("runner-manager %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}
}

func run(kubeconfig string, development bool) error {
	logger, err := logging.NewLogger(development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("starting runner-manager", "version", Version, "commit", Commit)

	cfg, err := fleet.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Ticks treat the next interval as the retry, so the client itself
	// does not retry
	retry := client.NoRetryConfig()
	apiClient, err := client.New(cfg.DaytonaAPIURL, cfg.DaytonaAPIKey, &client.Options{
		Logger:      logger,
		RetryConfig: &retry,
	})
	if err != nil {
		return fmt.Errorf("failed to create Daytona API client: %w", err)
	}

	k8sConfig, err := buildKubeConfig(kubeconfig, sugar)
	if err != nil {
		return fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(k8sConfig)
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	metrics.RegisterMetrics()

	health := fleet.NewHealthServer(cfg.APIPort, sugar)
	health.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := fleet.NewManager(apiClient, clientset, cfg, sugar)
	if err := manager.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), fleet.RunnerFetchTimeout)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("health server shutdown failed", "error", err)
	}

	sugar.Info("runner-manager stopped gracefully")
	return nil
}

// buildKubeConfig prefers the in-cluster config, falling back to the given
// kubeconfig path or the default location.
func buildKubeConfig(kubeconfig string, logger *zap.SugaredLogger) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}

	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	logger.Infow("not running in-cluster, falling back to kubeconfig", "reason", err.Error())
	path := os.Getenv("KUBECONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", path)
}
