package fleet

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	// CheckInterval defines how often the reconcile loop runs
	CheckInterval = 30 * time.Second

	// RunnerFetchTimeout bounds the Daytona API call that lists runners
	RunnerFetchTimeout = 10 * time.Second

	// PlaceholderPodLabel is the app label value for placeholder pods
	PlaceholderPodLabel = "daytona-runner-placeholder"

	// NodeSelectorKey selects nodes belonging to the sandbox pool
	NodeSelectorKey = "daytona-sandbox-c"

	// TaintKey is the taint placeholder pods must tolerate to land on pool nodes
	TaintKey = "sandbox"

	// PauseImage is the container image placeholder pods run
	PauseImage = "rancher/pause:3.6"
)

// Config holds the runner fleet autoscaler configuration, populated from
// environment variables.
type Config struct {
	APIPort                       string
	DaytonaAPIURL                 string
	DaytonaAPIKey                 string
	ProviderNamespace             string
	RegionID                      string
	MaxResourceUtilizationPercent int
	MinIdleRunners                int
	MinIdleCPU                    int
	MinIdleMemoryGiB              int
}

// LoadConfig reads the autoscaler configuration from the environment. Every
// variable is required; a missing or malformed value fails startup.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range []string{
		"API_PORT",
		"DAYTONA_API_URL",
		"DAYTONA_API_KEY",
		"PROVIDER_NAMESPACE",
		"REGION_ID",
		"MAX_RESOURCE_UTILIZATION_PERCENT",
		"MIN_IDLE_RUNNERS",
		"MIN_IDLE_CPU",
		"MIN_IDLE_MEMORY",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", key, err)
		}
	}

	cfg := &Config{
		APIPort:           v.GetString("API_PORT"),
		DaytonaAPIURL:     v.GetString("DAYTONA_API_URL"),
		DaytonaAPIKey:     v.GetString("DAYTONA_API_KEY"),
		ProviderNamespace: v.GetString("PROVIDER_NAMESPACE"),
		RegionID:          v.GetString("REGION_ID"),
	}

	for key, target := range map[string]*string{
		"API_PORT":           &cfg.APIPort,
		"DAYTONA_API_URL":    &cfg.DaytonaAPIURL,
		"DAYTONA_API_KEY":    &cfg.DaytonaAPIKey,
		"PROVIDER_NAMESPACE": &cfg.ProviderNamespace,
		"REGION_ID":          &cfg.RegionID,
	} {
		if *target == "" {
			return nil, fmt.Errorf("environment variable %s not set", key)
		}
	}

	var err error
	if cfg.MaxResourceUtilizationPercent, err = requiredInt(v, "MAX_RESOURCE_UTILIZATION_PERCENT"); err != nil {
		return nil, err
	}
	if cfg.MinIdleRunners, err = requiredInt(v, "MIN_IDLE_RUNNERS"); err != nil {
		return nil, err
	}
	if cfg.MinIdleCPU, err = requiredInt(v, "MIN_IDLE_CPU"); err != nil {
		return nil, err
	}
	if cfg.MinIdleMemoryGiB, err = requiredInt(v, "MIN_IDLE_MEMORY"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the numeric configuration ranges.
func (c *Config) Validate() error {
	if c.MaxResourceUtilizationPercent < 0 || c.MaxResourceUtilizationPercent > 100 {
		return fmt.Errorf("MAX_RESOURCE_UTILIZATION_PERCENT must be between 0 and 100, got %d", c.MaxResourceUtilizationPercent)
	}
	if c.MinIdleRunners < 0 {
		return fmt.Errorf("MIN_IDLE_RUNNERS cannot be negative, got %d", c.MinIdleRunners)
	}
	if c.MinIdleCPU < 0 {
		return fmt.Errorf("MIN_IDLE_CPU cannot be negative, got %d", c.MinIdleCPU)
	}
	if c.MinIdleMemoryGiB < 0 {
		return fmt.Errorf("MIN_IDLE_MEMORY cannot be negative, got %d", c.MinIdleMemoryGiB)
	}
	return nil
}

func requiredInt(v *viper.Viper, key string) (int, error) {
	raw := v.GetString(key)
	if raw == "" {
		return 0, fmt.Errorf("environment variable %s not set", key)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
