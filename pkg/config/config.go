package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/greenops/greenops-advisor/pkg/pricing"
)

// RiskBoundaries is the utilization boundary table for risk
// classification. Below LowBelow the change is low risk, below
// MediumBelow it is medium; anything above (but still under the
// detection threshold) stays medium.
type RiskBoundaries struct {
	LowBelow    float64
	MediumBelow float64
}

// Config holds application configuration
type Config struct {
	// Cluster / collaborators
	ClusterName   string
	PrometheusURL string

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Pricing and carbon rates (fatal at startup when unset or invalid)
	CostPerCPUHour  float64 // USD per core-hour
	CostPerGBHour   float64 // USD per GB-hour
	CarbonIntensity float64 // g CO2e per kWh
	WattsPerCore    float64 // linear cpu power approximation for manifest-only estimates

	// Detection policy
	SafetyBuffer    float64 // multiplier over peak usage, e.g. 1.25
	AcceptMargin    float64 // recommendation must undercut request by this factor
	LowThreshold    float64 // utilization % below which a workload is a candidate
	LimitMultiplier float64 // limits = requests * multiplier; 0 leaves limits alone
	MinCPUCores     float64 // recommendation floor, cores
	MinMemoryBytes  float64 // recommendation floor, bytes
	Risk            RiskBoundaries

	// Analysis run
	WindowHours int
	Concurrency int
	RunTimeout  time.Duration
	MaxRetries  int
	RetryDelay  time.Duration

	// Optional explanation enrichment
	AdvisorEnabled bool
	AdvisorURL     string
	AdvisorModel   string
	AdvisorTimeout time.Duration

	// Version-control host
	GitHubAPIURL        string
	GitHubToken         string
	GitHubWebhookSecret string

	Verbose bool
}

// NewConfig creates a new configuration from the environment with
// defaults matching a small on-prem cluster.
func NewConfig() *Config {
	return &Config{
		ClusterName:   getEnv("CLUSTER_NAME", "default"),
		PrometheusURL: getEnv("PROMETHEUS_URL", "http://localhost:9090"),

		StorageEnabled: getEnvBool("STORAGE_ENABLED", true),
		DatabaseURL:    getEnv("DATABASE_URL", "host=localhost port=5432 user=greenops password=devpassword dbname=greenops sslmode=disable"),

		CostPerCPUHour:  getEnvFloat("COST_PER_CPU_HOUR", 0.02),
		CostPerGBHour:   getEnvFloat("COST_PER_GB_HOUR", 0.005),
		CarbonIntensity: getEnvFloat("CARBON_INTENSITY_G_PER_KWH", 475),
		WattsPerCore:    getEnvFloat("CPU_WATTS_PER_CORE", 10),

		SafetyBuffer:    getEnvFloat("SAFETY_BUFFER", 1.25),
		AcceptMargin:    getEnvFloat("ACCEPT_MARGIN", 0.85),
		LowThreshold:    getEnvFloat("LOW_THRESHOLD", 20),
		LimitMultiplier: getEnvFloat("LIMIT_MULTIPLIER", 0),
		MinCPUCores:     getEnvFloat("MIN_CPU_CORES", 0.025),
		MinMemoryBytes:  getEnvFloat("MIN_MEMORY_BYTES", 50*1024*1024),
		Risk: RiskBoundaries{
			LowBelow:    getEnvFloat("RISK_LOW_BELOW", 10),
			MediumBelow: getEnvFloat("RISK_MEDIUM_BELOW", 15),
		},

		WindowHours: getEnvInt("ANALYSIS_WINDOW_HOURS", 24),
		Concurrency: getEnvInt("ANALYSIS_CONCURRENCY", 4),
		RunTimeout:  time.Duration(getEnvInt("RUN_TIMEOUT_MINUTES", 30)) * time.Minute,
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),
		RetryDelay:  time.Duration(getEnvInt("RETRY_DELAY_MS", 500)) * time.Millisecond,

		AdvisorEnabled: getEnvBool("AI_ENRICHMENT_ENABLED", false),
		AdvisorURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		AdvisorModel:   getEnv("OLLAMA_MODEL", "mistral:7b"),
		AdvisorTimeout: time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 30)) * time.Second,

		GitHubAPIURL:        getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubToken:         getEnv("GITHUB_TOKEN", ""),
		GitHubWebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),

		Verbose: getEnvBool("VERBOSE", false),
	}
}

// Rates returns the pricing rates for cost/carbon projections.
func (c *Config) Rates() pricing.Rates {
	return pricing.Rates{
		CPUPerCoreHour:  c.CostPerCPUHour,
		MemPerGBHour:    c.CostPerGBHour,
		CarbonIntensity: c.CarbonIntensity,
		WattsPerCore:    c.WattsPerCore,
		HoursPerMonth:   pricing.HoursPerMonth,
	}
}

// Validate checks if configuration is valid. Missing cost or carbon
// rates abort startup; they are never a per-request error.
func (c *Config) Validate() error {
	if c.CostPerCPUHour <= 0 {
		return fmt.Errorf("COST_PER_CPU_HOUR must be positive, got %v", c.CostPerCPUHour)
	}
	if c.CostPerGBHour <= 0 {
		return fmt.Errorf("COST_PER_GB_HOUR must be positive, got %v", c.CostPerGBHour)
	}
	if c.CarbonIntensity <= 0 {
		return fmt.Errorf("CARBON_INTENSITY_G_PER_KWH must be positive, got %v", c.CarbonIntensity)
	}
	if c.SafetyBuffer < 1.0 {
		return fmt.Errorf("safety buffer must be >= 1.0, got %v", c.SafetyBuffer)
	}
	if c.AcceptMargin <= 0 || c.AcceptMargin > 1.0 {
		return fmt.Errorf("accept margin must be in (0, 1], got %v", c.AcceptMargin)
	}
	if c.LowThreshold <= 0 || c.LowThreshold > 100 {
		return fmt.Errorf("low threshold must be a percentage in (0, 100], got %v", c.LowThreshold)
	}
	if c.Risk.LowBelow > c.Risk.MediumBelow || c.Risk.MediumBelow > c.LowThreshold {
		return fmt.Errorf("risk boundaries must be ordered: low %v <= medium %v <= threshold %v",
			c.Risk.LowBelow, c.Risk.MediumBelow, c.LowThreshold)
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.WindowHours < 1 {
		return fmt.Errorf("analysis window must be at least 1 hour")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
