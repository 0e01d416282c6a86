package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Required fields are validated at startup so misconfiguration fails fast.
type Config struct {
	// Endpoints under test. Names label metrics, stats and API routes.
	RPCAURL  string
	RPCBURL  string
	RPCAName string
	RPCBName string

	// Server configuration
	ServerAddr string
	LogLevel   string

	// Persistence and stats sinks; empty disables the component
	DatabaseURL      string
	NATSURL          string
	KafkaBrokers     []string
	KafkaTopic       string
	PingThingToken   string
	PingThingCluster string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Transaction building
	PayerKeypair         string
	CUPriceMicroLamports uint64
	TxCount              int

	// Relay timing
	SlotPollStep          time.Duration
	SlotPollMaxIterations int
	ConfirmPollInterval   time.Duration
	ConfirmMaxRounds      int
	MaxSendRetries        int
	ConfirmTimeout        time.Duration
}

// LoadDotEnv loads variables from the given files (".env" when none are given)
// without overriding variables already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from environment variables and validates it.
// All problems are reported together.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.RPCAURL = os.Getenv("RPC_A_URL")
	if cfg.RPCAURL == "" {
		errs = append(errs, fmt.Errorf("RPC_A_URL is required"))
	}
	cfg.RPCBURL = os.Getenv("RPC_B_URL")
	if cfg.RPCBURL != "" && cfg.RPCBURL == cfg.RPCAURL {
		errs = append(errs, fmt.Errorf("RPC_A_URL and RPC_B_URL must be different"))
	}

	cfg.RPCAName = os.Getenv("RPC_A_NAME")
	cfg.RPCBName = os.Getenv("RPC_B_NAME")
	cfg.RPCAName, cfg.RPCBName = endpointNames(cfg.RPCAURL, cfg.RPCBURL, cfg.RPCAName, cfg.RPCBName)
	if cfg.RPCBURL != "" && cfg.RPCAName == cfg.RPCBName {
		errs = append(errs, fmt.Errorf("RPC_A_NAME and RPC_B_NAME must be different"))
	}

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = getEnvOrDefault("KAFKA_TOPIC", "relay.stats")
	cfg.PingThingToken = os.Getenv("PING_THING_TOKEN")
	cfg.PingThingCluster = getEnvOrDefault("PING_THING_CLUSTER", "mainnet")
	if cfg.PingThingCluster != "mainnet" && cfg.PingThingCluster != "testnet" {
		errs = append(errs, fmt.Errorf("PING_THING_CLUSTER must be mainnet or testnet, got %q", cfg.PingThingCluster))
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "slotrelay-bench")

	cfg.PayerKeypair = getEnvOrDefault("PAYER_KEYPAIR", "~/.config/solana/id.json")

	cuPrice, err := parseInt("CU_PRICE_MICRO_LAMPORTS", 1)
	if err != nil {
		errs = append(errs, err)
	} else if cuPrice < 0 {
		errs = append(errs, fmt.Errorf("CU_PRICE_MICRO_LAMPORTS must not be negative"))
	} else {
		cfg.CUPriceMicroLamports = uint64(cuPrice)
	}

	if cfg.TxCount, err = parseInt("TX_COUNT", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.SlotPollStep, err = parseDuration("SLOT_POLL_STEP", "30ms"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SlotPollMaxIterations, err = parseInt("SLOT_POLL_MAX_ITERATIONS", 500); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmPollInterval, err = parseDuration("CONFIRM_POLL_INTERVAL", "200ms"); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmMaxRounds, err = parseInt("CONFIRM_MAX_ROUNDS", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxSendRetries, err = parseInt("MAX_SEND_RETRIES", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.ConfirmTimeout, err = parseDuration("CONFIRM_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks invariants that hold regardless of how the Config was built.
func (c *Config) Validate() error {
	var errs []error

	if c.RPCAURL == "" {
		errs = append(errs, fmt.Errorf("RPCAURL is required"))
	}
	if c.SlotPollStep <= 0 {
		errs = append(errs, fmt.Errorf("SlotPollStep must be positive"))
	}
	if c.SlotPollMaxIterations < 2 {
		errs = append(errs, fmt.Errorf("SlotPollMaxIterations must be at least 2"))
	}
	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}
	if c.ConfirmMaxRounds < 1 {
		errs = append(errs, fmt.Errorf("ConfirmMaxRounds must be at least 1"))
	}
	if c.MaxSendRetries < 0 {
		errs = append(errs, fmt.Errorf("MaxSendRetries must not be negative"))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be positive"))
	}
	if c.TxCount < 1 {
		errs = append(errs, fmt.Errorf("TxCount must be at least 1"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("KafkaTopic is required when KafkaBrokers is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// BenchConfig translates the timing settings into relay configuration.
func (c *Config) BenchConfig() relay.BenchConfig {
	cfg := relay.DefaultBenchConfig()
	cfg.Align.Step = c.SlotPollStep
	cfg.Align.MaxIterations = c.SlotPollMaxIterations
	cfg.Poller.Interval = c.ConfirmPollInterval
	cfg.Poller.MaxRounds = c.ConfirmMaxRounds
	cfg.Submit.MaxRetries = uint(c.MaxSendRetries)
	cfg.ConfirmTimeout = c.ConfirmTimeout
	return cfg
}

// endpointNames fills in missing names from the endpoint URLs. Derived names
// that collide get "-a" and "-b" suffixes.
func endpointNames(urlA, urlB, nameA, nameB string) (string, string) {
	derivedA, derivedB := nameA == "", nameB == "" && urlB != ""
	if derivedA {
		nameA = EndpointLabel(urlA)
	}
	if derivedB {
		nameB = EndpointLabel(urlB)
	}
	if urlB != "" && nameA == nameB {
		if derivedA {
			nameA += "-a"
		}
		if derivedB {
			nameB += "-b"
		}
	}
	return nameA, nameB
}

// EndpointLabel extracts a short identifier from a Solana RPC URL.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
//   - "https://some-endpoint.quiknode.pro/..." -> "quiknode"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}

	host := parsed.Hostname()

	// Common RPC providers
	for _, provider := range []string{"helius", "alchemy", "triton", "rpcpool", "syndica", "ankr"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}
	if strings.Contains(host, "quiknode") || strings.Contains(host, "quicknode") {
		return "quiknode"
	}

	// Official Solana clusters
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}

	return host
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
