package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so tests don't see the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RPC_A_URL", "RPC_B_URL", "RPC_A_NAME", "RPC_B_NAME", "SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "PING_THING_TOKEN", "PING_THING_CLUSTER",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "PAYER_KEYPAIR",
		"CU_PRICE_MICRO_LAMPORTS", "TX_COUNT", "SLOT_POLL_STEP", "SLOT_POLL_MAX_ITERATIONS",
		"CONFIRM_POLL_INTERVAL", "CONFIRM_MAX_ROUNDS", "MAX_SEND_RETRIES", "CONFIRM_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_A_URL", "https://api.mainnet-beta.solana.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPCAURL)
	assert.Empty(t, cfg.RPCBURL)
	assert.Equal(t, "mainnet", cfg.RPCAName)
	assert.Empty(t, cfg.RPCBName)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mainnet", cfg.PingThingCluster)
	assert.Equal(t, "relay.stats", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Millisecond, cfg.SlotPollStep)
	assert.Equal(t, 500, cfg.SlotPollMaxIterations)
	assert.Equal(t, 200*time.Millisecond, cfg.ConfirmPollInterval)
	assert.Equal(t, 100, cfg.ConfirmMaxRounds)
	assert.Equal(t, 3, cfg.MaxSendRetries)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 10, cfg.TxCount)
	assert.Equal(t, "slotrelay-bench", cfg.TemporalTaskQueue)
}

func TestLoad_MissingRPCAURL(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "RPC_A_URL is required")
}

func TestLoad_SameEndpoints(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_A_URL", "https://rpc.example.com")
	t.Setenv("RPC_B_URL", "https://rpc.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLOT_POLL_STEP", "soon")
	t.Setenv("TX_COUNT", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_A_URL is required")
	assert.Contains(t, err.Error(), "invalid duration")
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_A_URL", "https://a.example.com")
	t.Setenv("RPC_B_URL", "https://b.example.com")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PING_THING_CLUSTER", "testnet")
	t.Setenv("CU_PRICE_MICRO_LAMPORTS", "5000")
	t.Setenv("CONFIRM_TIMEOUT", "15s")
	t.Setenv("CONFIRM_MAX_ROUNDS", "20")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "testnet", cfg.PingThingCluster)
	assert.Equal(t, uint64(5000), cfg.CUPriceMicroLamports)
	assert.Equal(t, 15*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 20, cfg.ConfirmMaxRounds)
}

func TestLoad_InvalidCluster(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_A_URL", "https://a.example.com")
	t.Setenv("PING_THING_CLUSTER", "devnet")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PING_THING_CLUSTER")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RPCAURL:               "https://a.example.com",
			SlotPollStep:          30 * time.Millisecond,
			SlotPollMaxIterations: 500,
			ConfirmPollInterval:   200 * time.Millisecond,
			ConfirmMaxRounds:      100,
			MaxSendRetries:        3,
			ConfirmTimeout:        time.Minute,
			TxCount:               10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.RPCAURL = "" }, "RPCAURL is required"},
		{"zero poll step", func(c *Config) { c.SlotPollStep = 0 }, "SlotPollStep must be positive"},
		{"single iteration", func(c *Config) { c.SlotPollMaxIterations = 1 }, "at least 2"},
		{"no rounds", func(c *Config) { c.ConfirmMaxRounds = 0 }, "ConfirmMaxRounds"},
		{"kafka without topic", func(c *Config) { c.KafkaBrokers = []string{"k:9092"} }, "KafkaTopic is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBenchConfig(t *testing.T) {
	cfg := &Config{
		SlotPollStep:          10 * time.Millisecond,
		SlotPollMaxIterations: 50,
		ConfirmPollInterval:   100 * time.Millisecond,
		ConfirmMaxRounds:      7,
		MaxSendRetries:        0,
		ConfirmTimeout:        5 * time.Second,
	}

	bc := cfg.BenchConfig()

	assert.Equal(t, 10*time.Millisecond, bc.Align.Step)
	assert.Equal(t, 50, bc.Align.MaxIterations)
	assert.Equal(t, 100*time.Millisecond, bc.Poller.Interval)
	assert.Equal(t, 7, bc.Poller.MaxRounds)
	assert.Equal(t, uint(0), bc.Submit.MaxRetries)
	assert.True(t, bc.Submit.SkipPreflight)
	assert.True(t, bc.AlignToSlot)
	assert.Equal(t, 5*time.Second, bc.ConfirmTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RPC_A_URL=https://from-dotenv.example.com\n"), 0o600))

	// variables already present, even empty, are never overridden
	require.NoError(t, os.Unsetenv("RPC_A_URL"))
	require.NoError(t, LoadDotEnv(path))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://from-dotenv.example.com", cfg.RPCAURL)
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestMustLoad_Panics(t *testing.T) {
	clearEnv(t)
	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestLoad_EndpointNames(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		wantA, wantB  string
		wantErrSubstr string
	}{
		{
			name: "derived from providers",
			env: map[string]string{
				"RPC_A_URL": "https://mainnet.helius-rpc.com/?api-key=x",
				"RPC_B_URL": "https://solana-mainnet.g.alchemy.com/v2/y",
			},
			wantA: "helius",
			wantB: "alchemy",
		},
		{
			name: "derived names collide",
			env: map[string]string{
				"RPC_A_URL": "https://mainnet.helius-rpc.com/?api-key=x",
				"RPC_B_URL": "https://staked.helius-rpc.com/?api-key=x",
			},
			wantA: "helius-a",
			wantB: "helius-b",
		},
		{
			name: "explicit names",
			env: map[string]string{
				"RPC_A_URL":  "https://a.example.com",
				"RPC_B_URL":  "https://b.example.com",
				"RPC_A_NAME": "primary",
				"RPC_B_NAME": "staked",
			},
			wantA: "primary",
			wantB: "staked",
		},
		{
			name: "explicit names collide",
			env: map[string]string{
				"RPC_A_URL":  "https://a.example.com",
				"RPC_B_URL":  "https://b.example.com",
				"RPC_A_NAME": "same",
				"RPC_B_NAME": "same",
			},
			wantErrSubstr: "RPC_A_NAME and RPC_B_NAME must be different",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErrSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantA, cfg.RPCAName)
			assert.Equal(t, tt.wantB, cfg.RPCBName)
		})
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"https://api.mainnet-beta.solana.com":         "mainnet",
		"https://api.devnet.solana.com":               "devnet",
		"https://mainnet.helius-rpc.com/?api-key=abc": "helius",
		"https://some-endpoint.quiknode.pro/token/":   "quiknode",
		"https://rpc.example.org:8899":                "rpc.example.org",
		"not a url":                                   "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, EndpointLabel(in), in)
	}
}
