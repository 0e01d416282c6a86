// Package stack assembles the runtime dependencies shared by the CLI and the
// Temporal worker: RPC endpoints, stats sinks, the run store and the bench.
package stack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/slotrelay/client"
	"github.com/brojonat/slotrelay/service/config"
	"github.com/brojonat/slotrelay/service/db"
	"github.com/brojonat/slotrelay/service/kafka"
	"github.com/brojonat/slotrelay/service/metrics"
	natspkg "github.com/brojonat/slotrelay/service/nats"
	"github.com/brojonat/slotrelay/service/relay"
	"github.com/brojonat/slotrelay/service/solana"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options selects the optional parts of the stack.
type Options struct {
	// WithStore connects to DATABASE_URL (when set) and persists reports.
	WithStore bool
	// WithSinks publishes confirmed stats to every configured sink.
	WithSinks bool
	// WithPayer loads the payer keypair so transactions can be built.
	WithPayer bool
}

// Stack holds the wired dependencies. Close releases them.
type Stack struct {
	Config    *config.Config
	Endpoints []*solana.Client
	Sink      *relay.MultiSink
	Store     *db.Store // nil when no database is configured
	Bench     *relay.Bench
	Builder   *solana.MemoTxBuilder // nil unless WithPayer

	closers []func()
	logger  *slog.Logger
}

// Build wires a Stack from cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Stack, error) {
	s := &Stack{
		Config:    cfg,
		Endpoints: NewEndpoints(cfg, m, logger),
		logger:    logger,
	}

	if opts.WithSinks {
		sink, closers, err := NewSinks(cfg, m, logger)
		if err != nil {
			return nil, err
		}
		s.Sink = sink
		s.closers = append(s.closers, closers...)
	} else {
		s.Sink = relay.NewMultiSink(m, logger)
	}

	var store relay.ReportStore
	if opts.WithStore && cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			s.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		s.Store = db.NewStore(pool, m)
		store = s.Store
		logger.Info("connected to database")
	}

	if opts.WithPayer {
		payer, err := solana.LoadKeypair(cfg.PayerKeypair)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Builder = solana.NewMemoTxBuilder(payer, cfg.CUPriceMicroLamports)
		logger.Info("loaded payer keypair",
			"payer", s.Builder.Payer().String(),
			"cu_price_micro_lamports", cfg.CUPriceMicroLamports,
		)
	}

	s.Bench = relay.NewBench(cfg.BenchConfig(), s.Sink, store, m, logger)
	return s, nil
}

// NewEndpoints creates a client for RPC_A_URL and, if set, RPC_B_URL.
func NewEndpoints(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) []*solana.Client {
	endpoints := []*solana.Client{
		solana.NewClient(solana.NewRPCClient(cfg.RPCAURL), cfg.RPCAName, m, logger),
	}
	if cfg.RPCBURL != "" {
		endpoints = append(endpoints,
			solana.NewClient(solana.NewRPCClient(cfg.RPCBURL), cfg.RPCBName, m, logger))
	}
	return endpoints
}

// NewSinks builds a MultiSink over every configured stats destination:
// NATS when NATSURL is set, Kafka when KafkaBrokers is set and the
// validators.app ping-thing when PingThingToken is set. The returned closers
// release the underlying connections.
func NewSinks(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*relay.MultiSink, []func(), error) {
	var (
		sinks   []relay.StatsSink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		closers = append(closers, func() { pub.Close() })
		sinks = append(sinks, natspkg.NewSink(pub))
		logger.Info("stats sink enabled", "sink", "nats", "url", cfg.NATSURL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		ks, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create kafka sink: %w", err)
		}
		closers = append(closers, func() { ks.Close() })
		sinks = append(sinks, ks)
		logger.Info("stats sink enabled", "sink", "kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.PingThingToken != "" {
		sinks = append(sinks, client.NewPingThing(client.DefaultPingThingURL, cfg.PingThingCluster, cfg.PingThingToken, nil, logger))
		logger.Info("stats sink enabled", "sink", "pingthing", "cluster", cfg.PingThingCluster)
	}

	return relay.NewMultiSink(m, logger, sinks...), closers, nil
}

// Endpoint returns the endpoint with the given name.
func (s *Stack) Endpoint(name string) (relay.Endpoint, error) {
	for _, ep := range s.Endpoints {
		if ep.Name() == name {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("unknown endpoint %q", name)
}

// Pair returns endpoints A and B for comparisons.
func (s *Stack) Pair() (relay.Endpoint, relay.Endpoint, error) {
	if len(s.Endpoints) < 2 {
		return nil, nil, fmt.Errorf("comparison requires RPC_B_URL")
	}
	return s.Endpoints[0], s.Endpoints[1], nil
}

// RelayEndpoints returns the endpoints as relay.Endpoint values.
func (s *Stack) RelayEndpoints() []relay.Endpoint {
	out := make([]relay.Endpoint, len(s.Endpoints))
	for i, ep := range s.Endpoints {
		out[i] = ep
	}
	return out
}

// TxFactory returns the memo transaction factory. It is nil unless the
// stack was built WithPayer.
func (s *Stack) TxFactory() relay.TxFactory {
	if s.Builder == nil {
		return nil
	}
	return s.Builder.Factory()
}

// Close releases connections in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
