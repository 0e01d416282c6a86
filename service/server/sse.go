package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/slotrelay/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const keepaliveInterval = 10 * time.Second

type subscribeFunc func(ctx context.Context, opts natspkg.SubscribeOptions, handle func(*natspkg.StatsEvent)) error

// StatsStream fans confirmed-transaction stats out to Server-Sent Events clients.
type StatsStream struct {
	nc        *nats.Conn
	subscribe subscribeFunc
	logger    *slog.Logger
}

// NewStatsStream creates a stats stream that subscribes to NATS internally.
func NewStatsStream(natsURL string, logger *slog.Logger) (*StatsStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("slotrelay-sse-stream"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE stats stream initialized", "nats_url", natsURL)

	return &StatsStream{
		nc: nc,
		subscribe: func(ctx context.Context, opts natspkg.SubscribeOptions, handle func(*natspkg.StatsEvent)) error {
			return natspkg.Subscribe(ctx, js, opts, logger, handle)
		},
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (s *StatsStream) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("SSE stats stream closed")
	}
	return nil
}

// handleStreamStats streams stats events. Without an endpoint path parameter
// it streams every endpoint.
func handleStreamStats(stream *StatsStream, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.PathValue("endpoint")
		desc := endpoint
		if endpoint == "" {
			desc = "all endpoints"
		} else if err := validateEndpointName(endpoint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"endpoint", desc,
			"remote_addr", r.RemoteAddr,
		)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := make(chan *natspkg.StatsEvent, 10)
		done := make(chan error, 1)
		go func() {
			done <- stream.subscribe(ctx, natspkg.SubscribeOptions{Endpoint: endpoint, NewOnly: true}, func(event *natspkg.StatsEvent) {
				select {
				case events <- event:
				case <-ctx.Done():
				}
			})
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"endpoint\":%q}\n\n", desc)
		flush()

		writeStat := func(event *natspkg.StatsEvent) {
			data, err := json.Marshal(event)
			if err != nil {
				logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
				return
			}
			fmt.Fprintf(w, "event: stat\ndata: %s\n\n", data)
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case event := <-events:
				writeStat(event)
				flush()

			case err := <-done:
				// Drain anything delivered before the subscription ended.
				for len(events) > 0 {
					writeStat(<-events)
				}
				if err != nil {
					logger.ErrorContext(r.Context(), "stats subscription failed", "endpoint", desc, "error", err)
					fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
				}
				flush()
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"endpoint", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
