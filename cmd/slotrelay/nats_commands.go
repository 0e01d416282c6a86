package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/slotrelay/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to confirmed-transaction stats.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to confirmed-transaction stats",
		ArgsUsage: "[endpoint]",
		Description: `Subscribe to stats published to NATS JetStream by benchmark runs.

Stats are published to the subject bench.stats.{endpoint}. Without an endpoint
argument every endpoint is streamed.

Example:
  slotrelay nats subscribe helius --new-only --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (survives restarts)",
			},
			&cli.BoolFlag{
				Name:  "new-only",
				Usage: "Skip stats stored before subscribing",
			},
		},
		Action: func(c *cli.Context) error {
			opts := natspkg.SubscribeOptions{
				Endpoint: c.Args().First(),
				Durable:  c.String("durable"),
				NewOnly:  c.Bool("new-only"),
			}
			return streamStats(c, opts)
		},
	}
}

func streamStats(c *cli.Context, opts natspkg.SubscribeOptions) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")

	nc, err := nats.Connect(natsURL, nats.Name("slotrelay-cli"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n", opts.FilterSubject())
		fmt.Fprintf(os.Stderr, "Streaming stats... (Ctrl+C to stop)\n\n")
	}

	count := 0
	err = natspkg.Subscribe(ctx, js, opts, cliLogger(c), func(event *natspkg.StatsEvent) {
		count++
		if jsonOutput {
			data, err := json.Marshal(event)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding event: %v\n", err)
				return
			}
			fmt.Println(string(data))
			return
		}
		printStat(event)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("subscription failed: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "\nReceived %d stats\n", count)
	}
	return nil
}

func printStat(event *natspkg.StatsEvent) {
	status := "✓"
	if !event.Success {
		status = "✗"
	}
	fmt.Printf("%s %-12s %s  slot %d → %d (+%d)  %dms  [%s]  %s\n",
		status,
		event.Endpoint,
		event.Signature,
		event.SlotSent,
		event.SlotLanded,
		event.SlotDelta,
		event.ElapsedMS,
		event.Mode,
		event.ReportedAt.Format(time.RFC3339),
	)
}
