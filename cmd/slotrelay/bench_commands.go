package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/brojonat/slotrelay/service/stack"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func localRunFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-store",
			Usage: "Do not persist results even if DATABASE_URL is set",
		},
		&cli.BoolFlag{
			Name:  "no-sinks",
			Usage: "Do not publish stats to NATS, Kafka or ping-thing",
		},
	}
}

func benchCommands() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Run benchmarks locally against the configured endpoints",
		Description: `Benchmarks read endpoint and payer settings from the environment
(RPC_A_URL, RPC_B_URL, PAYER_KEYPAIR, CU_PRICE_MICRO_LAMPORTS, ...).
Results are saved when DATABASE_URL is set and stats are published to every
configured sink.`,
		Subcommands: []*cli.Command{
			bulkCommand(),
			compareCommand(),
		},
	}
}

func bulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Send a batch of transactions to one endpoint and confirm them",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "Endpoint name (default: endpoint A)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of transactions (default: TX_COUNT)",
			},
		}, localRunFlags()...),
		Action: func(c *cli.Context) error {
			s, err := loadStack(c, stack.Options{WithStore: true, WithSinks: true, WithPayer: true})
			if err != nil {
				return err
			}
			defer s.Close()

			ep := relay.Endpoint(s.Endpoints[0])
			if name := c.String("endpoint"); name != "" {
				if ep, err = s.Endpoint(name); err != nil {
					return err
				}
			}

			count := s.Config.TxCount
			if c.IsSet("count") {
				count = c.Int("count")
			}
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			txs, err := buildTransactions(ctx, s.TxFactory(), ep, count)
			if err != nil {
				return err
			}

			report, err := s.Bench.SendAndConfirmBulk(ctx, ep, txs)
			if report == nil {
				var sendErr *relay.SendFailedError
				if errors.As(err, &sendErr) {
					rows := sendFailureRows(sendErr.Outcomes)
					if c.Bool("json") {
						if jsonErr := outputJSON(rows); jsonErr != nil {
							return jsonErr
						}
					} else {
						printSendFailures(os.Stdout, rows)
					}
				}
				return fmt.Errorf("bulk run failed: %w", err)
			}
			if c.Bool("json") {
				if jsonErr := outputJSON(report); jsonErr != nil {
					return jsonErr
				}
			} else {
				printBulkReport(report)
			}
			return err
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Race endpoints A and B and report which lands transactions first",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "rounds",
				Aliases: []string{"r"},
				Usage:   "Number of comparison rounds",
				Value:   1,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop starting new rounds after this long; the round in flight completes (0 for no limit)",
			},
		}, localRunFlags()...),
		Action: func(c *cli.Context) error {
			rounds := c.Int("rounds")
			if rounds < 1 {
				return fmt.Errorf("rounds must be at least 1")
			}

			s, err := loadStack(c, stack.Options{WithStore: true, WithSinks: true, WithPayer: true})
			if err != nil {
				return err
			}
			defer s.Close()

			epA, epB, err := s.Pair()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := s.Bench.RunComparisonRoundsWithin(ctx, epA, epB, rounds, c.Duration("timeout"), s.TxFactory())
			if c.Bool("json") {
				if jsonErr := outputJSON(results); jsonErr != nil {
					return jsonErr
				}
			} else {
				printComparisons(results)
			}
			return err
		},
	}
}

func buildTransactions(ctx context.Context, newTx relay.TxFactory, ep relay.Endpoint, count int) ([]*solana.Transaction, error) {
	txs := make([]*solana.Transaction, 0, count)
	for i := 0; i < count; i++ {
		tx, err := newTx(ctx, ep)
		if err != nil {
			return nil, fmt.Errorf("failed to build transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func printBulkReport(report *relay.BulkReport) {
	fmt.Printf("Run ID:          %s\n", report.RunID)
	fmt.Printf("Endpoint:        %s\n", report.Endpoint)
	fmt.Printf("Started:         %s\n", formatTime(report.StartedAt))
	fmt.Printf("Slot Sent:       %d\n", report.SlotSent)
	fmt.Printf("Slot After Send: %d (%d slots passed)\n", report.SlotAfterSend, report.SlotsPassed)
	fmt.Printf("Send Elapsed:    %s\n", ms(report.SendElapsed))
	fmt.Printf("Poll Elapsed:    %s (%d rounds)\n", ms(report.PollElapsed), report.Rounds)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSIGNATURE\tRESULT\tSLOT\tDELTA\tLEVEL\tELAPSED")
	for _, r := range report.Results {
		rec := r.Record
		switch rec.Kind {
		case relay.RecordSuccess:
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.Index, r.Signature, rec.Kind, rec.SlotConfirmed,
				rec.SlotConfirmed-rec.SlotSent, rec.Level, ms(rec.Elapsed))
		case relay.RecordSendError:
			fmt.Fprintf(w, "%d\t%s\t%s\t-\t-\t-\t%v\n", r.Index, r.Signature, rec.Kind, rec.SendErr)
		default:
			fmt.Fprintf(w, "%d\t%s\t%s\t-\t-\t-\t%s\n", r.Index, r.Signature, rec.Kind, ms(rec.Elapsed))
		}
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nSent: %d  Confirmed: %d  Timed out: %d  Failed: %d\n",
		report.Counts.Sent, report.Counts.Confirmed, report.Counts.TimedOut, report.Counts.Failed)
}

type sendFailureRow struct {
	Index     int    `json:"index"`
	Signature string `json:"signature"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// sendFailureRows keeps the rejected outcomes of a fail-fast dispatch.
func sendFailureRows(outcomes []relay.SendOutcome) []sendFailureRow {
	var rows []sendFailureRow
	for _, o := range outcomes {
		if o.Accepted() {
			continue
		}
		msg := ""
		if o.Err.Err != nil {
			msg = o.Err.Err.Error()
		}
		rows = append(rows, sendFailureRow{
			Index:     o.Index,
			Signature: o.Signature.String(),
			Kind:      string(o.Err.Kind),
			Message:   msg,
		})
	}
	return rows
}

func printSendFailures(out io.Writer, rows []sendFailureRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSIGNATURE\tKIND\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Index, r.Signature, r.Kind, r.Message)
	}
	w.Flush()
}

func printComparisons(results []*relay.ComparisonResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tA\tA SLOT\tB\tB SLOT\tRTT A\tRTT B\tWINNER")
	tally := map[string]int{}
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Round,
			r.A.Endpoint, landedSlot(r.A),
			r.B.Endpoint, landedSlot(r.B),
			ms(r.RTTA), ms(r.RTTB),
			r.Winner(),
		)
		tally[r.Winner()]++
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nRounds: %d  A wins: %d  B wins: %d  Ties: %d  No result: %d\n",
		len(results), tally["a"], tally["b"], tally["tie"], tally["none"])
}

func landedSlot(r relay.LandingResult) string {
	if r.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d (+%d)", r.SlotLanded, r.SlotLanded-r.SlotSent)
}

func alignCommand() *cli.Command {
	return &cli.Command{
		Name:  "align",
		Usage: "Wait for the start of a fresh slot on an endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "Endpoint name (default: endpoint A)",
			},
		},
		Action: func(c *cli.Context) error {
			s, err := loadStack(c, stack.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			ep := relay.Endpoint(s.Endpoints[0])
			if name := c.String("endpoint"); name != "" {
				if ep, err = s.Endpoint(name); err != nil {
					return err
				}
			}

			start := time.Now()
			snap, err := s.Bench.Aligner().AlignToSlotStart(c.Context, ep)
			if err != nil {
				return fmt.Errorf("failed to align to slot start: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"endpoint":    ep.Name(),
					"slot":        snap.Slot,
					"observed_at": snap.ObservedAt,
					"waited_ms":   snap.ObservedAt.Sub(start).Milliseconds(),
				})
			}

			fmt.Printf("Endpoint:    %s\n", ep.Name())
			fmt.Printf("Slot:        %d\n", snap.Slot)
			fmt.Printf("Observed At: %s\n", snap.ObservedAt.Format(time.RFC3339Nano))
			fmt.Printf("Waited:      %s\n", ms(snap.ObservedAt.Sub(start)))
			return nil
		},
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Measure round trips to endpoints A and B and the send delays that equalize them",
		Action: func(c *cli.Context) error {
			s, err := loadStack(c, stack.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			epA, epB, err := s.Pair()
			if err != nil {
				return err
			}

			rttA, err := relay.MeasureRoundTrip(c.Context, epA)
			if err != nil {
				return err
			}
			rttB, err := relay.MeasureRoundTrip(c.Context, epB)
			if err != nil {
				return err
			}
			delayA, delayB := relay.Compensate(rttA, rttB)

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"endpoint_a": epA.Name(),
					"endpoint_b": epB.Name(),
					"rtt_a_ms":   rttA.Milliseconds(),
					"rtt_b_ms":   rttB.Milliseconds(),
					"delay_a_ms": delayA.Milliseconds(),
					"delay_b_ms": delayB.Milliseconds(),
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tRTT\tSEND DELAY")
			fmt.Fprintf(w, "%s\t%s\t%s\n", epA.Name(), ms(rttA), ms(delayA))
			fmt.Fprintf(w, "%s\t%s\t%s\n", epB.Name(), ms(rttB), ms(delayB))
			w.Flush()
			return nil
		},
	}
}
