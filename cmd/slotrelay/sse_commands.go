package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	natspkg "github.com/brojonat/slotrelay/service/nats"
	"github.com/urfave/cli/v2"
)

func sseCommands() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamCommand(),
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream confirmed-transaction stats from the server via SSE",
		ArgsUsage: "[endpoint]",
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			endpoint := c.Args().First()
			jsonOutput := c.Bool("json")

			streamURL := serverURL + "/api/v1/stream/stats"
			if endpoint != "" {
				streamURL += "/" + url.PathEscape(endpoint)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req, err := http.NewRequestWithContext(ctx, "GET", streamURL, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming stats... (Ctrl+C to stop)\n\n")
			}

			err = readSSE(resp.Body, func(eventType, data string) error {
				return handleSSEEvent(os.Stdout, eventType, data, jsonOutput)
			})
			if err != nil && ctx.Err() != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "\nDisconnected\n")
				}
				return nil
			}
			return err
		},
	}
}

// readSSE parses an event stream and calls handle for each complete event.
// Comment lines (keepalives) are ignored, and an event not terminated by a
// blank line before EOF is discarded. Errors from handle are reported on
// stderr and do not stop the stream, except for server error events.
func readSSE(r io.Reader, handle func(eventType, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := handle(currentEvent, currentData); err != nil {
					if currentEvent == "error" {
						return err
					}
					fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func handleSSEEvent(w io.Writer, eventType, data string, jsonOutput bool) error {
	switch eventType {
	case "connected":
		if !jsonOutput {
			var info struct {
				Endpoint string `json:"endpoint"`
			}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Subscribed to %s\n\n", info.Endpoint)
		}
		return nil

	case "stat":
		var event natspkg.StatsEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}
		if jsonOutput {
			fmt.Fprintln(w, data)
		} else {
			fmt.Fprintf(w, "%-12s %s  slot %d → %d (+%d)  %dms  [%s]\n",
				event.Endpoint, event.Signature, event.SlotSent, event.SlotLanded,
				event.SlotDelta, event.ElapsedMS, event.Mode)
		}
		return nil

	case "error":
		var errInfo struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %s", errInfo.Error)

	default:
		// Unknown event type, ignore
		return nil
	}
}
