package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/slotrelay/service/relay"
)

// DefaultPingThingURL is the validators.app ping-thing API root.
const DefaultPingThingURL = "https://www.validators.app/api/v1/ping-thing"

// PingThing submits confirmed-transaction stats to the validators.app ping-thing API.
type PingThing struct {
	baseURL    string
	cluster    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

type pingThingPayload struct {
	Time            int64  `json:"time"`
	Signature       string `json:"signature"`
	TransactionType string `json:"transaction_type"`
	Success         bool   `json:"success"`
	Application     string `json:"application"`
	CommitmentLevel string `json:"commitment_level"`
	SlotSent        uint64 `json:"slot_sent"`
	SlotLanded      uint64 `json:"slot_landed"`
}

// NewPingThing creates a sink posting to {baseURL}/{cluster}. cluster is
// "mainnet" or "testnet". An empty baseURL uses DefaultPingThingURL.
func NewPingThing(baseURL, cluster, token string, httpClient *http.Client, logger *slog.Logger) *PingThing {
	if baseURL == "" {
		baseURL = DefaultPingThingURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &PingThing{
		baseURL:    baseURL,
		cluster:    cluster,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

var _ relay.StatsSink = (*PingThing)(nil)

func (p *PingThing) Name() string { return "pingthing" }

// Submit posts one stat. Only confirmed stats reach sinks, so every
// submission is reported at confirmed commitment.
func (p *PingThing) Submit(ctx context.Context, stat relay.ConfirmedStat) error {
	body, err := json.Marshal(pingThingPayload{
		Time:            stat.Elapsed.Milliseconds(),
		Signature:       stat.Signature.String(),
		TransactionType: "memo",
		Success:         stat.Success,
		Application:     "slotrelay",
		CommitmentLevel: "confirmed",
		SlotSent:        stat.SlotSent,
		SlotLanded:      stat.SlotLanded,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/"+p.cluster, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp)
	}

	p.logger.Debug("submitted ping-thing stat",
		"signature", stat.Signature,
		"slot_sent", stat.SlotSent,
		"slot_landed", stat.SlotLanded,
	)
	return nil
}
