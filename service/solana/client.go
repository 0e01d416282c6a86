package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/slotrelay/service/metrics"
	"github.com/brojonat/slotrelay/service/relay"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrUnhealthy is returned by Health when the node answers with anything but "ok".
	ErrUnhealthy = errors.New("rpc node unhealthy")

	// ErrTransactionNotFound is returned when a confirmed signature has no transaction record yet.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Client adapts one RPC endpoint to relay.Endpoint. Every call is timed and
// recorded under the endpoint's name.
type Client struct {
	rpc        RPCClient
	name       string
	commitment rpc.CommitmentType
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a Client. name labels logs and metrics (e.g. "rpc-a" or the
// RPC host). If metrics is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, name string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:        rpcClient,
		name:       name,
		commitment: rpc.CommitmentConfirmed,
		logger:     logger.With("endpoint", name),
		metrics:    m,
	}
}

var _ relay.Endpoint = (*Client)(nil)

func (c *Client) Name() string { return c.name }

// CurrentSlot returns the slot at confirmed commitment.
func (c *Client) CurrentSlot(ctx context.Context) (uint64, error) {
	start := time.Now()
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	c.observe("getSlot", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// Health probes getHealth. Any answer other than "ok" is an error.
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	status, err := c.rpc.GetHealth(ctx)
	c.observe("getHealth", start, err)
	if err != nil {
		return fmt.Errorf("failed to get health: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("%w: %s", ErrUnhealthy, status)
	}
	return nil
}

// Submit sends tx and returns its signature. Failures come back as a
// classified *relay.SendError.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction, opts relay.SubmitOpts) (solana.Signature, error) {
	maxRetries := opts.MaxRetries
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	c.observe("sendTransaction", start, err)
	if err != nil {
		sendErr := ClassifySendError(err)
		c.logger.DebugContext(ctx, "send transaction rejected",
			"kind", sendErr.Kind,
			"error", err,
		)
		return solana.Signature{}, sendErr
	}
	return sig, nil
}

// MaxStatusBatch is the most signatures a single getSignatureStatuses call accepts.
const MaxStatusBatch = 256

// StatusOf returns one status per sig in request order. Requests larger than
// MaxStatusBatch are split into consecutive getSignatureStatuses calls.
func (c *Client) StatusOf(ctx context.Context, sigs []solana.Signature) ([]*relay.Status, error) {
	out := make([]*relay.Status, 0, len(sigs))
	for lo := 0; lo < len(sigs); lo += MaxStatusBatch {
		hi := min(lo+MaxStatusBatch, len(sigs))
		chunk := sigs[lo:hi]

		start := time.Now()
		res, err := c.rpc.GetSignatureStatuses(ctx, false, chunk...)
		c.observe("getSignatureStatuses", start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to get signature statuses: %w", err)
		}
		if res == nil || res.Value == nil {
			return nil, errors.New("nil result from getSignatureStatuses")
		}
		if len(res.Value) != len(chunk) {
			return nil, fmt.Errorf("getSignatureStatuses returned %d entries for %d signatures", len(res.Value), len(chunk))
		}

		for _, v := range res.Value {
			if v == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, &relay.Status{Slot: v.Slot, Level: v.ConfirmationStatus})
		}
	}
	return out, nil
}

// FetchLandedSlot returns the slot the transaction was included in.
func (c *Client) FetchLandedSlot(ctx context.Context, sig solana.Signature) (uint64, error) {
	maxVersion := uint64(0)
	start := time.Now()
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingJSON,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	c.observe("getTransaction", start, err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrTransactionNotFound, sig)
		}
		return 0, fmt.Errorf("failed to get transaction: %w", err)
	}
	if res == nil {
		return 0, fmt.Errorf("%w: %s", ErrTransactionNotFound, sig)
	}
	return res.Slot, nil
}

// LatestBlockhash returns a recent blockhash for building transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	c.observe("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, errors.New("nil result from getLatestBlockhash")
	}
	return res.Value.Blockhash, nil
}

func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if strings.Contains(err.Error(), "429") {
			c.metrics.RecordRateLimitHit(c.name)
		}
	}
	c.metrics.RecordRPCCall(method, status, c.name, time.Since(start).Seconds())
}
