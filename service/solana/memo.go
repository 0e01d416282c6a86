package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

var (
	// MemoProgramID is the SPL memo program.
	MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// ComputeBudgetProgramID is the native compute budget program.
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

	// ErrNoBlockhashSource is returned when an endpoint cannot supply a recent blockhash.
	ErrNoBlockhashSource = errors.New("endpoint cannot supply a recent blockhash")
)

// setComputeUnitPrice is the compute budget instruction selector for a
// priority fee in micro-lamports per compute unit.
const setComputeUnitPrice = 3

// BlockhashSource supplies recent blockhashes. *Client implements it.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// MemoTxBuilder builds self-transfer-free benchmark transactions: a compute
// unit price instruction followed by a memo carrying a unique payload, so
// every transaction has a distinct signature.
type MemoTxBuilder struct {
	payer   solana.PrivateKey
	cuPrice uint64
}

// NewMemoTxBuilder creates a builder that signs with payer and bids cuPrice
// micro-lamports per compute unit. A zero cuPrice omits the fee instruction.
func NewMemoTxBuilder(payer solana.PrivateKey, cuPrice uint64) *MemoTxBuilder {
	return &MemoTxBuilder{payer: payer, cuPrice: cuPrice}
}

// Payer returns the fee payer's public key.
func (b *MemoTxBuilder) Payer() solana.PublicKey {
	return b.payer.PublicKey()
}

// Build creates and signs a memo transaction against blockhash.
func (b *MemoTxBuilder) Build(blockhash solana.Hash, memo string) (*solana.Transaction, error) {
	payer := b.payer.PublicKey()

	var instructions []solana.Instruction
	if b.cuPrice > 0 {
		instructions = append(instructions, computeUnitPriceInstruction(b.cuPrice))
	}
	instructions = append(instructions, solana.NewInstruction(
		MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(payer).SIGNER()},
		[]byte(memo),
	))

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &b.payer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return tx, nil
}

// Factory returns a relay.TxFactory that fetches a fresh blockhash from the
// target endpoint for every transaction.
func (b *MemoTxBuilder) Factory() relay.TxFactory {
	return func(ctx context.Context, ep relay.Endpoint) (*solana.Transaction, error) {
		src, ok := ep.(BlockhashSource)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoBlockhashSource, ep.Name())
		}
		blockhash, err := src.LatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		return b.Build(blockhash, "slotrelay:"+uuid.NewString())
	}
}

func computeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = setComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// LoadKeypair reads a solana-keygen JSON keypair file. A leading "~/" is
// expanded to the home directory.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return key, nil
}
