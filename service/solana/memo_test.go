package solana

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brojonat/slotrelay/service/relay"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoTxBuilder_Build(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	var blockhash solana.Hash
	blockhash[0] = 7

	b := NewMemoTxBuilder(payer, 5000)
	tx, err := b.Build(blockhash, "hello")
	require.NoError(t, err)

	require.Len(t, tx.Signatures, 1)
	assert.False(t, tx.Signatures[0].IsZero())
	assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
	assert.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	require.NoError(t, tx.VerifySignatures())

	require.Len(t, tx.Message.Instructions, 2)

	cuProgram := tx.Message.AccountKeys[tx.Message.Instructions[0].ProgramIDIndex]
	assert.Equal(t, ComputeBudgetProgramID, cuProgram)
	data := tx.Message.Instructions[0].Data
	require.Len(t, data, 9)
	assert.Equal(t, byte(setComputeUnitPrice), data[0])
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(data[1:]))

	memoProgram := tx.Message.AccountKeys[tx.Message.Instructions[1].ProgramIDIndex]
	assert.Equal(t, MemoProgramID, memoProgram)
	assert.Equal(t, []byte("hello"), []byte(tx.Message.Instructions[1].Data))
}

func TestMemoTxBuilder_NoPriorityFee(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tx, err := NewMemoTxBuilder(payer, 0).Build(solana.Hash{1}, "x")
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 1)
}

func TestMemoTxBuilder_FactoryProducesDistinctSignatures(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	var blockhash solana.Hash
	blockhash[31] = 1
	client := newTestClient(&mockRPCClient{blockhash: blockhash})

	factory := NewMemoTxBuilder(payer, 1).Factory()
	tx1, err := factory(context.Background(), client)
	require.NoError(t, err)
	tx2, err := factory(context.Background(), client)
	require.NoError(t, err)

	assert.Equal(t, blockhash, tx1.Message.RecentBlockhash)
	assert.NotEqual(t, tx1.Signatures[0], tx2.Signatures[0])
}

func TestMemoTxBuilder_FactoryBlockhashError(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	client := newTestClient(&mockRPCClient{err: errors.New("node is behind")})
	_, err = NewMemoTxBuilder(payer, 1).Factory()(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node is behind")
}

type nameOnlyEndpoint struct {
	relay.Endpoint
}

func (nameOnlyEndpoint) Name() string { return "bare" }

func TestMemoTxBuilder_FactoryRequiresBlockhashSource(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = NewMemoTxBuilder(payer, 1).Factory()(context.Background(), nameOnlyEndpoint{})
	require.ErrorIs(t, err, ErrNoBlockhashSource)
	assert.Contains(t, err.Error(), "bare")
}

func TestLoadKeypair(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	// solana-keygen writes the 64-byte secret as a JSON array of numbers.
	nums := make([]int, len(key))
	for i, b := range key {
		nums[i] = int(b)
	}
	buf, err := json.Marshal(nums)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, buf, 0o600))

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())

	_, err = LoadKeypair(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load keypair")
}
