package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

const (
	srcRaw = "0:1111111111111111111111111111111111111111111111111111111111111111"
	dstRaw = "0:2222222222222222222222222222222222222222222222222222222222222222"
)

type fakeLiteAPI struct {
	account   *tlb.Account
	txs       []*tlb.Transaction
	accounts  []string
	listCalls int
}

func (f *fakeLiteAPI) CurrentMasterchainInfo(context.Context) (*ton.BlockIDExt, error) {
	return &ton.BlockIDExt{}, nil
}

func (f *fakeLiteAPI) GetAccount(_ context.Context, _ *ton.BlockIDExt, addr *address.Address) (*tlb.Account, error) {
	f.accounts = append(f.accounts, addr.StringRaw())
	return f.account, nil
}

func (f *fakeLiteAPI) ListTransactions(context.Context, *address.Address, uint32, uint64, []byte) ([]*tlb.Transaction, error) {
	f.listCalls++
	if f.listCalls > 1 {
		return nil, ton.ErrNoTransactionsWereFound
	}
	return f.txs, nil
}

func testInternal() *tlb.Message {
	return &tlb.Message{
		MsgType: tlb.MsgTypeInternal,
		Msg: &tlb.InternalMessage{
			Bounce:  true,
			SrcAddr: address.MustParseRawAddr(srcRaw),
			DstAddr: address.MustParseRawAddr(dstRaw),
			Amount:  tlb.MustFromTON("1.5"),
			Body:    cell.BeginCell().MustStoreUInt(7, 32).EndCell(),
		},
	}
}

func failedTransaction(in *tlb.Message) *tlb.Transaction {
	tx := &tlb.Transaction{
		Hash:      []byte{0xab, 0xcd},
		TotalFees: tlb.CurrencyCollection{Coins: tlb.FromNanoTON(big.NewInt(100))},
		Description: tlb.TransactionDescriptionOrdinary{
			ComputePhase: tlb.ComputePhase{Phase: tlb.ComputePhaseSkipped{}},
			ActionPhase:  &tlb.ActionPhase{ResultCode: 37},
			Aborted:      true,
		},
	}
	tx.IO.In = in
	return tx
}

func TestLiteWatch(t *testing.T) {
	in := testInternal()
	api := &fakeLiteAPI{
		account: &tlb.Account{LastTxLT: 10, LastTxHash: []byte{1}},
		txs:     []*tlb.Transaction{failedTransaction(in)},
	}
	l, err := NewLite(api, LiteOptions{})
	require.NoError(t, err)

	expected, err := convertMessage(in)
	require.NoError(t, err)

	_, err = l.FetchMessage(context.Background(), expected.ID)
	require.ErrorIs(t, err, tracing.ErrNotFound)

	require.NoError(t, l.Watch(context.Background(), dstRaw))
	assert.Equal(t, []string{dstRaw}, api.accounts)
	assert.Equal(t, 1, api.listCalls)

	msg, err := l.FetchMessage(context.Background(), expected.ID)
	require.NoError(t, err)
	assert.Equal(t, tracing.KindInternal, msg.Kind)
	assert.Equal(t, srcRaw, msg.Src)
	assert.Equal(t, dstRaw, msg.Dst)
	assert.True(t, msg.Bounce)
	assert.Equal(t, "1500000000", msg.Value.String())
	assert.NotEmpty(t, msg.Body)

	tx := msg.Transaction
	require.NotNil(t, tx)
	assert.Equal(t, "abcd", tx.Hash)
	assert.True(t, tx.Aborted)
	assert.Equal(t, tracing.ComputeTypeSkipped, tx.Compute.Type)
	assert.Equal(t, int32(37), tx.Action.ResultCode)
	assert.Equal(t, int64(100), tx.TotalFees.Int64())
	assert.Empty(t, tx.OutMsgs)
}

func TestLiteFetchWaitsForDelivery(t *testing.T) {
	in := testInternal()
	api := &fakeLiteAPI{
		account: &tlb.Account{LastTxLT: 10, LastTxHash: []byte{1}},
		txs:     []*tlb.Transaction{failedTransaction(in)},
	}
	l, err := NewLite(api, LiteOptions{QueriesPerSecond: 100})
	require.NoError(t, err)

	pending, err := convertMessage(in)
	require.NoError(t, err)
	l.index.Add(pending.ID, pending)

	msg, err := l.FetchMessage(context.Background(), pending.ID)
	require.NoError(t, err)
	require.NotNil(t, msg.Transaction)
	assert.Equal(t, []string{dstRaw}, api.accounts)

	// delivered messages are served from the index
	_, err = l.FetchMessage(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Len(t, api.accounts, 1)
}

func TestLiteWatchEmptyAccount(t *testing.T) {
	api := &fakeLiteAPI{account: &tlb.Account{}}
	l, err := NewLite(api, LiteOptions{})
	require.NoError(t, err)

	require.NoError(t, l.Watch(context.Background(), dstRaw))
	assert.Zero(t, api.listCalls)

	require.Error(t, l.Watch(context.Background(), "not an address"))
}

func TestConvertExternalDeploy(t *testing.T) {
	code := cell.BeginCell().MustStoreUInt(0xbeef, 16).EndCell()
	m := &tlb.Message{
		MsgType: tlb.MsgTypeExternalIn,
		Msg: &tlb.ExternalMessage{
			DstAddr: address.MustParseRawAddr(dstRaw),
			StateInit: &tlb.StateInit{
				Code: code,
				Data: cell.BeginCell().EndCell(),
			},
			Body: cell.BeginCell().MustStoreUInt(1, 8).EndCell(),
		},
	}

	msg, err := convertMessage(m)
	require.NoError(t, err)
	assert.Equal(t, tracing.KindExternalIn, msg.Kind)
	assert.Empty(t, msg.Src)
	assert.Equal(t, dstRaw, msg.Dst)
	assert.Equal(t, contracts.CodeHash(code), msg.CodeHash)
	assert.Len(t, msg.ID, 64)
}

func TestRawAddr(t *testing.T) {
	assert.Empty(t, rawAddr(nil))
	assert.Equal(t, dstRaw, rawAddr(address.MustParseRawAddr(dstRaw)))
}
