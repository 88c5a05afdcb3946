package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kevinms/leakybucket-go"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

// LiteAPI is the part of ton.APIClient used by the liteserver store.
type LiteAPI interface {
	CurrentMasterchainInfo(ctx context.Context) (*ton.BlockIDExt, error)
	GetAccount(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (*tlb.Account, error)
	ListTransactions(ctx context.Context, addr *address.Address, num uint32, lt uint64, txHash []byte) ([]*tlb.Transaction, error)
}

// Lite builds messages from account transactions fetched from liteservers.
// Messages become known when the account which received or sent them is
// scanned, either explicitly with Watch or when a known message is fetched
// before its delivery was seen.
type Lite struct {
	api   LiteAPI
	index *lru.ARCCache

	limiter   *leakybucket.LeakyBucket
	pause     time.Duration
	scanDepth uint32
}

type LiteOptions struct {
	QueriesPerSecond float64
	ScanDepth        uint32
	IndexSize        int
}

func NewLite(api LiteAPI, opts LiteOptions) (*Lite, error) {
	if opts.QueriesPerSecond <= 0 {
		opts.QueriesPerSecond = 20
	}
	if opts.ScanDepth == 0 {
		opts.ScanDepth = 32
	}
	if opts.IndexSize <= 0 {
		opts.IndexSize = 65536
	}

	index, err := lru.NewARC(opts.IndexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to init message index: %w", err)
	}

	return &Lite{
		api:       api,
		index:     index,
		limiter:   leakybucket.NewLeakyBucket(opts.QueriesPerSecond, int64(opts.QueriesPerSecond)+1),
		pause:     time.Duration(float64(time.Second) / opts.QueriesPerSecond),
		scanDepth: opts.ScanDepth,
	}, nil
}

func (l *Lite) FetchMessage(ctx context.Context, id string) (_ *tracing.Message, err error) {
	tm := time.Now()
	defer func() {
		observe("liteserver", tm, err)
	}()

	msg := l.lookup(id)
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if msg.Transaction != nil || msg.Kind != tracing.KindInternal || msg.Dst == "" {
		return clone(msg), nil
	}

	if err = l.Watch(ctx, msg.Dst); err != nil {
		return nil, err
	}
	if delivered := l.lookup(id); delivered != nil {
		msg = delivered
	}
	return clone(msg), nil
}

// Watch indexes the last transactions of the account.
func (l *Lite) Watch(ctx context.Context, addr string) error {
	a, err := address.ParseRawAddr(addr)
	if err != nil {
		a, err = address.ParseAddr(addr)
		if err != nil {
			return fmt.Errorf("invalid address %s: %w", addr, err)
		}
	}

	if err = l.throttle(ctx); err != nil {
		return err
	}
	master, err := l.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get masterchain info: %w", err)
	}

	if err = l.throttle(ctx); err != nil {
		return err
	}
	acc, err := l.api.GetAccount(ctx, master, a)
	if err != nil {
		return fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	if acc.LastTxLT == 0 {
		return nil
	}

	lt, hash := acc.LastTxLT, acc.LastTxHash
	for left := l.scanDepth; left > 0 && lt != 0; {
		num := min(left, 16)
		if err = l.throttle(ctx); err != nil {
			return err
		}

		txs, err := l.api.ListTransactions(ctx, a, num, lt, hash)
		if err != nil {
			if errors.Is(err, ton.ErrNoTransactionsWereFound) {
				break
			}
			return fmt.Errorf("failed to list transactions of %s: %w", addr, err)
		}
		if len(txs) == 0 {
			break
		}

		for _, tx := range txs {
			l.indexTransaction(tx)
		}
		left -= min(left, uint32(len(txs)))
		// oldest first
		lt, hash = txs[0].PrevTxLT, txs[0].PrevTxHash
	}

	log.Debug().Str("addr", addr).Msg("account transactions indexed")
	return nil
}

func (l *Lite) lookup(id string) *tracing.Message {
	v, ok := l.index.Get(id)
	if !ok {
		return nil
	}
	return v.(*tracing.Message)
}

func (l *Lite) indexTransaction(tx *tlb.Transaction) {
	converted := convertTransaction(tx)

	var outs []*tracing.Message
	if tx.IO.Out != nil {
		list, err := tx.IO.Out.ToSlice()
		if err != nil {
			log.Warn().Err(err).Hex("tx_hash", tx.Hash).Msg("failed to parse outbound messages")
		}
		for i := range list {
			msg, err := convertMessage(&list[i])
			if err != nil {
				log.Warn().Err(err).Hex("tx_hash", tx.Hash).Int("index", i).Msg("failed to convert outbound message")
				continue
			}
			converted.OutMsgs = append(converted.OutMsgs, msg.ID)
			outs = append(outs, msg)
		}
	}

	if tx.IO.In != nil {
		msg, err := convertMessage(tx.IO.In)
		if err != nil {
			log.Warn().Err(err).Hex("tx_hash", tx.Hash).Msg("failed to convert inbound message")
		} else {
			msg.Transaction = converted
			l.index.Add(msg.ID, msg)
		}
	}

	for _, msg := range outs {
		if known := l.lookup(msg.ID); known != nil && known.Transaction != nil {
			continue
		}
		l.index.Add(msg.ID, msg)
	}
}

func (l *Lite) throttle(ctx context.Context) error {
	for l.limiter.Add(1) != 1 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pause):
		}
	}
	return nil
}
