package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/xssnick/tonutils-tracer/config"
	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

// querier is the part of pgxpool.Pool used by the store.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres reads messages from the database of a ton indexer.
type Postgres struct {
	db   querier
	pool *pgxpool.Pool
}

const messageQuery = `select M.msg_hash, M.direction, M.tx_hash, M.source, M.destination, M.value, M.bounce, M.bounced,
	B.body, I.body from messages as M
	left join message_contents as B on M.body_hash = B.hash
	left join message_contents as I on M.init_state_hash = I.hash
	where M.msg_hash = $1
	order by (M.direction = 'in') desc limit 1`

const transactionQuery = `select T.hash, T.aborted, T.compute_skipped, T.compute_success, T.compute_exit_code,
	T.compute_gas_fees, T.compute_gas_used, T.action_success, T.action_result_code, T.action_total_action_fees,
	T.storage_fees_collected, T.total_fees from transactions as T where T.hash = $1`

const outMessagesQuery = `select M.msg_hash from messages as M
	where M.tx_hash = $1 and M.direction = 'out' order by M.created_lt asc, M.msg_hash asc`

func NewPostgres(ctx context.Context, cfg config.PostgresStoreConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Postgres{db: pool, pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

type messageRow struct {
	hash      string
	direction string
	txHash    string
	src       *string
	dst       *string
	value     *int64
	bounce    *bool
	bounced   *bool
	body      *string
	initState *string
}

type transactionRow struct {
	hash             string
	aborted          *bool
	computeSkipped   *bool
	computeSuccess   *bool
	computeExitCode  *int32
	computeGasFees   *int64
	computeGasUsed   *int64
	actionSuccess    *bool
	actionResultCode *int32
	actionFees       *int64
	storageFees      *int64
	totalFees        *int64
}

func (p *Postgres) FetchMessage(ctx context.Context, id string) (_ *tracing.Message, err error) {
	tm := time.Now()
	defer func() {
		observe("postgres", tm, err)
	}()

	var r messageRow
	err = p.db.QueryRow(ctx, messageQuery, id).Scan(&r.hash, &r.direction, &r.txHash, &r.src, &r.dst,
		&r.value, &r.bounce, &r.bounced, &r.body, &r.initState)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query message %s: %w", id, err)
	}

	msg, err := r.message()
	if err != nil {
		return nil, err
	}
	if r.direction != "in" {
		// not delivered yet
		return msg, nil
	}

	var t transactionRow
	err = p.db.QueryRow(ctx, transactionQuery, r.txHash).Scan(&t.hash, &t.aborted, &t.computeSkipped, &t.computeSuccess,
		&t.computeExitCode, &t.computeGasFees, &t.computeGasUsed, &t.actionSuccess, &t.actionResultCode, &t.actionFees,
		&t.storageFees, &t.totalFees)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Str("msg_id", id).Str("tx_hash", r.txHash).Msg("transaction of delivered message is not indexed")
			return msg, nil
		}
		return nil, fmt.Errorf("failed to query transaction %s: %w", r.txHash, err)
	}
	msg.Transaction = t.transaction()

	rows, err := p.db.Query(ctx, outMessagesQuery, r.txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query out messages of %s: %w", r.txHash, err)
	}
	msg.Transaction.OutMsgs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan out messages of %s: %w", r.txHash, err)
	}
	return msg, nil
}

func (r *messageRow) message() (*tracing.Message, error) {
	msg := &tracing.Message{
		ID:      r.hash,
		Bounce:  r.bounce != nil && *r.bounce,
		Bounced: r.bounced != nil && *r.bounced,
		Value:   bigFrom(r.value),
	}

	switch {
	case r.src == nil:
		msg.Kind = tracing.KindExternalIn
	case r.dst == nil:
		msg.Kind = tracing.KindExternalOut
	default:
		msg.Kind = tracing.KindInternal
	}
	if r.src != nil {
		msg.Src = *r.src
	}
	if r.dst != nil {
		msg.Dst = *r.dst
	}

	if r.body != nil {
		body, err := base64.StdEncoding.DecodeString(*r.body)
		if err != nil {
			return nil, fmt.Errorf("bad body of %s: %w", r.hash, err)
		}
		msg.Body = body
	}

	if r.initState != nil {
		code, err := contracts.CodeFromStateInit(*r.initState)
		if err != nil {
			log.Debug().Err(err).Str("msg_id", r.hash).Msg("init state without usable code")
		} else {
			msg.CodeHash = contracts.CodeHash(code)
		}
	}
	return msg, nil
}

func (t *transactionRow) transaction() *tracing.Transaction {
	tx := &tracing.Transaction{
		Hash:                 t.hash,
		Aborted:              t.aborted != nil && *t.aborted,
		StorageFeesCollected: bigFrom(t.storageFees),
		TotalFees:            bigFrom(t.totalFees),
	}

	if t.computeSkipped != nil {
		c := &tracing.ComputePhase{
			Type:    tracing.ComputeTypeVM,
			Success: t.computeSuccess != nil && *t.computeSuccess,
			GasFees: bigFrom(t.computeGasFees),
		}
		if *t.computeSkipped {
			c.Type = tracing.ComputeTypeSkipped
		}
		if t.computeExitCode != nil {
			c.ExitCode = *t.computeExitCode
		}
		if t.computeGasUsed != nil {
			c.GasUsed = uint64(*t.computeGasUsed)
		}
		tx.Compute = c
	}

	if t.actionSuccess != nil {
		a := &tracing.ActionPhase{
			Success:         *t.actionSuccess,
			TotalActionFees: bigFrom(t.actionFees),
		}
		if t.actionResultCode != nil {
			a.ResultCode = *t.actionResultCode
		}
		tx.Action = a
	}
	return tx
}

func bigFrom(v *int64) *big.Int {
	if v == nil {
		return nil
	}
	return big.NewInt(*v)
}
