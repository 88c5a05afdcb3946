package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

// Redis keeps msgpack encoded messages under <prefix>:msg:<id>.
// It is filled by emulators and indexers sharing the instance with the tracer.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type messageRecord struct {
	ID       string             `msgpack:"id"`
	Src      string             `msgpack:"src,omitempty"`
	Dst      string             `msgpack:"dst,omitempty"`
	Kind     int                `msgpack:"kind"`
	Body     []byte             `msgpack:"body,omitempty"`
	Bounce   bool               `msgpack:"bounce"`
	Bounced  bool               `msgpack:"bounced"`
	CodeHash string             `msgpack:"code_hash,omitempty"`
	Value    string             `msgpack:"value,omitempty"`
	Tx       *transactionRecord `msgpack:"tx,omitempty"`
}

type transactionRecord struct {
	Hash    string `msgpack:"hash"`
	Aborted bool   `msgpack:"aborted"`

	ComputeExists   bool   `msgpack:"compute_exists"`
	ComputeType     int    `msgpack:"compute_type"`
	ComputeSuccess  bool   `msgpack:"compute_success"`
	ComputeExitCode int32  `msgpack:"compute_exit_code"`
	ComputeGasFees  string `msgpack:"compute_gas_fees,omitempty"`
	ComputeGasUsed  uint64 `msgpack:"compute_gas_used"`

	ActionExists     bool   `msgpack:"action_exists"`
	ActionSuccess    bool   `msgpack:"action_success"`
	ActionResultCode int32  `msgpack:"action_result_code"`
	ActionFees       string `msgpack:"action_fees,omitempty"`

	StorageFees string   `msgpack:"storage_fees,omitempty"`
	TotalFees   string   `msgpack:"total_fees,omitempty"`
	OutMsgs     []string `msgpack:"out_msgs"`
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) key(id string) string {
	if r.prefix == "" {
		return "msg:" + id
	}
	return r.prefix + ":msg:" + id
}

func (r *Redis) Put(ctx context.Context, msgs ...*tracing.Message) error {
	pipe := r.client.Pipeline()
	for _, msg := range msgs {
		data, err := msgpack.Marshal(toRecord(msg))
		if err != nil {
			return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
		}
		pipe.Set(ctx, r.key(msg.ID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store messages: %w", err)
	}
	return nil
}

func (r *Redis) FetchMessage(ctx context.Context, id string) (_ *tracing.Message, err error) {
	tm := time.Now()
	defer func() {
		observe("redis", tm, err)
	}()

	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	var rec messageRecord
	if err = msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return rec.message()
}

func toRecord(msg *tracing.Message) *messageRecord {
	rec := &messageRecord{
		ID:       msg.ID,
		Src:      msg.Src,
		Dst:      msg.Dst,
		Kind:     int(msg.Kind),
		Body:     msg.Body,
		Bounce:   msg.Bounce,
		Bounced:  msg.Bounced,
		CodeHash: msg.CodeHash,
		Value:    intString(msg.Value),
	}

	if tx := msg.Transaction; tx != nil {
		rec.Tx = &transactionRecord{
			Hash:        tx.Hash,
			Aborted:     tx.Aborted,
			StorageFees: intString(tx.StorageFeesCollected),
			TotalFees:   intString(tx.TotalFees),
			OutMsgs:     tx.OutMsgs,
		}
		if c := tx.Compute; c != nil {
			rec.Tx.ComputeExists = true
			rec.Tx.ComputeType = int(c.Type)
			rec.Tx.ComputeSuccess = c.Success
			rec.Tx.ComputeExitCode = c.ExitCode
			rec.Tx.ComputeGasFees = intString(c.GasFees)
			rec.Tx.ComputeGasUsed = c.GasUsed
		}
		if a := tx.Action; a != nil {
			rec.Tx.ActionExists = true
			rec.Tx.ActionSuccess = a.Success
			rec.Tx.ActionResultCode = a.ResultCode
			rec.Tx.ActionFees = intString(a.TotalActionFees)
		}
	}
	return rec
}

func (rec *messageRecord) message() (*tracing.Message, error) {
	var err error
	msg := &tracing.Message{
		ID:       rec.ID,
		Src:      rec.Src,
		Dst:      rec.Dst,
		Kind:     tracing.MsgKind(rec.Kind),
		Body:     rec.Body,
		Bounce:   rec.Bounce,
		Bounced:  rec.Bounced,
		CodeHash: rec.CodeHash,
	}
	if msg.Value, err = parseInt(rec.Value); err != nil {
		return nil, fmt.Errorf("bad value of %s: %w", rec.ID, err)
	}

	t := rec.Tx
	if t == nil {
		return msg, nil
	}

	tx := &tracing.Transaction{
		Hash:    t.Hash,
		Aborted: t.Aborted,
		OutMsgs: t.OutMsgs,
	}
	if tx.StorageFeesCollected, err = parseInt(t.StorageFees); err != nil {
		return nil, fmt.Errorf("bad storage fees of %s: %w", rec.ID, err)
	}
	if tx.TotalFees, err = parseInt(t.TotalFees); err != nil {
		return nil, fmt.Errorf("bad total fees of %s: %w", rec.ID, err)
	}
	if t.ComputeExists {
		tx.Compute = &tracing.ComputePhase{
			Type:     tracing.ComputeType(t.ComputeType),
			Success:  t.ComputeSuccess,
			ExitCode: t.ComputeExitCode,
			GasUsed:  t.ComputeGasUsed,
		}
		if tx.Compute.GasFees, err = parseInt(t.ComputeGasFees); err != nil {
			return nil, fmt.Errorf("bad gas fees of %s: %w", rec.ID, err)
		}
	}
	if t.ActionExists {
		tx.Action = &tracing.ActionPhase{
			Success:    t.ActionSuccess,
			ResultCode: t.ActionResultCode,
		}
		if tx.Action.TotalActionFees, err = parseInt(t.ActionFees); err != nil {
			return nil, fmt.Errorf("bad action fees of %s: %w", rec.ID, err)
		}
	}
	msg.Transaction = tx
	return msg, nil
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
