package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
	"github.com/xssnick/tonutils-tracer/metrics"
)

// ErrNotFound is returned by all stores for unknown message ids.
var ErrNotFound = fmt.Errorf("store: %w", tracing.ErrNotFound)

// observe records a fetch of the named store.
func observe(name string, tm time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, tracing.ErrNotFound):
		status = "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	default:
		status = "failed"
	}
	metrics.Global.StoreFetches.WithLabelValues(name, status).Observe(time.Since(tm).Seconds())
}

// clone copies the message so callers may fill OutMessages without touching
// the stored value.
func clone(msg *tracing.Message) *tracing.Message {
	cp := *msg
	cp.OutMessages = nil
	cp.Body = append([]byte(nil), msg.Body...)
	cp.Value = cloneInt(msg.Value)
	if msg.Transaction != nil {
		tx := *msg.Transaction
		tx.OutMsgs = append([]string(nil), msg.Transaction.OutMsgs...)
		if tx.Compute != nil {
			c := *tx.Compute
			tx.Compute = &c
		}
		if tx.Action != nil {
			a := *tx.Action
			tx.Action = &a
		}
		cp.Transaction = &tx
	}
	return &cp
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
