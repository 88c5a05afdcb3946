package store

import (
	"encoding/hex"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

func convertMessage(m *tlb.Message) (*tracing.Message, error) {
	c, err := tlb.ToCell(m.Msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	msg := &tracing.Message{
		ID: hex.EncodeToString(c.Hash()),
	}

	var si *tlb.StateInit
	switch x := m.Msg.(type) {
	case *tlb.InternalMessage:
		msg.Kind = tracing.KindInternal
		msg.Bounce = x.Bounce
		msg.Bounced = x.Bounced
		msg.Value = x.Amount.Nano()
		si = x.StateInit
	case *tlb.ExternalMessage:
		msg.Kind = tracing.KindExternalIn
		si = x.StateInit
	case *tlb.ExternalMessageOut:
		msg.Kind = tracing.KindExternalOut
		si = x.StateInit
	default:
		return nil, fmt.Errorf("unsupported message type %T", m.Msg)
	}

	msg.Src = rawAddr(m.Msg.SenderAddr())
	msg.Dst = rawAddr(m.Msg.DestAddr())
	if si != nil && si.Code != nil {
		msg.CodeHash = contracts.CodeHash(si.Code)
	}

	if body := m.Msg.Payload(); body != nil && (body.BitsSize() > 0 || body.RefsNum() > 0) {
		msg.Body = body.ToBOC()
	}
	return msg, nil
}

func convertTransaction(tx *tlb.Transaction) *tracing.Transaction {
	res := &tracing.Transaction{
		Hash:      hex.EncodeToString(tx.Hash),
		TotalFees: tx.TotalFees.Coins.Nano(),
	}

	var desc tlb.TransactionDescriptionOrdinary
	switch d := tx.Description.(type) {
	case tlb.TransactionDescriptionOrdinary:
		desc = d
	case *tlb.TransactionDescriptionOrdinary:
		desc = *d
	default:
		// tick-tock, split and merge transactions are not produced by messages
		return res
	}

	res.Aborted = desc.Aborted
	if desc.StoragePhase != nil {
		res.StorageFeesCollected = desc.StoragePhase.StorageFeesCollected.Nano()
	}

	switch c := desc.ComputePhase.Phase.(type) {
	case tlb.ComputePhaseVM:
		res.Compute = computeVM(&c)
	case *tlb.ComputePhaseVM:
		res.Compute = computeVM(c)
	case tlb.ComputePhaseSkipped, *tlb.ComputePhaseSkipped:
		res.Compute = &tracing.ComputePhase{Type: tracing.ComputeTypeSkipped}
	}

	if a := desc.ActionPhase; a != nil {
		res.Action = &tracing.ActionPhase{
			Success:    a.Success,
			ResultCode: a.ResultCode,
		}
		if a.TotalActionFees != nil {
			res.Action.TotalActionFees = a.TotalActionFees.Nano()
		}
	}
	return res
}

func computeVM(c *tlb.ComputePhaseVM) *tracing.ComputePhase {
	res := &tracing.ComputePhase{
		Type:     tracing.ComputeTypeVM,
		Success:  c.Success,
		ExitCode: c.Details.ExitCode,
		GasFees:  c.GasFees.Nano(),
	}
	if used := c.Details.GasUsed; used != nil && used.IsUint64() {
		res.GasUsed = used.Uint64()
	}
	return res
}

func rawAddr(a *address.Address) string {
	if a == nil || a.Type() != address.StdAddress {
		return ""
	}
	return a.StringRaw()
}
