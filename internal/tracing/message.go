package tracing

import (
	"context"
	"errors"
	"math/big"
)

type MsgKind int

const (
	KindInternal    MsgKind = 0
	KindExternalIn  MsgKind = 1
	KindExternalOut MsgKind = 2
)

func (k MsgKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindExternalIn:
		return "ext_in"
	case KindExternalOut:
		return "ext_out"
	}
	return "unknown"
}

type ComputeType int

const (
	// ComputeTypeSkipped marks a compute phase that did not run. Stores report
	// it as 0; nothing beyond "skipped" is derived from it.
	ComputeTypeSkipped ComputeType = 0
	ComputeTypeVM      ComputeType = 1
)

type ComputePhase struct {
	Type     ComputeType
	Success  bool
	ExitCode int32
	GasFees  *big.Int
	GasUsed  uint64
}

type ActionPhase struct {
	Success         bool
	ResultCode      int32
	TotalActionFees *big.Int
}

// Transaction is the result of delivering a message, as seen by the store.
type Transaction struct {
	Hash    string
	Compute *ComputePhase
	Action  *ActionPhase
	Aborted bool
	// nil when the transaction had no storage phase
	StorageFeesCollected *big.Int
	TotalFees            *big.Int
	OutMsgs              []string
}

type Message struct {
	ID      string
	Src     string
	Dst     string
	Kind    MsgKind
	Body    []byte
	Bounce  bool
	Bounced bool
	// CodeHash is set only when the message carries a state init with code.
	CodeHash    string
	Value       *big.Int
	Transaction *Transaction

	// OutMessages is filled by the tracer in the order of Transaction.OutMsgs.
	OutMessages []*Message
}

// MessageStore is the data source of the tracer.
type MessageStore interface {
	// FetchMessage returns the message and, when it was delivered, its transaction.
	// Unknown ids fail with an error wrapping ErrNotFound.
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

var ErrNotFound = errors.New("message not found")
