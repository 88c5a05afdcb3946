package tracing

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
	"github.com/xssnick/tonutils-tracer/metrics"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics("test", "tracing")
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeStore struct {
	msgs    map[string]*Message
	fetches atomic.Int64
	delay   func(id string) time.Duration
}

func newFakeStore(msgs ...*Message) *fakeStore {
	s := &fakeStore{msgs: map[string]*Message{}}
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	return s
}

func (s *fakeStore) FetchMessage(ctx context.Context, id string) (*Message, error) {
	s.fetches.Add(1)
	if s.delay != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay(id)):
		}
	}

	m, ok := s.msgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *m
	cp.OutMessages = nil
	return &cp, nil
}

// fakeDecoder decodes bodies by their text.
type fakeDecoder map[string]*contracts.DecodedBody

func (d fakeDecoder) DecodeBody(_ *contracts.ABI, body []byte, _ bool) (*contracts.DecodedBody, error) {
	res, ok := d[string(body)]
	if !ok {
		return nil, &contracts.DecodeError{Reason: "unknown body " + string(body)}
	}
	return res, nil
}

var testABI = &contracts.ABI{
	ABIVersion: 2,
	Functions: []contracts.Function{
		{Name: "constructor"},
		{Name: "transfer"},
		{Name: "getBalance"},
	},
	Events: []contracts.Event{
		{Name: "Transferred"},
	},
}

func testCode(n uint64) *cell.Cell {
	return cell.BeginCell().MustStoreUInt(n, 64).EndCell()
}

func newTestTracer(store MessageStore, reg ContractRegistry, dec contracts.BodyDecoder, opts ...func(*Options)) *Tracer {
	o := DefaultOptions()
	o.Decoder = dec
	o.Output = io.Discard
	for _, f := range opts {
		f(&o)
	}
	return NewTracer(store, reg, o)
}

func okTx(out ...string) *Transaction {
	return &Transaction{
		Hash:      "tx",
		Compute:   &ComputePhase{Type: ComputeTypeVM, Success: true, GasFees: big.NewInt(1000)},
		Action:    &ActionPhase{Success: true, TotalActionFees: big.NewInt(10)},
		TotalFees: big.NewInt(1010),
		OutMsgs:   out,
	}
}

func computeFailedTx(code int32, out ...string) *Transaction {
	return &Transaction{
		Hash:      "tx",
		Compute:   &ComputePhase{Type: ComputeTypeVM, ExitCode: code, GasFees: big.NewInt(1000)},
		Aborted:   true,
		TotalFees: big.NewInt(1000),
		OutMsgs:   out,
	}
}

func actionFailedTx(code int32, out ...string) *Transaction {
	tx := okTx(out...)
	tx.Action = &ActionPhase{ResultCode: code}
	tx.Aborted = true
	return tx
}

func internalMsg(id, src, dst, body string, tx *Transaction) *Message {
	m := &Message{
		ID:          id,
		Src:         src,
		Dst:         dst,
		Kind:        KindInternal,
		Bounce:      true,
		Value:       big.NewInt(1_000_000_000),
		Transaction: tx,
	}
	if body != "" {
		m.Body = []byte(body)
	}
	return m
}

func externalIn(id, dst, body string, tx *Transaction) *Message {
	return &Message{
		ID:          id,
		Dst:         dst,
		Kind:        KindExternalIn,
		Body:        []byte(body),
		Transaction: tx,
	}
}

func externalOut(id, src, body string) *Message {
	return &Message{
		ID:   id,
		Src:  src,
		Kind: KindExternalOut,
		Body: []byte(body),
	}
}

func pathIDs(path []PathEntry) []string {
	var res []string
	for _, e := range path {
		res = append(res, e.Node.Msg.ID)
	}
	return res
}
