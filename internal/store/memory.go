package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

// Memory keeps messages in a map. Used by tests and for traces collected elsewhere.
type Memory struct {
	messages map[string]*tracing.Message
	fetches  uint64

	mx sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		messages: map[string]*tracing.Message{},
	}
}

func (m *Memory) Put(msgs ...*tracing.Message) {
	m.mx.Lock()
	defer m.mx.Unlock()

	for _, msg := range msgs {
		m.messages[msg.ID] = clone(msg)
	}
}

func (m *Memory) FetchMessage(ctx context.Context, id string) (_ *tracing.Message, err error) {
	tm := time.Now()
	defer func() {
		observe("memory", tm, err)
	}()

	atomic.AddUint64(&m.fetches, 1)
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	m.mx.RLock()
	msg, ok := m.messages[id]
	m.mx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(msg), nil
}

// Fetches is the number of FetchMessage calls served.
func (m *Memory) Fetches() uint64 {
	return atomic.LoadUint64(&m.fetches)
}
