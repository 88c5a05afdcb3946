package tracing

import (
	"sync"

	"github.com/xssnick/tonutils-tracer/internal/contracts"
)

// AddressContext maps live addresses to known contracts. Bindings accumulate
// during a run and are never removed.
type AddressContext struct {
	contracts map[string]*contracts.Contract

	mx sync.RWMutex
}

func NewAddressContext() *AddressContext {
	return &AddressContext{
		contracts: map[string]*contracts.Contract{},
	}
}

func (c *AddressContext) Bind(addr string, contract *contracts.Contract) {
	if contract == nil {
		return
	}
	bound := *contract
	bound.Address = addr

	c.mx.Lock()
	c.contracts[addr] = &bound
	c.mx.Unlock()
}

func (c *AddressContext) Lookup(addr string) *contracts.Contract {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.contracts[addr]
}

// All returns a snapshot of the bindings.
func (c *AddressContext) All() map[string]*contracts.Contract {
	c.mx.RLock()
	defer c.mx.RUnlock()

	res := make(map[string]*contracts.Contract, len(c.contracts))
	for k, v := range c.contracts {
		res[k] = v
	}
	return res
}
