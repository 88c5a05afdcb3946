package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tl"
	"github.com/xssnick/tonutils-go/ton"

	"github.com/xssnick/tonutils-tracer/config"
	"github.com/xssnick/tonutils-tracer/metrics"
)

type BalancerType string

const (
	BalancerTypeRoundRobin BalancerType = "round_robin"
	BalancerTypeFailOver   BalancerType = "fail_over"
)

// liteConn is the part of liteclient.ConnectionPool used by a backend.
type liteConn interface {
	QueryLiteserver(ctx context.Context, payload tl.Serializable, result tl.Serializable) error
	StickyContext(ctx context.Context) context.Context
	StickyContextNextNode(ctx context.Context) (context.Context, error)
	StickyNodeID(ctx context.Context) uint32
}

type Backend struct {
	Name   string
	Client liteConn

	failsStreak uint64
	lastRequest int64
	lastSuccess int64
}

// BackendBalancer spreads liteserver queries over several backends. Queries
// with a sticky context stay on the backend that was picked first.
type BackendBalancer struct {
	backends []*Backend

	balancerType BalancerType
	counter      uint64
}

type stickyBackendKey struct{}

func NewBackendBalancer(ctx context.Context, backends []config.BackendLiteserver, typ BalancerType) (*BackendBalancer, error) {
	var list []*Backend
	for _, backend := range backends {
		client := liteclient.NewConnectionPool()
		if err := client.AddConnection(ctx, backend.Addr, base64.StdEncoding.EncodeToString(backend.Key)); err != nil {
			log.Error().Err(err).Str("backend", backend.Addr).Msg("failed to connect")
			continue
		}

		list = append(list, &Backend{
			Name:   backend.Name,
			Client: client,
		})
		log.Info().Str("backend", backend.Addr).Msg("connected to backend")
	}
	return newBalancer(list, typ)
}

func newBalancer(backends []*Backend, typ BalancerType) (*BackendBalancer, error) {
	switch typ {
	case BalancerTypeRoundRobin, BalancerTypeFailOver:
	default:
		return nil, fmt.Errorf("unknown balancer type: %s", typ)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no active backends")
	}
	return &BackendBalancer{
		backends:     backends,
		balancerType: typ,
	}, nil
}

func (b *BackendBalancer) GetBackend() *Backend {
	if b.balancerType == BalancerTypeFailOver {
		for _, backend := range b.backends {
			if backend.failed() {
				continue
			}
			return backend
		}
		// all nodes failed, round-robin over them until someone is alive
	}

	x := atomic.AddUint64(&b.counter, 1)
	return b.backends[x%uint64(len(b.backends))]
}

func (b *BackendBalancer) backend(ctx context.Context) *Backend {
	if be, ok := ctx.Value(stickyBackendKey{}).(*Backend); ok {
		return be
	}
	return b.GetBackend()
}

func (b *BackendBalancer) QueryLiteserver(ctx context.Context, payload tl.Serializable, result tl.Serializable) error {
	return b.backend(ctx).QueryLiteserver(ctx, payload, result)
}

func (b *BackendBalancer) StickyContext(ctx context.Context) context.Context {
	be := b.backend(ctx)
	return context.WithValue(be.Client.StickyContext(ctx), stickyBackendKey{}, be)
}

func (b *BackendBalancer) StickyContextNextNode(ctx context.Context) (context.Context, error) {
	be, ok := ctx.Value(stickyBackendKey{}).(*Backend)
	if !ok {
		return b.StickyContext(ctx), nil
	}
	return be.Client.StickyContextNextNode(ctx)
}

func (b *BackendBalancer) StickyNodeID(ctx context.Context) uint32 {
	if be, ok := ctx.Value(stickyBackendKey{}).(*Backend); ok {
		return be.Client.StickyNodeID(ctx)
	}
	return 0
}

func (b *Backend) failed() bool {
	return atomic.LoadUint64(&b.failsStreak) > 10 &&
		atomic.LoadInt64(&b.lastRequest)-atomic.LoadInt64(&b.lastSuccess) > 5
}

func (b *Backend) QueryLiteserver(ctx context.Context, payload tl.Serializable, result tl.Serializable) (err error) {
	tm := time.Now()
	defer func() {
		if _, ok := payload.([]tl.Serializable); ok {
			// wait master prefixed queries are not tracked
			return
		}

		atomic.StoreInt64(&b.lastRequest, time.Now().Unix())
		status := "ok"
		if err != nil {
			if strings.HasSuffix(err.Error(), "context canceled") {
				return
			}
			atomic.AddUint64(&b.failsStreak, 1)
			status = "failed"
			log.Debug().Err(err).Str("name", b.Name).Msg("backend query failed")
		} else if ls, ok := lsError(result); ok {
			atomic.AddUint64(&b.failsStreak, 1)
			status = "ls_error"
			log.Debug().Str("name", b.Name).Str("reason", ls.Text).Int32("code", ls.Code).Msg("backend query ls error")
		} else {
			atomic.StoreUint64(&b.failsStreak, 0)
			atomic.StoreInt64(&b.lastSuccess, atomic.LoadInt64(&b.lastRequest))
		}

		metrics.Global.BackendQueries.WithLabelValues(b.Name, reflect.TypeOf(payload).String(), status).Observe(time.Since(tm).Seconds())
	}()

	if dl, ok := ctx.Deadline(); !ok || dl.After(time.Now().Add(10*time.Second)) {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	return b.Client.QueryLiteserver(ctx, payload, result)
}

func lsError(result tl.Serializable) (ton.LSError, bool) {
	switch r := result.(type) {
	case ton.LSError:
		return r, true
	case *ton.LSError:
		if r != nil {
			return *r, true
		}
	case *tl.Serializable:
		if r != nil {
			ls, ok := (*r).(ton.LSError)
			return ls, ok
		}
	}
	return ton.LSError{}, false
}
