package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xssnick/tonutils-tracer/internal/tracing"
)

func newTestRedis(t *testing.T, prefix string, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedis(client, prefix, ttl), s
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRedis(t, "tracer", time.Minute)

	delivered := deliveredMsg("a", "b", "c")
	extOut := &tracing.Message{
		ID:   "b",
		Src:  "0:bbbb",
		Kind: tracing.KindExternalOut,
		Body: []byte{1, 2, 3},
	}
	skipped := deliveredMsg("c")
	skipped.Body = nil
	skipped.Transaction.Compute = &tracing.ComputePhase{Type: tracing.ComputeTypeSkipped}
	skipped.Transaction.Action = nil

	require.NoError(t, r.Put(ctx, delivered, extOut, skipped))
	assert.True(t, s.Exists("tracer:msg:a"))
	assert.Equal(t, time.Minute, s.TTL("tracer:msg:a"))

	for _, want := range []*tracing.Message{delivered, extOut, skipped} {
		got, err := r.FetchMessage(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got, want.ID)
	}
}

func TestRedisNotFound(t *testing.T) {
	r, _ := newTestRedis(t, "", 0)

	_, err := r.FetchMessage(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, tracing.ErrNotFound)
}

func TestRedisBrokenRecord(t *testing.T) {
	r, s := newTestRedis(t, "", 0)
	require.NoError(t, s.Set("msg:bad", "not msgpack"))

	_, err := r.FetchMessage(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, tracing.ErrNotFound)
}

func TestRedisTrace(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t, "emu", 0)

	root := &tracing.Message{
		ID:   "ext",
		Dst:  "0:aaaa",
		Kind: tracing.KindExternalIn,
		Body: []byte{1},
		Transaction: &tracing.Transaction{
			Compute: &tracing.ComputePhase{Type: tracing.ComputeTypeVM, Success: true},
			Action:  &tracing.ActionPhase{Success: true},
			OutMsgs: []string{"int"},
		},
	}
	child := deliveredMsg("int")
	require.NoError(t, r.Put(ctx, root, child))

	tracer := tracing.NewTracer(r, nil, tracing.Options{Enabled: true})
	got, err := tracer.Trace(ctx, "ext", tracing.ModeDefault, tracing.AllowedCodes{}.WithCompute(50))
	require.NoError(t, err)
	require.Len(t, got.OutMessages, 1)
	assert.Equal(t, "int", got.OutMessages[0].ID)
}
