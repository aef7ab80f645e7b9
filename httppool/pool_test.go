package httppool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseReusesTransport(t *testing.T) {
	p := New(DefaultConfig(), nil)
	defer p.Close()
	ctx := context.Background()

	l1, err := p.Acquire(ctx, "api.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, l1.UseCount())
	l1.Release()

	l2, err := p.Acquire(ctx, "api.example.com")
	require.NoError(t, err)
	assert.Same(t, l1.pt, l2.pt, "successive acquisitions within the idle window should return the same transport")
	assert.Equal(t, 2, l2.UseCount())
	l2.Release()
}

func TestDistinctHostsGetDistinctTransports(t *testing.T) {
	p := New(DefaultConfig(), nil)
	defer p.Close()
	ctx := context.Background()

	la, err := p.Acquire(ctx, "a.example.com")
	require.NoError(t, err)
	defer la.Release()

	lb, err := p.Acquire(ctx, "b.example.com")
	require.NoError(t, err)
	defer lb.Release()

	assert.NotSame(t, la.pt, lb.pt)
}

func TestMaxPerHostBlocksUntilRelease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerHost = 1
	p := New(cfg, nil)
	defer p.Close()

	ctx := context.Background()
	l1, err := p.Acquire(ctx, "host")
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(released)
		l1.Release()
	}()

	l2, err := p.Acquire(ctx, "host")
	require.NoError(t, err)
	defer l2.Release()

	select {
	case <-released:
	default:
		t.Fatal("second Acquire returned before the first was released")
	}
}

func TestAcquireTimesOutAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerHost = 1
	p := New(cfg, nil)
	defer p.Close()

	l1, err := p.Acquire(context.Background(), "host")
	require.NoError(t, err)
	defer l1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "host")
	assert.Error(t, err)
}

func TestNewCooperativeDoesNotShareTransports(t *testing.T) {
	cfg := DefaultConfig()
	blocking := New(cfg, nil)
	defer blocking.Close()
	cooperative := NewCooperative(cfg, nil)
	defer cooperative.Close()

	lb, err := blocking.Acquire(context.Background(), "shared-host")
	require.NoError(t, err)
	defer lb.Release()

	lc, err := cooperative.Acquire(context.Background(), "shared-host")
	require.NoError(t, err)
	defer lc.Release()

	assert.NotSame(t, lb.pt, lc.pt)
}
