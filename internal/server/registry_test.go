package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pingpad/pingpad/internal/stats"
	"github.com/pingpad/pingpad/internal/testutil"
	"github.com/pingpad/pingpad/internal/types"
)

func newTestClient(t *testing.T, userId int) *Client {
	cs := &ChatServer{
		log:   testutil.TestLogger(t),
		stats: &stats.MockStatsUpdater{},
	}

	return &Client{
		chatServer: cs,
		log:        cs.log,
		user:       types.User{Id: userId, Username: fmt.Sprintf("user%d", userId)},
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func isStopped(c *Client) bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

	c := newTestClient(t, 1)
	reg.Register(1, c)

	got, ok := reg.Lookup(1)
	assert.True(t, ok, "expected user 1 to be registered")
	assert.Same(t, c, got, "expected lookup to return the registered client")
	assert.Equal(t, 1, reg.Len(), "expected one live connection")

	_, ok = reg.Lookup(2)
	assert.False(t, ok, "expected no entry for an offline user")
}

func TestRegistryRegisterReplacesPrevious(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

	first := newTestClient(t, 1)
	second := newTestClient(t, 1)

	reg.Register(1, first)
	reg.Register(1, second)

	got, ok := reg.Lookup(1)
	assert.True(t, ok, "expected user 1 to stay registered")
	assert.Same(t, second, got, "expected the newer connection to win")
	assert.True(t, isStopped(first), "expected the replaced connection to be stopped")
	assert.False(t, isStopped(second), "expected the new connection to stay live")
	assert.Equal(t, 1, reg.Len(), "expected a single entry after replacement")
}

func TestRegistryUnregister(t *testing.T) {
	t.Run("removes the current connection", func(t *testing.T) {
		reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

		c := newTestClient(t, 1)
		reg.Register(1, c)
		reg.Unregister(1, c)

		_, ok := reg.Lookup(1)
		assert.False(t, ok, "expected user 1 to be gone")
	})

	t.Run("stale handle does not evict the successor", func(t *testing.T) {
		reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

		first := newTestClient(t, 1)
		second := newTestClient(t, 1)
		reg.Register(1, first)
		reg.Register(1, second)

		// teardown of the replaced connection races the new registration
		reg.Unregister(1, first)

		got, ok := reg.Lookup(1)
		assert.True(t, ok, "expected the successor to survive")
		assert.Same(t, second, got, "expected the successor to still be registered")
	})

	t.Run("is idempotent", func(t *testing.T) {
		reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

		c := newTestClient(t, 1)
		reg.Register(1, c)
		reg.Unregister(1, c)
		reg.Unregister(1, c)
		reg.Unregister(2, c)

		assert.Equal(t, 0, reg.Len(), "expected registry to be empty")
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient(t, i)
			reg.Register(i, c)
			reg.Lookup(i)
			reg.Unregister(i, c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len(), "expected all connections unregistered")
}

func TestRegistryShutdown(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t), &stats.MockStatsUpdater{})

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(t, i+1)
		reg.Register(i+1, clients[i])
	}

	reg.Shutdown()

	for _, c := range clients {
		assert.True(t, isStopped(c), "expected every connection stopped")
	}
}
