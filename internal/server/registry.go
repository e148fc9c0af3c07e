package server

import (
	"log"
	"sync"

	"github.com/pingpad/pingpad/internal/stats"
)

// Registry is the process-wide map of online user id to live connection.
// Each user id holds at most one connection: registering a second one
// replaces the first, which is closed and considered dead for sends. The
// registry is not persisted; a restart comes up empty and clients reconcile
// via the unread catch-up fetch.
type Registry struct {
	log     *log.Logger
	stats   stats.StatsProvider
	mu      sync.Mutex
	clients map[int]*Client
}

func NewRegistry(logger *log.Logger, statsProvider stats.StatsProvider) *Registry {
	return &Registry{
		log:     logger,
		stats:   statsProvider,
		clients: make(map[int]*Client),
	}
}

// Register installs c as the live connection for userId. A previous
// connection for the same user is stopped and overwritten.
func (reg *Registry) Register(userId int, c *Client) {
	reg.mu.Lock()
	prev, replaced := reg.clients[userId]
	reg.clients[userId] = c
	reg.mu.Unlock()

	if replaced && prev != c {
		reg.log.Printf("replacing live connection for user %d", userId)
		prev.stopClient()
	} else if !replaced {
		reg.stats.Incr(stats.ActiveConnections)
	}
}

// Unregister removes the entry for userId, but only when it still points at
// c: the teardown of a replaced connection must not evict its successor.
// Calling it twice, or for a user that was never registered, is a no-op.
func (reg *Registry) Unregister(userId int, c *Client) {
	reg.mu.Lock()
	cur, ok := reg.clients[userId]
	if ok && cur == c {
		delete(reg.clients, userId)
	} else {
		ok = false
	}
	reg.mu.Unlock()

	if ok {
		reg.stats.Decr(stats.ActiveConnections)
	}
}

func (reg *Registry) Lookup(userId int) (*Client, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	c, ok := reg.clients[userId]
	return c, ok
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.clients)
}

// Shutdown stops every live connection.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	clients := make([]*Client, 0, len(reg.clients))
	for _, c := range reg.clients {
		clients = append(clients, c)
	}
	reg.mu.Unlock()

	for _, c := range clients {
		c.stopClient()
	}
}
