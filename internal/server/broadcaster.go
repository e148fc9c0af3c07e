package server

import (
	"log"
	"slices"

	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/stats"
)

// Broadcaster fans one event out to every currently-online participant of a
// chat. Delivery is at-most-once per online recipient: offline participants
// are skipped and a recipient whose send buffer is full loses the event.
// Clients reconcile missed events with the unread catch-up fetch.
type Broadcaster struct {
	log        *log.Logger
	membership *chat.MembershipService
	registry   *Registry
	stats      stats.StatsProvider
}

func NewBroadcaster(logger *log.Logger, membership *chat.MembershipService, registry *Registry, statsProvider stats.StatsProvider) *Broadcaster {
	return &Broadcaster{
		log:        logger,
		membership: membership,
		registry:   registry,
		stats:      statsProvider,
	}
}

// Broadcast pushes event to each online participant of chatId, except the
// user ids listed in skip. A failed push to one recipient never aborts the
// rest.
func (b *Broadcaster) Broadcast(chatId int, event *ServerEvent, skip ...int) {
	participantIds, err := b.membership.ParticipantIds(chatId)
	if err != nil {
		b.log.Printf("broadcast: resolve participants for chat %d: %v", chatId, err)
		return
	}

	for _, userId := range participantIds {
		if slices.Contains(skip, userId) {
			continue
		}

		c, ok := b.registry.Lookup(userId)
		if !ok {
			continue
		}

		if !c.queueEvent(event) {
			b.log.Printf("broadcast: dropping %q event for user %d", event.Event, userId)
			b.stats.Incr(stats.FanoutErrors)
			continue
		}

		b.stats.Incr(stats.EventsFannedOut)
	}
}
