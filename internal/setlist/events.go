package setlist

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Event types pushed to observers. Exactly one event is published per
// successfully admitted operation, including the idempotent-no-op cases;
// failed operations publish nothing.
const (
	EventEntryAdded       = "entry.added"
	EventEntryRemoved     = "entry.removed"
	EventEntryUpdated     = "entry.updated"
	EventEntriesReordered = "entries.reordered"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type EntryAddedPayload struct {
	RoomID string   `json:"roomId"`
	Entry  SetEntry `json:"entry"`
}

// EntryRemovedPayload's Position is null when the remove raced another
// remove of the same entry: the entry was already gone, so the old position
// is unknown. Observers treat both shapes as "the entry is not in the set".
type EntryRemovedPayload struct {
	RoomID   string `json:"roomId"`
	EntryID  string `json:"entryId"`
	Position *int   `json:"position"`
}

type EntryUpdatedPayload struct {
	RoomID string   `json:"roomId"`
	Entry  SetEntry `json:"entry"`
}

// EntriesReorderedPayload carries the full fresh order, not deltas: a move
// changes many positions at once and an observer that missed an earlier
// message must still converge.
type EntriesReorderedPayload struct {
	RoomID  string     `json:"roomId"`
	EntryID string     `json:"entryId"`
	From    int        `json:"from"`
	To      int        `json:"to"`
	Order   []SetEntry `json:"order"`
}

// Publisher hands change notifications to the broadcast layer. The engine
// does not know how many observers exist or how delivery works.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher pushes events onto the shared broadcast channel that the
// realtime fan-out subscribes to.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     *log.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, logger *log.Logger) *RedisPublisher {
	if channel == "" {
		channel = "broadcast"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, log: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if p.rdb == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event", "type", ev.Type, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		p.log.Error("publish event", "type", ev.Type, "err", err)
	}
}
