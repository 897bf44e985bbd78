package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher delivers change events after the originating transaction has
// committed.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }

const channelPattern = "hostel:*:changes"

// Broker publishes change events on Redis pub/sub so that every server
// instance can relay them to its own WebSocket clients.
type Broker struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewBroker returns a Redis-backed broker.
func NewBroker(rdb *redis.Client, log *logrus.Entry) *Broker {
	return &Broker{rdb: rdb, log: log}
}

// Publish writes ev to the hostel's channel.
func (b *Broker) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(ev.HostelID), payload).Err()
}

// Run forwards every hostel channel into hub until ctx is done.
func (b *Broker) Run(ctx context.Context, hub *Hub) error {
	ps := b.rdb.PSubscribe(ctx, channelPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			hostelID, ok := hostelFromChannel(msg.Channel)
			if !ok {
				b.log.WithField("channel", msg.Channel).Warn("ignoring message on unexpected channel")
				continue
			}
			hub.Broadcast(hostelID, []byte(msg.Payload))
		}
	}
}

func hostelFromChannel(ch string) (uint64, bool) {
	parts := strings.Split(ch, ":")
	if len(parts) != 3 || parts[0] != "hostel" || parts[2] != "changes" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	return id, err == nil
}
