package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/playperu/escaperoom/internal/game"
)

const relayChannel = "escaperoom:events"

type envelope struct {
	Origin    string     `json:"origin"`
	SessionID string     `json:"sessionId,omitempty"`
	Broadcast bool       `json:"broadcast,omitempty"`
	Event     game.Event `json:"event"`
}

// RedisRelay delivers events locally and copies them to every other instance
// through a Redis channel, so a player's stream sees admin messages sent from
// any instance.
type RedisRelay struct {
	rdb    *redis.Client
	local  *Broker
	origin string
	logger *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, local *Broker, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, local: local, origin: uuid.NewString(), logger: logger}
}

func (r *RedisRelay) Publish(sessionID string, ev game.Event) {
	r.local.Publish(sessionID, ev)
	r.forward(envelope{Origin: r.origin, SessionID: sessionID, Event: ev})
}

func (r *RedisRelay) Broadcast(ev game.Event) {
	r.local.Broadcast(ev)
	r.forward(envelope{Origin: r.origin, Broadcast: true, Event: ev})
}

func (r *RedisRelay) forward(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, relayChannel, data).Err(); err != nil {
		r.logger.Warn("relaying event failed", "type", env.Event.Type, "error", err)
	}
}

// Run copies events published by other instances into the local broker
// until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, relayChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) deliver(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn("dropping malformed relay message", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	if env.Broadcast {
		r.local.Broadcast(env.Event)
		return
	}
	r.local.Publish(env.SessionID, env.Event)
}
