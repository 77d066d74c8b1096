package sse

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/jojo-app/realtime-server-go/internal/redis"
)

type envelope struct {
	Origin string `json:"origin"`
	Target Target `json:"target"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between instances over Redis pub/sub. Each
// instance ignores envelopes it published itself, so a session receives an
// event from exactly one instance.
type RedisRelay struct {
	client  *redis.Client
	broker  *Broker
	origin  string
	channel string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewRedisRelay(client *redisclient.Client, broker *Broker) *RedisRelay {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisRelay{
		client:  client.Client,
		broker:  broker,
		origin:  uuid.NewString(),
		channel: redisclient.EventsChannel,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (r *RedisRelay) Forward(ctx context.Context, target Target, event Event) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Target: target, Event: event})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Start subscribes to the events channel and attaches the relay to the
// broker. It returns once the subscription is confirmed.
func (r *RedisRelay) Start() error {
	pubsub := r.client.Subscribe(r.ctx, r.channel)
	if _, err := pubsub.Receive(r.ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	r.broker.SetRelay(r)
	r.started = true
	go r.run(pubsub)

	log.Info().Str("channel", r.channel).Str("origin", r.origin).Msg("event relay started")
	return nil
}

func (r *RedisRelay) run(pubsub *redis.PubSub) {
	defer close(r.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal relayed event")
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.broker.Deliver(env.Target, env.Event)
}

func (r *RedisRelay) Stop() {
	r.broker.SetRelay(nil)
	r.cancel()
	if r.started {
		<-r.done
	}
}
