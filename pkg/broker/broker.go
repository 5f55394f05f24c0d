// Package broker fans post changes out to every portal instance over redis
// pub/sub, so views connected to another instance refresh too.
package broker

import (
	"context"
	"sync"

	"newstech/pkg/envelope"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Channel      = "portal:posts"
	ActionChange = "posts.changed"
)

// Change is the payload of a posts.changed event.
type Change struct {
	PostID int    `json:"post_id"`
	Action string `json:"action"`
}

type HandlerFunc func(envelope.Envelope)

// Broker is nil-safe: a nil *Broker publishes nothing, which is how a
// single instance without redis runs.
type Broker struct {
	rdb      *redis.Client
	instance string
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	handlers sync.Map
	wg       sync.WaitGroup
}

// New returns nil when rdb is nil. instance tags outgoing events so an
// instance ignores its own.
func New(rdb *redis.Client, instance string, log *zap.Logger) *Broker {
	if rdb == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		rdb:      rdb,
		instance: instance,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *Broker) Publish(ctx context.Context, env envelope.Envelope) error {
	if b == nil {
		return nil
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, data).Err()
}

// PostsChanged announces a mutation to the other instances.
func (b *Broker) PostsChanged(ctx context.Context, postID int, action string) {
	if b == nil {
		return
	}
	env, err := envelope.NewEvent(ActionChange, b.instance, Change{PostID: postID, Action: action})
	if err != nil {
		return
	}
	if err := b.Publish(context.WithoutCancel(ctx), env); err != nil {
		b.log.Warn("publish failed", zap.String("action", ActionChange), zap.Error(err))
	}
}

func (b *Broker) On(action string, fn HandlerFunc) {
	if b == nil {
		return
	}
	b.handlers.Store(action, fn)
}

// Subscribe starts delivering events from other instances to the handlers
// registered with On. It returns once the subscription is confirmed.
func (b *Broker) Subscribe(ctx context.Context) error {
	if b == nil {
		return nil
	}
	sub := b.rdb.Subscribe(b.ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	ch := sub.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(msg.Payload)
			}
		}
	}()
	return nil
}

func (b *Broker) dispatch(payload string) {
	env, err := envelope.Unmarshal([]byte(payload))
	if err != nil {
		b.log.Debug("dropping malformed event", zap.Error(err))
		return
	}
	if env.Source == b.instance {
		return
	}
	if fn, ok := b.handlers.Load(env.Action); ok {
		fn.(HandlerFunc)(env)
	}
}

func (b *Broker) Close() {
	if b == nil {
		return
	}
	b.cancel()
	b.wg.Wait()
}
