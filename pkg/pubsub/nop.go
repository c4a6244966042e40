package pubsub

import "context"

// nopPubSub is used when Redis is not configured. Publishing succeeds and
// subscribers never receive anything, so consumers fall back to polling.
type nopPubSub struct{}

func NewNop() PubSub {
	return nopPubSub{}
}

func (nopPubSub) Publish(context.Context, string, string) error { return nil }

func (nopPubSub) Subscribe(context.Context, ...string) (<-chan Message, error) { return nil, nil }

func (nopPubSub) Unsubscribe(context.Context, ...string) error { return nil }

func (nopPubSub) Close() error { return nil }
