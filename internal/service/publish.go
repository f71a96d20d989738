package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/pkg/logging"
)

// publish sends an event without letting broker trouble reach the caller.
func publish(ctx context.Context, p mykafka.Publisher, topic, key string, event map[string]any) {
	if p == nil {
		return
	}
	event["occurred_at"] = time.Now().UTC()
	if err := p.PublishEvent(context.WithoutCancel(ctx), topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "topic", topic, "type", event["type"], "error", err)
	}
}
