package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boloastro/payments/internal/config"
	"github.com/boloastro/payments/internal/notification/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dispatchTimeout = 5 * time.Second

type StreamParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client
}

// StreamDispatcher publishes messages to a redis stream consumed by the
// WhatsApp delivery worker.
type StreamDispatcher struct {
	stream string
	log    *zap.Logger
	rdb    *redis.Client
}

func NewStreamDispatcher(p StreamParams) domain.Dispatcher {
	return &StreamDispatcher{
		stream: p.Cfg.NotificationStream,
		log:    p.Log.Named("notification.stream"),
		rdb:    p.Redis,
	}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, msg domain.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	err = d.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{
			"kind":    string(msg.Kind),
			"phone":   msg.Phone,
			"payload": string(raw),
		},
	}).Err()
	if err != nil {
		d.log.Warn("dispatch failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("order_id", msg.OrderID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// NoopDispatcher drops messages. Used in tests and when no delivery worker
// is deployed.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, domain.Message) error { return nil }
