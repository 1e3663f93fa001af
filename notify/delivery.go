// Package notify delivers texts to players: pushed immediately when they are
// connected, queued in the store otherwise and drained on their next
// connect.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

// Presence pushes text to connected players. *session.Manager satisfies it.
type Presence interface {
	Send(id uuid.UUID, text string) bool
}

// Delivery routes texts to online players or the offline queue.
type Delivery struct {
	store      store.Store
	presence   Presence
	expiration time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a Delivery. Queued texts expire after expiration; zero keeps
// them until drained.
func New(s store.Store, presence Presence, expiration time.Duration, logger *zap.Logger) *Delivery {
	return &Delivery{
		store:      s,
		presence:   presence,
		expiration: expiration,
		now:        time.Now,
		logger:     logger,
	}
}

// Deliver pushes text to a connected recipient, or queues it durably.
func (d *Delivery) Deliver(ctx context.Context, recipient uuid.UUID, text string) error {
	if d.presence.Send(recipient, text) {
		return nil
	}
	expiresAt := d.expiresAt()
	err := d.store.Transaction(ctx, func(tx store.Tx) error {
		return tx.QueueNotification(recipient, text, expiresAt)
	})
	if err != nil {
		d.logger.Error("queue notification failed",
			zap.String("recipient", recipient.String()), zap.Error(err))
		return err
	}
	d.logger.Debug("notification queued", zap.String("recipient", recipient.String()))
	return nil
}

// Requeue stores texts that were drained but could not be pushed, keeping
// their order. They get a fresh expiration.
func (d *Delivery) Requeue(ctx context.Context, recipient uuid.UUID, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	expiresAt := d.expiresAt()
	err := d.store.Transaction(ctx, func(tx store.Tx) error {
		for _, text := range texts {
			if err := tx.QueueNotification(recipient, text, expiresAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.logger.Error("requeue notifications failed",
			zap.String("recipient", recipient.String()),
			zap.Int("count", len(texts)), zap.Error(err))
		return err
	}
	d.logger.Debug("notifications requeued",
		zap.String("recipient", recipient.String()), zap.Int("count", len(texts)))
	return nil
}

func (d *Delivery) expiresAt() *time.Time {
	if d.expiration <= 0 {
		return nil
	}
	t := d.now().Add(d.expiration)
	return &t
}

// Reply pushes text to a connected player only. Replies to offline players
// are dropped.
func (d *Delivery) Reply(recipient uuid.UUID, text string) bool {
	return d.presence.Send(recipient, text)
}

// Drain removes and returns the recipient's queued texts, oldest first.
// Expired texts are dropped.
func (d *Delivery) Drain(ctx context.Context, recipient uuid.UUID) ([]string, error) {
	var out []string
	err := d.store.Transaction(ctx, func(tx store.Tx) error {
		msgs, err := tx.DrainNotifications(recipient, d.now())
		out = msgs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeExpired deletes queued texts whose expiration has passed.
func (d *Delivery) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := d.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.PurgeExpiredNews(d.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info("expired notifications purged", zap.Int64("count", n))
	}
	return n, nil
}
