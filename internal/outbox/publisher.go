package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ameernasser/auctionhouse/internal/adapters/crdb"
	"github.com/ameernasser/auctionhouse/internal/adapters/rabbit"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// Publisher drains NEW outbox rows to the broker. Rows are marked
// PUBLISHED only after a successful publish; consumers deduplicate on the
// message id.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 50)
	if err != nil {
		return err
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithField("event_type", rec.EventType).Error("publish failed", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.Error("mark published failed", err)
		}
	}
	return nil
}
