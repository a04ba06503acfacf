package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ironico1809/tienda-backend/internal/notify/domain"
	"github.com/ironico1809/tienda-backend/internal/notify/repository"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleCompletedEvent mirrors the Kafka payload published by the checkout
// outbox poller.
type SaleCompletedEvent struct {
	CheckoutID string          `json:"checkout_id"`
	SaleID     int64           `json:"sale_id"`
	UserID     string          `json:"user_id"`
	Total      decimal.Decimal `json:"total"`
}

type Consumer struct {
	repo   repository.NotificationRepository
	reader *kafka.Reader
	logger *zap.Logger
}

func NewConsumer(repo repository.NotificationRepository, logger *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "sales-outbox",
		GroupID:  "notify-service",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{repo, reader, logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading message", zap.Error(err))
		return
	}

	var event SaleCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Error("error parsing message", zap.Error(err))
		return
	}

	if err := c.handleEvent(ctx, &event); err != nil {
		c.logger.Error("failed to handle sale.completed event",
			zap.String("checkout_id", event.CheckoutID),
			zap.Error(err))
	}
}

func (c *Consumer) handleEvent(ctx context.Context, event *SaleCompletedEvent) error {
	checkoutID, err := uuid.Parse(event.CheckoutID)
	if err != nil {
		return fmt.Errorf("invalid checkout_id %q: %w", event.CheckoutID, err)
	}

	n := &domain.Notification{
		ID:         uuid.New(),
		CheckoutID: checkoutID,
		SaleID:     event.SaleID,
		UserID:     event.UserID,
		Type:       domain.TypeSaleCompleted,
		Message:    fmt.Sprintf("Tu compra por $%s fue confirmada. Venta #%d.", event.Total.StringFixed(2), event.SaleID),
		Total:      event.Total,
		Status:     domain.NotificationStatusPending,
	}

	if err := c.repo.CreateNotification(ctx, n); err != nil {
		if errors.Is(err, repository.ErrDuplicateNotification) {
			// Redelivery; already notified.
			c.logger.Info("notification already exists, skipping",
				zap.String("checkout_id", event.CheckoutID))
			return nil
		}
		return err
	}

	c.logger.Info("notification queued",
		zap.String("notification_id", n.ID.String()),
		zap.Int64("sale_id", event.SaleID))
	return nil
}
