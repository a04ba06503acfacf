package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ironico1809/tienda-backend/internal/notify/domain"
)

var (
	ErrDuplicateNotification = errors.New("notification already exists for this checkout")
	ErrNotificationNotFound  = errors.New("notification not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotificationByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	ListNotificationsByUserID(ctx context.Context, userID string) ([]*domain.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	Close() error
	RunMigrations(*Credentials) error
}
