package services

import (
	"context"

	"agritrade/internal/domain"
	"agritrade/internal/repos"
)

type NotificationService struct {
	Notifs *repos.NotificationRepo
}

func NewNotificationService(notifs *repos.NotificationRepo) *NotificationService {
	return &NotificationService{Notifs: notifs}
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	return s.Notifs.ListForUser(ctx, userID, unreadOnly)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.Notifs.MarkRead(ctx, id, userID)
}
