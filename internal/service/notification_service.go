package service

import (
	"context"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// NotificationService 站内通知
type NotificationService struct {
	deps Deps
}

func NewNotificationService(deps Deps) *NotificationService {
	return &NotificationService{deps: deps}
}

func (s *NotificationService) List(ctx context.Context, recipientID string, unreadOnly bool, page, size int) ([]entity.Notification, int64, error) {
	return s.deps.Repos.Notification.ListByRecipient(ctx, recipientID, unreadOnly, page, size)
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.deps.Repos.Notification.CountUnread(ctx, recipientID)
}

func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	ok, err := s.deps.Repos.Notification.MarkRead(ctx, notificationID, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("通知不存在或已读")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.deps.Repos.Notification.MarkAllRead(ctx, recipientID)
}
