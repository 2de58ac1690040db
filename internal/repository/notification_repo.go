package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// NotificationRepository 站内通知仓库
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) BatchCreate(ctx context.Context, notifications []entity.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, size int) ([]entity.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Notification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var notifications []entity.Notification
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&notifications).Error
	return notifications, total, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead 标记单条已读，只允许收件人本人操作
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	return result.RowsAffected > 0, result.Error
}

// MarkAllRead 标记收件人全部未读为已读
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	return result.RowsAffected, result.Error
}
