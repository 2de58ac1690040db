// Package notify 负责站内通知的落库与外发。
// 业务事务内只收集意图，提交成功后统一发送，避免回滚后通知已出。
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/sse"
)

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Intent 一条待发送的通知
type Intent struct {
	RecipientID string
	NotifyType  string
	Title       string
	Content     string
	WorkOrderID *string
	TaskID      *string
	RoutingKey  string
}

// Notifier 通知发送器
type Notifier struct {
	repo      *repository.NotificationRepository
	publisher Publisher
	logger    *zap.Logger
}

func NewNotifier(repo *repository.NotificationRepository, publisher Publisher, logger *zap.Logger) *Notifier {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Notifier{repo: repo, publisher: publisher, logger: logger}
}

// Dispatch 落库并推送一批通知。发送失败只记日志，业务已提交不再回滚。
func (n *Notifier) Dispatch(ctx context.Context, intents []Intent) {
	for _, intent := range intents {
		record := entity.Notification{
			ID:          newID(),
			RecipientID: intent.RecipientID,
			NotifyType:  intent.NotifyType,
			Title:       intent.Title,
			Content:     intent.Content,
			WorkOrderID: intent.WorkOrderID,
			TaskID:      intent.TaskID,
			CreatedAt:   time.Now(),
		}
		if err := n.repo.Create(ctx, &record); err != nil {
			n.logger.Error("create notification failed",
				zap.String("recipient", intent.RecipientID),
				zap.String("type", intent.NotifyType),
				zap.Error(err))
			continue
		}

		sse.PublishUserNotification(record.RecipientID, record.ID, record.NotifyType)

		routingKey := intent.RoutingKey
		if routingKey == "" {
			routingKey = "workorder." + intent.NotifyType
		}
		if err := n.publisher.Publish(ctx, routingKey, record); err != nil {
			n.logger.Warn("publish notification event failed",
				zap.String("routing_key", routingKey),
				zap.Error(err))
		}
	}
}

// Collector 事务内的通知收集器
type Collector struct {
	intents []Intent
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Add(intent Intent) {
	c.intents = append(c.intents, intent)
}

func (c *Collector) Intents() []Intent {
	return c.intents
}
