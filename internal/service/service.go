package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/cache"
	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// Deps 服务层共享依赖
type Deps struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Cache    cache.Cache
	Notifier *notify.Notifier
	Config   *config.Config
	Logger   *zap.Logger
}

// Services 服务集合
type Services struct {
	WorkOrder    *WorkOrderService
	Process      *ProcessService
	Task         *TaskService
	Assignment   *AssignmentService
	Dispatch     *DispatchService
	Inventory    *InventoryService
	Consistency  *ConsistencyService
	Stats        *StatsService
	Export       *ExportService
	Notification *NotificationService
}

func NewServices(deps Deps) *Services {
	inventory := NewInventoryService(deps)
	dispatch := NewDispatchService(deps)
	process := NewProcessService(deps, dispatch)
	task := NewTaskService(deps, inventory)
	return &Services{
		WorkOrder:    NewWorkOrderService(deps),
		Process:      process,
		Task:         task,
		Assignment:   NewAssignmentService(deps),
		Dispatch:     dispatch,
		Inventory:    inventory,
		Consistency:  NewConsistencyService(deps),
		Stats:        NewStatsService(deps),
		Export:       NewExportService(deps),
		Notification: NewNotificationService(deps),
	}
}

// effects 事务内收集、提交后统一执行的副作用
type effects struct {
	inv     *cache.Invalidator
	notices *notify.Collector
}

func newEffects(c cache.Cache, logger *zap.Logger) *effects {
	return &effects{
		inv:     cache.NewInvalidator(c, logger),
		notices: notify.NewCollector(),
	}
}

// flush 事务提交成功后调用：先失效缓存，再发通知
func (e *effects) flush(ctx context.Context, notifier *notify.Notifier) {
	e.inv.Flush(ctx)
	notifier.Dispatch(ctx, e.notices.Intents())
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
