package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// InventoryService 产品库存服务
type InventoryService struct {
	deps Deps
}

func NewInventoryService(deps Deps) *InventoryService {
	return &InventoryService{deps: deps}
}

// applyStockChange 在产品行锁下变更库存并落流水。负库存仅在
// 非严格模式下允许，库存字段永远只通过这里修改。
func applyStockChange(ctx context.Context, repos *repository.Repositories, cfg *config.Config, logger *zap.Logger,
	productID string, delta int, reason string, taskID, workOrderID *string, operatorID string) (*entity.Product, error) {

	product, err := repos.Product.GetForUpdate(ctx, productID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("产品不存在: %s", productID)
		}
		return nil, err
	}

	newQuantity := product.StockQuantity + delta
	if newQuantity < 0 {
		if cfg.Workshop.StrictStockReduce {
			return nil, apperr.Business("产品 %s 库存不足: 现有 %d，需扣减 %d", product.Code, product.StockQuantity, -delta)
		}
		logger.Warn("stock going negative",
			zap.String("product", product.Code),
			zap.Int("stock", product.StockQuantity),
			zap.Int("delta", delta))
	}

	oldQuantity := product.StockQuantity
	product.StockQuantity = newQuantity
	if err := repos.Product.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("更新库存失败: %w", err)
	}

	changeType := entity.StockChangeAdd
	if delta < 0 {
		changeType = entity.StockChangeReduce
	}
	if err := repos.Product.CreateStockLog(ctx, &entity.ProductStockLog{
		ID:          newID(),
		ProductID:   product.ID,
		ChangeType:  changeType,
		Quantity:    delta,
		OldQuantity: oldQuantity,
		NewQuantity: newQuantity,
		TaskID:      taskID,
		WorkOrderID: workOrderID,
		OperatorID:  strPtr(operatorID),
		Reason:      reason,
	}); err != nil {
		return nil, fmt.Errorf("写入库存流水失败: %w", err)
	}

	return product, nil
}

// accountPackagingStock 包装任务完成量与产品库存的对账。
// stock_accounted_quantity 是幂等水位线，重放同一次更新是空操作。
func accountPackagingStock(ctx context.Context, repos *repository.Repositories, eff *effects, cfg *config.Config,
	logger *zap.Logger, task *entity.WorkOrderTask, operatorID string) error {

	if task.TaskType != entity.TaskTypePackaging || task.ProductID == nil {
		return nil
	}
	delta := task.QuantityCompleted - task.StockAccountedQuantity
	if delta == 0 {
		return nil
	}

	reason := fmt.Sprintf("生产入库：包装任务 %s 完成量对账 %+d", task.ID, delta)
	product, err := applyStockChange(ctx, repos, cfg, logger,
		*task.ProductID, delta, reason, strPtr(task.ID), nil, operatorID)
	if err != nil {
		return err
	}

	task.StockAccountedQuantity = task.QuantityCompleted
	if err := repos.Task.SetStockAccounted(ctx, task.ID, task.StockAccountedQuantity); err != nil {
		return fmt.Errorf("更新对账水位线失败: %w", err)
	}

	// 低库存预警发给全部超级用户
	if product.MinStockQuantity > 0 && product.StockQuantity < product.MinStockQuantity {
		admins, err := repos.Operator.ListSuperusers(ctx)
		if err != nil {
			return err
		}
		for _, admin := range admins {
			eff.notices.Add(notify.Intent{
				RecipientID: admin.ID,
				NotifyType:  entity.NotifyLowStock,
				Title:       fmt.Sprintf("产品 %s 库存低于预警线", product.Code),
				Content:     fmt.Sprintf("当前库存 %d，预警线 %d", product.StockQuantity, product.MinStockQuantity),
				TaskID:      strPtr(task.ID),
			})
		}
	}
	return nil
}

type StockChangeRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Notes    string `json:"notes"`
}

func stockReason(source, notes string) string {
	if notes == "" {
		return source
	}
	return source + "：" + notes
}

// AddStock 人工入库
func (s *InventoryService) AddStock(ctx context.Context, actor *middleware.Actor, productID string, req StockChangeRequest) (*entity.Product, error) {
	var product *entity.Product
	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		var err error
		product, err = applyStockChange(ctx, repos, s.deps.Config, s.deps.Logger,
			productID, req.Quantity, stockReason("人工入库", req.Notes), nil, nil, actor.UserID)
		return err
	})
	return product, err
}

// ReduceStock 人工出库。严格模式下库存不足直接拒绝。
func (s *InventoryService) ReduceStock(ctx context.Context, actor *middleware.Actor, productID string, req StockChangeRequest) (*entity.Product, error) {
	var product *entity.Product
	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		var err error
		product, err = applyStockChange(ctx, repos, s.deps.Config, s.deps.Logger,
			productID, -req.Quantity, stockReason("出货扣减", req.Notes), nil, nil, actor.UserID)
		return err
	})
	return product, err
}

func (s *InventoryService) GetProduct(ctx context.Context, id string) (*entity.Product, error) {
	product, err := s.deps.Repos.Product.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("产品不存在: %s", id)
		}
		return nil, err
	}
	return product, nil
}

func (s *InventoryService) ListProducts(ctx context.Context, keyword string, page, size int) ([]entity.Product, int64, error) {
	return s.deps.Repos.Product.List(ctx, keyword, page, size)
}

func (s *InventoryService) ListLowStock(ctx context.Context) ([]entity.Product, error) {
	return s.deps.Repos.Product.ListLowStock(ctx)
}

func (s *InventoryService) StockLogs(ctx context.Context, productID string, page, size int) ([]entity.ProductStockLog, int64, error) {
	return s.deps.Repos.Product.ListStockLogs(ctx, productID, page, size)
}
