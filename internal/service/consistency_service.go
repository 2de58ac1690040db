package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// ConsistencyService 数据一致性巡检与修复
type ConsistencyService struct {
	deps Deps
}

func NewConsistencyService(deps Deps) *ConsistencyService {
	return &ConsistencyService{deps: deps}
}

// workOrderScanParams 巡检只看生产中的施工单
func workOrderScanParams() repository.WorkOrderListParams {
	return repository.WorkOrderListParams{
		Status: entity.WOStatusInProgress,
		Page:   1,
		Size:   10000,
	}
}

// StockDiscrepancy 产品账实差异：库存字段与流水合计不一致
type StockDiscrepancy struct {
	ProductID     string `json:"product_id"`
	ProductCode   string `json:"product_code"`
	ProductName   string `json:"product_name"`
	StockQuantity int    `json:"stock_quantity"`
	LogSum        int64  `json:"log_sum"`
	Difference    int64  `json:"difference"`
	Repaired      bool   `json:"repaired"`
}

type StockCheckResult struct {
	CheckedProducts int                `json:"checked_products"`
	Discrepancies   []StockDiscrepancy `json:"discrepancies"`
}

// CheckStock 核对每个产品的库存字段与流水合计。repair 为真时写入
// 一条修复流水把合计拉齐到库存字段，需要数据修复权限。
func (s *ConsistencyService) CheckStock(ctx context.Context, actor *middleware.Actor, repair bool) (*StockCheckResult, error) {
	if repair && !actor.IsSuperuser && !actor.Can(middleware.CapRepairData) {
		return nil, apperr.PermissionDenied("没有数据修复权限")
	}

	products, err := s.deps.Repos.Product.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	result := &StockCheckResult{CheckedProducts: len(products)}
	for _, p := range products {
		sum, err := s.deps.Repos.Product.SumStockLogByProduct(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if sum == int64(p.StockQuantity) {
			continue
		}
		disc := StockDiscrepancy{
			ProductID:     p.ID,
			ProductCode:   p.Code,
			ProductName:   p.Name,
			StockQuantity: p.StockQuantity,
			LogSum:        sum,
			Difference:    int64(p.StockQuantity) - sum,
		}
		if repair {
			if err := s.repairStock(ctx, actor, p.ID); err != nil {
				return nil, err
			}
			disc.Repaired = true
		}
		result.Discrepancies = append(result.Discrepancies, disc)
	}
	return result, nil
}

// repairStock 行锁下重算差额并写补偿流水，保证流水合计等于库存字段
func (s *ConsistencyService) repairStock(ctx context.Context, actor *middleware.Actor, productID string) error {
	return s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		p, err := repos.Product.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := repos.Product.SumStockLogByProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		diff := int64(p.StockQuantity) - sum
		if diff == 0 {
			return nil
		}
		s.deps.Logger.Warn("修复库存流水差异",
			zap.String("product_id", p.ID),
			zap.Int64("difference", diff))
		changeType := entity.StockChangeAdd
		if diff < 0 {
			changeType = entity.StockChangeReduce
		}
		return repos.Product.CreateStockLog(ctx, &entity.ProductStockLog{
			ID:          newID(),
			ProductID:   p.ID,
			ChangeType:  changeType,
			Quantity:    int(diff),
			OldQuantity: p.StockQuantity - int(diff),
			NewQuantity: p.StockQuantity,
			Reason:      fmt.Sprintf("一致性修复：流水合计 %d 对齐库存 %d", sum, p.StockQuantity),
			OperatorID:  strPtr(actor.UserID),
		})
	})
}

// QuantityIssue 施工单数量口径不一致的巡检项
type QuantityIssue struct {
	WorkOrderID string `json:"work_order_id"`
	OrderNumber string `json:"order_number"`
	Scope       string `json:"scope"`
	Detail      string `json:"detail"`
}

type QuantityCheckResult struct {
	CheckedOrders int             `json:"checked_orders"`
	Issues        []QuantityIssue `json:"issues"`
}

// CheckQuantities 只读巡检：生产数与产品明细合计、工序任务合计之间
// 的偏差。仅报告，不改数据。
func (s *ConsistencyService) CheckQuantities(ctx context.Context) (*QuantityCheckResult, error) {
	orders, _, err := s.deps.Repos.WorkOrder.List(ctx, workOrderScanParams())
	if err != nil {
		return nil, err
	}

	result := &QuantityCheckResult{CheckedOrders: len(orders)}
	for _, wo := range orders {
		full, err := s.deps.Repos.WorkOrder.GetByID(ctx, wo.ID)
		if err != nil {
			return nil, err
		}

		if len(full.Products) > 0 {
			productSum := 0
			for _, pl := range full.Products {
				productSum += pl.Quantity
			}
			if productSum != full.ProductionQuantity {
				result.Issues = append(result.Issues, QuantityIssue{
					WorkOrderID: full.ID,
					OrderNumber: full.OrderNumber,
					Scope:       "products",
					Detail:      fmt.Sprintf("产品明细合计 %d 与生产数 %d 不符", productSum, full.ProductionQuantity),
				})
			}
		}

		for _, wop := range full.Processes {
			tasks, err := s.deps.Repos.Task.ListByProcess(ctx, wop.ID)
			if err != nil {
				return nil, err
			}
			taskSum := 0
			for _, t := range tasks {
				if t.ParentTaskID != nil || t.Status == entity.TaskStatusCancelled {
					continue
				}
				taskSum += t.QuantityCompleted
			}
			if taskSum != wop.QuantityCompleted {
				result.Issues = append(result.Issues, QuantityIssue{
					WorkOrderID: full.ID,
					OrderNumber: full.OrderNumber,
					Scope:       "process",
					Detail: fmt.Sprintf("工序 %d 完成数 %d 与任务合计 %d 不符",
						wop.Sequence, wop.QuantityCompleted, taskSum),
				})
			}
		}
	}
	return result, nil
}

// MaterialIssue 物料可用性巡检项
type MaterialIssue struct {
	WorkOrderID  string `json:"work_order_id"`
	OrderNumber  string `json:"order_number"`
	MaterialName string `json:"material_name"`
	Detail       string `json:"detail"`
}

type MaterialCheckResult struct {
	CheckedOrders int             `json:"checked_orders"`
	Issues        []MaterialIssue `json:"issues"`
}

// CheckMaterials 巡检待生产与生产中施工单的物料到位情况
func (s *ConsistencyService) CheckMaterials(ctx context.Context) (*MaterialCheckResult, error) {
	orders, _, err := s.deps.Repos.WorkOrder.List(ctx, repository.WorkOrderListParams{
		Statuses: []string{entity.WOStatusPending, entity.WOStatusInProgress},
		Page:     1,
		Size:     10000,
	})
	if err != nil {
		return nil, err
	}

	result := &MaterialCheckResult{CheckedOrders: len(orders)}
	for _, wo := range orders {
		full, err := s.deps.Repos.WorkOrder.GetByID(ctx, wo.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range full.Materials {
			name := m.MaterialID
			if m.Material != nil {
				name = m.Material.Name
			}
			switch m.PurchaseStatus {
			case entity.MaterialPending:
				result.Issues = append(result.Issues, MaterialIssue{
					WorkOrderID:  full.ID,
					OrderNumber:  full.OrderNumber,
					MaterialName: name,
					Detail:       "物料尚未采购",
				})
			case entity.MaterialOrdered:
				result.Issues = append(result.Issues, MaterialIssue{
					WorkOrderID:  full.ID,
					OrderNumber:  full.OrderNumber,
					MaterialName: name,
					Detail:       "物料已下单未到货",
				})
			case entity.MaterialReceived:
				if m.NeedCutting {
					result.Issues = append(result.Issues, MaterialIssue{
						WorkOrderID:  full.ID,
						OrderNumber:  full.OrderNumber,
						MaterialName: name,
						Detail:       "物料已到货待开料",
					})
				}
			}
		}
	}
	return result, nil
}
