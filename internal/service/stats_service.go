package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fxxsj/work-order-sub001/internal/cache"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

const statsTTL = 5 * time.Minute

// StatsService 看板与统计
type StatsService struct {
	deps Deps
}

func NewStatsService(deps Deps) *StatsService {
	return &StatsService{deps: deps}
}

type WorkloadSummary struct {
	TotalTasks     int64   `json:"total_tasks"`
	PendingTasks   int64   `json:"pending_tasks"`
	InProgress     int64   `json:"in_progress_tasks"`
	CompletedTasks int64   `json:"completed_tasks"`
	CancelledTasks int64   `json:"cancelled_tasks"`
	CompletionRate float64 `json:"completion_rate"`
	TotalQuantity  int64   `json:"total_quantity"`
}

type OperatorWorkload struct {
	OperatorID     string  `json:"operator_id"`
	OperatorName   string  `json:"operator_name"`
	PendingTasks   int64   `json:"pending_tasks"`
	InProgress     int64   `json:"in_progress_tasks"`
	Completed      int64   `json:"completed_tasks"`
	TotalTasks     int64   `json:"total_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

type DepartmentWorkload struct {
	DepartmentID         string             `json:"department_id"`
	DepartmentName       string             `json:"department_name"`
	Summary              WorkloadSummary    `json:"summary"`
	ByTaskType           map[string]int64   `json:"by_task_type"`
	PriorityDistribution map[string]int64   `json:"priority_distribution"`
	Operators            []OperatorWorkload `json:"operators"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// DepartmentWorkload 部门工作量看板，5 分钟缓存
func (s *StatsService) DepartmentWorkload(ctx context.Context, departmentID string) (*DepartmentWorkload, error) {
	key := cache.KeyDeptWorkloadPrefix + departmentID
	var cached DepartmentWorkload
	if hit, err := s.deps.Cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	dept, err := s.deps.Repos.Operator.GetDepartmentByID(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	rows, err := s.deps.Repos.Task.AggregateByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	result := &DepartmentWorkload{
		DepartmentID:         dept.ID,
		DepartmentName:       dept.Name,
		ByTaskType:           map[string]int64{},
		PriorityDistribution: map[string]int64{},
		GeneratedAt:          time.Now(),
	}
	for _, row := range rows {
		result.Summary.TotalTasks += row.Count
		result.Summary.TotalQuantity += row.Quantity
		result.ByTaskType[row.TaskType] += row.Count
		switch row.Status {
		case entity.TaskStatusPending:
			result.Summary.PendingTasks += row.Count
		case entity.TaskStatusInProgress:
			result.Summary.InProgress += row.Count
		case entity.TaskStatusCompleted:
			result.Summary.CompletedTasks += row.Count
		case entity.TaskStatusCancelled:
			result.Summary.CancelledTasks += row.Count
		}
	}
	result.Summary.CompletionRate = completionRate(result.Summary.CompletedTasks, result.Summary.TotalTasks-result.Summary.CancelledTasks)

	prioRows, err := s.deps.Repos.Task.AggregateByDepartmentPriority(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	for _, row := range prioRows {
		result.PriorityDistribution[row.Priority] = row.Count
	}

	operators, err := s.deps.Repos.Operator.ListActiveByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if len(operators) > 0 {
		ids := make([]string, 0, len(operators))
		byID := make(map[string]*OperatorWorkload, len(operators))
		for _, op := range operators {
			ids = append(ids, op.ID)
			byID[op.ID] = &OperatorWorkload{OperatorID: op.ID, OperatorName: op.Name}
		}
		opRows, err := s.deps.Repos.Task.AggregateByOperators(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, row := range opRows {
			wl, ok := byID[row.OperatorID]
			if !ok {
				continue
			}
			wl.TotalTasks += row.Count
			switch row.Status {
			case entity.TaskStatusPending:
				wl.PendingTasks += row.Count
			case entity.TaskStatusInProgress:
				wl.InProgress += row.Count
			case entity.TaskStatusCompleted:
				wl.Completed += row.Count
			}
		}
		for _, id := range ids {
			wl := byID[id]
			wl.CompletionRate = completionRate(wl.Completed, wl.TotalTasks)
			result.Operators = append(result.Operators, *wl)
		}
	}

	if err := s.deps.Cache.Set(ctx, key, result, statsTTL); err != nil {
		s.deps.Logger.Warn("写入统计缓存失败", zap.Error(err))
	}
	return result, nil
}

type CollaborationOperator struct {
	OperatorID         string  `json:"operator_id"`
	OperatorName       string  `json:"operator_name"`
	TaskCount          int64   `json:"task_count"`
	CompletedTasks     int64   `json:"completed_tasks"`
	QuantityCompleted  int64   `json:"quantity_completed"`
	QuantityDefective  int64   `json:"quantity_defective"`
	DefectiveRate      float64 `json:"defective_rate"`
	AvgCompletionHours float64 `json:"avg_completion_hours"`
}

type CollaborationStats struct {
	DepartmentID string                  `json:"department_id,omitempty"`
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	Operators    []CollaborationOperator `json:"operators"`
	Summary      struct {
		TaskCount         int64   `json:"task_count"`
		CompletedTasks    int64   `json:"completed_tasks"`
		QuantityCompleted int64   `json:"quantity_completed"`
		QuantityDefective int64   `json:"quantity_defective"`
		DefectiveRate     float64 `json:"defective_rate"`
	} `json:"summary"`
}

// completionRate 完成占比，分母为零时记 0
func completionRate(completed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// defectiveRate 不良率：不良量占总产出（良品+不良）的比例
func defectiveRate(completed, defective int64) float64 {
	if completed+defective == 0 {
		return 0
	}
	return float64(defective) / float64(completed+defective)
}

// Collaboration 时间段内各操作员的完工产出，按完成量降序
func (s *StatsService) Collaboration(ctx context.Context, departmentID string, from, to time.Time) (*CollaborationStats, error) {
	key := fmt.Sprintf("%scollab:%s:%d:%d", cache.KeyOperatorPrefix, departmentID, from.Unix(), to.Unix())
	var cached CollaborationStats
	if hit, err := s.deps.Cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	rows, err := s.deps.Repos.Task.AggregateCollaboration(ctx, departmentID, from, to)
	if err != nil {
		return nil, err
	}

	result := &CollaborationStats{DepartmentID: departmentID, From: from, To: to}

	// 一次查询补全名字，避免按行回表
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.OperatorID)
	}
	names := make(map[string]string, len(ids))
	operators, err := s.deps.Repos.Operator.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, op := range operators {
		names[op.ID] = op.Name
	}

	for _, row := range rows {
		name := row.OperatorID
		if n, ok := names[row.OperatorID]; ok {
			name = n
		}
		var avgHours float64
		if row.TimedCount > 0 {
			avgHours = row.CompletionHours / float64(row.TimedCount)
		}
		result.Operators = append(result.Operators, CollaborationOperator{
			OperatorID:         row.OperatorID,
			OperatorName:       name,
			TaskCount:          row.TaskCount,
			CompletedTasks:     row.CompletedCount,
			QuantityCompleted:  row.QuantityCompleted,
			QuantityDefective:  row.QuantityDefective,
			DefectiveRate:      defectiveRate(row.QuantityCompleted, row.QuantityDefective),
			AvgCompletionHours: avgHours,
		})
		result.Summary.TaskCount += row.TaskCount
		result.Summary.CompletedTasks += row.CompletedCount
		result.Summary.QuantityCompleted += row.QuantityCompleted
		result.Summary.QuantityDefective += row.QuantityDefective
	}
	result.Summary.DefectiveRate = defectiveRate(result.Summary.QuantityCompleted, result.Summary.QuantityDefective)
	sort.Slice(result.Operators, func(i, j int) bool {
		return result.Operators[i].QuantityCompleted > result.Operators[j].QuantityCompleted
	})

	if err := s.deps.Cache.Set(ctx, key, result, statsTTL); err != nil {
		s.deps.Logger.Warn("写入统计缓存失败", zap.Error(err))
	}
	return result, nil
}

type Dashboard struct {
	WorkOrdersByStatus map[string]int64 `json:"work_orders_by_status"`
	LowStockProducts   []entity.Product `json:"low_stock_products"`
	ApproachingOrders  []DashboardOrder `json:"approaching_orders"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

type DashboardOrder struct {
	ID           string     `json:"id"`
	OrderNumber  string     `json:"order_number"`
	Status       string     `json:"status"`
	DeliveryDate time.Time  `json:"delivery_date"`
}

// Dashboard 全局看板：订单状态分布、低库存、临期交付
func (s *StatsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	key := cache.KeyDashboardPrefix + "overview"
	var cached Dashboard
	if hit, err := s.deps.Cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	byStatus, err := s.deps.Repos.WorkOrder.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	lowStock, err := s.deps.Repos.Product.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	warnWindow := time.Duration(s.deps.Config.Workshop.DeadlineWarningDays) * 24 * time.Hour
	approaching, err := s.deps.Repos.WorkOrder.ListApproachingDeadline(ctx, warnWindow)
	if err != nil {
		return nil, err
	}

	result := &Dashboard{
		WorkOrdersByStatus: byStatus,
		LowStockProducts:   lowStock,
		GeneratedAt:        time.Now(),
	}
	for _, wo := range approaching {
		result.ApproachingOrders = append(result.ApproachingOrders, DashboardOrder{
			ID:           wo.ID,
			OrderNumber:  wo.OrderNumber,
			Status:       wo.Status,
			DeliveryDate: wo.DeliveryDate,
		})
	}

	if err := s.deps.Cache.Set(ctx, key, result, statsTTL); err != nil {
		s.deps.Logger.Warn("写入统计缓存失败", zap.Error(err))
	}
	return result, nil
}
