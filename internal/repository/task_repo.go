package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// TaskRepository 施工单任务仓库
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *entity.WorkOrderTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) BatchCreate(ctx context.Context, tasks []entity.WorkOrderTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

func (r *TaskRepository) Update(ctx context.Context, task *entity.WorkOrderTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.WorkOrderTask, error) {
	var task entity.WorkOrderTask
	err := r.db.WithContext(ctx).
		Preload("Process").
		Preload("Process.Process").
		Preload("AssignedOperator").
		Preload("Subtasks").
		Where("id = ?", id).First(&task).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &task, nil
}

// GetForUpdate 加行锁读取任务
func (r *TaskRepository) GetForUpdate(ctx context.Context, id string) (*entity.WorkOrderTask, error) {
	var task entity.WorkOrderTask
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).First(&task).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &task, nil
}

type TaskListParams struct {
	WorkOrderProcessID   string
	AssignedDepartmentID string
	AssignedOperatorID   string
	TaskType             string
	Status               string
	ParentTaskID         string
	TopLevelOnly         bool
	Page                 int
	Size                 int
}

func (r *TaskRepository) List(ctx context.Context, params TaskListParams) ([]entity.WorkOrderTask, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WorkOrderTask{})
	if params.WorkOrderProcessID != "" {
		query = query.Where("work_order_process_id = ?", params.WorkOrderProcessID)
	}
	if params.AssignedDepartmentID != "" {
		query = query.Where("assigned_department_id = ?", params.AssignedDepartmentID)
	}
	if params.AssignedOperatorID != "" {
		query = query.Where("assigned_operator_id = ?", params.AssignedOperatorID)
	}
	if params.TaskType != "" {
		query = query.Where("task_type = ?", params.TaskType)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.ParentTaskID != "" {
		query = query.Where("parent_task_id = ?", params.ParentTaskID)
	}
	if params.TopLevelOnly {
		query = query.Where("parent_task_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}

	var tasks []entity.WorkOrderTask
	err := query.
		Preload("AssignedDepartment").
		Preload("AssignedOperator").
		Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).
		Limit(params.Size).
		Find(&tasks).Error
	return tasks, total, err
}

// ListByProcess 返回工序下全部任务
func (r *TaskRepository) ListByProcess(ctx context.Context, processID string) ([]entity.WorkOrderTask, error) {
	var tasks []entity.WorkOrderTask
	err := r.db.WithContext(ctx).
		Where("work_order_process_id = ?", processID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListByProcessForUpdate 加行锁读取工序下全部任务，级联判定用
func (r *TaskRepository) ListByProcessForUpdate(ctx context.Context, processID string) ([]entity.WorkOrderTask, error) {
	var tasks []entity.WorkOrderTask
	err := forUpdate(r.db.WithContext(ctx)).
		Where("work_order_process_id = ?", processID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListSubtasksForUpdate 加行锁读取父任务的全部子任务
func (r *TaskRepository) ListSubtasksForUpdate(ctx context.Context, parentTaskID string) ([]entity.WorkOrderTask, error) {
	var tasks []entity.WorkOrderTask
	err := forUpdate(r.db.WithContext(ctx)).
		Where("parent_task_id = ?", parentTaskID).
		Find(&tasks).Error
	return tasks, err
}

// ListClaimable 部门内未分配到人的待处理任务
func (r *TaskRepository) ListClaimable(ctx context.Context, departmentIDs []string) ([]entity.WorkOrderTask, error) {
	var tasks []entity.WorkOrderTask
	err := r.db.WithContext(ctx).
		Preload("Process").
		Preload("Process.Process").
		Where("assigned_department_id IN ? AND assigned_operator_id IS NULL AND status = ?",
			departmentIDs, entity.TaskStatusPending).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// CountActiveByOperator 操作员进行中任务数，承载能力校验用
func (r *TaskRepository) CountActiveByOperator(ctx context.Context, operatorID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Where("assigned_operator_id = ? AND status = ?", operatorID, entity.TaskStatusInProgress).
		Count(&count).Error
	return count, err
}

// CountPendingByOperator 操作员待处理任务数，least_tasks 策略用
func (r *TaskRepository) CountPendingByOperator(ctx context.Context, operatorIDs []string) (map[string]int64, error) {
	type row struct {
		OperatorID string
		Count      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Select("assigned_operator_id AS operator_id, COUNT(*) AS count").
		Where("assigned_operator_id IN ? AND status IN ?", operatorIDs,
			[]string{entity.TaskStatusPending, entity.TaskStatusInProgress}).
		Group("assigned_operator_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, rw := range rows {
		result[rw.OperatorID] = rw.Count
	}
	return result, nil
}

// FindByNaturalKey 按自然键查询任务，任务生成幂等判定用
func (r *TaskRepository) FindByNaturalKey(ctx context.Context, processID, taskType string, entityID *string) (*entity.WorkOrderTask, error) {
	query := r.db.WithContext(ctx).
		Where("work_order_process_id = ? AND task_type = ? AND parent_task_id IS NULL", processID, taskType)

	switch taskType {
	case entity.TaskTypePlateMaking:
		query = query.Where("artwork_id = ?", entityID)
	case entity.TaskTypeDieCutting:
		query = query.Where("die_id = ?", entityID)
	case entity.TaskTypePackaging:
		query = query.Where("product_id = ?", entityID)
	case entity.TaskTypeCutting:
		query = query.Where("material_id = ?", entityID)
	case entity.TaskTypeFoiling:
		query = query.Where("foiling_plate_id = ?", entityID)
	case entity.TaskTypeEmbossing:
		query = query.Where("embossing_plate_id = ?", entityID)
	}

	var task entity.WorkOrderTask
	err := query.First(&task).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &task, nil
}

// SetStockAccounted 更新库存对账水位线，不触碰版本号
func (r *TaskRepository) SetStockAccounted(ctx context.Context, id string, value int) error {
	return r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Where("id = ?", id).
		Update("stock_accounted_quantity", value).Error
}

// PromoteDraftsByWorkOrder 施工单审核通过后，批量将草稿任务转为待处理
func (r *TaskRepository) PromoteDraftsByWorkOrder(ctx context.Context, workOrderID string) ([]string, error) {
	sub := r.db.Model(&entity.WorkOrderProcess{}).Select("id").Where("work_order_id = ?", workOrderID)
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Where("work_order_process_id IN (?) AND status = ?", sub, entity.TaskStatusDraft).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":  entity.TaskStatusPending,
			"version": gorm.Expr("version + 1"),
		})
	return ids, result.Error
}

func (r *TaskRepository) CreateLog(ctx context.Context, log *entity.TaskLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *TaskRepository) ListLogs(ctx context.Context, taskID string) ([]entity.TaskLog, error) {
	var logs []entity.TaskLog
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// DepartmentStatusRow 部门看板聚合行
type DepartmentStatusRow struct {
	Status   string
	TaskType string
	Count    int64
	Quantity int64
}

// AggregateByDepartment 单次分组查询出部门工作量
func (r *TaskRepository) AggregateByDepartment(ctx context.Context, departmentID string) ([]DepartmentStatusRow, error) {
	var rows []DepartmentStatusRow
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Select("status, task_type, COUNT(*) AS count, COALESCE(SUM(production_quantity),0) AS quantity").
		Where("assigned_department_id = ?", departmentID).
		Group("status, task_type").
		Scan(&rows).Error
	return rows, err
}

// OperatorStatusRow 操作员聚合行
type OperatorStatusRow struct {
	OperatorID string
	Status     string
	Count      int64
}

// PriorityRow 优先级分布聚合行
type PriorityRow struct {
	Priority string
	Count    int64
}

// AggregateByDepartmentPriority 部门未完结任务的优先级分布
func (r *TaskRepository) AggregateByDepartmentPriority(ctx context.Context, departmentID string) ([]PriorityRow, error) {
	var rows []PriorityRow
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Select("priority, COUNT(*) AS count").
		Where("assigned_department_id = ? AND status IN ?", departmentID,
			[]string{entity.TaskStatusPending, entity.TaskStatusInProgress, entity.TaskStatusPaused}).
		Group("priority").
		Scan(&rows).Error
	return rows, err
}

// CollaborationRow 协作统计聚合行
type CollaborationRow struct {
	OperatorID        string
	TaskCount         int64
	CompletedCount    int64
	QuantityCompleted int64
	QuantityDefective int64
	// 有完整起止时间的完工任务数与其总工时，用于求平均
	TimedCount      int64
	CompletionHours float64
}

// AggregateCollaboration 时间段内各操作员经手的任务产出。一次查询取回
// 必要列后在内存归并，工时差跨方言计算。
func (r *TaskRepository) AggregateCollaboration(ctx context.Context, departmentID string, from, to time.Time) ([]CollaborationRow, error) {
	type taskRow struct {
		AssignedOperatorID string
		Status             string
		QuantityCompleted  int64
		QuantityDefective  int64
		StartedAt          *time.Time
		CompletedAt        *time.Time
	}
	query := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Select("assigned_operator_id, status, quantity_completed, quantity_defective, started_at, completed_at").
		Where("assigned_operator_id IS NOT NULL").
		Where("updated_at >= ? AND updated_at < ?", from, to)
	if departmentID != "" {
		query = query.Where("assigned_department_id = ?", departmentID)
	}
	var tasks []taskRow
	if err := query.Scan(&tasks).Error; err != nil {
		return nil, err
	}

	byOp := make(map[string]*CollaborationRow)
	order := make([]string, 0)
	for _, tr := range tasks {
		row, ok := byOp[tr.AssignedOperatorID]
		if !ok {
			row = &CollaborationRow{OperatorID: tr.AssignedOperatorID}
			byOp[tr.AssignedOperatorID] = row
			order = append(order, tr.AssignedOperatorID)
		}
		row.TaskCount++
		if tr.Status != entity.TaskStatusCompleted {
			continue
		}
		row.CompletedCount++
		row.QuantityCompleted += tr.QuantityCompleted
		row.QuantityDefective += tr.QuantityDefective
		if tr.StartedAt != nil && tr.CompletedAt != nil {
			row.TimedCount++
			row.CompletionHours += tr.CompletedAt.Sub(*tr.StartedAt).Hours()
		}
	}
	rows := make([]CollaborationRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byOp[id])
	}
	return rows, nil
}

// AggregateByOperators 按操作员与状态聚合任务数
func (r *TaskRepository) AggregateByOperators(ctx context.Context, operatorIDs []string) ([]OperatorStatusRow, error) {
	var rows []OperatorStatusRow
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrderTask{}).
		Select("assigned_operator_id AS operator_id, status, COUNT(*) AS count").
		Where("assigned_operator_id IN ?", operatorIDs).
		Group("assigned_operator_id, status").
		Scan(&rows).Error
	return rows, err
}
