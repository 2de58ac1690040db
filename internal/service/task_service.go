package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/sse"
)

// TaskService 施工单任务服务
type TaskService struct {
	deps      Deps
	inventory *InventoryService
}

func NewTaskService(deps Deps, inventory *InventoryService) *TaskService {
	return &TaskService{deps: deps, inventory: inventory}
}

func (s *TaskService) Get(ctx context.Context, id string) (*entity.WorkOrderTask, error) {
	task, err := s.deps.Repos.Task.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("任务不存在: %s", id)
		}
		return nil, err
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, params repository.TaskListParams) ([]entity.WorkOrderTask, int64, error) {
	return s.deps.Repos.Task.List(ctx, params)
}

func (s *TaskService) Logs(ctx context.Context, id string) ([]entity.TaskLog, error) {
	return s.deps.Repos.Task.ListLogs(ctx, id)
}

// Claimable 当前用户所属部门内可认领的任务
func (s *TaskService) Claimable(ctx context.Context, actor *middleware.Actor) ([]entity.WorkOrderTask, error) {
	if len(actor.DepartmentIDs) == 0 {
		return nil, nil
	}
	return s.deps.Repos.Task.ListClaimable(ctx, actor.DepartmentIDs)
}

// lockAndCheckVersion 行锁读取任务并校验客户端版本号
func lockAndCheckVersion(ctx context.Context, repos *repository.Repositories, id string, expected *int) (*entity.WorkOrderTask, error) {
	task, err := repos.Task.GetForUpdate(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("任务不存在: %s", id)
		}
		return nil, err
	}
	if expected != nil && *expected != task.Version {
		return nil, apperr.Conflict("任务已被他人修改，请刷新后重试（当前版本 %d，提交版本 %d）", task.Version, *expected)
	}
	return task, nil
}

// workOrderIDOf 取任务所属施工单 ID，SSE 事件载荷需要
func workOrderIDOf(ctx context.Context, repos *repository.Repositories, task *entity.WorkOrderTask) string {
	if task.Process != nil {
		return task.Process.WorkOrderID
	}
	proc, err := repos.Process.GetByID(ctx, task.WorkOrderProcessID)
	if err != nil {
		return ""
	}
	return proc.WorkOrderID
}

// markTransition 维护开工与完工时间戳。回退到进行中时清掉完工时间。
func markTransition(task *entity.WorkOrderTask) {
	now := time.Now()
	switch task.Status {
	case entity.TaskStatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		task.CompletedAt = nil
	case entity.TaskStatusCompleted:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		task.CompletedAt = &now
	}
}

type StartTaskRequest struct {
	Notes   string `json:"notes"`
	Version *int   `json:"version"`
}

// Start 开始任务：待处理转进行中，只允许任务的负责人或超级用户操作
func (s *TaskService) Start(ctx context.Context, actor *middleware.Actor, id string, req StartTaskRequest) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		if task.Status != entity.TaskStatusPending && task.Status != entity.TaskStatusPaused {
			return apperr.Business("任务当前状态为 %s，不能开始", task.Status)
		}
		if task.AssignedOperatorID == nil {
			return apperr.Business("任务尚未指派操作员")
		}
		if !actor.IsSuperuser && *task.AssignedOperatorID != actor.UserID {
			return apperr.PermissionDenied("只有任务负责人可以开始任务")
		}

		statusBefore := task.Status
		task.Status = entity.TaskStatusInProgress
		markTransition(task)
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:           newID(),
			TaskID:       task.ID,
			LogType:      entity.TaskLogStart,
			Content:      req.Notes,
			StatusBefore: statusBefore,
			StatusAfter:  entity.TaskStatusInProgress,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "started")
	return s.Get(ctx, id)
}

// Pause 暂停进行中的任务，之后可通过 Start 恢复
func (s *TaskService) Pause(ctx context.Context, actor *middleware.Actor, id string, notes string) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		task, err := lockAndCheckVersion(ctx, repos, id, nil)
		if err != nil {
			return err
		}
		if task.Status != entity.TaskStatusInProgress {
			return apperr.Business("任务当前状态为 %s，不能暂停", task.Status)
		}
		if !actor.IsSuperuser && (task.AssignedOperatorID == nil || *task.AssignedOperatorID != actor.UserID) {
			return apperr.PermissionDenied("只有任务负责人可以暂停任务")
		}

		task.Status = entity.TaskStatusPaused
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:           newID(),
			TaskID:       task.ID,
			LogType:      entity.TaskLogStatusChange,
			Content:      notes,
			StatusBefore: entity.TaskStatusInProgress,
			StatusAfter:  entity.TaskStatusPaused,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "paused")
	return s.Get(ctx, id)
}

type UpdateQuantityRequest struct {
	QuantityIncrement          int    `json:"quantity_increment" binding:"required"`
	QuantityDefectiveIncrement int    `json:"quantity_defective"`
	Notes                      string `json:"notes"`
	Version                    *int   `json:"version"`
}

// UpdateQuantity 增量更新完成数。完成数夹在 [0, 生产数] 区间内；
// 达到生产数自动完结，负向修正跌破生产数则回到进行中。
func (s *TaskService) UpdateQuantity(ctx context.Context, actor *middleware.Actor, id string, req UpdateQuantityRequest) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string
	var completedNow bool

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		casc := newCascader(repos, eff, s.deps.Config, s.deps.Logger)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		if task.Status == entity.TaskStatusDraft {
			return apperr.Business("草稿任务不能报工")
		}
		if task.Status == entity.TaskStatusCancelled {
			return apperr.Business("已取消的任务不能报工")
		}

		subtasks, err := repos.Task.ListSubtasksForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		if len(subtasks) > 0 {
			return apperr.Business("已拆分的任务由子任务汇总，不能直接报工")
		}

		qtyBefore := task.QuantityCompleted
		statusBefore := task.Status

		newQty := task.QuantityCompleted + req.QuantityIncrement
		if newQty < 0 {
			newQty = 0
		}
		if task.ProductionQuantity > 0 && newQty > task.ProductionQuantity {
			newQty = task.ProductionQuantity
		}
		task.QuantityCompleted = newQty
		task.QuantityDefective += req.QuantityDefectiveIncrement
		if task.QuantityDefective < 0 {
			task.QuantityDefective = 0
		}

		// 状态机：首次正向报工隐式开工，达标自动完结，修正回退
		switch {
		case task.ProductionQuantity > 0 && newQty >= task.ProductionQuantity:
			task.Status = entity.TaskStatusCompleted
			completedNow = statusBefore != entity.TaskStatusCompleted
		case task.Status == entity.TaskStatusCompleted:
			task.Status = entity.TaskStatusInProgress
		case task.Status == entity.TaskStatusPending && req.QuantityIncrement > 0 && task.AssignedOperatorID != nil:
			task.Status = entity.TaskStatusInProgress
		}
		markTransition(task)

		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:                         newID(),
			TaskID:                     task.ID,
			LogType:                    entity.TaskLogUpdateQuantity,
			Content:                    req.Notes,
			QuantityBefore:             intPtr(qtyBefore),
			QuantityAfter:              intPtr(newQty),
			QuantityIncrement:          intPtr(req.QuantityIncrement),
			QuantityDefectiveIncrement: intPtr(req.QuantityDefectiveIncrement),
			StatusBefore:               statusBefore,
			StatusAfter:                task.Status,
			OperatorID:                 strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		if err := accountPackagingStock(ctx, repos, eff, s.deps.Config, s.deps.Logger, task, actor.UserID); err != nil {
			return err
		}
		if completedNow {
			if err := s.notifyTaskCompleted(ctx, repos, eff, task); err != nil {
				return err
			}
		}

		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return casc.afterTaskChange(ctx, task, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "quantity_updated")
	return s.Get(ctx, id)
}

type CompleteTaskRequest struct {
	CompletionReason           string `json:"completion_reason"`
	QuantityDefectiveIncrement int    `json:"quantity_defective"`
	Notes                      string `json:"notes"`
	Version                    *int   `json:"version"`
}

// Complete 手动完结任务。未达生产数的完结视为强制完结，必须填写
// 原因，并同步完结全部未结子任务。
func (s *TaskService) Complete(ctx context.Context, actor *middleware.Actor, id string, req CompleteTaskRequest) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		casc := newCascader(repos, eff, s.deps.Config, s.deps.Logger)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		if task.Status == entity.TaskStatusCompleted {
			return apperr.Business("任务已完成")
		}
		if task.Status == entity.TaskStatusCancelled || task.Status == entity.TaskStatusDraft {
			return apperr.Business("任务当前状态为 %s，不能完结", task.Status)
		}

		underTarget := task.ProductionQuantity > 0 && task.QuantityCompleted < task.ProductionQuantity
		if underTarget && req.CompletionReason == "" {
			return apperr.Validation("完成数未达生产数，必须填写完结原因")
		}

		// 同步完结未结子任务
		subtasks, err := repos.Task.ListSubtasksForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		for i := range subtasks {
			sub := &subtasks[i]
			if sub.Status == entity.TaskStatusCompleted || sub.Status == entity.TaskStatusCancelled {
				continue
			}
			subBefore := sub.Status
			sub.Status = entity.TaskStatusCompleted
			sub.Version++
			if err := repos.Task.Update(ctx, sub); err != nil {
				return err
			}
			if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
				ID:               newID(),
				TaskID:           sub.ID,
				LogType:          entity.TaskLogComplete,
				Content:          "随父任务完结",
				StatusBefore:     subBefore,
				StatusAfter:      entity.TaskStatusCompleted,
				CompletionReason: req.CompletionReason,
				OperatorID:       strPtr(actor.UserID),
			}); err != nil {
				return err
			}
			eff.inv.TaskChanged(sub.AssignedDepartmentID, sub.AssignedOperatorID)
		}

		statusBefore := task.Status
		task.Status = entity.TaskStatusCompleted
		task.QuantityDefective += req.QuantityDefectiveIncrement
		markTransition(task)
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:               newID(),
			TaskID:           task.ID,
			LogType:          entity.TaskLogComplete,
			Content:          req.Notes,
			QuantityBefore:   intPtr(task.QuantityCompleted),
			QuantityAfter:    intPtr(task.QuantityCompleted),
			StatusBefore:     statusBefore,
			StatusAfter:      entity.TaskStatusCompleted,
			CompletionReason: req.CompletionReason,
			OperatorID:       strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		if err := accountPackagingStock(ctx, repos, eff, s.deps.Config, s.deps.Logger, task, actor.UserID); err != nil {
			return err
		}
		if err := s.notifyTaskCompleted(ctx, repos, eff, task); err != nil {
			return err
		}

		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return casc.afterTaskChange(ctx, task, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "completed")
	return s.Get(ctx, id)
}

// notifyTaskCompleted 任务完成通知制表人
func (s *TaskService) notifyTaskCompleted(ctx context.Context, repos *repository.Repositories, eff *effects, task *entity.WorkOrderTask) error {
	wop, err := repos.Process.GetByID(ctx, task.WorkOrderProcessID)
	if err != nil {
		return err
	}
	wo, err := repos.WorkOrder.GetForUpdate(ctx, wop.WorkOrderID)
	if err != nil {
		return err
	}
	if wo.CreatedBy == "" {
		return nil
	}
	eff.notices.Add(notify.Intent{
		RecipientID: wo.CreatedBy,
		NotifyType:  entity.NotifyTaskCompleted,
		Title:       fmt.Sprintf("施工单 %s 任务完成", wo.OrderNumber),
		Content:     task.WorkContent,
		WorkOrderID: strPtr(wo.ID),
		TaskID:      strPtr(task.ID),
	})
	return nil
}

type SplitItem struct {
	ProductionQuantity   int     `json:"production_quantity" binding:"required,gt=0"`
	AssignedDepartmentID *string `json:"assigned_department"`
	AssignedOperatorID   *string `json:"assigned_operator"`
	WorkContent          string  `json:"work_content"`
}

type SplitTaskRequest struct {
	Splits  []SplitItem `json:"splits" binding:"required,min=2,dive"`
	Version *int        `json:"version"`
}

// Split 把任务拆成 N≥2 条子任务协作完成。子任务继承任务类型与库
// 实体引用，数量之和不得超过父任务生产数；父任务随即转进行中，
// 此后其完成数由子任务汇总。
func (s *TaskService) Split(ctx context.Context, actor *middleware.Actor, id string, req SplitTaskRequest) ([]entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string
	var created []entity.WorkOrderTask

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		if task.Status != entity.TaskStatusPending && task.Status != entity.TaskStatusInProgress {
			return apperr.Business("任务当前状态为 %s，不能拆分", task.Status)
		}
		if task.ParentTaskID != nil {
			return apperr.Business("子任务不能再拆分")
		}
		existing, err := repos.Task.ListSubtasksForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperr.Business("任务已拆分过")
		}

		sum := 0
		for _, item := range req.Splits {
			sum += item.ProductionQuantity
		}
		if task.ProductionQuantity > 0 && sum > task.ProductionQuantity {
			return apperr.Validation("子任务数量之和 %d 超过父任务生产数 %d", sum, task.ProductionQuantity)
		}

		for i, item := range req.Splits {
			content := item.WorkContent
			if content == "" {
				content = fmt.Sprintf("%s（%d/%d）", task.WorkContent, i+1, len(req.Splits))
			}
			dept := item.AssignedDepartmentID
			if dept == nil {
				dept = task.AssignedDepartmentID
			}
			sub := entity.WorkOrderTask{
				ID:                   newID(),
				WorkOrderProcessID:   task.WorkOrderProcessID,
				TaskType:             task.TaskType,
				WorkContent:          content,
				ProductionQuantity:   item.ProductionQuantity,
				ArtworkID:            task.ArtworkID,
				DieID:                task.DieID,
				ProductID:            task.ProductID,
				MaterialID:           task.MaterialID,
				FoilingPlateID:       task.FoilingPlateID,
				EmbossingPlateID:     task.EmbossingPlateID,
				AssignedDepartmentID: dept,
				AssignedOperatorID:   item.AssignedOperatorID,
				ParentTaskID:         &task.ID,
				Priority:             task.Priority,
				Status:               entity.TaskStatusPending,
				Version:              1,
			}
			created = append(created, sub)
		}
		if err := repos.Task.BatchCreate(ctx, created); err != nil {
			return fmt.Errorf("创建子任务失败: %w", err)
		}

		statusBefore := task.Status
		task.Status = entity.TaskStatusInProgress
		markTransition(task)
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:           newID(),
			TaskID:       task.ID,
			LogType:      entity.TaskLogSplit,
			Content:      fmt.Sprintf("拆分为 %d 条子任务", len(created)),
			StatusBefore: statusBefore,
			StatusAfter:  entity.TaskStatusInProgress,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		for i := range created {
			sub := &created[i]
			if sub.AssignedOperatorID != nil {
				eff.notices.Add(notify.Intent{
					RecipientID: *sub.AssignedOperatorID,
					NotifyType:  entity.NotifyTaskAssigned,
					Title:       "协作任务指派给你",
					Content:     sub.WorkContent,
					TaskID:      strPtr(sub.ID),
				})
			}
			eff.inv.TaskChanged(sub.AssignedDepartmentID, sub.AssignedOperatorID)
		}
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "split")
	return created, nil
}

type CancelTaskRequest struct {
	CancellationReason string `json:"cancellation_reason" binding:"required"`
	Notes              string `json:"notes"`
	Version            *int   `json:"version"`
}

// Cancel 取消任务。已完成任务不可取消；若取消会让已开工的工序没
// 有任何存活任务，也不允许。
func (s *TaskService) Cancel(ctx context.Context, actor *middleware.Actor, id string, req CancelTaskRequest) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		casc := newCascader(repos, eff, s.deps.Config, s.deps.Logger)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		if task.Status == entity.TaskStatusCompleted {
			return apperr.Business("已完成的任务不能取消")
		}
		if task.Status == entity.TaskStatusCancelled {
			return apperr.Business("任务已取消")
		}

		wop, err := repos.Process.GetForUpdate(ctx, task.WorkOrderProcessID)
		if err != nil {
			return err
		}
		if wop.Status != entity.ProcStatusPending {
			siblings, err := repos.Task.ListByProcessForUpdate(ctx, task.WorkOrderProcessID)
			if err != nil {
				return err
			}
			alive := 0
			for _, t := range siblings {
				if t.ID == task.ID || t.Status == entity.TaskStatusCancelled {
					continue
				}
				alive++
			}
			if alive == 0 {
				return apperr.Business("工序已开工且这是唯一任务，取消会导致工序无法完结")
			}
		}

		statusBefore := task.Status
		formerOperator := task.AssignedOperatorID
		task.Status = entity.TaskStatusCancelled
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:           newID(),
			TaskID:       task.ID,
			LogType:      entity.TaskLogCancel,
			Content:      req.CancellationReason,
			StatusBefore: statusBefore,
			StatusAfter:  entity.TaskStatusCancelled,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		if formerOperator != nil {
			eff.notices.Add(notify.Intent{
				RecipientID: *formerOperator,
				NotifyType:  entity.NotifyTaskCancelled,
				Title:       "任务已取消",
				Content:     req.CancellationReason,
				TaskID:      strPtr(task.ID),
			})
		}
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, formerOperator)
		return casc.afterTaskChange(ctx, task, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "cancelled")
	return s.Get(ctx, id)
}
