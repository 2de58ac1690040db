package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// cascader 在单个事务内执行向上级联：
// 任务保存 → 子任务汇总到父任务 → 工序状态判定 → 施工单状态判定。
// 每次变更只做一轮向上检查，重复执行对未变化的子树是空操作。
type cascader struct {
	repos  *repository.Repositories
	eff    *effects
	cfg    *config.Config
	logger *zap.Logger
}

func newCascader(repos *repository.Repositories, eff *effects, cfg *config.Config, logger *zap.Logger) *cascader {
	return &cascader{repos: repos, eff: eff, cfg: cfg, logger: logger}
}

// afterTaskChange 任务落库后的级联入口
func (c *cascader) afterTaskChange(ctx context.Context, task *entity.WorkOrderTask, operatorID string) error {
	if task.ParentTaskID != nil {
		if err := c.rollUpParent(ctx, *task.ParentTaskID, operatorID); err != nil {
			return err
		}
	}
	return c.checkProcess(ctx, task.WorkOrderProcessID, operatorID)
}

// rollUpParent 把子任务的完成数与次品数汇总到父任务。
// 全部子任务完成时父任务完成；汇总量跌回目标以下时父任务回到进行中。
func (c *cascader) rollUpParent(ctx context.Context, parentID, operatorID string) error {
	parent, err := c.repos.Task.GetForUpdate(ctx, parentID)
	if err != nil {
		return err
	}
	subtasks, err := c.repos.Task.ListSubtasksForUpdate(ctx, parentID)
	if err != nil {
		return err
	}

	var completed, defective int
	allDone := true
	hasLive := false
	for _, sub := range subtasks {
		if sub.Status == entity.TaskStatusCancelled {
			continue
		}
		hasLive = true
		completed += sub.QuantityCompleted
		defective += sub.QuantityDefective
		if sub.Status != entity.TaskStatusCompleted {
			allDone = false
		}
	}

	newStatus := parent.Status
	if hasLive && allDone {
		newStatus = entity.TaskStatusCompleted
	} else if parent.Status == entity.TaskStatusCompleted && !allDone {
		newStatus = entity.TaskStatusInProgress
	}

	if completed == parent.QuantityCompleted && defective == parent.QuantityDefective && newStatus == parent.Status {
		return nil
	}

	statusBefore := parent.Status
	qtyBefore := parent.QuantityCompleted
	parent.QuantityCompleted = completed
	parent.QuantityDefective = defective
	parent.Status = newStatus
	parent.Version++
	if err := c.repos.Task.Update(ctx, parent); err != nil {
		return fmt.Errorf("父任务汇总失败: %w", err)
	}

	if err := c.repos.Task.CreateLog(ctx, &entity.TaskLog{
		ID:             newID(),
		TaskID:         parent.ID,
		LogType:        entity.TaskLogStatusChange,
		Content:        "子任务汇总",
		QuantityBefore: intPtr(qtyBefore),
		QuantityAfter:  intPtr(completed),
		StatusBefore:   statusBefore,
		StatusAfter:    newStatus,
		OperatorID:     strPtr(operatorID),
	}); err != nil {
		return err
	}

	// 父任务为包装任务时，汇总变化也要对账库存
	if err := accountPackagingStock(ctx, c.repos, c.eff, c.cfg, c.logger, parent, operatorID); err != nil {
		return err
	}

	c.eff.inv.TaskChanged(parent.AssignedDepartmentID, parent.AssignedOperatorID)
	return nil
}

// checkProcess 工序状态判定。全部非取消任务完成则工序完成，
// 完成数重算为顶层任务之和，并继续检查施工单。
func (c *cascader) checkProcess(ctx context.Context, processID, operatorID string) error {
	wop, err := c.repos.Process.GetForUpdate(ctx, processID)
	if err != nil {
		return err
	}
	if wop.Status == entity.ProcStatusCancelled {
		return nil
	}

	tasks, err := c.repos.Task.ListByProcessForUpdate(ctx, processID)
	if err != nil {
		return err
	}

	var completed, defective int
	allDone := true
	hasLive := false
	for _, t := range tasks {
		if t.Status == entity.TaskStatusCancelled {
			continue
		}
		if t.ParentTaskID != nil {
			// 子任务的量已计入父任务
			continue
		}
		hasLive = true
		completed += t.QuantityCompleted
		defective += t.QuantityDefective
		if t.Status != entity.TaskStatusCompleted {
			allDone = false
		}
	}

	changed := false
	if completed != wop.QuantityCompleted || defective != wop.QuantityDefective {
		wop.QuantityCompleted = completed
		wop.QuantityDefective = defective
		changed = true
	}

	if hasLive && allDone && wop.Status != entity.ProcStatusCompleted {
		now := time.Now()
		wop.Status = entity.ProcStatusCompleted
		wop.ActualEndTime = &now
		changed = true

		if err := c.repos.Process.CreateLog(ctx, &entity.ProcessLog{
			ID:                 newID(),
			WorkOrderProcessID: wop.ID,
			LogType:            entity.ProcessLogComplete,
			Content:            "全部任务完成，工序自动完结",
			OperatorID:         strPtr(operatorID),
		}); err != nil {
			return err
		}

		wo, err := c.repos.WorkOrder.GetForUpdate(ctx, wop.WorkOrderID)
		if err != nil {
			return err
		}
		if wo.CreatedBy != "" {
			c.eff.notices.Add(notify.Intent{
				RecipientID: wo.CreatedBy,
				NotifyType:  entity.NotifyProcessCompleted,
				Title:       fmt.Sprintf("施工单 %s 工序完成", wo.OrderNumber),
				Content:     fmt.Sprintf("第 %d 道工序已完成", wop.Sequence),
				WorkOrderID: strPtr(wo.ID),
			})
		}
	}

	if changed {
		if err := c.repos.Process.Update(ctx, wop); err != nil {
			return fmt.Errorf("工序状态更新失败: %w", err)
		}
	}

	return c.checkWorkOrder(ctx, wop.WorkOrderID)
}

// checkWorkOrder 施工单状态判定：全部非取消工序完成则施工单完成
func (c *cascader) checkWorkOrder(ctx context.Context, workOrderID string) error {
	wo, err := c.repos.WorkOrder.GetForUpdate(ctx, workOrderID)
	if err != nil {
		return err
	}
	if wo.Status == entity.WOStatusCompleted || wo.Status == entity.WOStatusCancelled {
		return nil
	}

	processes, err := c.repos.Process.ListByWorkOrderForUpdate(ctx, workOrderID)
	if err != nil {
		return err
	}

	allDone := true
	hasLive := false
	for _, p := range processes {
		if p.Status == entity.ProcStatusCancelled {
			continue
		}
		hasLive = true
		if p.Status != entity.ProcStatusCompleted {
			allDone = false
		}
	}
	if !hasLive || !allDone {
		return nil
	}

	now := time.Now()
	wo.Status = entity.WOStatusCompleted
	wo.ActualDeliveryDate = &now
	wo.Version++
	if err := c.repos.WorkOrder.Update(ctx, wo); err != nil {
		return fmt.Errorf("施工单状态更新失败: %w", err)
	}

	c.logger.Info("work order completed", zap.String("order_number", wo.OrderNumber))
	c.eff.inv.WorkOrderChanged()
	return nil
}
