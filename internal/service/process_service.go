package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/sse"
)

// ProcessService 施工单工序服务
type ProcessService struct {
	deps     Deps
	dispatch *DispatchService
}

func NewProcessService(deps Deps, dispatch *DispatchService) *ProcessService {
	return &ProcessService{deps: deps, dispatch: dispatch}
}

func (s *ProcessService) Get(ctx context.Context, id string) (*entity.WorkOrderProcess, error) {
	wop, err := s.deps.Repos.Process.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("施工单工序不存在: %s", id)
		}
		return nil, err
	}
	return wop, nil
}

func (s *ProcessService) Logs(ctx context.Context, id string) ([]entity.ProcessLog, error) {
	return s.deps.Repos.Process.ListLogs(ctx, id)
}

// canStart 前置工序启用判定：序号更小的工序必须已完成或标记为可并行
func canStart(all []entity.WorkOrderProcess, target *entity.WorkOrderProcess, processMeta map[string]*entity.Process) error {
	for i := range all {
		p := &all[i]
		if p.Sequence >= target.Sequence {
			continue
		}
		if p.Status == entity.ProcStatusCompleted || p.Status == entity.ProcStatusCancelled {
			continue
		}
		if meta := processMeta[p.ProcessID]; meta != nil && meta.IsParallel {
			continue
		}
		return apperr.Business("前置工序（序号 %d）尚未完成", p.Sequence)
	}
	return nil
}

// checkStartGate 开工门槛：制版要求图稿确认，啤切要求刀模确认，
// 印刷与开料要求物料到料（需开料的要求已开料）。
func checkStartGate(wo *entity.WorkOrder, proc *entity.Process) error {
	switch proc.TaskGenerationRule {
	case entity.GenRuleArtwork:
		for _, link := range wo.Artworks {
			if !link.Confirmed {
				return apperr.Business("图稿尚未确认，不能开始制版")
			}
		}
	case entity.GenRuleDie:
		for _, link := range wo.Dies {
			if !link.Confirmed {
				return apperr.Business("刀模尚未确认，不能开始啤切")
			}
		}
	case entity.GenRuleMaterial:
		for _, m := range wo.Materials {
			if m.PurchaseStatus != entity.MaterialReceived &&
				m.PurchaseStatus != entity.MaterialCut &&
				m.PurchaseStatus != entity.MaterialCompleted {
				return apperr.Business("物料未到料，不能开始开料")
			}
		}
	}
	if proc.Code == entity.ProcessCodePrint {
		for _, m := range wo.Materials {
			if m.NeedCutting && m.PurchaseStatus != entity.MaterialCut && m.PurchaseStatus != entity.MaterialCompleted {
				return apperr.Business("物料尚未开料，不能开始印刷")
			}
			if !m.NeedCutting && m.PurchaseStatus != entity.MaterialReceived &&
				m.PurchaseStatus != entity.MaterialCut && m.PurchaseStatus != entity.MaterialCompleted {
				return apperr.Business("物料未到料，不能开始印刷")
			}
		}
	}
	return nil
}

// Start 开工：校验前置工序与开工门槛，按规则生成任务并尝试自动派工
func (s *ProcessService) Start(ctx context.Context, actor *middleware.Actor, id string) (*entity.WorkOrderProcess, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var generated []entity.WorkOrderTask

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wop, err := repos.Process.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单工序不存在: %s", id)
			}
			return err
		}
		if wop.Status != entity.ProcStatusPending {
			return apperr.Business("工序当前状态为 %s，不能开工", wop.Status)
		}

		all, err := repos.Process.ListByWorkOrderForUpdate(ctx, wop.WorkOrderID)
		if err != nil {
			return err
		}
		processMeta := make(map[string]*entity.Process, len(all))
		for _, p := range all {
			meta, err := repos.Operator.GetProcessByID(ctx, p.ProcessID)
			if err != nil {
				return err
			}
			processMeta[p.ProcessID] = meta
		}
		if err := canStart(all, wop, processMeta); err != nil {
			return err
		}

		// 带全部明细的施工单视图，门槛校验与任务生成都要用
		wo, err := repos.WorkOrder.GetByID(ctx, wop.WorkOrderID)
		if err != nil {
			return err
		}
		proc := processMeta[wop.ProcessID]
		if err := checkStartGate(wo, proc); err != nil {
			return err
		}

		generated, err = generateTasks(ctx, repos, wo, wop, proc)
		if err != nil {
			return err
		}

		// 自动派工：全局开关打开时对未派部门的任务逐条评估（开关也要在事务内读）
		dispatchFlag, err := repos.Rule.GetConfig(ctx, entity.ConfigAutoDispatchEnabled, "true")
		if err != nil {
			return err
		}
		dispatchOn := dispatchFlag == "true"
		for i := range generated {
			task := &generated[i]
			if dispatchOn && task.AssignedDepartmentID == nil {
				if _, err := s.dispatch.Apply(ctx, repos, task, wop.ProcessID); err != nil {
					return err
				}
			}
			if task.AssignedDepartmentID != nil || task.AssignedOperatorID != nil {
				task.Version++
				if err := repos.Task.Update(ctx, task); err != nil {
					return err
				}
				if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
					ID:           newID(),
					TaskID:       task.ID,
					LogType:      entity.TaskLogAssign,
					Content:      "开工自动派工",
					StatusBefore: task.Status,
					StatusAfter:  task.Status,
					OperatorID:   strPtr(actor.UserID),
				}); err != nil {
					return err
				}
				if task.AssignedOperatorID != nil {
					eff.notices.Add(notify.Intent{
						RecipientID: *task.AssignedOperatorID,
						NotifyType:  entity.NotifyTaskAssigned,
						Title:       fmt.Sprintf("施工单 %s 新任务", wo.OrderNumber),
						Content:     task.WorkContent,
						WorkOrderID: strPtr(wo.ID),
						TaskID:      strPtr(task.ID),
					})
				}
			}
			eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		}

		now := time.Now()
		wop.Status = entity.ProcStatusInProgress
		wop.ActualStartTime = &now
		if err := repos.Process.Update(ctx, wop); err != nil {
			return fmt.Errorf("工序开工失败: %w", err)
		}
		if err := repos.Process.CreateLog(ctx, &entity.ProcessLog{
			ID:                 newID(),
			WorkOrderProcessID: wop.ID,
			LogType:            entity.ProcessLogStart,
			Content:            fmt.Sprintf("工序开工，生成任务 %d 条", len(generated)),
			OperatorID:         strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		// 第一道工序开工带动施工单进入生产中
		woRow, err := repos.WorkOrder.GetForUpdate(ctx, wop.WorkOrderID)
		if err != nil {
			return err
		}
		if woRow.Status == entity.WOStatusPending {
			woRow.Status = entity.WOStatusInProgress
			woRow.Version++
			if err := repos.WorkOrder.Update(ctx, woRow); err != nil {
				return err
			}
		}
		eff.inv.WorkOrderChanged()
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishWorkOrderUpdate(id, "process_started")
	s.deps.Logger.Info("process started",
		zap.String("process_id", id),
		zap.Int("tasks_generated", len(generated)))
	return s.Get(ctx, id)
}

// BatchStartResult 批量开工的单条结果
type BatchStartResult struct {
	ProcessID string `json:"process_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BatchStart 批量开工，单条失败不影响其余
func (s *ProcessService) BatchStart(ctx context.Context, actor *middleware.Actor, ids []string) []BatchStartResult {
	results := make([]BatchStartResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.Start(ctx, actor, id)
		r := BatchStartResult{ProcessID: id, Success: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

type CompleteProcessRequest struct {
	Force            bool   `json:"force"`
	CompletionReason string `json:"completion_reason"`
	Notes            string `json:"notes"`
}

// Complete 完结工序。常规完结要求全部任务已完成；强制完结需要
// 填写原因，并把未完成任务逐条补齐后完结。
func (s *ProcessService) Complete(ctx context.Context, actor *middleware.Actor, id string, req CompleteProcessRequest) (*entity.WorkOrderProcess, error) {
	if req.Force && req.CompletionReason == "" {
		return nil, apperr.Validation("强制完结必须填写原因")
	}
	eff := newEffects(s.deps.Cache, s.deps.Logger)

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		casc := newCascader(repos, eff, s.deps.Config, s.deps.Logger)

		wop, err := repos.Process.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单工序不存在: %s", id)
			}
			return err
		}
		if wop.Status == entity.ProcStatusCompleted {
			return apperr.Business("工序已完结")
		}
		if wop.Status == entity.ProcStatusPending {
			return apperr.Business("工序尚未开工")
		}

		tasks, err := repos.Task.ListByProcessForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !req.Force {
			for _, t := range tasks {
				if t.Status != entity.TaskStatusCompleted && t.Status != entity.TaskStatusCancelled {
					return apperr.Business("任务 %s 尚未完成，如需完结请使用强制完结", t.ID)
				}
			}
		} else {
			if !actor.Can(middleware.CapForceComplete) {
				return apperr.PermissionDenied("没有强制完结权限")
			}
			for i := range tasks {
				t := &tasks[i]
				if t.Status == entity.TaskStatusCompleted || t.Status == entity.TaskStatusCancelled {
					continue
				}
				statusBefore := t.Status
				qtyBefore := t.QuantityCompleted
				if t.QuantityCompleted == 0 && t.ProductionQuantity > 0 {
					t.QuantityCompleted = t.ProductionQuantity
				}
				t.Status = entity.TaskStatusCompleted
				t.Version++
				if err := repos.Task.Update(ctx, t); err != nil {
					return err
				}
				if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
					ID:               newID(),
					TaskID:           t.ID,
					LogType:          entity.TaskLogComplete,
					Content:          "随工序强制完结",
					QuantityBefore:   intPtr(qtyBefore),
					QuantityAfter:    intPtr(t.QuantityCompleted),
					StatusBefore:     statusBefore,
					StatusAfter:      entity.TaskStatusCompleted,
					CompletionReason: req.CompletionReason,
					OperatorID:       strPtr(actor.UserID),
				}); err != nil {
					return err
				}
				if err := accountPackagingStock(ctx, repos, eff, s.deps.Config, s.deps.Logger, t, actor.UserID); err != nil {
					return err
				}
				eff.inv.TaskChanged(t.AssignedDepartmentID, t.AssignedOperatorID)
			}
			if err := repos.Process.CreateLog(ctx, &entity.ProcessLog{
				ID:                 newID(),
				WorkOrderProcessID: wop.ID,
				LogType:            entity.ProcessLogComplete,
				Content:            "强制完结: " + req.CompletionReason,
				OperatorID:         strPtr(actor.UserID),
			}); err != nil {
				return err
			}
		}

		return casc.checkProcess(ctx, id, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishWorkOrderUpdate(id, "process_completed")
	return s.Get(ctx, id)
}

// Pause 暂停工序
func (s *ProcessService) Pause(ctx context.Context, actor *middleware.Actor, id, reason string) (*entity.WorkOrderProcess, error) {
	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		wop, err := repos.Process.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单工序不存在: %s", id)
			}
			return err
		}
		if wop.Status != entity.ProcStatusInProgress {
			return apperr.Business("只有进行中的工序可以暂停")
		}
		wop.Status = entity.ProcStatusPaused
		if err := repos.Process.Update(ctx, wop); err != nil {
			return err
		}
		return repos.Process.CreateLog(ctx, &entity.ProcessLog{
			ID:                 newID(),
			WorkOrderProcessID: wop.ID,
			LogType:            entity.ProcessLogPause,
			Content:            reason,
			OperatorID:         strPtr(actor.UserID),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Resume 恢复工序
func (s *ProcessService) Resume(ctx context.Context, actor *middleware.Actor, id string) (*entity.WorkOrderProcess, error) {
	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)
		wop, err := repos.Process.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单工序不存在: %s", id)
			}
			return err
		}
		if wop.Status != entity.ProcStatusPaused {
			return apperr.Business("只有暂停中的工序可以恢复")
		}
		wop.Status = entity.ProcStatusInProgress
		if err := repos.Process.Update(ctx, wop); err != nil {
			return err
		}
		return repos.Process.CreateLog(ctx, &entity.ProcessLog{
			ID:                 newID(),
			WorkOrderProcessID: wop.ID,
			LogType:            entity.ProcessLogResume,
			Content:            "工序恢复",
			OperatorID:         strPtr(actor.UserID),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

type ReassignTasksRequest struct {
	DepartmentID string  `json:"department_id" binding:"required"`
	OperatorID   *string `json:"operator_id"`
	Notes        string  `json:"notes"`
}

// ReassignTasks 把工序下未完结的任务整体改派到另一个部门
func (s *ProcessService) ReassignTasks(ctx context.Context, actor *middleware.Actor, id string, req ReassignTasksRequest) (int, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	moved := 0

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wop, err := repos.Process.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单工序不存在: %s", id)
			}
			return err
		}

		ok, err := s.dispatch.departmentHandles(ctx, repos, req.DepartmentID, wop.ProcessID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Business("目标部门未配置该工序，不能改派")
		}
		if req.OperatorID != nil {
			op, err := repos.Operator.GetByID(ctx, *req.OperatorID)
			if err != nil {
				if err == repository.ErrNotFound {
					return apperr.NotFound("操作员不存在: %s", *req.OperatorID)
				}
				return err
			}
			inDept := false
			for _, d := range op.Departments {
				if d.ID == req.DepartmentID {
					inDept = true
					break
				}
			}
			if !inDept {
				return apperr.Business("操作员 %s 不属于目标部门", op.Username)
			}
		}

		tasks, err := repos.Task.ListByProcessForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for i := range tasks {
			t := &tasks[i]
			if t.Status == entity.TaskStatusCompleted || t.Status == entity.TaskStatusCancelled {
				continue
			}
			oldDept := t.AssignedDepartmentID
			oldOp := t.AssignedOperatorID
			t.AssignedDepartmentID = &req.DepartmentID
			t.AssignedOperatorID = req.OperatorID
			t.Version++
			if err := repos.Task.Update(ctx, t); err != nil {
				return err
			}
			if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
				ID:           newID(),
				TaskID:       t.ID,
				LogType:      entity.TaskLogAssign,
				Content:      fmt.Sprintf("工序整体改派到部门 %s。%s", req.DepartmentID, req.Notes),
				StatusBefore: t.Status,
				StatusAfter:  t.Status,
				OperatorID:   strPtr(actor.UserID),
			}); err != nil {
				return err
			}
			if req.OperatorID != nil {
				eff.notices.Add(notify.Intent{
					RecipientID: *req.OperatorID,
					NotifyType:  entity.NotifyTaskAssigned,
					Title:       "新任务改派给你",
					Content:     t.WorkContent,
					TaskID:      strPtr(t.ID),
				})
			}
			eff.inv.TaskChanged(oldDept, oldOp)
			eff.inv.TaskChanged(t.AssignedDepartmentID, t.AssignedOperatorID)
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	eff.flush(ctx, s.deps.Notifier)
	return moved, nil
}
