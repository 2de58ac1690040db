package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/sse"
)

// AssignmentService 任务指派与认领
type AssignmentService struct {
	deps Deps
}

func NewAssignmentService(deps Deps) *AssignmentService {
	return &AssignmentService{deps: deps}
}

type AssignTaskRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
	Notes      string `json:"notes"`
	Version    *int   `json:"version"`
}

// canAssign 指派权限：超级用户、持派工权限且在任务部门内、或施工单制表人
func (s *AssignmentService) canAssign(ctx context.Context, repos *repository.Repositories, actor *middleware.Actor, task *entity.WorkOrderTask) (bool, error) {
	if actor.IsSuperuser {
		return true, nil
	}
	if actor.Can(middleware.CapDispatchTask) && task.AssignedDepartmentID != nil && actor.InDepartment(*task.AssignedDepartmentID) {
		return true, nil
	}
	wop, err := repos.Process.GetByID(ctx, task.WorkOrderProcessID)
	if err != nil {
		return false, err
	}
	wo, err := repos.WorkOrder.GetForUpdate(ctx, wop.WorkOrderID)
	if err != nil {
		return false, err
	}
	return wo.CreatedBy == actor.UserID, nil
}

// checkCapacity 操作员进行中任务数不得达到上限
func checkCapacity(ctx context.Context, repos *repository.Repositories, operatorID string, max int) error {
	active, err := repos.Task.CountActiveByOperator(ctx, operatorID)
	if err != nil {
		return err
	}
	if int(active) >= max {
		return apperr.Business("操作员进行中任务已达上限 %d，不能再接新任务", max)
	}
	return nil
}

// Assign 将任务指派（或改派）给操作员
func (s *AssignmentService) Assign(ctx context.Context, actor *middleware.Actor, id string, req AssignTaskRequest) (*entity.WorkOrderTask, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		task, err := lockAndCheckVersion(ctx, repos, id, req.Version)
		if err != nil {
			return err
		}
		switch task.Status {
		case entity.TaskStatusDraft, entity.TaskStatusCompleted, entity.TaskStatusCancelled:
			return apperr.Business("任务当前状态为 %s，不能指派", task.Status)
		}
		if task.AssignedDepartmentID == nil {
			return apperr.Business("任务尚未分配部门，不能指派操作员")
		}

		ok, err := s.canAssign(ctx, repos, actor, task)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.PermissionDenied("没有该任务的派工权限")
		}

		operator, err := repos.Operator.GetByID(ctx, req.OperatorID)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("操作员不存在: %s", req.OperatorID)
			}
			return err
		}
		if !operator.IsActive {
			return apperr.Business("操作员 %s 已停用", operator.Name)
		}
		inDept := false
		for _, d := range operator.Departments {
			if d.ID == *task.AssignedDepartmentID {
				inDept = true
				break
			}
		}
		if !inDept {
			return apperr.Business("操作员 %s 不属于任务所在部门", operator.Name)
		}
		if err := checkCapacity(ctx, repos, operator.ID, s.deps.Config.Workshop.MaxActiveTasksPerOperator); err != nil {
			return err
		}

		previous := task.AssignedOperatorID
		if previous != nil && *previous == operator.ID {
			return apperr.Business("任务已指派给该操作员")
		}

		task.AssignedOperatorID = &operator.ID
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		content := fmt.Sprintf("指派给 %s", operator.Name)
		if previous != nil {
			content = fmt.Sprintf("改派给 %s", operator.Name)
		}
		if req.Notes != "" {
			content += "：" + req.Notes
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:         newID(),
			TaskID:     task.ID,
			LogType:    entity.TaskLogAssign,
			Content:    content,
			OperatorID: strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		eff.notices.Add(notify.Intent{
			RecipientID: operator.ID,
			NotifyType:  entity.NotifyTaskAssigned,
			Title:       "新任务指派给你",
			Content:     task.WorkContent,
			TaskID:      strPtr(task.ID),
		})
		if previous != nil {
			eff.notices.Add(notify.Intent{
				RecipientID: *previous,
				NotifyType:  entity.NotifyTaskAssigned,
				Title:       "任务已改派他人",
				Content:     task.WorkContent,
				TaskID:      strPtr(task.ID),
			})
			eff.inv.TaskChanged(task.AssignedDepartmentID, previous)
		}
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, &operator.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishTaskUpdate(woID, id, "assigned")
	return s.deps.Repos.Task.GetByID(ctx, id)
}

type ClaimResult struct {
	Task           *entity.WorkOrderTask `json:"task"`
	AlreadyClaimed bool                  `json:"already_claimed"`
}

// Claim 操作员认领本部门的待处理任务。行锁保证并发认领只有一人
// 成功；重复认领自己已持有的任务幂等返回。
func (s *AssignmentService) Claim(ctx context.Context, actor *middleware.Actor, id string) (*ClaimResult, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var woID string
	result := &ClaimResult{}

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		task, err := repos.Task.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("任务不存在: %s", id)
			}
			return err
		}
		if task.Status != entity.TaskStatusPending && task.Status != entity.TaskStatusInProgress {
			return apperr.Business("任务当前状态为 %s，不能认领", task.Status)
		}
		if task.AssignedOperatorID != nil {
			if *task.AssignedOperatorID == actor.UserID {
				result.AlreadyClaimed = true
				return nil
			}
			return apperr.Conflict("任务已被其他操作员认领")
		}
		if task.AssignedDepartmentID == nil || !actor.InDepartment(*task.AssignedDepartmentID) {
			return apperr.PermissionDenied("只能认领本部门的任务")
		}
		if err := checkCapacity(ctx, repos, actor.UserID, s.deps.Config.Workshop.MaxActiveTasksPerOperator); err != nil {
			return err
		}

		task.AssignedOperatorID = strPtr(actor.UserID)
		task.Version++
		if err := repos.Task.Update(ctx, task); err != nil {
			return err
		}
		if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
			ID:         newID(),
			TaskID:     task.ID,
			LogType:    entity.TaskLogClaim,
			Content:    "操作员认领任务",
			OperatorID: strPtr(actor.UserID),
		}); err != nil {
			return err
		}
		eff.notices.Add(notify.Intent{
			RecipientID: actor.UserID,
			NotifyType:  entity.NotifyTaskAssigned,
			Title:       "任务认领成功",
			Content:     task.WorkContent,
			TaskID:      strPtr(task.ID),
		})
		woID = workOrderIDOf(ctx, repos, task)
		eff.inv.TaskChanged(task.AssignedDepartmentID, task.AssignedOperatorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	if !result.AlreadyClaimed {
		sse.PublishTaskUpdate(woID, id, "claimed")
	}
	task, err := s.deps.Repos.Task.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Task = task
	return result, nil
}
