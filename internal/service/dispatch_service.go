package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// DispatchService 自动派工规则引擎
type DispatchService struct {
	deps Deps
	// round_robin 策略的进程内游标，按部门计
	mu       sync.Mutex
	rrCursor map[string]int
}

func NewDispatchService(deps Deps) *DispatchService {
	return &DispatchService{deps: deps, rrCursor: make(map[string]int)}
}

// Enabled 全局派工开关
func (s *DispatchService) Enabled(ctx context.Context) (bool, error) {
	v, err := s.deps.Repos.Rule.GetConfig(ctx, entity.ConfigAutoDispatchEnabled, "true")
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetEnabled 开关全局自动派工
func (s *DispatchService) SetEnabled(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.deps.Repos.Rule.SetConfig(ctx, entity.ConfigAutoDispatchEnabled, v)
}

// matchRule 取工序下优先级最高且部门可承接该工序的启用规则
func (s *DispatchService) matchRule(ctx context.Context, repos *repository.Repositories, processID string) (*entity.TaskAssignmentRule, error) {
	rules, err := repos.Rule.ListActiveByProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rule := &rules[i]
		ok, err := s.departmentHandles(ctx, repos, rule.TargetDepartmentID, processID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return rule, nil
	}
	return nil, nil
}

// departmentHandles 部门是否配置了该工序
func (s *DispatchService) departmentHandles(ctx context.Context, repos *repository.Repositories, departmentID, processID string) (bool, error) {
	depts, err := repos.Operator.ListDepartmentsByProcess(ctx, processID)
	if err != nil {
		return false, err
	}
	for _, d := range depts {
		if d.ID == departmentID {
			return true, nil
		}
	}
	return false, nil
}

// Apply 在事务内对单个任务执行派工。没有命中规则时任务保持未派
// 工，等人工指派；命中规则后按策略尝试选人，选不到人只派到部门。
func (s *DispatchService) Apply(ctx context.Context, repos *repository.Repositories, task *entity.WorkOrderTask, processID string) (bool, error) {
	rule, err := s.matchRule(ctx, repos, processID)
	if err != nil {
		return false, err
	}
	if rule == nil {
		return false, nil
	}

	task.AssignedDepartmentID = &rule.TargetDepartmentID

	if rule.TargetOperatorID != nil {
		task.AssignedOperatorID = rule.TargetOperatorID
	} else {
		operatorID, err := s.selectOperator(ctx, repos, rule.TargetDepartmentID, rule.OperatorSelectionStrategy)
		if err != nil {
			return false, err
		}
		if operatorID != "" {
			task.AssignedOperatorID = &operatorID
		}
	}
	return true, nil
}

// selectOperator 按策略从部门在职成员中挑选操作员，无可选成员返回空
func (s *DispatchService) selectOperator(ctx context.Context, repos *repository.Repositories, departmentID, strategy string) (string, error) {
	operators, err := repos.Operator.ListActiveByDepartment(ctx, departmentID)
	if err != nil {
		return "", err
	}
	if len(operators) == 0 {
		return "", nil
	}

	// 超出承载上限的成员不参与挑选
	max := s.deps.Config.Workshop.MaxActiveTasksPerOperator
	eligible := make([]entity.Operator, 0, len(operators))
	for _, op := range operators {
		active, err := repos.Task.CountActiveByOperator(ctx, op.ID)
		if err != nil {
			return "", err
		}
		if int(active) < max {
			eligible = append(eligible, op)
		}
	}
	if len(eligible) == 0 {
		return "", nil
	}

	switch strategy {
	case entity.StrategyRandom:
		return eligible[rand.Intn(len(eligible))].ID, nil
	case entity.StrategyRoundRobin:
		s.mu.Lock()
		idx := s.rrCursor[departmentID] % len(eligible)
		s.rrCursor[departmentID]++
		s.mu.Unlock()
		return eligible[idx].ID, nil
	case entity.StrategyFirstAvailable:
		return eligible[0].ID, nil
	default: // least_tasks
		ids := make([]string, len(eligible))
		for i, op := range eligible {
			ids[i] = op.ID
		}
		counts, err := repos.Task.CountPendingByOperator(ctx, ids)
		if err != nil {
			return "", err
		}
		best := eligible[0].ID
		bestCount := counts[best]
		for _, op := range eligible[1:] {
			if counts[op.ID] < bestCount {
				best = op.ID
				bestCount = counts[op.ID]
			}
		}
		return best, nil
	}
}

// RulePreview 派工预演里的一行
type RulePreview struct {
	ProcessID      string `json:"process_id"`
	ProcessCode    string `json:"process_code"`
	ProcessName    string `json:"process_name"`
	TaskType       string `json:"task_type"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	Load           int64  `json:"load"`
	RuleID         string `json:"rule_id"`
	RulePriority   int    `json:"rule_priority"`
}

// Preview 返回每个启用工序当前会命中的部门及其负载
func (s *DispatchService) Preview(ctx context.Context) ([]RulePreview, error) {
	repos := s.deps.Repos
	processes, err := repos.Operator.ListProcesses(ctx)
	if err != nil {
		return nil, err
	}

	var previews []RulePreview
	for _, proc := range processes {
		taskType := taskTypeForProcess(&proc)
		rule, err := s.matchRule(ctx, repos, proc.ID)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			continue
		}

		load, err := s.departmentLoad(ctx, rule.TargetDepartmentID)
		if err != nil {
			return nil, err
		}
		name := ""
		if rule.TargetDepartment != nil {
			name = rule.TargetDepartment.Name
		}
		previews = append(previews, RulePreview{
			ProcessID:      proc.ID,
			ProcessCode:    proc.Code,
			ProcessName:    proc.Name,
			TaskType:       taskType,
			DepartmentID:   rule.TargetDepartmentID,
			DepartmentName: name,
			Load:           load,
			RuleID:         rule.ID,
			RulePriority:   rule.Priority,
		})
	}

	sort.Slice(previews, func(i, j int) bool {
		return previews[i].ProcessCode < previews[j].ProcessCode
	})
	return previews, nil
}

// departmentLoad 部门当前待处理与进行中的任务数
func (s *DispatchService) departmentLoad(ctx context.Context, departmentID string) (int64, error) {
	rows, err := s.deps.Repos.Task.AggregateByDepartment(ctx, departmentID)
	if err != nil {
		return 0, err
	}
	var load int64
	for _, row := range rows {
		if row.Status == entity.TaskStatusPending || row.Status == entity.TaskStatusInProgress {
			load += row.Count
		}
	}
	return load, nil
}

type SaveRuleRequest struct {
	Name                      string  `json:"name" binding:"required"`
	ProcessID                 string  `json:"process_id" binding:"required"`
	TargetDepartmentID        string  `json:"target_department_id" binding:"required"`
	TargetOperatorID          *string `json:"target_operator_id"`
	OperatorSelectionStrategy string  `json:"operator_selection_strategy"`
	Priority                  int     `json:"priority"`
	IsActive                  *bool   `json:"is_active"`
	Notes                     string  `json:"notes"`
}

func (s *DispatchService) CreateRule(ctx context.Context, req SaveRuleRequest) (*entity.TaskAssignmentRule, error) {
	if err := validateStrategy(req.OperatorSelectionStrategy); err != nil {
		return nil, err
	}
	strategy := req.OperatorSelectionStrategy
	if strategy == "" {
		strategy = entity.StrategyLeastTasks
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if existing, err := s.deps.Repos.Rule.GetByProcessAndDepartment(ctx, req.ProcessID, req.TargetDepartmentID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Conflict("该工序与部门组合已有派工规则: %s", existing.Name)
	}
	rule := &entity.TaskAssignmentRule{
		ID:                        newID(),
		Name:                      req.Name,
		ProcessID:                 req.ProcessID,
		TargetDepartmentID:        req.TargetDepartmentID,
		TargetOperatorID:          req.TargetOperatorID,
		OperatorSelectionStrategy: strategy,
		Priority:                  req.Priority,
		IsActive:                  active,
		Notes:                     req.Notes,
	}
	if err := s.deps.Repos.Rule.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("创建派工规则失败: %w", err)
	}
	return rule, nil
}

func (s *DispatchService) UpdateRule(ctx context.Context, id string, req SaveRuleRequest) (*entity.TaskAssignmentRule, error) {
	if err := validateStrategy(req.OperatorSelectionStrategy); err != nil {
		return nil, err
	}
	rule, err := s.deps.Repos.Rule.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("派工规则不存在: %s", id)
		}
		return nil, err
	}
	if existing, err := s.deps.Repos.Rule.GetByProcessAndDepartment(ctx, req.ProcessID, req.TargetDepartmentID); err != nil {
		return nil, err
	} else if existing != nil && existing.ID != id {
		return nil, apperr.Conflict("该工序与部门组合已有派工规则: %s", existing.Name)
	}
	rule.Name = req.Name
	rule.ProcessID = req.ProcessID
	rule.TargetDepartmentID = req.TargetDepartmentID
	rule.TargetOperatorID = req.TargetOperatorID
	if req.OperatorSelectionStrategy != "" {
		rule.OperatorSelectionStrategy = req.OperatorSelectionStrategy
	}
	rule.Priority = req.Priority
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	rule.Notes = req.Notes
	if err := s.deps.Repos.Rule.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("更新派工规则失败: %w", err)
	}
	return rule, nil
}

func (s *DispatchService) DeleteRule(ctx context.Context, id string) error {
	return s.deps.Repos.Rule.Delete(ctx, id)
}

func (s *DispatchService) ListRules(ctx context.Context) ([]entity.TaskAssignmentRule, error) {
	return s.deps.Repos.Rule.List(ctx)
}

func validateStrategy(strategy string) error {
	switch strategy {
	case "", entity.StrategyLeastTasks, entity.StrategyRandom, entity.StrategyRoundRobin, entity.StrategyFirstAvailable:
		return nil
	default:
		return apperr.Validation("未知的选人策略: %s", strategy)
	}
}

// taskTypeForProcess 工序生成规则与编码对应的任务类型
func taskTypeForProcess(proc *entity.Process) string {
	switch proc.TaskGenerationRule {
	case entity.GenRuleArtwork:
		return entity.TaskTypePlateMaking
	case entity.GenRuleDie:
		return entity.TaskTypeDieCutting
	case entity.GenRuleMaterial:
		return entity.TaskTypeCutting
	case entity.GenRuleProduct:
		return entity.TaskTypePackaging
	case entity.GenRulePlate:
		if proc.Code == entity.ProcessCodeEmb {
			return entity.TaskTypeEmbossing
		}
		return entity.TaskTypeFoiling
	default:
		switch proc.Code {
		case entity.ProcessCodePrint:
			return entity.TaskTypePrinting
		default:
			return entity.TaskTypeGeneral
		}
	}
}
