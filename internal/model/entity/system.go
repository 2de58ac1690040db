package entity

import (
	"time"
)

// 操作员挑选策略
const (
	StrategyLeastTasks     = "least_tasks"
	StrategyRandom         = "random"
	StrategyRoundRobin     = "round_robin"
	StrategyFirstAvailable = "first_available"
)

// TaskAssignmentRule 任务派工规则
type TaskAssignmentRule struct {
	ID   string `json:"id" gorm:"primaryKey;size:32"`
	Name string `json:"name" gorm:"size:100;not null"`

	// 同一工序对同一目标部门只能有一条规则
	ProcessID string `json:"process_id" gorm:"size:32;not null;uniqueIndex:uniq_rule_process_dept"`

	TargetDepartmentID string  `json:"target_department_id" gorm:"size:32;not null;uniqueIndex:uniq_rule_process_dept"`
	TargetOperatorID   *string `json:"target_operator_id" gorm:"size:32"`

	// 未指定目标操作员时按策略从部门成员中挑选
	OperatorSelectionStrategy string `json:"operator_selection_strategy" gorm:"size:20;default:least_tasks"`

	// 数值越大优先级越高，多条规则匹配时取最高
	Priority int  `json:"priority" gorm:"default:0;index"`
	IsActive bool `json:"is_active" gorm:"default:true;index"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Process          *Process    `json:"process,omitempty" gorm:"foreignKey:ProcessID"`
	TargetDepartment *Department `json:"target_department,omitempty" gorm:"foreignKey:TargetDepartmentID"`
	TargetOperator   *Operator   `json:"target_operator,omitempty" gorm:"foreignKey:TargetOperatorID"`
}

func (TaskAssignmentRule) TableName() string {
	return "task_assignment_rules"
}

// 通知类型
const (
	NotifyTaskAssigned     = "task_assigned"
	NotifyTaskCompleted    = "task_completed"
	NotifyTaskCancelled    = "task_cancelled"
	NotifyProcessCompleted = "process_completed"
	NotifyOrderApproved    = "order_approved"
	NotifyOrderRejected    = "order_rejected"
	NotifyDeadlineWarning  = "deadline_warning"
	NotifyLowStock         = "low_stock"
)

// Notification 站内通知
type Notification struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	RecipientID string `json:"recipient_id" gorm:"size:32;not null;index:idx_notify_recipient_read,priority:1"`

	NotifyType string `json:"notify_type" gorm:"size:30;not null;index"`
	Title      string `json:"title" gorm:"size:200;not null"`
	Content    string `json:"content" gorm:"type:text"`

	// 关联对象，便于前端跳转
	WorkOrderID *string `json:"work_order_id" gorm:"size:32"`
	TaskID      *string `json:"task_id" gorm:"size:32"`

	IsRead    bool       `json:"is_read" gorm:"default:false;index:idx_notify_recipient_read,priority:2"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// WorkOrderApprovalLog 施工单审核日志
type WorkOrderApprovalLog struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID string `json:"work_order_id" gorm:"size:32;not null;index"`

	Action       string `json:"action" gorm:"size:20;not null"` // approve/reject/revert
	StatusBefore string `json:"status_before" gorm:"size:20"`
	StatusAfter  string `json:"status_after" gorm:"size:20"`
	Comment      string `json:"comment" gorm:"type:text"`

	OperatorID *string   `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (WorkOrderApprovalLog) TableName() string {
	return "work_order_approval_logs"
}

// SystemConfig 系统配置项（全局派工开关等）
type SystemConfig struct {
	Key       string    `json:"key" gorm:"primaryKey;size:50"`
	Value     string    `json:"value" gorm:"size:200;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string {
	return "system_configs"
}

// 配置键
const (
	ConfigAutoDispatchEnabled = "auto_dispatch_enabled"
)
