package entity

import (
	"time"
)

// 施工单状态
const (
	WOStatusPending    = "pending"
	WOStatusInProgress = "in_progress"
	WOStatusPaused     = "paused"
	WOStatusCompleted  = "completed"
	WOStatusCancelled  = "cancelled"
)

// 审核状态
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// 优先级
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// 工序/任务状态
const (
	ProcStatusPending    = "pending"
	ProcStatusInProgress = "in_progress"
	ProcStatusPaused     = "paused"
	ProcStatusCompleted  = "completed"
	ProcStatusCancelled  = "cancelled"

	TaskStatusDraft      = "draft"
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusPaused     = "paused"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// 任务类型
const (
	TaskTypePlateMaking = "plate_making"
	TaskTypeCutting     = "cutting"
	TaskTypePrinting    = "printing"
	TaskTypeFoiling     = "foiling"
	TaskTypeEmbossing   = "embossing"
	TaskTypeDieCutting  = "die_cutting"
	TaskTypePackaging   = "packaging"
	TaskTypeGeneral     = "general"
)

// 物料采购状态
const (
	MaterialPending   = "pending"
	MaterialOrdered   = "ordered"
	MaterialReceived  = "received"
	MaterialCut       = "cut"
	MaterialCompleted = "completed"
)

// ApprovedOrderProtectedFields 审核通过后禁止编辑的核心字段。
// 持有 edit_approved_workorder 能力的用户修改这些字段时，审核状态回退为待审核。
var ApprovedOrderProtectedFields = []string{
	"customer",
	"products",
	"processes",
	"artworks",
	"dies",
	"foiling_plates",
	"embossing_plates",
	"printing_type",
	"production_quantity",
	"total_amount",
}

// WorkOrder 印刷施工单
type WorkOrder struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	OrderNumber string `json:"order_number" gorm:"size:50;not null;uniqueIndex"`
	CustomerID  string `json:"customer_id" gorm:"size:32;not null;index:idx_wo_customer_status,priority:1"`

	Status         string `json:"status" gorm:"size:20;not null;default:pending;index:idx_wo_customer_status,priority:2;index:idx_wo_status_priority,priority:1"`
	ApprovalStatus string `json:"approval_status" gorm:"size:20;not null;default:pending;index"`
	Priority       string `json:"priority" gorm:"size:20;not null;default:normal;index:idx_wo_status_priority,priority:2"`

	// 印刷形式：none/front/back/self_reverse/reverse_gripper/register
	PrintingType string `json:"printing_type" gorm:"size:20;default:none"`

	OrderDate          time.Time  `json:"order_date" gorm:"index"`
	DeliveryDate       time.Time  `json:"delivery_date" gorm:"index"`
	ActualDeliveryDate *time.Time `json:"actual_delivery_date"`

	ProductionQuantity int `json:"production_quantity" gorm:"default:0"`
	DefectiveQuantity  int `json:"defective_quantity" gorm:"default:0"` // 预损数量

	TotalAmount float64 `json:"total_amount" gorm:"type:decimal(12,2);default:0"`

	ApprovedBy      *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt      *time.Time `json:"approved_at"`
	ApprovalComment string     `json:"approval_comment" gorm:"type:text"`

	Notes     string `json:"notes" gorm:"type:text"`
	CreatedBy string `json:"created_by" gorm:"size:32;index"` // 制表人

	// 乐观锁版本号
	Version int `json:"version" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Customer  *Customer           `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Processes []WorkOrderProcess  `json:"processes,omitempty" gorm:"foreignKey:WorkOrderID"`
	Products  []WorkOrderProduct  `json:"products,omitempty" gorm:"foreignKey:WorkOrderID"`
	Materials []WorkOrderMaterial `json:"materials,omitempty" gorm:"foreignKey:WorkOrderID"`

	Artworks        []WorkOrderArtwork        `json:"artworks,omitempty" gorm:"foreignKey:WorkOrderID"`
	Dies            []WorkOrderDie            `json:"dies,omitempty" gorm:"foreignKey:WorkOrderID"`
	FoilingPlates   []WorkOrderFoilingPlate   `json:"foiling_plates,omitempty" gorm:"foreignKey:WorkOrderID"`
	EmbossingPlates []WorkOrderEmbossingPlate `json:"embossing_plates,omitempty" gorm:"foreignKey:WorkOrderID"`
}

func (WorkOrder) TableName() string {
	return "work_orders"
}

// WorkOrderProcess 施工单工序记录
type WorkOrderProcess struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID string `json:"work_order_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_seq,priority:1;index:idx_wop_wo_status,priority:1"`
	ProcessID   string `json:"process_id" gorm:"size:32;not null;index"`

	Sequence int    `json:"sequence" gorm:"not null;uniqueIndex:uniq_wo_seq,priority:2"`
	Status   string `json:"status" gorm:"size:20;not null;default:pending;index:idx_wop_wo_status,priority:2"`

	DepartmentID *string `json:"department_id" gorm:"size:32;index"`
	OperatorID   *string `json:"operator_id" gorm:"size:32;index"`

	PlannedStartTime *time.Time `json:"planned_start_time"`
	PlannedEndTime   *time.Time `json:"planned_end_time"`
	ActualStartTime  *time.Time `json:"actual_start_time"`
	ActualEndTime    *time.Time `json:"actual_end_time"`

	QuantityCompleted int `json:"quantity_completed" gorm:"default:0"`
	QuantityDefective int `json:"quantity_defective" gorm:"default:0"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Process    *Process        `json:"process,omitempty" gorm:"foreignKey:ProcessID"`
	Department *Department     `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
	Tasks      []WorkOrderTask `json:"tasks,omitempty" gorm:"foreignKey:WorkOrderProcessID"`
}

func (WorkOrderProcess) TableName() string {
	return "work_order_processes"
}

// WorkOrderProduct 施工单产品关联（一套图稿可拼版多个产品）
type WorkOrderProduct struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID   string    `json:"work_order_id" gorm:"size:32;not null;index"`
	ProductID     string    `json:"product_id" gorm:"size:32;not null;index"`
	Quantity      int       `json:"quantity" gorm:"default:1"`
	Unit          string    `json:"unit" gorm:"size:20;default:件"`
	Specification string    `json:"specification" gorm:"type:text"`
	SortOrder     int       `json:"sort_order" gorm:"default:0"`
	CreatedAt     time.Time `json:"created_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (WorkOrderProduct) TableName() string {
	return "work_order_products"
}

// WorkOrderMaterial 施工单物料使用记录
type WorkOrderMaterial struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID string `json:"work_order_id" gorm:"size:32;not null;index"`
	MaterialID  string `json:"material_id" gorm:"size:32;not null;index"`

	MaterialSize  string `json:"material_size" gorm:"size:100"`
	MaterialUsage int    `json:"material_usage" gorm:"default:0"` // 用量（张/车）

	NeedCutting    bool   `json:"need_cutting" gorm:"default:false"`
	PurchaseStatus string `json:"purchase_status" gorm:"size:20;default:pending"`

	PurchaseDate *time.Time `json:"purchase_date"`
	ReceivedDate *time.Time `json:"received_date"`
	CutDate      *time.Time `json:"cut_date"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	Material *Material `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
}

func (WorkOrderMaterial) TableName() string {
	return "work_order_materials"
}

// WorkOrderTask 施工单任务（工序展开后的具体执行单元）
type WorkOrderTask struct {
	ID                 string `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderProcessID string `json:"work_order_process_id" gorm:"size:32;not null;index:idx_task_proc_status,priority:1"`

	TaskType    string `json:"task_type" gorm:"size:20;not null;default:general;index"`
	WorkContent string `json:"work_content" gorm:"type:text"`

	ProductionQuantity int `json:"production_quantity" gorm:"default:0"`
	QuantityCompleted  int `json:"quantity_completed" gorm:"default:0"`
	QuantityDefective  int `json:"quantity_defective" gorm:"default:0"`
	// 已计入产品库存的完成数量，是库存对账的幂等水位线
	StockAccountedQuantity int `json:"stock_accounted_quantity" gorm:"default:0"`

	AutoCalculateQuantity bool `json:"auto_calculate_quantity" gorm:"default:false"`

	// 关联对象：按任务类型最多一个字段有值
	ArtworkID        *string `json:"artwork_id" gorm:"size:32;index"`
	DieID            *string `json:"die_id" gorm:"size:32;index"`
	ProductID        *string `json:"product_id" gorm:"size:32;index"`
	MaterialID       *string `json:"material_id" gorm:"size:32;index"`
	FoilingPlateID   *string `json:"foiling_plate_id" gorm:"size:32"`
	EmbossingPlateID *string `json:"embossing_plate_id" gorm:"size:32"`

	AssignedDepartmentID *string `json:"assigned_department_id" gorm:"size:32;index:idx_task_dept_status,priority:1"`
	AssignedOperatorID   *string `json:"assigned_operator_id" gorm:"size:32;index:idx_task_op_status,priority:1"`

	// 任务拆分（多人协作）
	ParentTaskID *string `json:"parent_task_id" gorm:"size:32;index"`

	Priority               string `json:"priority" gorm:"size:20;default:normal"`
	ProductionRequirements string `json:"production_requirements" gorm:"type:text"`

	Status string `json:"status" gorm:"size:20;not null;default:pending;index:idx_task_proc_status,priority:2;index:idx_task_dept_status,priority:2;index:idx_task_op_status,priority:2"`

	// 乐观锁版本号，每次修改严格 +1
	Version int `json:"version" gorm:"default:1"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Process            *WorkOrderProcess `json:"process,omitempty" gorm:"foreignKey:WorkOrderProcessID"`
	AssignedDepartment *Department       `json:"assigned_department,omitempty" gorm:"foreignKey:AssignedDepartmentID"`
	AssignedOperator   *Operator         `json:"assigned_operator,omitempty" gorm:"foreignKey:AssignedOperatorID"`
	Subtasks           []WorkOrderTask   `json:"subtasks,omitempty" gorm:"foreignKey:ParentTaskID"`
}

func (WorkOrderTask) TableName() string {
	return "work_order_tasks"
}

// IsSubtask 是否为子任务
func (t *WorkOrderTask) IsSubtask() bool {
	return t.ParentTaskID != nil
}

// 任务日志类型
const (
	TaskLogStart          = "start"
	TaskLogUpdateQuantity = "update_quantity"
	TaskLogComplete       = "complete"
	TaskLogStatusChange   = "status_change"
	TaskLogAssign         = "assign"
	TaskLogClaim          = "claim"
	TaskLogCancel         = "cancel"
	TaskLogSplit          = "split"
)

// TaskLog 任务操作日志，只追加，不更新不删除
type TaskLog struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	TaskID  string `json:"task_id" gorm:"size:32;not null;index:idx_tasklog_task_time,priority:1"`
	LogType string `json:"log_type" gorm:"size:20;not null;index"`
	Content string `json:"content" gorm:"type:text"`

	QuantityBefore             *int `json:"quantity_before"`
	QuantityAfter              *int `json:"quantity_after"`
	QuantityIncrement          *int `json:"quantity_increment"`
	QuantityDefectiveIncrement *int `json:"quantity_defective_increment"`

	StatusBefore     string `json:"status_before" gorm:"size:20"`
	StatusAfter      string `json:"status_after" gorm:"size:20"`
	CompletionReason string `json:"completion_reason" gorm:"type:text"`

	OperatorID *string   `json:"operator_id" gorm:"size:32;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_tasklog_task_time,priority:2"`
}

func (TaskLog) TableName() string {
	return "task_logs"
}

// 工序日志类型
const (
	ProcessLogStart    = "start"
	ProcessLogPause    = "pause"
	ProcessLogResume   = "resume"
	ProcessLogComplete = "complete"
	ProcessLogNote     = "note"
)

// ProcessLog 工序日志
type ProcessLog struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderProcessID string    `json:"work_order_process_id" gorm:"size:32;not null;index"`
	LogType            string    `json:"log_type" gorm:"size:20;not null"`
	Content            string    `json:"content" gorm:"type:text"`
	OperatorID         *string   `json:"operator_id" gorm:"size:32"`
	CreatedAt          time.Time `json:"created_at"`
}

func (ProcessLog) TableName() string {
	return "process_logs"
}
