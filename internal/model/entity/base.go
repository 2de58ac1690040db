package entity

import (
	"time"
)

// 任务生成规则
const (
	GenRuleArtwork  = "artwork"  // 按图稿生成（制版）
	GenRuleDie      = "die"      // 按刀模生成
	GenRulePlate    = "plate"    // 按烫金版/压凸版生成
	GenRuleProduct  = "product"  // 按产品生成（包装）
	GenRuleMaterial = "material" // 按物料生成（开料）
	GenRuleGeneral  = "general"  // 单个通用任务
)

// 工序编码（印刷行业固定工序）
const (
	ProcessCodeCTP   = "CTP"    // 制版
	ProcessCodeCut   = "CUT"    // 开料
	ProcessCodePrint = "PRT"    // 印刷
	ProcessCodeFoil  = "FOIL_G" // 烫金
	ProcessCodeEmb   = "EMB"    // 压凸
	ProcessCodeDie   = "DIE"    // 模切
	ProcessCodePack  = "PACK"   // 包装
)

// Customer 客户
type Customer struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Contact   string    `json:"contact" gorm:"size:64"`
	Phone     string    `json:"phone" gorm:"size:32"`
	Address   string    `json:"address" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

// Department 生产部门（车间）
type Department struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	SortOrder int       `json:"sort_order" gorm:"default:0"`
	ParentID  *string   `json:"parent_id" gorm:"size:32;index"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 该部门可承接的工序
	Processes []Process `json:"processes,omitempty" gorm:"many2many:department_processes;"`
}

func (Department) TableName() string {
	return "departments"
}

// Process 工序定义（制版、印刷、模切、包装等）
type Process struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	Code      string `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Name      string `json:"name" gorm:"size:128;not null"`
	Category  string `json:"category" gorm:"size:50"`
	// 任务生成规则，决定工序开始时按什么维度展开任务
	TaskGenerationRule string    `json:"task_generation_rule" gorm:"size:20;default:general"`
	IsParallel         bool      `json:"is_parallel" gorm:"default:false"` // 并行工序不阻塞后续工序
	IsActive           bool      `json:"is_active" gorm:"default:true"`
	SortOrder          int       `json:"sort_order" gorm:"default:0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Process) TableName() string {
	return "processes"
}

// Operator 操作员（生产人员）
//
// 认证在边界层完成，这里只保存分派和统计所需的最小信息。
type Operator struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Username    string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"size:64"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	IsSuperuser bool      `json:"is_superuser" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Departments []Department `json:"departments,omitempty" gorm:"many2many:operator_departments;"`
}

func (Operator) TableName() string {
	return "operators"
}
