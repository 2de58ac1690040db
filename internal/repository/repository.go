package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// forUpdate 给查询加行锁。SQLite 不支持 FOR UPDATE，其单写事务
// 本身就是串行的，直接跳过。
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Repositories 仓库集合
type Repositories struct {
	WorkOrder    *WorkOrderRepository
	Process      *ProcessRepository
	Task         *TaskRepository
	Product      *ProductRepository
	Operator     *OperatorRepository
	Rule         *RuleRepository
	Notification *NotificationRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		WorkOrder:    NewWorkOrderRepository(db),
		Process:      NewProcessRepository(db),
		Task:         NewTaskRepository(db),
		Product:      NewProductRepository(db),
		Operator:     NewOperatorRepository(db),
		Rule:         NewRuleRepository(db),
		Notification: NewNotificationRepository(db),
	}
}

// WithTx 返回绑定到事务的仓库集合
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
