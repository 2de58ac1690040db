package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// ProcessRepository 施工单工序仓库
type ProcessRepository struct {
	db *gorm.DB
}

func NewProcessRepository(db *gorm.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

func (r *ProcessRepository) Create(ctx context.Context, p *entity.WorkOrderProcess) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProcessRepository) BatchCreate(ctx context.Context, processes []entity.WorkOrderProcess) error {
	if len(processes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&processes).Error
}

func (r *ProcessRepository) Update(ctx context.Context, p *entity.WorkOrderProcess) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProcessRepository) GetByID(ctx context.Context, id string) (*entity.WorkOrderProcess, error) {
	var p entity.WorkOrderProcess
	err := r.db.WithContext(ctx).
		Preload("Process").
		Preload("Department").
		Preload("Tasks").
		Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// GetForUpdate 加行锁读取，状态级联时防止并发写
func (r *ProcessRepository) GetForUpdate(ctx context.Context, id string) (*entity.WorkOrderProcess, error) {
	var p entity.WorkOrderProcess
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// ListByWorkOrder 按工序序号升序返回施工单全部工序
func (r *ProcessRepository) ListByWorkOrder(ctx context.Context, workOrderID string) ([]entity.WorkOrderProcess, error) {
	var processes []entity.WorkOrderProcess
	err := r.db.WithContext(ctx).
		Preload("Process").
		Preload("Department").
		Where("work_order_id = ?", workOrderID).
		Order("sequence ASC").
		Find(&processes).Error
	return processes, err
}

// ListByWorkOrderForUpdate 加行锁读取全部工序，can_start 判定在锁内完成
func (r *ProcessRepository) ListByWorkOrderForUpdate(ctx context.Context, workOrderID string) ([]entity.WorkOrderProcess, error) {
	var processes []entity.WorkOrderProcess
	err := forUpdate(r.db.WithContext(ctx)).
		Where("work_order_id = ?", workOrderID).
		Order("sequence ASC").
		Find(&processes).Error
	return processes, err
}

func (r *ProcessRepository) DeleteByWorkOrder(ctx context.Context, workOrderID string) error {
	return r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Delete(&entity.WorkOrderProcess{}).Error
}

func (r *ProcessRepository) CreateLog(ctx context.Context, log *entity.ProcessLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *ProcessRepository) ListLogs(ctx context.Context, processID string) ([]entity.ProcessLog, error) {
	var logs []entity.ProcessLog
	err := r.db.WithContext(ctx).
		Where("work_order_process_id = ?", processID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}
