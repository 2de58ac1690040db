package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// WorkOrderRepository 施工单仓库
type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

func (r *WorkOrderRepository) Create(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Create(wo).Error
}

func (r *WorkOrderRepository) Update(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Save(wo).Error
}

// UpdateColumns 只更新指定列，绕过 Save 的全量覆盖
func (r *WorkOrderRepository) UpdateColumns(ctx context.Context, id string, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.WorkOrder{}).Where("id = ?", id).Updates(values).Error
}

func (r *WorkOrderRepository) GetByID(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Processes", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("Processes.Process").
		Preload("Processes.Department").
		Preload("Products").
		Preload("Products.Product").
		Preload("Materials").
		Preload("Materials.Material").
		Preload("Artworks").
		Preload("Artworks.Artwork").
		Preload("Dies").
		Preload("Dies.Die").
		Preload("FoilingPlates").
		Preload("FoilingPlates.FoilingPlate").
		Preload("EmbossingPlates").
		Preload("EmbossingPlates.EmbossingPlate").
		Where("id = ?", id).First(&wo).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &wo, nil
}

// GetForUpdate 加行锁读取，用于状态级联与审核
func (r *WorkOrderRepository) GetForUpdate(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).First(&wo).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &wo, nil
}

// MaxOrderNumberWithPrefix 取指定前缀下最大的单号，生成单号时配合行锁使用
func (r *WorkOrderRepository) MaxOrderNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var number string
	err := forUpdate(r.db.WithContext(ctx)).
		Model(&entity.WorkOrder{}).
		Where("order_number LIKE ?", prefix+"%").
		Order("order_number DESC").
		Limit(1).
		Pluck("order_number", &number).Error
	return number, err
}

type WorkOrderListParams struct {
	Status         string
	Statuses       []string
	ApprovalStatus string
	Priority       string
	CustomerID     string
	Keyword        string
	Page           int
	Size           int
}

func (r *WorkOrderRepository) List(ctx context.Context, params WorkOrderListParams) ([]entity.WorkOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if len(params.Statuses) > 0 {
		query = query.Where("status IN ?", params.Statuses)
	}
	if params.ApprovalStatus != "" {
		query = query.Where("approval_status = ?", params.ApprovalStatus)
	}
	if params.Priority != "" {
		query = query.Where("priority = ?", params.Priority)
	}
	if params.CustomerID != "" {
		query = query.Where("customer_id = ?", params.CustomerID)
	}
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("order_number LIKE ? OR notes LIKE ?", kw, kw)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}

	var orders []entity.WorkOrder
	err := query.
		Preload("Customer").
		Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).
		Limit(params.Size).
		Find(&orders).Error
	return orders, total, err
}

// ListApproachingDeadline 查询临近交期且未完结的施工单
func (r *WorkOrderRepository) ListApproachingDeadline(ctx context.Context, within time.Duration) ([]entity.WorkOrder, error) {
	var orders []entity.WorkOrder
	deadline := time.Now().Add(within)
	err := r.db.WithContext(ctx).
		Where("delivery_date <= ? AND status IN ?", deadline,
			[]string{entity.WOStatusPending, entity.WOStatusInProgress, entity.WOStatusPaused}).
		Order("delivery_date ASC").
		Find(&orders).Error
	return orders, err
}

func (r *WorkOrderRepository) CreateApprovalLog(ctx context.Context, log *entity.WorkOrderApprovalLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *WorkOrderRepository) ListApprovalLogs(ctx context.Context, workOrderID string) ([]entity.WorkOrderApprovalLog, error) {
	var logs []entity.WorkOrderApprovalLog
	err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// CountByStatus 按状态统计施工单数量
func (r *WorkOrderRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.WorkOrder{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, rw := range rows {
		result[rw.Status] = rw.Count
	}
	return result, nil
}

// ReplaceProducts 重建施工单产品明细
func (r *WorkOrderRepository) ReplaceProducts(ctx context.Context, workOrderID string, products []entity.WorkOrderProduct) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderProduct{}).Error; err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	return tx.Create(&products).Error
}

// ReplaceMaterials 重建施工单物料明细
func (r *WorkOrderRepository) ReplaceMaterials(ctx context.Context, workOrderID string, materials []entity.WorkOrderMaterial) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderMaterial{}).Error; err != nil {
		return err
	}
	if len(materials) == 0 {
		return nil
	}
	return tx.Create(&materials).Error
}

func (r *WorkOrderRepository) UpdateMaterial(ctx context.Context, m *entity.WorkOrderMaterial) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *WorkOrderRepository) GetMaterialByID(ctx context.Context, id string) (*entity.WorkOrderMaterial, error) {
	var m entity.WorkOrderMaterial
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

// ReplaceArtworks 重建施工单图稿关联
func (r *WorkOrderRepository) ReplaceArtworks(ctx context.Context, workOrderID string, items []entity.WorkOrderArtwork) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderArtwork{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// ReplaceDies 重建施工单刀模关联
func (r *WorkOrderRepository) ReplaceDies(ctx context.Context, workOrderID string, items []entity.WorkOrderDie) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderDie{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// ReplaceFoilingPlates 重建施工单烫金版关联
func (r *WorkOrderRepository) ReplaceFoilingPlates(ctx context.Context, workOrderID string, items []entity.WorkOrderFoilingPlate) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderFoilingPlate{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// ReplaceEmbossingPlates 重建施工单压纹版关联
func (r *WorkOrderRepository) ReplaceEmbossingPlates(ctx context.Context, workOrderID string, items []entity.WorkOrderEmbossingPlate) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("work_order_id = ?", workOrderID).Delete(&entity.WorkOrderEmbossingPlate{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}
