package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// ProductRepository 产品与库存仓库
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *entity.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepository) Update(ctx context.Context, p *entity.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// GetForUpdate 加行锁读取产品，库存变动必须走这里
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context, keyword string, page, size int) ([]entity.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Product{}).Where("is_active = ?", true)
	if keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("code LIKE ? OR name LIKE ?", kw, kw)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var products []entity.Product
	err := query.Order("code ASC").Offset((page - 1) * size).Limit(size).Find(&products).Error
	return products, total, err
}

// ListLowStock 库存低于预警线的产品
func (r *ProductRepository) ListActive(ctx context.Context) ([]entity.Product, error) {
	var products []entity.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("code ASC").
		Find(&products).Error
	return products, err
}

func (r *ProductRepository) ListLowStock(ctx context.Context) ([]entity.Product, error) {
	var products []entity.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND min_stock_quantity > 0 AND stock_quantity < min_stock_quantity", true).
		Order("code ASC").
		Find(&products).Error
	return products, err
}

func (r *ProductRepository) CreateStockLog(ctx context.Context, log *entity.ProductStockLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *ProductRepository) ListStockLogs(ctx context.Context, productID string, page, size int) ([]entity.ProductStockLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductStockLog{}).Where("product_id = ?", productID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var logs []entity.ProductStockLog
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&logs).Error
	return logs, total, err
}

// SumStockLogByProduct 产品全部流水的净变动，一致性核对用
func (r *ProductRepository) SumStockLogByProduct(ctx context.Context, productID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&entity.ProductStockLog{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity),0)").
		Scan(&sum).Error
	return sum, err
}

func (r *ProductRepository) GetMaterialByID(ctx context.Context, id string) (*entity.Material, error) {
	var m entity.Material
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

func (r *ProductRepository) ListMaterials(ctx context.Context, keyword string) ([]entity.Material, error) {
	query := r.db.WithContext(ctx).Model(&entity.Material{})
	if keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("code LIKE ? OR name LIKE ?", kw, kw)
	}
	var materials []entity.Material
	err := query.Order("code ASC").Find(&materials).Error
	return materials, err
}
