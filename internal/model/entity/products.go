package entity

import (
	"time"
)

// 库存变动方向，来源写在 reason 里
const (
	StockChangeAdd    = "add"
	StockChangeReduce = "reduce"
)

// Product 产品库
type Product struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	Code          string `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name          string `json:"name" gorm:"size:200;not null"`
	Specification string `json:"specification" gorm:"size:200"`
	Unit          string `json:"unit" gorm:"size:20;default:件"`

	StockQuantity    int `json:"stock_quantity" gorm:"default:0"`
	MinStockQuantity int `json:"min_stock_quantity" gorm:"default:0"` // 低于此值触发预警

	IsActive  bool      `json:"is_active" gorm:"default:true"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// ProductStockLog 产品库存流水，只追加
type ProductStockLog struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProductID string `json:"product_id" gorm:"size:32;not null;index:idx_stocklog_product_time,priority:1"`

	ChangeType  string `json:"change_type" gorm:"size:10;not null"` // add / reduce
	Quantity    int    `json:"quantity" gorm:"not null"`            // 带符号，正入负出
	OldQuantity int    `json:"old_quantity" gorm:"not null"`
	NewQuantity int    `json:"new_quantity" gorm:"not null"`

	// 生产入库时关联来源任务
	TaskID      *string `json:"task_id" gorm:"size:32;index"`
	WorkOrderID *string `json:"work_order_id" gorm:"size:32;index"`

	OperatorID *string   `json:"operator_id" gorm:"size:32"`
	Reason     string    `json:"reason" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_stocklog_product_time,priority:2"`
}

func (ProductStockLog) TableName() string {
	return "product_stock_logs"
}
