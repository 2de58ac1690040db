package entity

import (
	"time"
)

// Artwork 图稿库
type Artwork struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	Code        string     `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name        string     `json:"name" gorm:"size:200;not null"`
	Version     string     `json:"version" gorm:"size:20;default:v1"`
	Confirmed   bool       `json:"confirmed" gorm:"default:false;index"` // 客户确认后才可开始制版
	ConfirmedAt *time.Time `json:"confirmed_at"`
	Notes       string     `json:"notes" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Artwork) TableName() string {
	return "artworks"
}

// Die 刀模库
type Die struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Size      string    `json:"size" gorm:"size:100"`
	Confirmed bool      `json:"confirmed" gorm:"default:false;index"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Die) TableName() string {
	return "dies"
}

// FoilingPlate 烫金版库
type FoilingPlate struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Confirmed bool      `json:"confirmed" gorm:"default:false"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FoilingPlate) TableName() string {
	return "foiling_plates"
}

// EmbossingPlate 压纹版库
type EmbossingPlate struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Confirmed bool      `json:"confirmed" gorm:"default:false"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EmbossingPlate) TableName() string {
	return "embossing_plates"
}

// Material 物料库
type Material struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	Code          string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name          string    `json:"name" gorm:"size:200;not null"`
	Specification string    `json:"specification" gorm:"size:200"`
	Unit          string    `json:"unit" gorm:"size:20;default:张"`
	Notes         string    `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Material) TableName() string {
	return "materials"
}

// WorkOrderArtwork 施工单-图稿关联，带拼版信息
type WorkOrderArtwork struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID string `json:"work_order_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_artwork,priority:1"`
	ArtworkID   string `json:"artwork_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_artwork,priority:2"`

	ImpositionCount    int `json:"imposition_count" gorm:"default:1"`     // 拼版数
	QuantityPerProduct int `json:"quantity_per_product" gorm:"default:1"` // 单产品数量
	SortOrder          int `json:"sort_order" gorm:"default:0"`

	Confirmed bool      `json:"confirmed" gorm:"default:false"` // 本单确认状态
	CreatedAt time.Time `json:"created_at"`

	Artwork *Artwork `json:"artwork,omitempty" gorm:"foreignKey:ArtworkID"`
}

func (WorkOrderArtwork) TableName() string {
	return "work_order_artworks"
}

// WorkOrderDie 施工单-刀模关联
type WorkOrderDie struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID string    `json:"work_order_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_die,priority:1"`
	DieID       string    `json:"die_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_die,priority:2"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	Confirmed   bool      `json:"confirmed" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`

	Die *Die `json:"die,omitempty" gorm:"foreignKey:DieID"`
}

func (WorkOrderDie) TableName() string {
	return "work_order_dies"
}

// WorkOrderFoilingPlate 施工单-烫金版关联
type WorkOrderFoilingPlate struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID    string    `json:"work_order_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_foil,priority:1"`
	FoilingPlateID string    `json:"foiling_plate_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_foil,priority:2"`
	SortOrder      int       `json:"sort_order" gorm:"default:0"`
	Confirmed      bool      `json:"confirmed" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at"`

	FoilingPlate *FoilingPlate `json:"foiling_plate,omitempty" gorm:"foreignKey:FoilingPlateID"`
}

func (WorkOrderFoilingPlate) TableName() string {
	return "work_order_foiling_plates"
}

// WorkOrderEmbossingPlate 施工单-压纹版关联
type WorkOrderEmbossingPlate struct {
	ID               string    `json:"id" gorm:"primaryKey;size:32"`
	WorkOrderID      string    `json:"work_order_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_emb,priority:1"`
	EmbossingPlateID string    `json:"embossing_plate_id" gorm:"size:32;not null;uniqueIndex:uniq_wo_emb,priority:2"`
	SortOrder        int       `json:"sort_order" gorm:"default:0"`
	Confirmed        bool      `json:"confirmed" gorm:"default:false"`
	CreatedAt        time.Time `json:"created_at"`

	EmbossingPlate *EmbossingPlate `json:"embossing_plate,omitempty" gorm:"foreignKey:EmbossingPlateID"`
}

func (WorkOrderEmbossingPlate) TableName() string {
	return "work_order_embossing_plates"
}
