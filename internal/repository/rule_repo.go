package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// RuleRepository 派工规则与系统配置仓库
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *entity.TaskAssignmentRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *RuleRepository) Update(ctx context.Context, rule *entity.TaskAssignmentRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.TaskAssignmentRule{}).Error
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*entity.TaskAssignmentRule, error) {
	var rule entity.TaskAssignmentRule
	err := r.db.WithContext(ctx).
		Preload("TargetDepartment").
		Preload("TargetOperator").
		Where("id = ?", id).First(&rule).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &rule, nil
}

func (r *RuleRepository) List(ctx context.Context) ([]entity.TaskAssignmentRule, error) {
	var rules []entity.TaskAssignmentRule
	err := r.db.WithContext(ctx).
		Preload("TargetDepartment").
		Preload("TargetOperator").
		Order("priority DESC, created_at ASC").
		Find(&rules).Error
	return rules, err
}

// ListActiveByProcess 按优先级降序返回工序下的启用规则，匹配时取首条
func (r *RuleRepository) ListActiveByProcess(ctx context.Context, processID string) ([]entity.TaskAssignmentRule, error) {
	var rules []entity.TaskAssignmentRule
	err := r.db.WithContext(ctx).
		Preload("TargetDepartment").
		Preload("TargetOperator").
		Where("process_id = ? AND is_active = ?", processID, true).
		Order("priority DESC, created_at ASC").
		Find(&rules).Error
	return rules, err
}

// GetByProcessAndDepartment 查工序+部门组合上的既有规则，没有则返回 nil
func (r *RuleRepository) GetByProcessAndDepartment(ctx context.Context, processID, departmentID string) (*entity.TaskAssignmentRule, error) {
	var rule entity.TaskAssignmentRule
	err := r.db.WithContext(ctx).
		Where("process_id = ? AND target_department_id = ?", processID, departmentID).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// GetConfig 读取系统配置项，不存在时返回默认值
func (r *RuleRepository) GetConfig(ctx context.Context, key, defaultValue string) (string, error) {
	var cfg entity.SystemConfig
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&cfg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return defaultValue, nil
		}
		return "", err
	}
	return cfg.Value, nil
}

// SetConfig 写入系统配置项
func (r *RuleRepository) SetConfig(ctx context.Context, key, value string) error {
	cfg := entity.SystemConfig{Key: key, Value: value}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&cfg).Error
}
