package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/model/entity"
)

// OperatorRepository 操作员与部门仓库
type OperatorRepository struct {
	db *gorm.DB
}

func NewOperatorRepository(db *gorm.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) GetByID(ctx context.Context, id string) (*entity.Operator, error) {
	var op entity.Operator
	err := r.db.WithContext(ctx).
		Preload("Departments").
		Where("id = ?", id).First(&op).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &op, nil
}

func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*entity.Operator, error) {
	var op entity.Operator
	err := r.db.WithContext(ctx).
		Preload("Departments").
		Where("username = ?", username).First(&op).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &op, nil
}

// ListActiveByDepartment 部门内在职操作员
func (r *OperatorRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]entity.Operator, error) {
	var operators []entity.Operator
	err := r.db.WithContext(ctx).
		Joins("JOIN operator_departments od ON od.operator_id = operators.id").
		Where("od.department_id = ? AND operators.is_active = ?", departmentID, true).
		Order("operators.username ASC").
		Find(&operators).Error
	return operators, err
}

// ListByIDs 批量取操作员，统计报表补名字用
func (r *OperatorRepository) ListByIDs(ctx context.Context, ids []string) ([]entity.Operator, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var operators []entity.Operator
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&operators).Error
	return operators, err
}

// ListSuperusers 全部在职超级用户，低库存预警的收件人
func (r *OperatorRepository) ListSuperusers(ctx context.Context) ([]entity.Operator, error) {
	var operators []entity.Operator
	err := r.db.WithContext(ctx).
		Where("is_superuser = ? AND is_active = ?", true, true).
		Find(&operators).Error
	return operators, err
}

func (r *OperatorRepository) GetDepartmentByID(ctx context.Context, id string) (*entity.Department, error) {
	var dept entity.Department
	err := r.db.WithContext(ctx).
		Preload("Processes").
		Where("id = ?", id).First(&dept).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &dept, nil
}

func (r *OperatorRepository) ListDepartments(ctx context.Context) ([]entity.Department, error) {
	var depts []entity.Department
	err := r.db.WithContext(ctx).
		Preload("Processes").
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&depts).Error
	return depts, err
}

// ListDepartmentsByProcess 可承接指定工序的部门
func (r *OperatorRepository) ListDepartmentsByProcess(ctx context.Context, processID string) ([]entity.Department, error) {
	var depts []entity.Department
	err := r.db.WithContext(ctx).
		Joins("JOIN department_processes dp ON dp.department_id = departments.id").
		Where("dp.process_id = ? AND departments.is_active = ?", processID, true).
		Find(&depts).Error
	return depts, err
}

func (r *OperatorRepository) GetProcessByID(ctx context.Context, id string) (*entity.Process, error) {
	var p entity.Process
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (r *OperatorRepository) GetProcessByCode(ctx context.Context, code string) (*entity.Process, error) {
	var p entity.Process
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (r *OperatorRepository) ListProcesses(ctx context.Context) ([]entity.Process, error) {
	var processes []entity.Process
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, code ASC").
		Find(&processes).Error
	return processes, err
}

func (r *OperatorRepository) GetCustomerByID(ctx context.Context, id string) (*entity.Customer, error) {
	var c entity.Customer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}
