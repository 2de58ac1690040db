package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/repository"
)

// 单次导出行数上限，超过要求加过滤条件
const maxExportRows = 10000

// ExportService Excel 导出
type ExportService struct {
	deps Deps
}

func NewExportService(deps Deps) *ExportService {
	return &ExportService{deps: deps}
}

func checkExportPermission(actor *middleware.Actor) error {
	if actor.IsSuperuser || actor.Can(middleware.CapExportData) {
		return nil
	}
	return apperr.PermissionDenied("没有数据导出权限")
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowIndex int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowIndex)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// ExportTasks 按过滤条件导出任务清单
func (s *ExportService) ExportTasks(ctx context.Context, actor *middleware.Actor, params repository.TaskListParams) (*excelize.File, string, error) {
	if err := checkExportPermission(actor); err != nil {
		return nil, "", err
	}

	params.Page = 1
	params.Size = maxExportRows + 1
	tasks, total, err := s.deps.Repos.Task.List(ctx, params)
	if err != nil {
		return nil, "", err
	}
	if total > maxExportRows {
		return nil, "", apperr.Business("导出行数 %d 超过上限 %d，请缩小筛选范围", total, maxExportRows)
	}

	f := excelize.NewFile()
	sheet := "任务清单"
	f.SetSheetName("Sheet1", sheet)
	headers := []string{"任务ID", "任务类型", "工作内容", "状态", "优先级",
		"生产数", "完成数", "次品数", "部门", "操作员", "创建时间"}
	if err := writeHeader(f, sheet, headers); err != nil {
		return nil, "", err
	}

	for i, t := range tasks {
		dept := ""
		if t.AssignedDepartment != nil {
			dept = t.AssignedDepartment.Name
		}
		operator := ""
		if t.AssignedOperator != nil {
			operator = t.AssignedOperator.Name
		}
		row := []interface{}{
			t.ID, t.TaskType, t.WorkContent, t.Status, t.Priority,
			t.ProductionQuantity, t.QuantityCompleted, t.QuantityDefective,
			dept, operator, t.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, "", err
		}
	}

	filename := fmt.Sprintf("tasks_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

// ExportWorkOrders 按过滤条件导出施工单列表
func (s *ExportService) ExportWorkOrders(ctx context.Context, actor *middleware.Actor, params repository.WorkOrderListParams) (*excelize.File, string, error) {
	if err := checkExportPermission(actor); err != nil {
		return nil, "", err
	}

	params.Page = 1
	params.Size = maxExportRows + 1
	orders, total, err := s.deps.Repos.WorkOrder.List(ctx, params)
	if err != nil {
		return nil, "", err
	}
	if total > maxExportRows {
		return nil, "", apperr.Business("导出行数 %d 超过上限 %d，请缩小筛选范围", total, maxExportRows)
	}

	f := excelize.NewFile()
	sheet := "施工单"
	f.SetSheetName("Sheet1", sheet)
	headers := []string{"单号", "状态", "审批状态", "优先级", "生产数",
		"交期", "制表人", "创建时间"}
	if err := writeHeader(f, sheet, headers); err != nil {
		return nil, "", err
	}

	for i, wo := range orders {
		row := []interface{}{
			wo.OrderNumber, wo.Status, wo.ApprovalStatus, wo.Priority,
			wo.ProductionQuantity, wo.DeliveryDate.Format("2006-01-02"),
			wo.CreatedBy, wo.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, "", err
		}
	}

	filename := fmt.Sprintf("workorders_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}
