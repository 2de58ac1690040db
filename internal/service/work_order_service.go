package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/notify"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/sse"
)

// WorkOrderService 施工单服务
type WorkOrderService struct {
	deps Deps
}

func NewWorkOrderService(deps Deps) *WorkOrderService {
	return &WorkOrderService{deps: deps}
}

type ProcessItem struct {
	ProcessID    string  `json:"process_id" binding:"required"`
	Sequence     int     `json:"sequence" binding:"required,gt=0"`
	DepartmentID *string `json:"department_id"`
	Notes        string  `json:"notes"`
}

type ProductItem struct {
	ProductID     string `json:"product_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	Unit          string `json:"unit"`
	Specification string `json:"specification"`
	SortOrder     int    `json:"sort_order"`
}

type MaterialItem struct {
	MaterialID    string `json:"material_id" binding:"required"`
	MaterialSize  string `json:"material_size"`
	MaterialUsage int    `json:"material_usage"`
	NeedCutting   bool   `json:"need_cutting"`
	Notes         string `json:"notes"`
}

type LibraryItem struct {
	EntityID           string `json:"entity_id" binding:"required"`
	ImpositionCount    int    `json:"imposition_count"`
	QuantityPerProduct int    `json:"quantity_per_product"`
	SortOrder          int    `json:"sort_order"`
	Confirmed          bool   `json:"confirmed"`
}

type CreateWorkOrderRequest struct {
	CustomerID         string         `json:"customer_id" binding:"required"`
	Priority           string         `json:"priority"`
	PrintingType       string         `json:"printing_type"`
	OrderDate          string         `json:"order_date"`    // YYYY-MM-DD
	DeliveryDate       string         `json:"delivery_date"` // YYYY-MM-DD
	ProductionQuantity int            `json:"production_quantity" binding:"required,gt=0"`
	DefectiveQuantity  int            `json:"defective_quantity"`
	TotalAmount        float64        `json:"total_amount"`
	Notes              string         `json:"notes"`
	Processes          []ProcessItem  `json:"processes" binding:"required,min=1,dive"`
	Products           []ProductItem  `json:"products" binding:"required,min=1,dive"`
	Materials          []MaterialItem `json:"materials" binding:"dive"`
	Artworks           []LibraryItem  `json:"artworks" binding:"dive"`
	Dies               []LibraryItem  `json:"dies" binding:"dive"`
	FoilingPlates      []LibraryItem  `json:"foiling_plates" binding:"dive"`
	EmbossingPlates    []LibraryItem  `json:"embossing_plates" binding:"dive"`
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

// Create 创建施工单，单号与全部明细在同一事务内落库
func (s *WorkOrderService) Create(ctx context.Context, actor *middleware.Actor, req CreateWorkOrderRequest) (*entity.WorkOrder, error) {
	if req.Priority == "" {
		req.Priority = entity.PriorityNormal
	}
	orderDate, err := parseDate(req.OrderDate)
	if err != nil {
		return nil, apperr.Validation("下单日期格式错误: %s", req.OrderDate)
	}
	deliveryDate, err := parseDate(req.DeliveryDate)
	if err != nil {
		return nil, apperr.Validation("交货日期格式错误: %s", req.DeliveryDate)
	}

	seen := make(map[int]bool, len(req.Processes))
	for _, p := range req.Processes {
		if seen[p.Sequence] {
			return nil, apperr.Validation("工序序号重复: %d", p.Sequence)
		}
		seen[p.Sequence] = true
	}

	var wo *entity.WorkOrder
	err = s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		if _, err := repos.Operator.GetCustomerByID(ctx, req.CustomerID); err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("客户不存在: %s", req.CustomerID)
			}
			return err
		}

		now := time.Now()
		orderNumber, err := generateOrderNumber(ctx, repos.WorkOrder, now)
		if err != nil {
			return err
		}

		wo = &entity.WorkOrder{
			ID:                 newID(),
			OrderNumber:        orderNumber,
			CustomerID:         req.CustomerID,
			Status:             entity.WOStatusPending,
			ApprovalStatus:     entity.ApprovalPending,
			Priority:           req.Priority,
			PrintingType:       req.PrintingType,
			OrderDate:          orderDate,
			DeliveryDate:       deliveryDate,
			ProductionQuantity: req.ProductionQuantity,
			DefectiveQuantity:  req.DefectiveQuantity,
			TotalAmount:        req.TotalAmount,
			Notes:              req.Notes,
			CreatedBy:          actor.UserID,
			Version:            1,
		}
		if err := repos.WorkOrder.Create(ctx, wo); err != nil {
			return fmt.Errorf("创建施工单失败: %w", err)
		}

		processes := make([]entity.WorkOrderProcess, 0, len(req.Processes))
		for _, item := range req.Processes {
			if _, err := repos.Operator.GetProcessByID(ctx, item.ProcessID); err != nil {
				if err == repository.ErrNotFound {
					return apperr.NotFound("工序不存在: %s", item.ProcessID)
				}
				return err
			}
			processes = append(processes, entity.WorkOrderProcess{
				ID:           newID(),
				WorkOrderID:  wo.ID,
				ProcessID:    item.ProcessID,
				Sequence:     item.Sequence,
				Status:       entity.ProcStatusPending,
				DepartmentID: item.DepartmentID,
				Notes:        item.Notes,
			})
		}
		if err := repos.Process.BatchCreate(ctx, processes); err != nil {
			return fmt.Errorf("创建施工单工序失败: %w", err)
		}

		if err := s.updateChildren(ctx, repos, wo.ID, UpdateWorkOrderRequest{
			Products:        req.Products,
			Materials:       req.Materials,
			Artworks:        req.Artworks,
			Dies:            req.Dies,
			FoilingPlates:   req.FoilingPlates,
			EmbossingPlates: req.EmbossingPlates,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sse.PublishWorkOrderUpdate(wo.ID, "created")
	return s.Get(ctx, wo.ID)
}

func (s *WorkOrderService) Get(ctx context.Context, id string) (*entity.WorkOrder, error) {
	wo, err := s.deps.Repos.WorkOrder.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("施工单不存在: %s", id)
		}
		return nil, err
	}
	return wo, nil
}

func (s *WorkOrderService) List(ctx context.Context, params repository.WorkOrderListParams) ([]entity.WorkOrder, int64, error) {
	return s.deps.Repos.WorkOrder.List(ctx, params)
}

type UpdateWorkOrderRequest struct {
	CustomerID         *string        `json:"customer_id"`
	Priority           *string        `json:"priority"`
	PrintingType       *string        `json:"printing_type"`
	DeliveryDate       *string        `json:"delivery_date"`
	ProductionQuantity *int           `json:"production_quantity"`
	DefectiveQuantity  *int           `json:"defective_quantity"`
	TotalAmount        *float64       `json:"total_amount"`
	Notes              *string        `json:"notes"`
	Products           []ProductItem  `json:"products"`
	Materials          []MaterialItem `json:"materials"`
	Artworks           []LibraryItem  `json:"artworks"`
	Dies               []LibraryItem  `json:"dies"`
	FoilingPlates      []LibraryItem  `json:"foiling_plates"`
	EmbossingPlates    []LibraryItem  `json:"embossing_plates"`
}

// protectedModifications 比对请求与现状，返回触碰到的受保护核心字段
func (req UpdateWorkOrderRequest) protectedModifications(wo *entity.WorkOrder) []string {
	var modified []string
	if req.CustomerID != nil && *req.CustomerID != wo.CustomerID {
		modified = append(modified, "customer")
	}
	if req.PrintingType != nil && *req.PrintingType != wo.PrintingType {
		modified = append(modified, "printing_type")
	}
	if req.ProductionQuantity != nil && *req.ProductionQuantity != wo.ProductionQuantity {
		modified = append(modified, "production_quantity")
	}
	if req.TotalAmount != nil && *req.TotalAmount != wo.TotalAmount {
		modified = append(modified, "total_amount")
	}
	if req.Products != nil {
		modified = append(modified, "products")
	}
	if req.Artworks != nil {
		modified = append(modified, "artworks")
	}
	if req.Dies != nil {
		modified = append(modified, "dies")
	}
	if req.FoilingPlates != nil {
		modified = append(modified, "foiling_plates")
	}
	if req.EmbossingPlates != nil {
		modified = append(modified, "embossing_plates")
	}
	return modified
}

// ModifiedFieldsError 审核保护校验失败的详情
type ModifiedFieldsError struct {
	Err            *apperr.Error
	ModifiedFields []string
}

func (e *ModifiedFieldsError) Error() string { return e.Err.Error() }

func (e *ModifiedFieldsError) Unwrap() error { return e.Err }

// Update 更新施工单。已审核单的核心字段仅限持有 edit_approved_workorder
// 能力的用户修改，且修改后审核状态回退为待审核。
func (s *WorkOrderService) Update(ctx context.Context, actor *middleware.Actor, id string, req UpdateWorkOrderRequest) (*entity.WorkOrder, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)
	var reverted bool

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wo, err := repos.WorkOrder.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单不存在: %s", id)
			}
			return err
		}
		if wo.Status == entity.WOStatusCompleted || wo.Status == entity.WOStatusCancelled {
			return apperr.Business("施工单已%s，不可编辑", statusLabel(wo.Status))
		}

		if wo.ApprovalStatus == entity.ApprovalApproved {
			modified := req.protectedModifications(wo)
			if len(modified) > 0 {
				if !actor.Can(middleware.CapEditApprovedWorkOrder) {
					return &ModifiedFieldsError{
						Err:            apperr.Validation("施工单已审核，核心字段不可修改"),
						ModifiedFields: modified,
					}
				}
				// 有权修改，审核状态回退
				wo.ApprovalStatus = entity.ApprovalPending
				wo.ApprovedBy = nil
				wo.ApprovedAt = nil
				reverted = true
				if err := repos.WorkOrder.CreateApprovalLog(ctx, &entity.WorkOrderApprovalLog{
					ID:           newID(),
					WorkOrderID:  wo.ID,
					Action:       "revert",
					StatusBefore: entity.ApprovalApproved,
					StatusAfter:  entity.ApprovalPending,
					Comment:      fmt.Sprintf("核心字段修改: %v", modified),
					OperatorID:   strPtr(actor.UserID),
				}); err != nil {
					return err
				}
			}
		}

		if req.CustomerID != nil {
			wo.CustomerID = *req.CustomerID
		}
		if req.Priority != nil {
			wo.Priority = *req.Priority
		}
		if req.PrintingType != nil {
			wo.PrintingType = *req.PrintingType
		}
		if req.DeliveryDate != nil {
			d, err := parseDate(*req.DeliveryDate)
			if err != nil {
				return apperr.Validation("交货日期格式错误: %s", *req.DeliveryDate)
			}
			wo.DeliveryDate = d
		}
		if req.ProductionQuantity != nil {
			if *req.ProductionQuantity <= 0 {
				return apperr.Validation("生产数量必须为正数")
			}
			wo.ProductionQuantity = *req.ProductionQuantity
		}
		if req.DefectiveQuantity != nil {
			wo.DefectiveQuantity = *req.DefectiveQuantity
		}
		if req.TotalAmount != nil {
			wo.TotalAmount = *req.TotalAmount
		}
		if req.Notes != nil {
			wo.Notes = *req.Notes
		}
		wo.Version++
		if err := repos.WorkOrder.Update(ctx, wo); err != nil {
			return fmt.Errorf("更新施工单失败: %w", err)
		}

		// 只重建请求里出现的明细
		if err := s.updateChildren(ctx, repos, wo.ID, req); err != nil {
			return err
		}

		eff.inv.WorkOrderChanged()
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	action := "updated"
	if reverted {
		action = "approval_reverted"
	}
	sse.PublishWorkOrderUpdate(id, action)
	return s.Get(ctx, id)
}

func (s *WorkOrderService) updateChildren(ctx context.Context, repos *repository.Repositories, workOrderID string, req UpdateWorkOrderRequest) error {
	full := CreateWorkOrderRequest{
		Products:        req.Products,
		Materials:       req.Materials,
		Artworks:        req.Artworks,
		Dies:            req.Dies,
		FoilingPlates:   req.FoilingPlates,
		EmbossingPlates: req.EmbossingPlates,
	}
	if req.Products != nil {
		products := make([]entity.WorkOrderProduct, 0, len(full.Products))
		for _, item := range full.Products {
			unit := item.Unit
			if unit == "" {
				unit = "件"
			}
			products = append(products, entity.WorkOrderProduct{
				ID:            newID(),
				WorkOrderID:   workOrderID,
				ProductID:     item.ProductID,
				Quantity:      item.Quantity,
				Unit:          unit,
				Specification: item.Specification,
				SortOrder:     item.SortOrder,
			})
		}
		if err := repos.WorkOrder.ReplaceProducts(ctx, workOrderID, products); err != nil {
			return fmt.Errorf("重建产品明细失败: %w", err)
		}
	}
	if req.Materials != nil {
		materials := make([]entity.WorkOrderMaterial, 0, len(full.Materials))
		for _, item := range full.Materials {
			materials = append(materials, entity.WorkOrderMaterial{
				ID:             newID(),
				WorkOrderID:    workOrderID,
				MaterialID:     item.MaterialID,
				MaterialSize:   item.MaterialSize,
				MaterialUsage:  item.MaterialUsage,
				NeedCutting:    item.NeedCutting,
				PurchaseStatus: entity.MaterialPending,
				Notes:          item.Notes,
			})
		}
		if err := repos.WorkOrder.ReplaceMaterials(ctx, workOrderID, materials); err != nil {
			return fmt.Errorf("重建物料明细失败: %w", err)
		}
	}
	if req.Artworks != nil {
		artworks := make([]entity.WorkOrderArtwork, 0, len(full.Artworks))
		for _, item := range full.Artworks {
			imposition := item.ImpositionCount
			if imposition <= 0 {
				imposition = 1
			}
			perProduct := item.QuantityPerProduct
			if perProduct <= 0 {
				perProduct = 1
			}
			artworks = append(artworks, entity.WorkOrderArtwork{
				ID:                 newID(),
				WorkOrderID:        workOrderID,
				ArtworkID:          item.EntityID,
				ImpositionCount:    imposition,
				QuantityPerProduct: perProduct,
				SortOrder:          item.SortOrder,
				Confirmed:          item.Confirmed,
			})
		}
		if err := repos.WorkOrder.ReplaceArtworks(ctx, workOrderID, artworks); err != nil {
			return fmt.Errorf("重建图稿关联失败: %w", err)
		}
	}
	if req.Dies != nil {
		dies := make([]entity.WorkOrderDie, 0, len(full.Dies))
		for _, item := range full.Dies {
			dies = append(dies, entity.WorkOrderDie{
				ID:          newID(),
				WorkOrderID: workOrderID,
				DieID:       item.EntityID,
				SortOrder:   item.SortOrder,
				Confirmed:   item.Confirmed,
			})
		}
		if err := repos.WorkOrder.ReplaceDies(ctx, workOrderID, dies); err != nil {
			return fmt.Errorf("重建刀模关联失败: %w", err)
		}
	}
	if req.FoilingPlates != nil {
		foils := make([]entity.WorkOrderFoilingPlate, 0, len(full.FoilingPlates))
		for _, item := range full.FoilingPlates {
			foils = append(foils, entity.WorkOrderFoilingPlate{
				ID:             newID(),
				WorkOrderID:    workOrderID,
				FoilingPlateID: item.EntityID,
				SortOrder:      item.SortOrder,
				Confirmed:      item.Confirmed,
			})
		}
		if err := repos.WorkOrder.ReplaceFoilingPlates(ctx, workOrderID, foils); err != nil {
			return fmt.Errorf("重建烫金版关联失败: %w", err)
		}
	}
	if req.EmbossingPlates != nil {
		embs := make([]entity.WorkOrderEmbossingPlate, 0, len(full.EmbossingPlates))
		for _, item := range full.EmbossingPlates {
			embs = append(embs, entity.WorkOrderEmbossingPlate{
				ID:               newID(),
				WorkOrderID:      workOrderID,
				EmbossingPlateID: item.EntityID,
				SortOrder:        item.SortOrder,
				Confirmed:        item.Confirmed,
			})
		}
		if err := repos.WorkOrder.ReplaceEmbossingPlates(ctx, workOrderID, embs); err != nil {
			return fmt.Errorf("重建压纹版关联失败: %w", err)
		}
	}
	return nil
}

// Approve 审核通过施工单：草稿任务批量转待处理，通知制表人
func (s *WorkOrderService) Approve(ctx context.Context, actor *middleware.Actor, id, comment string) (*entity.WorkOrder, error) {
	eff := newEffects(s.deps.Cache, s.deps.Logger)

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wo, err := repos.WorkOrder.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单不存在: %s", id)
			}
			return err
		}
		if wo.ApprovalStatus == entity.ApprovalApproved {
			return apperr.Business("施工单已审核通过")
		}
		if wo.Status == entity.WOStatusCancelled {
			return apperr.Business("施工单已取消，不可审核")
		}

		now := time.Now()
		before := wo.ApprovalStatus
		wo.ApprovalStatus = entity.ApprovalApproved
		wo.ApprovedBy = strPtr(actor.UserID)
		wo.ApprovedAt = &now
		wo.ApprovalComment = comment
		wo.Version++
		if err := repos.WorkOrder.Update(ctx, wo); err != nil {
			return fmt.Errorf("更新审核状态失败: %w", err)
		}

		promoted, err := repos.Task.PromoteDraftsByWorkOrder(ctx, wo.ID)
		if err != nil {
			return fmt.Errorf("草稿任务转待处理失败: %w", err)
		}
		for _, taskID := range promoted {
			if err := repos.Task.CreateLog(ctx, &entity.TaskLog{
				ID:           newID(),
				TaskID:       taskID,
				LogType:      entity.TaskLogStatusChange,
				Content:      "施工单审核通过，任务转待处理",
				StatusBefore: entity.TaskStatusDraft,
				StatusAfter:  entity.TaskStatusPending,
				OperatorID:   strPtr(actor.UserID),
			}); err != nil {
				return err
			}
		}
		if len(promoted) > 0 {
			s.deps.Logger.Info("draft tasks promoted",
				zap.String("work_order", wo.OrderNumber),
				zap.Int("count", len(promoted)))
		}

		if err := repos.WorkOrder.CreateApprovalLog(ctx, &entity.WorkOrderApprovalLog{
			ID:           newID(),
			WorkOrderID:  wo.ID,
			Action:       "approve",
			StatusBefore: before,
			StatusAfter:  entity.ApprovalApproved,
			Comment:      comment,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		if wo.CreatedBy != "" && wo.CreatedBy != actor.UserID {
			eff.notices.Add(notify.Intent{
				RecipientID: wo.CreatedBy,
				NotifyType:  entity.NotifyOrderApproved,
				Title:       fmt.Sprintf("施工单 %s 审核通过", wo.OrderNumber),
				Content:     comment,
				WorkOrderID: strPtr(wo.ID),
			})
		}
		eff.inv.WorkOrderChanged()
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishWorkOrderUpdate(id, "approved")
	return s.Get(ctx, id)
}

// Reject 驳回施工单，必须填写驳回意见
func (s *WorkOrderService) Reject(ctx context.Context, actor *middleware.Actor, id, comment string) (*entity.WorkOrder, error) {
	if comment == "" {
		return nil, apperr.Validation("驳回意见不能为空")
	}
	eff := newEffects(s.deps.Cache, s.deps.Logger)

	err := s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wo, err := repos.WorkOrder.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单不存在: %s", id)
			}
			return err
		}
		if wo.ApprovalStatus == entity.ApprovalRejected {
			return apperr.Business("施工单已驳回")
		}

		before := wo.ApprovalStatus
		wo.ApprovalStatus = entity.ApprovalRejected
		wo.ApprovedBy = nil
		wo.ApprovedAt = nil
		wo.ApprovalComment = comment
		wo.Version++
		if err := repos.WorkOrder.Update(ctx, wo); err != nil {
			return fmt.Errorf("更新审核状态失败: %w", err)
		}

		if err := repos.WorkOrder.CreateApprovalLog(ctx, &entity.WorkOrderApprovalLog{
			ID:           newID(),
			WorkOrderID:  wo.ID,
			Action:       "reject",
			StatusBefore: before,
			StatusAfter:  entity.ApprovalRejected,
			Comment:      comment,
			OperatorID:   strPtr(actor.UserID),
		}); err != nil {
			return err
		}

		if wo.CreatedBy != "" && wo.CreatedBy != actor.UserID {
			eff.notices.Add(notify.Intent{
				RecipientID: wo.CreatedBy,
				NotifyType:  entity.NotifyOrderRejected,
				Title:       fmt.Sprintf("施工单 %s 被驳回", wo.OrderNumber),
				Content:     comment,
				WorkOrderID: strPtr(wo.ID),
			})
		}
		eff.inv.WorkOrderChanged()
		return nil
	})
	if err != nil {
		return nil, err
	}

	eff.flush(ctx, s.deps.Notifier)
	sse.PublishWorkOrderUpdate(id, "rejected")
	return s.Get(ctx, id)
}

// Delete 删除施工单，仅允许在没有任何工序开工时执行
func (s *WorkOrderService) Delete(ctx context.Context, id string) error {
	return s.deps.DB.Transaction(func(tx *gorm.DB) error {
		repos := s.deps.Repos.WithTx(tx)

		wo, err := repos.WorkOrder.GetForUpdate(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				return apperr.NotFound("施工单不存在: %s", id)
			}
			return err
		}

		processes, err := repos.Process.ListByWorkOrder(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range processes {
			if p.Status != entity.ProcStatusPending {
				return apperr.Business("工序 %d 已开工，施工单不可删除", p.Sequence)
			}
		}

		if err := repos.Process.DeleteByWorkOrder(ctx, id); err != nil {
			return err
		}
		return tx.Delete(wo).Error
	})
}

func (s *WorkOrderService) ApprovalLogs(ctx context.Context, id string) ([]entity.WorkOrderApprovalLog, error) {
	return s.deps.Repos.WorkOrder.ListApprovalLogs(ctx, id)
}

// ScanDeadlines 扫描临近交期的施工单并通知制表人，由定时器驱动
func (s *WorkOrderService) ScanDeadlines(ctx context.Context) (int, error) {
	days := s.deps.Config.Workshop.DeadlineWarningDays
	orders, err := s.deps.Repos.WorkOrder.ListApproachingDeadline(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return 0, err
	}

	var intents []notify.Intent
	for _, wo := range orders {
		if wo.CreatedBy == "" {
			continue
		}
		intents = append(intents, notify.Intent{
			RecipientID: wo.CreatedBy,
			NotifyType:  entity.NotifyDeadlineWarning,
			Title:       fmt.Sprintf("施工单 %s 临近交期", wo.OrderNumber),
			Content:     fmt.Sprintf("交货日期 %s，当前状态 %s", wo.DeliveryDate.Format("2006-01-02"), statusLabel(wo.Status)),
			WorkOrderID: strPtr(wo.ID),
		})
	}
	s.deps.Notifier.Dispatch(ctx, intents)
	return len(intents), nil
}

func statusLabel(status string) string {
	switch status {
	case entity.WOStatusPending:
		return "待生产"
	case entity.WOStatusInProgress:
		return "生产中"
	case entity.WOStatusPaused:
		return "已暂停"
	case entity.WOStatusCompleted:
		return "已完成"
	case entity.WOStatusCancelled:
		return "已取消"
	default:
		return status
	}
}
