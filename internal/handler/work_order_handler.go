package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/service"
)

// WorkOrderHandler 施工单接口
type WorkOrderHandler struct {
	svc    *service.WorkOrderService
	export *service.ExportService
}

func NewWorkOrderHandler(svc *service.WorkOrderService, export *service.ExportService) *WorkOrderHandler {
	return &WorkOrderHandler{svc: svc, export: export}
}

func (h *WorkOrderHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	params := repository.WorkOrderListParams{
		Status:         c.Query("status"),
		ApprovalStatus: c.Query("approval_status"),
		Priority:       c.Query("priority"),
		CustomerID:     c.Query("customer_id"),
		Keyword:        c.Query("keyword"),
		Page:           page,
		Size:           size,
	}
	orders, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, ListResponse{Items: orders, Pagination: NewPagination(page, size, total)})
}

func (h *WorkOrderHandler) Get(c *gin.Context) {
	wo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wo)
}

func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req service.CreateWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	wo, err := h.svc.Create(c.Request.Context(), GetActor(c), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, wo)
}

func (h *WorkOrderHandler) Update(c *gin.Context) {
	var req service.UpdateWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	wo, err := h.svc.Update(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wo)
}

func (h *WorkOrderHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	Success(c, nil)
}

type approvalRequest struct {
	Comment string `json:"comment"`
}

func (h *WorkOrderHandler) Approve(c *gin.Context) {
	var req approvalRequest
	_ = c.ShouldBindJSON(&req)
	wo, err := h.svc.Approve(c.Request.Context(), GetActor(c), c.Param("id"), req.Comment)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wo)
}

func (h *WorkOrderHandler) Reject(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	wo, err := h.svc.Reject(c.Request.Context(), GetActor(c), c.Param("id"), req.Comment)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wo)
}

func (h *WorkOrderHandler) ApprovalLogs(c *gin.Context) {
	logs, err := h.svc.ApprovalLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, logs)
}

// Export 导出施工单 Excel
func (h *WorkOrderHandler) Export(c *gin.Context) {
	params := repository.WorkOrderListParams{
		Status:         c.Query("status"),
		ApprovalStatus: c.Query("approval_status"),
		Priority:       c.Query("priority"),
		CustomerID:     c.Query("customer_id"),
		Keyword:        c.Query("keyword"),
	}
	f, filename, err := h.export.ExportWorkOrders(c.Request.Context(), GetActor(c), params)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
