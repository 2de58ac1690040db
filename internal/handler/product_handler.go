package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/service"
)

// ProductHandler 产品与库存接口
type ProductHandler struct {
	svc *service.InventoryService
}

func NewProductHandler(svc *service.InventoryService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

func (h *ProductHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	products, total, err := h.svc.ListProducts(c.Request.Context(), c.Query("keyword"), page, size)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, ListResponse{Items: products, Pagination: NewPagination(page, size, total)})
}

func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.svc.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, p)
}

func (h *ProductHandler) LowStock(c *gin.Context) {
	products, err := h.svc.ListLowStock(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, products)
}

func (h *ProductHandler) StockLogs(c *gin.Context) {
	page, size := GetPagination(c)
	logs, total, err := h.svc.StockLogs(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, ListResponse{Items: logs, Pagination: NewPagination(page, size, total)})
}

// AddStock 手工入库
func (h *ProductHandler) AddStock(c *gin.Context) {
	var req service.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.AddStock(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, p)
}

// ReduceStock 出库，严格模式下不允许扣成负数
func (h *ProductHandler) ReduceStock(c *gin.Context) {
	var req service.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	p, err := h.svc.ReduceStock(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, p)
}
