package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/config"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	WorkOrder    *WorkOrderHandler
	Process      *ProcessHandler
	Task         *TaskHandler
	Product      *ProductHandler
	Rule         *RuleHandler
	Stats        *StatsHandler
	Consistency  *ConsistencyHandler
	Notification *NotificationHandler
	SSE          *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		WorkOrder:    NewWorkOrderHandler(svc.WorkOrder, svc.Export),
		Process:      NewProcessHandler(svc.Process),
		Task:         NewTaskHandler(svc.Task, svc.Assignment, svc.Export),
		Product:      NewProductHandler(svc.Inventory),
		Rule:         NewRuleHandler(svc.Dispatch),
		Stats:        NewStatsHandler(svc.Stats),
		Consistency:  NewConsistencyHandler(svc.Consistency),
		Notification: NewNotificationHandler(svc.Notification),
		SSE:          NewSSEHandler(),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func NewPagination(page, size int, total int64) *Pagination {
	pages := total / int64(size)
	if total%int64(size) > 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: size, Total: total, TotalPages: pages}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(400, Response{Code: 40000, Message: message})
}

// WriteError 把服务层错误映射为 HTTP 响应
func WriteError(c *gin.Context, err error) {
	status := apperr.StatusOf(err)

	var modified *service.ModifiedFieldsError
	if errors.As(err, &modified) {
		c.JSON(status, Response{
			Code:    status * 100,
			Message: modified.Error(),
			Details: gin.H{"modified_fields": modified.ModifiedFields},
		})
		return
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		c.JSON(status, Response{Code: status * 100, Message: ae.Msg})
		return
	}
	c.JSON(500, Response{Code: 50000, Message: "服务器内部错误"})
}

// GetActor 从上下文取当前用户
func GetActor(c *gin.Context) *middleware.Actor {
	return middleware.GetActor(c)
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
