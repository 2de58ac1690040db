package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/service"
)

// RuleHandler 派工规则接口
type RuleHandler struct {
	svc *service.DispatchService
}

func NewRuleHandler(svc *service.DispatchService) *RuleHandler {
	return &RuleHandler{svc: svc}
}

func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.svc.ListRules(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, rules)
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req service.SaveRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	rule, err := h.svc.CreateRule(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	var req service.SaveRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	rule, err := h.svc.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	Success(c, nil)
}

// Preview 按当前规则试算每道工序会派到哪个部门
func (h *RuleHandler) Preview(c *gin.Context) {
	preview, err := h.svc.Preview(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, preview)
}

func (h *RuleHandler) GetAutoDispatch(c *gin.Context) {
	enabled, err := h.svc.Enabled(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"enabled": enabled})
}

type autoDispatchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *RuleHandler) SetAutoDispatch(c *gin.Context) {
	var req autoDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.svc.SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"enabled": *req.Enabled})
}

// StatsHandler 看板统计接口
type StatsHandler struct {
	svc *service.StatsService
}

func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

func (h *StatsHandler) DepartmentWorkload(c *gin.Context) {
	departmentID := c.Query("department_id")
	if departmentID == "" {
		BadRequest(c, "缺少 department_id")
		return
	}
	workload, err := h.svc.DepartmentWorkload(c.Request.Context(), departmentID)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, workload)
}

// Collaboration 时间段协作产出统计，默认最近 30 天
func (h *StatsHandler) Collaboration(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			BadRequest(c, "from 日期格式应为 YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			BadRequest(c, "to 日期格式应为 YYYY-MM-DD")
			return
		}
		to = t.AddDate(0, 0, 1)
	}
	stats, err := h.svc.Collaboration(c.Request.Context(), c.Query("department_id"), from, to)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, stats)
}

func (h *StatsHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, dashboard)
}

// ConsistencyHandler 一致性巡检接口
type ConsistencyHandler struct {
	svc *service.ConsistencyService
}

func NewConsistencyHandler(svc *service.ConsistencyService) *ConsistencyHandler {
	return &ConsistencyHandler{svc: svc}
}

func (h *ConsistencyHandler) CheckStock(c *gin.Context) {
	repair := c.Query("repair") == "true"
	result, err := h.svc.CheckStock(c.Request.Context(), GetActor(c), repair)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, result)
}

func (h *ConsistencyHandler) CheckQuantities(c *gin.Context) {
	result, err := h.svc.CheckQuantities(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, result)
}

func (h *ConsistencyHandler) CheckMaterials(c *gin.Context) {
	result, err := h.svc.CheckMaterials(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, result)
}

// NotificationHandler 站内通知接口
type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	unreadOnly := c.Query("unread") == "true"
	notifications, total, err := h.svc.List(c.Request.Context(), GetActor(c).UserID, unreadOnly, page, size)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, ListResponse{Items: notifications, Pagination: NewPagination(page, size, total)})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.svc.UnreadCount(c.Request.Context(), GetActor(c).UserID)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"unread": count})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkRead(c.Request.Context(), GetActor(c).UserID, c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	Success(c, nil)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	count, err := h.svc.MarkAllRead(c.Request.Context(), GetActor(c).UserID)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"marked": count})
}
