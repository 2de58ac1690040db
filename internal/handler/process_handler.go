package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/service"
)

// ProcessHandler 施工单工序接口
type ProcessHandler struct {
	svc *service.ProcessService
}

func NewProcessHandler(svc *service.ProcessService) *ProcessHandler {
	return &ProcessHandler{svc: svc}
}

func (h *ProcessHandler) Get(c *gin.Context) {
	wop, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wop)
}

func (h *ProcessHandler) Logs(c *gin.Context) {
	logs, err := h.svc.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, logs)
}

// Start 开工：生成任务并按规则派工
func (h *ProcessHandler) Start(c *gin.Context) {
	wop, err := h.svc.Start(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wop)
}

type batchStartRequest struct {
	ProcessIDs []string `json:"process_ids" binding:"required,min=1"`
}

// BatchStart 批量开工，逐条处理，单条失败不影响其他
func (h *ProcessHandler) BatchStart(c *gin.Context) {
	var req batchStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	results := h.svc.BatchStart(c.Request.Context(), GetActor(c), req.ProcessIDs)
	Success(c, results)
}

func (h *ProcessHandler) Complete(c *gin.Context) {
	var req service.CompleteProcessRequest
	_ = c.ShouldBindJSON(&req)
	wop, err := h.svc.Complete(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wop)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (h *ProcessHandler) Pause(c *gin.Context) {
	var req pauseRequest
	_ = c.ShouldBindJSON(&req)
	wop, err := h.svc.Pause(c.Request.Context(), GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wop)
}

func (h *ProcessHandler) Resume(c *gin.Context) {
	wop, err := h.svc.Resume(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, wop)
}

// ReassignTasks 把工序下未完结任务整体转给其他部门
func (h *ProcessHandler) ReassignTasks(c *gin.Context) {
	var req service.ReassignTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	moved, err := h.svc.ReassignTasks(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"reassigned_tasks": moved})
}
