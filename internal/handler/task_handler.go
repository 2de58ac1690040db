package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/service"
)

// TaskHandler 施工单任务接口
type TaskHandler struct {
	svc        *service.TaskService
	assignment *service.AssignmentService
	export     *service.ExportService
}

func NewTaskHandler(svc *service.TaskService, assignment *service.AssignmentService, export *service.ExportService) *TaskHandler {
	return &TaskHandler{svc: svc, assignment: assignment, export: export}
}

func taskListParams(c *gin.Context) repository.TaskListParams {
	page, size := GetPagination(c)
	return repository.TaskListParams{
		WorkOrderProcessID:   c.Query("process_id"),
		AssignedDepartmentID: c.Query("department_id"),
		AssignedOperatorID:   c.Query("operator_id"),
		TaskType:             c.Query("task_type"),
		Status:               c.Query("status"),
		TopLevelOnly:         c.Query("top_level") == "true",
		Page:                 page,
		Size:                 size,
	}
}

func (h *TaskHandler) List(c *gin.Context) {
	params := taskListParams(c)
	tasks, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, ListResponse{Items: tasks, Pagination: NewPagination(params.Page, params.Size, total)})
}

func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

func (h *TaskHandler) Logs(c *gin.Context) {
	logs, err := h.svc.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, logs)
}

// Claimable 当前用户可认领的任务
func (h *TaskHandler) Claimable(c *gin.Context) {
	tasks, err := h.svc.Claimable(c.Request.Context(), GetActor(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, tasks)
}

func (h *TaskHandler) Start(c *gin.Context) {
	var req service.StartTaskRequest
	_ = c.ShouldBindJSON(&req)
	task, err := h.svc.Start(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

func (h *TaskHandler) Pause(c *gin.Context) {
	var req pauseRequest
	_ = c.ShouldBindJSON(&req)
	task, err := h.svc.Pause(c.Request.Context(), GetActor(c), c.Param("id"), req.Reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

// UpdateQuantity 增量报工
func (h *TaskHandler) UpdateQuantity(c *gin.Context) {
	var req service.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	task, err := h.svc.UpdateQuantity(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

func (h *TaskHandler) Complete(c *gin.Context) {
	var req service.CompleteTaskRequest
	_ = c.ShouldBindJSON(&req)
	task, err := h.svc.Complete(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

// Split 拆分为子任务
func (h *TaskHandler) Split(c *gin.Context) {
	var req service.SplitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	subtasks, err := h.svc.Split(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, subtasks)
}

func (h *TaskHandler) Cancel(c *gin.Context) {
	var req service.CancelTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	task, err := h.svc.Cancel(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

func (h *TaskHandler) Assign(c *gin.Context) {
	var req service.AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	task, err := h.assignment.Assign(c.Request.Context(), GetActor(c), c.Param("id"), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

// Claim 认领任务，重复认领幂等返回 already_claimed
func (h *TaskHandler) Claim(c *gin.Context) {
	result, err := h.assignment.Claim(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, result)
}

type batchAssignRequest struct {
	TaskIDs    []string `json:"task_ids" binding:"required,min=1"`
	OperatorID string   `json:"operator_id" binding:"required"`
	Notes      string   `json:"notes"`
}

type batchItemResult struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchAssign 批量指派，逐条处理
func (h *TaskHandler) BatchAssign(c *gin.Context) {
	var req batchAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	results := make([]batchItemResult, 0, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		_, err := h.assignment.Assign(c.Request.Context(), GetActor(c), id,
			service.AssignTaskRequest{OperatorID: req.OperatorID, Notes: req.Notes})
		item := batchItemResult{TaskID: id, Success: err == nil}
		if err != nil {
			item.Error = err.Error()
		}
		results = append(results, item)
	}
	Success(c, results)
}

type batchCancelRequest struct {
	TaskIDs            []string `json:"task_ids" binding:"required,min=1"`
	CancellationReason string   `json:"cancellation_reason" binding:"required"`
}

// BatchCancel 批量取消，逐条处理
func (h *TaskHandler) BatchCancel(c *gin.Context) {
	var req batchCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	results := make([]batchItemResult, 0, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		_, err := h.svc.Cancel(c.Request.Context(), GetActor(c), id,
			service.CancelTaskRequest{CancellationReason: req.CancellationReason})
		item := batchItemResult{TaskID: id, Success: err == nil}
		if err != nil {
			item.Error = err.Error()
		}
		results = append(results, item)
	}
	Success(c, results)
}

type batchUpdateQuantityRequest struct {
	Updates []struct {
		TaskID            string `json:"task_id" binding:"required"`
		QuantityIncrement int    `json:"quantity_increment" binding:"required"`
		QuantityDefective int    `json:"quantity_defective"`
		Notes             string `json:"notes"`
	} `json:"updates" binding:"required,min=1"`
}

// BatchUpdateQuantity 批量报工，逐条处理
func (h *TaskHandler) BatchUpdateQuantity(c *gin.Context) {
	var req batchUpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	results := make([]batchItemResult, 0, len(req.Updates))
	for _, u := range req.Updates {
		_, err := h.svc.UpdateQuantity(c.Request.Context(), GetActor(c), u.TaskID, service.UpdateQuantityRequest{
			QuantityIncrement:          u.QuantityIncrement,
			QuantityDefectiveIncrement: u.QuantityDefective,
			Notes:                      u.Notes,
		})
		item := batchItemResult{TaskID: u.TaskID, Success: err == nil}
		if err != nil {
			item.Error = err.Error()
		}
		results = append(results, item)
	}
	Success(c, results)
}

// Export 导出任务清单 Excel
func (h *TaskHandler) Export(c *gin.Context) {
	params := taskListParams(c)
	f, filename, err := h.export.ExportTasks(c.Request.Context(), GetActor(c), params)
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
