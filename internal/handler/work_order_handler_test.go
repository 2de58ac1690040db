package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/fxxsj/work-order-sub001/internal/handler"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

func setupWorkOrderTest(t *testing.T) (*gin.Engine, *testutil.TestEnv) {
	t.Helper()
	env := testutil.NewEnv(t)

	customer := entity.Customer{ID: "cust-1", Code: "C001", Name: "客户甲"}
	process := entity.Process{ID: "proc-1", Code: entity.ProcessCodePrint, Name: "印刷", TaskGenerationRule: entity.GenRuleGeneral, IsActive: true}
	product := entity.Product{ID: "prod-1", Code: "P001", Name: "彩盒", IsActive: true}
	for _, obj := range []interface{}{&customer, &process, &product} {
		if err := env.DB.Create(obj).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	dept := entity.Department{ID: "dept-1", Code: "D001", Name: "印刷车间", IsActive: true}
	if err := env.DB.Create(&dept).Error; err != nil {
		t.Fatalf("seed department: %v", err)
	}
	if err := env.DB.Model(&dept).Association("Processes").Append(&process); err != nil {
		t.Fatalf("bind process: %v", err)
	}

	h := handler.NewHandlers(env.Services, env.Config)
	router := gin.New()
	authorized := router.Group("/api/v1")
	authorized.Use(middleware.JWTAuth(testutil.JWTSecret))
	{
		authorized.GET("/workorders", h.WorkOrder.List)
		authorized.POST("/workorders",
			middleware.RequireCapability(middleware.CapChangeWorkOrder), h.WorkOrder.Create)
		authorized.GET("/workorders/:id", h.WorkOrder.Get)
		authorized.POST("/workorders/:id/approve",
			middleware.RequireCapability(middleware.CapApproveWorkOrder), h.WorkOrder.Approve)
	}
	return router, env
}

func TestWorkOrderAPI(t *testing.T) {
	router, _ := setupWorkOrderTest(t)

	makerToken := testutil.MintToken(t, testutil.Actor("maker", false, nil, middleware.CapChangeWorkOrder))
	createBody := map[string]interface{}{
		"customer_id":         "cust-1",
		"delivery_date":       "2026-12-31",
		"production_quantity": 100,
		"processes":           []map[string]interface{}{{"process_id": "proc-1", "sequence": 1, "department_id": "dept-1"}},
		"products":            []map[string]interface{}{{"product_id": "prod-1", "quantity": 100}},
	}

	// 未带 token 直接拒绝
	w := testutil.DoRequest(t, router, http.MethodPost, "/api/v1/workorders", "", createBody)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// 没有建单权限走 403
	viewerToken := testutil.MintToken(t, testutil.Actor("viewer", false, nil))
	w = testutil.DoRequest(t, router, http.MethodPost, "/api/v1/workorders", viewerToken, createBody)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without change_workorder, got %d", w.Code)
	}

	w = testutil.DoRequest(t, router, http.MethodPost, "/api/v1/workorders", makerToken, createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created entity.WorkOrder
	testutil.ParseResponse(t, w, &created)
	if !strings.HasPrefix(created.OrderNumber, "WO") {
		t.Errorf("unexpected order number %q", created.OrderNumber)
	}
	if created.Status != entity.WOStatusPending {
		t.Errorf("expected pending status, got %q", created.Status)
	}

	// 缺必填字段走 400
	w = testutil.DoRequest(t, router, http.MethodPost, "/api/v1/workorders", makerToken, map[string]interface{}{
		"production_quantity": 100,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", w.Code)
	}

	// 审批需要专门权限
	approvePath := "/api/v1/workorders/" + created.ID + "/approve"
	w = testutil.DoRequest(t, router, http.MethodPost, approvePath, makerToken, map[string]string{"comment": "同意"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without capability, got %d", w.Code)
	}

	approverToken := testutil.MintToken(t, testutil.Actor("approver", false, nil, middleware.CapApproveWorkOrder))
	w = testutil.DoRequest(t, router, http.MethodPost, approvePath, approverToken, map[string]string{"comment": "同意"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on approve, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(t, router, http.MethodGet, "/api/v1/workorders/"+created.ID, makerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", w.Code)
	}
	var fetched entity.WorkOrder
	testutil.ParseResponse(t, w, &fetched)
	if fetched.ApprovalStatus != entity.ApprovalApproved {
		t.Errorf("expected approved, got %q", fetched.ApprovalStatus)
	}

	// 不存在的单走 404
	w = testutil.DoRequest(t, router, http.MethodGet, "/api/v1/workorders/missing", makerToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = testutil.DoRequest(t, router, http.MethodGet, "/api/v1/workorders?status=pending", makerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", w.Code)
	}
}
