package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/repository"
	"github.com/fxxsj/work-order-sub001/internal/service"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

func TestCreateWorkOrderNumbering(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	first := createOrder(t, env, maker, fx, 100)
	second := createOrder(t, env, maker, fx, 200)

	prefix := "WO" + time.Now().Format("200601")
	if first.OrderNumber != prefix+"0001" {
		t.Errorf("expected first order number %s0001, got %s", prefix, first.OrderNumber)
	}
	if second.OrderNumber != prefix+"0002" {
		t.Errorf("expected second order number %s0002, got %s", prefix, second.OrderNumber)
	}
	if first.Status != entity.WOStatusPending {
		t.Errorf("expected status pending, got %s", first.Status)
	}
	if first.ApprovalStatus != entity.ApprovalPending {
		t.Errorf("expected approval pending, got %s", first.ApprovalStatus)
	}
	if len(first.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(first.Processes))
	}
	if first.Processes[0].Sequence != 1 || first.Processes[1].Sequence != 2 {
		t.Errorf("processes not ordered by sequence: %d, %d",
			first.Processes[0].Sequence, first.Processes[1].Sequence)
	}
}

func TestCreateWorkOrderDuplicateSequence(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	_, err := env.Services.WorkOrder.Create(context.Background(), maker, service.CreateWorkOrderRequest{
		CustomerID:         fx.Customer.ID,
		ProductionQuantity: 100,
		Processes: []service.ProcessItem{
			{ProcessID: fx.ProcPrint.ID, Sequence: 1},
			{ProcessID: fx.ProcPack.ID, Sequence: 1},
		},
		Products: []service.ProductItem{{ProductID: fx.Product.ID, Quantity: 100}},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for duplicate sequence, got %v", err)
	}
}

func TestCreateWorkOrderUnknownCustomer(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	_, err := env.Services.WorkOrder.Create(context.Background(), maker, service.CreateWorkOrderRequest{
		CustomerID:         "nobody",
		ProductionQuantity: 100,
		Processes:          []service.ProcessItem{{ProcessID: fx.ProcPrint.ID, Sequence: 1}},
		Products:           []service.ProductItem{{ProductID: fx.Product.ID, Quantity: 100}},
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestApprovePromotesDraftTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)

	wo := createOrder(t, env, maker, fx, 100)

	// 未审核先开工，任务以草稿落库
	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start process: %v", err)
	}
	tasks, err := env.Repos.Task.ListByProcess(ctx, wop.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != entity.TaskStatusDraft {
		t.Fatalf("expected 1 draft task, got %+v", tasks)
	}

	wo, err = env.Services.WorkOrder.Approve(ctx, admin, wo.ID, "同意生产")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if wo.ApprovalStatus != entity.ApprovalApproved {
		t.Errorf("expected approval approved, got %s", wo.ApprovalStatus)
	}
	if wo.ApprovedBy == nil || *wo.ApprovedBy != "admin" {
		t.Errorf("expected approved_by admin, got %v", wo.ApprovedBy)
	}

	tasks, _ = env.Repos.Task.ListByProcess(ctx, wop.ID)
	if tasks[0].Status != entity.TaskStatusPending {
		t.Errorf("expected draft task promoted to pending, got %s", tasks[0].Status)
	}

	// 转待处理要在任务日志里留下状态变更记录
	taskLogs, err := env.Services.Task.Logs(ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("task logs: %v", err)
	}
	var promoted bool
	for _, l := range taskLogs {
		if l.LogType == entity.TaskLogStatusChange &&
			l.StatusBefore == entity.TaskStatusDraft && l.StatusAfter == entity.TaskStatusPending {
			promoted = true
		}
	}
	if !promoted {
		t.Error("expected status_change log for draft promotion")
	}

	logs, err := env.Services.WorkOrder.ApprovalLogs(ctx, wo.ID)
	if err != nil {
		t.Fatalf("approval logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "approve" {
		t.Fatalf("expected 1 approve log, got %+v", logs)
	}

	// 制表人收到审核通过通知
	notices, _, err := env.Repos.Notification.ListByRecipient(ctx, "maker", false, 1, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notices {
		if n.NotifyType == entity.NotifyOrderApproved {
			found = true
		}
	}
	if !found {
		t.Error("expected order_approved notification for maker")
	}
}

func TestApproveTwiceRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	_, err := env.Services.WorkOrder.Approve(context.Background(), admin, wo.ID, "再批一次")
	if !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error on double approve, got %v", err)
	}
}

func TestRejectRequiresComment(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)

	wo := createOrder(t, env, maker, fx, 100)
	if _, err := env.Services.WorkOrder.Reject(context.Background(), admin, wo.ID, ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty comment, got %v", err)
	}

	wo, err := env.Services.WorkOrder.Reject(context.Background(), admin, wo.ID, "物料信息不全")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if wo.ApprovalStatus != entity.ApprovalRejected {
		t.Errorf("expected approval rejected, got %s", wo.ApprovalStatus)
	}
}

func TestUpdateProtectedFieldsWithoutCapability(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	wo := approvedOrder(t, env, fx, 100)

	qty := 500
	_, err := env.Services.WorkOrder.Update(context.Background(), maker, wo.ID, service.UpdateWorkOrderRequest{
		ProductionQuantity: &qty,
	})
	var mfe *service.ModifiedFieldsError
	if !errors.As(err, &mfe) {
		t.Fatalf("expected ModifiedFieldsError, got %v", err)
	}
	if len(mfe.ModifiedFields) != 1 || mfe.ModifiedFields[0] != "production_quantity" {
		t.Errorf("expected modified fields [production_quantity], got %v", mfe.ModifiedFields)
	}
	// 错误链须能解出校验类错误，HTTP 层据此映射 400
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation kind through chain, got %v", err)
	}
	if mfe.Error() == "" {
		t.Error("expected non-empty message")
	}

	// 非核心字段仍可修改，审核状态不受影响
	notes := "加急"
	wo2, err := env.Services.WorkOrder.Update(context.Background(), maker, wo.ID, service.UpdateWorkOrderRequest{
		Notes: &notes,
	})
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if wo2.Notes != "加急" {
		t.Errorf("expected notes updated, got %q", wo2.Notes)
	}
	if wo2.ApprovalStatus != entity.ApprovalApproved {
		t.Errorf("expected approval unchanged, got %s", wo2.ApprovalStatus)
	}
}

func TestUpdateProtectedFieldsRevertsApproval(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	editor := testutil.Actor("editor", false, nil, middleware.CapEditApprovedWorkOrder)

	wo := approvedOrder(t, env, fx, 100)

	qty := 500
	wo2, err := env.Services.WorkOrder.Update(context.Background(), editor, wo.ID, service.UpdateWorkOrderRequest{
		ProductionQuantity: &qty,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if wo2.ProductionQuantity != 500 {
		t.Errorf("expected production quantity 500, got %d", wo2.ProductionQuantity)
	}
	if wo2.ApprovalStatus != entity.ApprovalPending {
		t.Errorf("expected approval reverted to pending, got %s", wo2.ApprovalStatus)
	}
	if wo2.ApprovedBy != nil {
		t.Errorf("expected approved_by cleared, got %v", wo2.ApprovedBy)
	}

	logs, _ := env.Services.WorkOrder.ApprovalLogs(context.Background(), wo.ID)
	hasRevert := false
	for _, log := range logs {
		if log.Action == "revert" {
			hasRevert = true
		}
	}
	if !hasRevert {
		t.Error("expected revert approval log")
	}
}

func TestUpdateVersionIncrements(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	wo := createOrder(t, env, maker, fx, 100)
	before := wo.Version

	notes := "补充说明"
	wo2, err := env.Services.WorkOrder.Update(context.Background(), maker, wo.ID, service.UpdateWorkOrderRequest{
		Notes: &notes,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if wo2.Version != before+1 {
		t.Errorf("expected version %d, got %d", before+1, wo2.Version)
	}
}

func TestDeleteBlockedAfterProcessStart(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	wo := approvedOrder(t, env, fx, 100)
	startedPrintTask(t, env, fx, wo)

	if err := env.Services.WorkOrder.Delete(ctx, wo.ID); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error deleting started order, got %v", err)
	}
}

func TestDeletePendingOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)

	wo := createOrder(t, env, maker, fx, 100)
	if err := env.Services.WorkOrder.Delete(ctx, wo.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Services.WorkOrder.Get(ctx, wo.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestScanDeadlines(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)

	// 交期在预警窗口内的在产施工单
	due := time.Now().Add(48 * time.Hour).Format("2006-01-02")
	wo, err := env.Services.WorkOrder.Create(ctx, maker, service.CreateWorkOrderRequest{
		CustomerID:         fx.Customer.ID,
		DeliveryDate:       due,
		ProductionQuantity: 100,
		Processes:          []service.ProcessItem{{ProcessID: fx.ProcPrint.ID, Sequence: 1}},
		Products:           []service.ProductItem{{ProductID: fx.Product.ID, Quantity: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := env.Services.WorkOrder.ScanDeadlines(ctx)
	if err != nil {
		t.Fatalf("scan deadlines: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 warning, got %d", count)
	}

	notices, _, err := env.Repos.Notification.ListByRecipient(ctx, "maker", false, 1, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notices {
		if n.NotifyType == entity.NotifyDeadlineWarning && n.WorkOrderID != nil && *n.WorkOrderID == wo.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected deadline warning for %s, got %+v", wo.ID, notices)
	}
}

func TestListWorkOrdersByStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	maker := testutil.Actor("maker", false, nil)

	for i := 0; i < 3; i++ {
		createOrder(t, env, maker, fx, 100+i)
	}

	orders, total, err := env.Services.WorkOrder.List(context.Background(), repository.WorkOrderListParams{
		Status: entity.WOStatusPending,
		Page:   1,
		Size:   10,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(orders) != 3 {
		t.Errorf("expected 3 pending orders, got total=%d len=%d", total, len(orders))
	}
}
