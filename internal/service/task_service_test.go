package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/service"
	"github.com/fxxsj/work-order-sub001/internal/sse"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

// TestFullProductionFlow 施工单从建单到完结的全链路：
// 审核→印刷开工报工→包装开工报工入库→施工单自动完结。
func TestFullProductionFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)
	printer := testutil.Actor(fx.OpPrint.ID, false, []string{fx.DeptPrint.ID})
	packer := testutil.Actor(fx.OpPack.ID, false, []string{fx.DeptPack.ID})

	wo := approvedOrder(t, env, fx, 100)
	if wo.Status != entity.WOStatusPending {
		t.Fatalf("expected pending order, got %s", wo.Status)
	}

	// 印刷开工：按 general 规则生成一条印刷任务，施工单转生产中
	task := startedPrintTask(t, env, fx, wo)
	if task.TaskType != entity.TaskTypePrinting {
		t.Errorf("expected printing task, got %s", task.TaskType)
	}
	if task.Status != entity.TaskStatusPending {
		t.Errorf("expected pending task, got %s", task.Status)
	}
	if task.AssignedDepartmentID == nil || *task.AssignedDepartmentID != fx.DeptPrint.ID {
		t.Errorf("expected task assigned to %s, got %v", fx.DeptPrint.ID, task.AssignedDepartmentID)
	}
	wo, _ = env.Services.WorkOrder.Get(ctx, wo.ID)
	if wo.Status != entity.WOStatusInProgress {
		t.Errorf("expected order in_progress after start, got %s", wo.Status)
	}

	// 指派并整单报工，任务、工序联动完结
	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Services.Task.Start(ctx, printer, task.ID, service.StartTaskRequest{}); err != nil {
		t.Fatalf("start task: %v", err)
	}
	task, err := env.Services.Task.UpdateQuantity(ctx, printer, task.ID, service.UpdateQuantityRequest{QuantityIncrement: 100})
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if task.Status != entity.TaskStatusCompleted {
		t.Errorf("expected task completed, got %s", task.Status)
	}
	wop, _ := env.Services.Process.Get(ctx, task.WorkOrderProcessID)
	if wop.Status != entity.ProcStatusCompleted {
		t.Errorf("expected print process completed, got %s", wop.Status)
	}
	if wop.QuantityCompleted != 100 {
		t.Errorf("expected process quantity 100, got %d", wop.QuantityCompleted)
	}

	// 包装开工：按产品生成包装任务，认领后报工触发生产入库
	packWop, err := env.Services.Process.Start(ctx, admin, wo.Processes[1].ID)
	if err != nil {
		t.Fatalf("start pack process: %v", err)
	}
	packTasks, _ := env.Repos.Task.ListByProcess(ctx, packWop.ID)
	if len(packTasks) != 1 || packTasks[0].TaskType != entity.TaskTypePackaging {
		t.Fatalf("expected 1 packaging task, got %+v", packTasks)
	}
	packTask := packTasks[0]
	if packTask.ProductID == nil || *packTask.ProductID != fx.Product.ID {
		t.Fatalf("expected packaging task bound to product, got %v", packTask.ProductID)
	}

	claim, err := env.Services.Assignment.Claim(ctx, packer, packTask.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.AlreadyClaimed {
		t.Error("first claim should not report already claimed")
	}
	if _, err := env.Services.Task.UpdateQuantity(ctx, packer, packTask.ID, service.UpdateQuantityRequest{QuantityIncrement: 100}); err != nil {
		t.Fatalf("pack quantity: %v", err)
	}

	product, _ := env.Services.Inventory.GetProduct(ctx, fx.Product.ID)
	if product.StockQuantity != 100 {
		t.Errorf("expected stock 100 after packaging, got %d", product.StockQuantity)
	}

	// 全部工序完结，施工单自动完成并记录实际交货时间
	wo, _ = env.Services.WorkOrder.Get(ctx, wo.ID)
	if wo.Status != entity.WOStatusCompleted {
		t.Errorf("expected order completed, got %s", wo.Status)
	}
	if wo.ActualDeliveryDate == nil {
		t.Error("expected actual delivery date set")
	}
}

func TestUpdateQuantityVersionConflict(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	stale := task.Version - 1
	_, err := env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{
		QuantityIncrement: 10,
		Version:           &stale,
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	current := task.Version
	if _, err := env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{
		QuantityIncrement: 10,
		Version:           &current,
	}); err != nil {
		t.Fatalf("expected success with current version, got %v", err)
	}
}

func TestUpdateQuantityClamped(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 超量报工夹到生产数并完结
	task, err := env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{QuantityIncrement: 150})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.QuantityCompleted != 100 || task.Status != entity.TaskStatusCompleted {
		t.Errorf("expected clamped to 100 and completed, got %d %s", task.QuantityCompleted, task.Status)
	}

	// 负向修正跌破生产数，任务回到进行中
	task, err = env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{QuantityIncrement: -30})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if task.QuantityCompleted != 70 || task.Status != entity.TaskStatusInProgress {
		t.Errorf("expected 70 in_progress after correction, got %d %s", task.QuantityCompleted, task.Status)
	}
}

func TestCompleteUnderQuantityRequiresReason(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	if _, err := env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{QuantityIncrement: 60}); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := env.Services.Task.Complete(ctx, admin, task.ID, service.CompleteTaskRequest{})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	task2, err := env.Services.Task.Complete(ctx, admin, task.ID, service.CompleteTaskRequest{CompletionReason: "客户减量"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task2.Status != entity.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task2.Status)
	}
	if task2.QuantityCompleted != 60 {
		t.Errorf("expected quantity stays 60, got %d", task2.QuantityCompleted)
	}
}

func TestSplitAndRollUp(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 子任务数量之和超出父任务生产数
	_, err := env.Services.Task.Split(ctx, admin, task.ID, service.SplitTaskRequest{
		Splits: []service.SplitItem{{ProductionQuantity: 80}, {ProductionQuantity: 80}},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error on oversized split, got %v", err)
	}

	subs, err := env.Services.Task.Split(ctx, admin, task.ID, service.SplitTaskRequest{
		Splits: []service.SplitItem{{ProductionQuantity: 60}, {ProductionQuantity: 40}},
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subs))
	}
	for _, sub := range subs {
		if sub.TaskType != task.TaskType {
			t.Errorf("subtask should inherit task type, got %s", sub.TaskType)
		}
		if sub.ParentTaskID == nil || *sub.ParentTaskID != task.ID {
			t.Errorf("subtask parent mismatch: %v", sub.ParentTaskID)
		}
	}

	// 已拆分的父任务不能直接报工，也不能再拆
	if _, err := env.Services.Task.UpdateQuantity(ctx, admin, task.ID, service.UpdateQuantityRequest{QuantityIncrement: 10}); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error reporting on split parent, got %v", err)
	}
	if _, err := env.Services.Task.Split(ctx, admin, subs[0].ID, service.SplitTaskRequest{
		Splits: []service.SplitItem{{ProductionQuantity: 30}, {ProductionQuantity: 30}},
	}); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error splitting a subtask, got %v", err)
	}

	// 第一条子任务完成，父任务汇总但未完结
	if _, err := env.Services.Task.UpdateQuantity(ctx, admin, subs[0].ID, service.UpdateQuantityRequest{QuantityIncrement: 60}); err != nil {
		t.Fatalf("sub 1: %v", err)
	}
	parent, _ := env.Services.Task.Get(ctx, task.ID)
	if parent.QuantityCompleted != 60 {
		t.Errorf("expected parent quantity 60, got %d", parent.QuantityCompleted)
	}
	if parent.Status != entity.TaskStatusInProgress {
		t.Errorf("expected parent in_progress, got %s", parent.Status)
	}

	// 第二条完成后父任务、工序一起完结
	if _, err := env.Services.Task.UpdateQuantity(ctx, admin, subs[1].ID, service.UpdateQuantityRequest{QuantityIncrement: 40}); err != nil {
		t.Fatalf("sub 2: %v", err)
	}
	parent, _ = env.Services.Task.Get(ctx, task.ID)
	if parent.QuantityCompleted != 100 || parent.Status != entity.TaskStatusCompleted {
		t.Errorf("expected parent 100 completed, got %d %s", parent.QuantityCompleted, parent.Status)
	}
	wop, _ := env.Services.Process.Get(ctx, task.WorkOrderProcessID)
	if wop.Status != entity.ProcStatusCompleted {
		t.Errorf("expected process completed, got %s", wop.Status)
	}
}

func TestCancelLastAliveTaskBlocked(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	_, err := env.Services.Task.Cancel(ctx, admin, task.ID, service.CancelTaskRequest{CancellationReason: "计划变更"})
	if !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error cancelling the only task, got %v", err)
	}
}

func TestCancelSubtaskNotifiesOperator(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	subs, err := env.Services.Task.Split(ctx, admin, task.ID, service.SplitTaskRequest{
		Splits: []service.SplitItem{
			{ProductionQuantity: 60, AssignedOperatorID: &fx.OpPrint.ID},
			{ProductionQuantity: 40},
		},
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	cancelled, err := env.Services.Task.Cancel(ctx, admin, subs[0].ID, service.CancelTaskRequest{CancellationReason: "设备故障"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}

	notices, _, err := env.Repos.Notification.ListByRecipient(ctx, fx.OpPrint.ID, false, 1, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notices {
		if n.NotifyType == entity.NotifyTaskCancelled {
			found = true
		}
	}
	if !found {
		t.Error("expected task_cancelled notification for former operator")
	}
}

func TestStartTaskRequiresAssignee(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)
	other := testutil.Actor("someone-else", false, []string{fx.DeptPrint.ID})

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 未指派不能开始
	if _, err := env.Services.Task.Start(ctx, admin, task.ID, service.StartTaskRequest{}); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error starting unassigned task, got %v", err)
	}

	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// 非负责人不能开始
	if _, err := env.Services.Task.Start(ctx, other, task.ID, service.StartTaskRequest{}); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected permission denied for non-assignee, got %v", err)
	}
}

// TestTaskEventsCarryWorkOrderID 任务操作广播的 SSE 事件要带施工单 ID，
// 前端按施工单订阅刷新时依赖这个字段。
func TestTaskEventsCarryWorkOrderID(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)
	printer := testutil.Actor(fx.OpPrint.ID, false, []string{fx.DeptPrint.ID})

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	client := &sse.Client{ID: "listener", UserID: "admin", Events: make(chan sse.Event, 16)}
	sse.GlobalHub.Register(client)
	defer sse.GlobalHub.Unregister(client.ID)

	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Services.Task.Start(ctx, printer, task.ID, service.StartTaskRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	actions := map[string]bool{}
	for len(client.Events) > 0 {
		ev := <-client.Events
		if ev.EventType != "task_update" {
			continue
		}
		if !strings.Contains(ev.Data, `"work_order_id":"`+wo.ID+`"`) {
			t.Fatalf("event missing work order id %s: %s", wo.ID, ev.Data)
		}
		if strings.Contains(ev.Data, `"action":"assigned"`) {
			actions["assigned"] = true
		}
		if strings.Contains(ev.Data, `"action":"started"`) {
			actions["started"] = true
		}
	}
	if !actions["assigned"] || !actions["started"] {
		t.Fatalf("expected assigned and started events, got %v", actions)
	}
}
