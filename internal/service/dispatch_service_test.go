package service_test

import (
	"context"
	"testing"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/service"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

// dispatchOrder 建单但不在工序上预设部门，留给派工规则决定
func dispatchOrder(t *testing.T, env *testutil.TestEnv, fx *fixture) *entity.WorkOrder {
	t.Helper()
	ctx := context.Background()
	maker := testutil.Actor("maker", false, nil)
	admin := testutil.Actor("admin", true, nil)

	wo, err := env.Services.WorkOrder.Create(ctx, maker, service.CreateWorkOrderRequest{
		CustomerID:         fx.Customer.ID,
		ProductionQuantity: 100,
		Processes:          []service.ProcessItem{{ProcessID: fx.ProcPrint.ID, Sequence: 1}},
		Products:           []service.ProductItem{{ProductID: fx.Product.ID, Quantity: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Services.WorkOrder.Approve(ctx, admin, wo.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return wo
}

func TestAutoDispatchOnProcessStart(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:               "印刷默认派工",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
		TargetOperatorID:   &fx.OpPrint.ID,
		Priority:           10,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	wo := dispatchOrder(t, env, fx)
	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	tasks, _ := env.Repos.Task.ListByProcess(ctx, wop.ID)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.AssignedDepartmentID == nil || *task.AssignedDepartmentID != fx.DeptPrint.ID {
		t.Errorf("expected department %s, got %v", fx.DeptPrint.ID, task.AssignedDepartmentID)
	}
	if task.AssignedOperatorID == nil || *task.AssignedOperatorID != fx.OpPrint.ID {
		t.Errorf("expected operator %s, got %v", fx.OpPrint.ID, task.AssignedOperatorID)
	}

	// 被派工的操作员收到通知
	notices, _, err := env.Repos.Notification.ListByRecipient(ctx, fx.OpPrint.ID, false, 1, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notices) == 0 {
		t.Error("expected task_assigned notification for dispatched operator")
	}
}

func TestAutoDispatchDisabled(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:               "印刷默认派工",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := env.Services.Dispatch.SetEnabled(ctx, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	wo := dispatchOrder(t, env, fx)
	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	tasks, _ := env.Repos.Task.ListByProcess(ctx, wop.ID)
	if tasks[0].AssignedDepartmentID != nil {
		t.Errorf("expected undispatched task, got department %v", tasks[0].AssignedDepartmentID)
	}

	enabled, err := env.Services.Dispatch.Enabled(ctx)
	if err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if enabled {
		t.Error("expected dispatch disabled")
	}
}

func TestDispatchRulePriority(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	// 第二个可承接印刷的车间，更高优先级的规则指向它
	premium := entity.Department{ID: "dept-premium", Code: "D-PRE", Name: "精品车间", IsActive: true}
	if err := env.DB.Create(&premium).Error; err != nil {
		t.Fatalf("seed department: %v", err)
	}
	if err := env.DB.Model(&premium).Association("Processes").Append(&fx.ProcPrint); err != nil {
		t.Fatalf("bind process: %v", err)
	}

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name: "低优先级", ProcessID: fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID, Priority: 1,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name: "高优先级", ProcessID: fx.ProcPrint.ID,
		TargetDepartmentID: premium.ID, Priority: 100,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	wo := dispatchOrder(t, env, fx)
	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	tasks, _ := env.Repos.Task.ListByProcess(ctx, wop.ID)
	if tasks[0].AssignedDepartmentID == nil || *tasks[0].AssignedDepartmentID != premium.ID {
		t.Errorf("expected high-priority department %s, got %v", premium.ID, tasks[0].AssignedDepartmentID)
	}
}

func TestDispatchLeastTasksStrategy(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	idle := entity.Operator{ID: "op-idle", Username: "op-idle", Name: "闲人", IsActive: true}
	if err := env.DB.Create(&idle).Error; err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := env.DB.Model(&idle).Association("Departments").Append(&fx.DeptPrint); err != nil {
		t.Fatalf("bind operator: %v", err)
	}

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:                      "印刷按负载派工",
		ProcessID:                 fx.ProcPrint.ID,
		TargetDepartmentID:        fx.DeptPrint.ID,
		OperatorSelectionStrategy: entity.StrategyLeastTasks,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	// 给原印刷工压两条待处理任务，least_tasks 应选中闲人
	wo := dispatchOrder(t, env, fx)
	for i := 0; i < 2; i++ {
		busy := entity.WorkOrderTask{
			ID:                 newTestID(i),
			WorkOrderProcessID: wo.Processes[0].ID,
			TaskType:           entity.TaskTypeGeneral,
			WorkContent:        "积压任务",
			ProductionQuantity: 10,
			AssignedOperatorID: &fx.OpPrint.ID,
			Status:             entity.TaskStatusPending,
			Version:            1,
		}
		if err := env.DB.Create(&busy).Error; err != nil {
			t.Fatalf("seed busy task: %v", err)
		}
	}

	wop, err := env.Services.Process.Start(ctx, admin, wo.Processes[0].ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	tasks, _ := env.Repos.Task.ListByProcess(ctx, wop.ID)
	var printing *entity.WorkOrderTask
	for i := range tasks {
		if tasks[i].TaskType == entity.TaskTypePrinting {
			printing = &tasks[i]
		}
	}
	if printing == nil {
		t.Fatal("printing task not generated")
	}
	if printing.AssignedOperatorID == nil || *printing.AssignedOperatorID != idle.ID {
		t.Errorf("expected least-loaded operator %s, got %v", idle.ID, printing.AssignedOperatorID)
	}
}

func TestSaveRuleValidatesStrategy(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	_, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:                      "坏策略",
		ProcessID:                 fx.ProcPrint.ID,
		TargetDepartmentID:        fx.DeptPrint.ID,
		OperatorSelectionStrategy: "coin_flip",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDispatchPreview(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:               "印刷默认派工",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	previews, err := env.Services.Dispatch.Preview(ctx)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(previews) != 1 {
		t.Fatalf("expected 1 preview row, got %d", len(previews))
	}
	row := previews[0]
	if row.ProcessCode != entity.ProcessCodePrint || row.DepartmentID != fx.DeptPrint.ID {
		t.Errorf("unexpected preview row: %+v", row)
	}
}

func TestRuleUniquePerProcessDepartment(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	first, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:               "印刷默认派工",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	_, err = env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:               "重复规则",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on duplicate process+department, got %v", err)
	}

	// 更新自身不算冲突
	if _, err := env.Services.Dispatch.UpdateRule(ctx, first.ID, service.SaveRuleRequest{
		Name:               "印刷默认派工（改名）",
		ProcessID:          fx.ProcPrint.ID,
		TargetDepartmentID: fx.DeptPrint.ID,
		Priority:           5,
	}); err != nil {
		t.Fatalf("update same rule: %v", err)
	}
}
