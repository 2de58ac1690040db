package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fxxsj/work-order-sub001/internal/apperr"
	"github.com/fxxsj/work-order-sub001/internal/middleware"
	"github.com/fxxsj/work-order-sub001/internal/model/entity"
	"github.com/fxxsj/work-order-sub001/internal/service"
	"github.com/fxxsj/work-order-sub001/internal/testutil"
)

func TestClaimIdempotentAndConflicting(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	// 第二个印刷工，制造认领竞争
	rival := entity.Operator{ID: "op-rival", Username: "op-rival", Name: "李四", IsActive: true}
	if err := env.DB.Create(&rival).Error; err != nil {
		t.Fatalf("seed rival: %v", err)
	}
	if err := env.DB.Model(&rival).Association("Departments").Append(&fx.DeptPrint); err != nil {
		t.Fatalf("bind rival: %v", err)
	}

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	printer := testutil.Actor(fx.OpPrint.ID, false, []string{fx.DeptPrint.ID})
	rivalActor := testutil.Actor(rival.ID, false, []string{fx.DeptPrint.ID})

	first, err := env.Services.Assignment.Claim(ctx, printer, task.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.AlreadyClaimed {
		t.Error("first claim should succeed fresh")
	}
	if first.Task.AssignedOperatorID == nil || *first.Task.AssignedOperatorID != fx.OpPrint.ID {
		t.Errorf("expected operator %s, got %v", fx.OpPrint.ID, first.Task.AssignedOperatorID)
	}

	// 认领成功后本人收到 task_assigned 通知
	notices, _, err := env.Repos.Notification.ListByRecipient(ctx, fx.OpPrint.ID, false, 1, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var claimed bool
	for _, n := range notices {
		if n.NotifyType == entity.NotifyTaskAssigned && n.TaskID != nil && *n.TaskID == task.ID {
			claimed = true
		}
	}
	if !claimed {
		t.Error("expected task_assigned notification for claiming operator")
	}

	// 同一人重复认领幂等
	again, err := env.Services.Assignment.Claim(ctx, printer, task.ID)
	if err != nil {
		t.Fatalf("repeat claim: %v", err)
	}
	if !again.AlreadyClaimed {
		t.Error("repeat claim should report already claimed")
	}

	// 他人认领冲突
	if _, err := env.Services.Assignment.Claim(ctx, rivalActor, task.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for rival claim, got %v", err)
	}
}

func TestClaimOutsideDepartmentDenied(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 包装工不在印刷车间
	packer := testutil.Actor(fx.OpPack.ID, false, []string{fx.DeptPack.ID})
	if _, err := env.Services.Assignment.Claim(ctx, packer, task.ID); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestAssignChecksOperatorDepartment(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 包装工不属于任务所在的印刷车间
	_, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPack.ID})
	if !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestAssignWithoutPermissionDenied(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	nobody := testutil.Actor("nobody", false, nil)
	if _, err := env.Services.Assignment.Assign(ctx, nobody, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	// 持派工权限且在任务部门内则放行
	dispatcher := testutil.Actor("dispatcher", false, []string{fx.DeptPrint.ID}, middleware.CapDispatchTask)
	if _, err := env.Services.Assignment.Assign(ctx, dispatcher, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); err != nil {
		t.Fatalf("dispatcher assign: %v", err)
	}
}

func TestAssignCapacityLimit(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)
	env.Config.Workshop.MaxActiveTasksPerOperator = 2

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	// 占满操作员的承载量
	for i := 0; i < 2; i++ {
		busy := entity.WorkOrderTask{
			ID:                 newTestID(i),
			WorkOrderProcessID: task.WorkOrderProcessID,
			TaskType:           entity.TaskTypeGeneral,
			WorkContent:        "占位任务",
			ProductionQuantity: 10,
			AssignedOperatorID: &fx.OpPrint.ID,
			Status:             entity.TaskStatusInProgress,
			Version:            1,
		}
		if err := env.DB.Create(&busy).Error; err != nil {
			t.Fatalf("seed busy task: %v", err)
		}
	}

	_, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID})
	if !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	printer := testutil.Actor(fx.OpPrint.ID, false, []string{fx.DeptPrint.ID})
	if _, err := env.Services.Assignment.Claim(ctx, printer, task.ID); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected capacity error on claim, got %v", err)
	}
}

func TestReassignNotifiesBothOperators(t *testing.T) {
	env := testutil.NewEnv(t)
	fx := seedFixture(t, env)
	ctx := context.Background()
	admin := testutil.Actor("admin", true, nil)

	second := entity.Operator{ID: "op-second", Username: "op-second", Name: "王五", IsActive: true}
	if err := env.DB.Create(&second).Error; err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := env.DB.Model(&second).Association("Departments").Append(&fx.DeptPrint); err != nil {
		t.Fatalf("bind operator: %v", err)
	}

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// 重复指派同一人被拒
	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: fx.OpPrint.ID}); !apperr.IsKind(err, apperr.KindBusiness) {
		t.Fatalf("expected business error on same-operator reassign, got %v", err)
	}

	if _, err := env.Services.Assignment.Assign(ctx, admin, task.ID, service.AssignTaskRequest{OperatorID: second.ID, Notes: "换班"}); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	for _, recipient := range []string{fx.OpPrint.ID, second.ID} {
		notices, _, err := env.Repos.Notification.ListByRecipient(ctx, recipient, false, 1, 10)
		if err != nil {
			t.Fatalf("list notifications: %v", err)
		}
		if len(notices) == 0 {
			t.Errorf("expected notification for %s", recipient)
		}
	}
}

func newTestID(i int) string {
	return fmt.Sprintf("task-busy-%d", i)
}

// TestConcurrentClaimSingleWinner 多人同时认领同一任务只有一人成功
func TestConcurrentClaimSingleWinner(t *testing.T) {
	env := testutil.NewEnv(t)
	// 内存 sqlite 每个连接各是一个库，收紧连接池保证共享数据
	sqlDB, err := env.DB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	fx := seedFixture(t, env)
	ctx := context.Background()

	const workers = 6
	operators := make([]entity.Operator, workers)
	for i := range operators {
		op := entity.Operator{
			ID:       fmt.Sprintf("op-race-%d", i),
			Username: fmt.Sprintf("op-race-%d", i),
			Name:     fmt.Sprintf("竞争者%d", i),
			IsActive: true,
		}
		if err := env.DB.Create(&op).Error; err != nil {
			t.Fatalf("seed operator: %v", err)
		}
		if err := env.DB.Model(&op).Association("Departments").Append(&fx.DeptPrint); err != nil {
			t.Fatalf("bind operator: %v", err)
		}
		operators[i] = op
	}

	wo := approvedOrder(t, env, fx, 100)
	task := startedPrintTask(t, env, fx, wo)

	type outcome struct {
		res *service.ClaimResult
		err error
	}
	outcomes := make([]outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := testutil.Actor(operators[i].ID, false, []string{fx.DeptPrint.ID})
			res, err := env.Services.Assignment.Claim(ctx, actor, task.ID)
			outcomes[i] = outcome{res: res, err: err}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, o := range outcomes {
		switch {
		case o.err == nil && !o.res.AlreadyClaimed:
			winners++
		case o.err == nil && o.res.AlreadyClaimed:
			// 同人重复认领才会走到这里，不同操作员不应出现
			t.Errorf("operator %d unexpectedly idempotent", i)
		case apperr.IsKind(o.err, apperr.KindConflict):
			// 竞争失败方
		default:
			t.Errorf("operator %d got unexpected result: %v", i, o.err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", winners)
	}

	got, err := env.Repos.Task.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.AssignedOperatorID == nil {
		t.Fatal("expected task assigned after race")
	}
}

// TestRoundRobinDispatchParallel 并发派工下 round_robin 游标不丢不撞
func TestRoundRobinDispatchParallel(t *testing.T) {
	env := testutil.NewEnv(t)
	sqlDB, err := env.DB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	fx := seedFixture(t, env)
	ctx := context.Background()

	second := entity.Operator{ID: "op-rr", Username: "op-rr", Name: "轮换工", IsActive: true}
	if err := env.DB.Create(&second).Error; err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := env.DB.Model(&second).Association("Departments").Append(&fx.DeptPrint); err != nil {
		t.Fatalf("bind operator: %v", err)
	}

	if _, err := env.Services.Dispatch.CreateRule(ctx, service.SaveRuleRequest{
		Name:                      "印刷轮换派工",
		ProcessID:                 fx.ProcPrint.ID,
		TargetDepartmentID:        fx.DeptPrint.ID,
		OperatorSelectionStrategy: entity.StrategyRoundRobin,
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	const rounds = 8
	assigned := make([]*string, rounds)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := &entity.WorkOrderTask{TaskType: entity.TaskTypePrinting}
			if _, err := env.Services.Dispatch.Apply(ctx, env.Repos, task, fx.ProcPrint.ID); err != nil {
				t.Errorf("apply %d: %v", i, err)
				return
			}
			assigned[i] = task.AssignedOperatorID
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for i, op := range assigned {
		if op == nil {
			t.Fatalf("apply %d selected nobody", i)
		}
		seen[*op]++
	}
	if len(seen) != 2 {
		t.Errorf("expected both operators used by round robin, got %v", seen)
	}
}
